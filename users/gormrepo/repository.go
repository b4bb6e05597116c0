package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/sponsor-auth/users"
	"gorm.io/gorm"
)

// Repository holds one table per role
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Close releases the connection pool behind the repository
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("[gormrepo Close] %w", err)
	}
	return sqlDB.Close()
}

func (r *Repository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&Admin{}, &Sponsor{}, &Trainee{}); err != nil {
		return fmt.Errorf("[gormrepo AutoMigrate] %w", err)
	}
	return nil
}

// Admins is the email/secret store for administrators
func (r *Repository) Admins() users.EmailRepo {
	return adminRepo{db: r.db}
}

// Sponsors is the email/secret store for sponsors
func (r *Repository) Sponsors() users.EmailRepo {
	return sponsorRepo{db: r.db}
}

// Trainees is the token store for trainees
func (r *Repository) Trainees() users.TokenRepo {
	return traineeRepo{db: r.db}
}

// UpsertAdmin creates or replaces an administrator keyed by email
func (r *Repository) UpsertAdmin(ctx context.Context, a *Admin) error {
	var existing Admin
	err := r.db.WithContext(ctx).Where("email = ?", a.Email).First(&existing).Error
	switch {
	case err == nil:
		a.ID = existing.ID
		return r.db.WithContext(ctx).Save(a).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(a).Error
	default:
		return fmt.Errorf("[gormrepo UpsertAdmin] %w", err)
	}
}

func (r *Repository) CreateSponsor(ctx context.Context, s *Sponsor) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repository) CreateTrainee(ctx context.Context, t *Trainee) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// AssignSponsor records the sponsor a trainee selected
func (r *Repository) AssignSponsor(ctx context.Context, traineeID, sponsorID int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sponsors int64
		if err := tx.Model(&Sponsor{}).Where("id = ?", sponsorID).Count(&sponsors).Error; err != nil {
			return fmt.Errorf("[gormrepo AssignSponsor] %w", err)
		}
		if sponsors == 0 {
			return users.ErrNotFound
		}
		res := tx.Model(&Trainee{}).Where("id = ?", traineeID).Update("sponsor_id", sponsorID)
		if res.Error != nil {
			return fmt.Errorf("[gormrepo AssignSponsor] %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return users.ErrNotFound
		}
		return nil
	})
}

type adminRepo struct{ db *gorm.DB }

func (r adminRepo) ByEmail(ctx context.Context, email string) (*users.Record, error) {
	var m Admin
	if err := first(r.db.WithContext(ctx).Where("email = ?", email), &m); err != nil {
		return nil, err
	}
	rec := m.record()
	return &rec, nil
}

type sponsorRepo struct{ db *gorm.DB }

func (r sponsorRepo) ByEmail(ctx context.Context, email string) (*users.Record, error) {
	var m Sponsor
	if err := first(r.db.WithContext(ctx).Where("email = ?", email), &m); err != nil {
		return nil, err
	}
	rec := m.record()
	return &rec, nil
}

type traineeRepo struct{ db *gorm.DB }

func (r traineeRepo) ByToken(ctx context.Context, token string) (*users.Record, error) {
	var m Trainee
	if err := first(r.db.WithContext(ctx).Where("login_token = ?", token), &m); err != nil {
		return nil, err
	}
	rec := m.record()
	return &rec, nil
}

func first(q *gorm.DB, dest any) error {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.ErrNotFound
	}
	return err
}
