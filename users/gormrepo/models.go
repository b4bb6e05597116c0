package gormrepo

import "github.com/jrsteele09/sponsor-auth/users"

type Admin struct {
	ID       int    `gorm:"primaryKey"`
	Email    string `gorm:"uniqueIndex;size:255;not null"`
	Password string `gorm:"size:255;not null"`
}

type Sponsor struct {
	ID       int    `gorm:"primaryKey"`
	Email    string `gorm:"uniqueIndex;size:255;not null"`
	Password string `gorm:"size:255;not null"`
	Name     string `gorm:"size:255"`
}

type Trainee struct {
	ID         int    `gorm:"primaryKey"`
	LoginToken string `gorm:"uniqueIndex;size:255;not null"`
	Email      string `gorm:"size:255"`
	SponsorID  *int
}

func (a Admin) record() users.Record {
	return users.Record{ID: a.ID, Email: a.Email, SecretHash: a.Password}
}

func (s Sponsor) record() users.Record {
	return users.Record{ID: s.ID, Email: s.Email, SecretHash: s.Password}
}

func (t Trainee) record() users.Record {
	return users.Record{ID: t.ID, Email: t.Email, LoginToken: t.LoginToken}
}
