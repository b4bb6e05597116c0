package auth

import (
	"context"
	"strings"

	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/jrsteele09/sponsor-auth/users"
	"github.com/rs/zerolog/log"
)

// SecretMatcher compares a submitted secret with a stored digest
type SecretMatcher interface {
	IsEqual(candidate, storedDigest string) bool
}

// EmailStore pairs an email credential store with the role it grants
type EmailStore struct {
	Role users.Role
	Repo users.EmailRepo
}

// Resolver turns submitted credentials into a role-tagged Identity
type Resolver struct {
	emailStores []EmailStore
	trainees    users.TokenRepo
	matcher     SecretMatcher
}

// ResolverOption defines a function type to modify the Resolver instance.
type ResolverOption func(*Resolver)

// WithPriority replaces the order in which email stores are consulted
func WithPriority(stores ...EmailStore) ResolverOption {
	return func(r *Resolver) {
		r.emailStores = append([]EmailStore(nil), stores...)
	}
}

// NewResolver checks admins before sponsors unless WithPriority says otherwise.
func NewResolver(
	admins users.EmailRepo,
	sponsors users.EmailRepo,
	trainees users.TokenRepo,
	matcher SecretMatcher,
	options ...ResolverOption,
) (*Resolver, error) {
	if admins == nil {
		return nil, errors.New("[NewResolver] admins repo is required")
	}
	if sponsors == nil {
		return nil, errors.New("[NewResolver] sponsors repo is required")
	}
	if trainees == nil {
		return nil, errors.New("[NewResolver] trainees repo is required")
	}
	if matcher == nil {
		return nil, errors.New("[NewResolver] secret matcher is required")
	}

	r := &Resolver{
		emailStores: []EmailStore{
			{Role: users.RoleAdmin, Repo: admins},
			{Role: users.RoleSponsor, Repo: sponsors},
		},
		trainees: trainees,
		matcher:  matcher,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Resolve authenticates emailOrToken. With a non-blank secret it is an email
// checked against the email stores in priority order: the first store that
// knows the email decides, so a wrong secret never falls through to a lower
// store. Without a secret it is a trainee login token, unless it is shaped
// like an email, which is malformed. Store faults are logged and reported as
// ErrAuthReject.
func (r *Resolver) Resolve(ctx context.Context, emailOrToken, secret string) (users.Identity, error) {
	subject := strings.TrimSpace(emailOrToken)
	if subject == "" {
		return users.Identity{}, errors.ErrAuthMalformed
	}
	if strings.TrimSpace(secret) == "" {
		// An email without a secret is an incomplete password login
		if strings.Contains(subject, "@") {
			return users.Identity{}, errors.ErrAuthMalformed
		}
		return r.resolveToken(ctx, subject)
	}
	return r.resolveEmail(ctx, subject, secret)
}

func (r *Resolver) resolveEmail(ctx context.Context, email, secret string) (users.Identity, error) {
	for _, store := range r.emailStores {
		rec, err := store.Repo.ByEmail(ctx, email)
		if errors.Is(err, users.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Err(err).Str("role", string(store.Role)).Msg("credential store lookup failed")
			return users.Identity{}, errors.ErrAuthReject
		}
		if !r.matcher.IsEqual(secret, rec.SecretHash) {
			return users.Identity{}, errors.ErrAuthReject
		}
		return users.NewIdentity(store.Role, *rec), nil
	}
	return users.Identity{}, errors.ErrAuthReject
}

func (r *Resolver) resolveToken(ctx context.Context, token string) (users.Identity, error) {
	rec, err := r.trainees.ByToken(ctx, token)
	if errors.Is(err, users.ErrNotFound) {
		return users.Identity{}, errors.ErrAuthReject
	}
	if err != nil {
		log.Err(err).Str("role", string(users.RoleTrainee)).Msg("credential store lookup failed")
		return users.Identity{}, errors.ErrAuthReject
	}
	return users.NewIdentity(users.RoleTrainee, *rec), nil
}
