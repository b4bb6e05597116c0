package users

import (
	"context"

	"github.com/jrsteele09/sponsor-auth/internal/errors"
)

// ErrNotFound is returned by stores when no record matches
var ErrNotFound = errors.ErrNotFound

// EmailRepo is a credential store for a role that logs in with email and secret
type EmailRepo interface {
	ByEmail(ctx context.Context, email string) (*Record, error)
}

// TokenRepo is a credential store for a role that logs in with a token
type TokenRepo interface {
	ByToken(ctx context.Context, token string) (*Record, error)
}
