package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/sponsor-auth/internal/errors"
)

// ErrSessionNotFound is returned for unknown, invalidated and expired sessions
var ErrSessionNotFound = errors.ErrSessionNotFound

// DefaultInactivityTimeout applies to anonymous sessions
const DefaultInactivityTimeout = 30 * time.Minute

// Store keeps sessions server side. Implementations must make Update atomic
// per session: fn runs against the current state and its result replaces it
// wholesale, or nothing changes.
type Store interface {
	// Create starts a session under a fresh ID
	Create(ctx context.Context, timeout time.Duration) (*Session, error)

	// Load returns a copy of the session and refreshes its last access time
	Load(ctx context.Context, id string) (*Session, error)

	// Update applies fn to the session and persists the result. An error
	// from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)

	// Invalidate destroys the session and all its attributes
	Invalidate(ctx context.Context, id string) error
}

// NewID returns a random session identifier
func NewID() string {
	return uuid.New().String()
}
