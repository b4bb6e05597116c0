package sessions

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/rs/zerolog/log"
)

// DefaultCookieName is the name of the session cookie
const DefaultCookieName = "sponsor_session"

type bindingKey struct{}

// binding records which session the current request is attached to, so a
// session created or invalidated mid-request is visible to later calls.
type binding struct {
	mu       sync.Mutex
	id       string
	resolved bool
}

// Jar attaches sessions to HTTP requests through a signed cookie
type Jar struct {
	store      Store
	codec      *CookieCodec
	cookieName string
	timeout    time.Duration
}

// JarOption configures a Jar
type JarOption func(*Jar)

func WithCookieName(name string) JarOption {
	return func(j *Jar) {
		j.cookieName = name
	}
}

// WithAnonymousTimeout sets the inactivity timeout of newly created sessions
func WithAnonymousTimeout(timeout time.Duration) JarOption {
	return func(j *Jar) {
		j.timeout = timeout
	}
}

func NewJar(store Store, codec *CookieCodec, options ...JarOption) (*Jar, error) {
	if store == nil {
		return nil, errors.Wrapf(errors.ErrSessionFault, "[NewJar] store is required")
	}
	if codec == nil {
		return nil, errors.Wrapf(errors.ErrSessionFault, "[NewJar] cookie codec is required")
	}
	j := &Jar{
		store:      store,
		codec:      codec,
		cookieName: DefaultCookieName,
		timeout:    DefaultInactivityTimeout,
	}
	for _, opt := range options {
		opt(j)
	}
	return j, nil
}

func (j *Jar) Store() Store {
	return j.store
}

// Middleware gives every request its own session binding
func (j *Jar) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, WithBinding(r))
	})
}

// WithBinding returns r carrying a fresh session binding
func WithBinding(r *http.Request) *http.Request {
	if bindingFrom(r.Context()) != nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), bindingKey{}, &binding{}))
}

func bindingFrom(ctx context.Context) *binding {
	b, _ := ctx.Value(bindingKey{}).(*binding)
	return b
}

// Current returns the session attached to the request, or ErrSessionNotFound
func (j *Jar) Current(r *http.Request) (*Session, error) {
	id, ok := j.currentID(r)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return j.store.Load(r.Context(), id)
}

// GetOrCreate returns the attached session, creating one when there is none
func (j *Jar) GetOrCreate(w http.ResponseWriter, r *http.Request) (*Session, error) {
	s, err := j.Current(r)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	return j.Create(w, r)
}

// Create starts a new session and attaches it to the request and response
func (j *Jar) Create(w http.ResponseWriter, r *http.Request) (*Session, error) {
	s, err := j.store.Create(r.Context(), j.timeout)
	if err != nil {
		return nil, err
	}
	value, err := j.codec.Encode(s.ID)
	if err != nil {
		if invErr := j.store.Invalidate(r.Context(), s.ID); invErr != nil {
			log.Err(invErr).Msg("[Jar Create] discard unsigned session")
		}
		return nil, errors.Wrapf(errors.ErrSessionFault, "[Jar Create] %v", err)
	}
	j.setCookie(w, r, value, 0)
	j.bind(r, s.ID)
	return s, nil
}

// Invalidate destroys s and expires the cookie. A session that no longer
// exists yields ErrSessionNotFound, but the request is detached either way.
func (j *Jar) Invalidate(w http.ResponseWriter, r *http.Request, s *Session) error {
	if s == nil {
		return ErrSessionNotFound
	}
	err := j.store.Invalidate(r.Context(), s.ID)
	if id, ok := j.currentID(r); ok && id == s.ID {
		j.setCookie(w, r, "", -1)
		j.bind(r, "")
	}
	return err
}

func (j *Jar) currentID(r *http.Request) (string, bool) {
	b := bindingFrom(r.Context())
	if b != nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.resolved {
			return b.id, b.id != ""
		}
	}

	id := ""
	if c, err := r.Cookie(j.cookieName); err == nil && c.Value != "" {
		decoded, err := j.codec.Decode(c.Value)
		if err != nil {
			log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("rejected session cookie")
		} else {
			id = decoded
		}
	}
	if b != nil {
		b.id = id
		b.resolved = true
	}
	return id, id != ""
}

func (j *Jar) bind(r *http.Request, id string) {
	if b := bindingFrom(r.Context()); b != nil {
		b.mu.Lock()
		b.id = id
		b.resolved = true
		b.mu.Unlock()
	}
}

func (j *Jar) setCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
