package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"io"
	"time"

	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/rs/zerolog/log"
)

const (
	// FieldName is the hidden form field carrying the token
	FieldName = "csrf_token"
	// HeaderName carries the token on requests and on issuing responses
	HeaderName = "X-Csrf-Token"

	attributePrefix       = "csrfTokenMap_"
	tokenBytes            = 32
	maxGenerationAttempts = 3
)

// TokenRecord is one issued token
type TokenRecord struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// A record stops being accepted once timeout has elapsed since issue
func (r TokenRecord) liveAt(now time.Time, timeout time.Duration) bool {
	return now.Sub(r.CreatedAt) < timeout
}

// AttributeKey is the session attribute holding the ledger entry of form.
// Entries are ordered oldest first.
func AttributeKey(form Form) string {
	return attributePrefix + string(form)
}

// Ledger issues and checks per-session, per-form anti-forgery tokens
type Ledger struct {
	store    sessions.Store
	policies Policies
	nowTime  func() time.Time
	random   io.Reader
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.nowTime = nowFunc
	}
}

// WithRandReader sets the token entropy source (primarily for testing)
func WithRandReader(r io.Reader) LedgerOption {
	return func(l *Ledger) {
		l.random = r
	}
}

func NewLedger(store sessions.Store, policies Policies, options ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, errors.Wrapf(errors.ErrSessionFault, "[NewLedger] session store is required")
	}
	l := &Ledger{
		store:    store,
		policies: policies,
		nowTime:  time.Now,
		random:   rand.Reader,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

func (l *Ledger) Policies() Policies {
	return l.policies
}

// Issue returns a token for form bound to s. Session-scoped forms get their
// existing token back; otherwise a new token is appended, evicting the
// oldest records first when the entry is full. s is refreshed with the
// stored state.
func (l *Ledger) Issue(ctx context.Context, s *sessions.Session, form Form) (string, error) {
	return l.issue(ctx, s, form, 0)
}

// Refresh is Issue after dropping the records of form that Check would
// reject as older than timeout, so a session-scoped form whose token has
// aged out is handed a new one.
func (l *Ledger) Refresh(ctx context.Context, s *sessions.Session, form Form, timeout time.Duration) (string, error) {
	return l.issue(ctx, s, form, timeout)
}

func (l *Ledger) issue(ctx context.Context, s *sessions.Session, form Form, timeout time.Duration) (string, error) {
	policy, ok := l.policies.Lookup(form)
	if !ok {
		return "", errors.Wrapf(errors.ErrUnknownForm, "[Ledger Issue] %s", form)
	}
	if s == nil {
		return "", errors.Wrapf(errors.ErrSessionFault, "[Ledger Issue] no session")
	}

	key := AttributeKey(form)
	var token string
	updated, err := l.store.Update(ctx, s.ID, func(sess *sessions.Session) error {
		entry, _ := sessions.GetAttr[[]TokenRecord](sess, key)
		now := l.nowTime()
		stored := len(entry)
		if timeout > 0 {
			entry = unexpired(entry, now, timeout)
		}

		if !policy.RequestScoped && len(entry) > 0 {
			token = entry[0].Token
			if len(entry) == stored {
				return nil
			}
			return sessions.SetAttr(sess, key, entry)
		}

		for len(entry) > 0 && len(entry) >= policy.MaxTokens {
			entry = entry[1:]
		}

		var err error
		token, err = l.uniqueToken(entry)
		if err != nil {
			return err
		}
		entry = append(entry, TokenRecord{Token: token, CreatedAt: now})
		return sessions.SetAttr(sess, key, entry)
	})
	if err != nil {
		if !errors.Is(err, errors.ErrTokenGeneration) && !errors.Is(err, errors.ErrSessionNotFound) {
			err = errors.Wrapf(errors.ErrSessionFault, "[Ledger Issue] %s: %v", form, err)
		}
		log.Err(err).Str("form", string(form)).Msg("csrf token not issued")
		return "", err
	}
	*s = *updated
	return token, nil
}

// Check reports whether token was issued for form in s less than timeout
// ago. It never changes the ledger.
func (l *Ledger) Check(ctx context.Context, s *sessions.Session, form Form, token string, timeout time.Duration) bool {
	if s == nil || token == "" {
		return false
	}
	if _, ok := l.policies.Lookup(form); !ok {
		return false
	}

	current, err := l.store.Load(ctx, s.ID)
	if err != nil {
		if !errors.Is(err, errors.ErrSessionNotFound) {
			log.Err(err).Str("form", string(form)).Msg("csrf check could not load session")
		}
		return false
	}
	*s = *current

	entry, _ := sessions.GetAttr[[]TokenRecord](current, AttributeKey(form))
	now := l.nowTime()
	found := false
	for _, rec := range entry {
		if subtle.ConstantTimeCompare([]byte(rec.Token), []byte(token)) == 1 && rec.liveAt(now, timeout) {
			found = true
		}
	}
	return found
}

// Invalidate removes token from the entry of form. Removing an unknown
// token is a no-op and store faults are only logged.
func (l *Ledger) Invalidate(ctx context.Context, s *sessions.Session, form Form, token string) {
	if s == nil || token == "" {
		return
	}
	key := AttributeKey(form)
	updated, err := l.store.Update(ctx, s.ID, func(sess *sessions.Session) error {
		entry, ok := sessions.GetAttr[[]TokenRecord](sess, key)
		if !ok {
			return nil
		}
		kept := entry[:0]
		for _, rec := range entry {
			if rec.Token != token {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			sess.Remove(key)
			return nil
		}
		return sessions.SetAttr(sess, key, kept)
	})
	if err != nil {
		if !errors.Is(err, errors.ErrSessionNotFound) {
			log.Err(err).Str("form", string(form)).Msg("csrf token not invalidated")
		}
		return
	}
	*s = *updated
}

func (l *Ledger) uniqueToken(entry []TokenRecord) (string, error) {
	buf := make([]byte, tokenBytes)
	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		if _, err := io.ReadFull(l.random, buf); err != nil {
			return "", errors.Wrapf(errors.ErrTokenGeneration, "[Ledger uniqueToken] read entropy: %v", err)
		}
		token := base64.RawURLEncoding.EncodeToString(buf)
		if !contains(entry, token) {
			return token, nil
		}
	}
	return "", errors.Wrapf(errors.ErrTokenGeneration, "[Ledger uniqueToken] %d collisions", maxGenerationAttempts)
}

func unexpired(entry []TokenRecord, now time.Time, timeout time.Duration) []TokenRecord {
	kept := make([]TokenRecord, 0, len(entry))
	for _, rec := range entry {
		if rec.liveAt(now, timeout) {
			kept = append(kept, rec)
		}
	}
	return kept
}

func contains(entry []TokenRecord, token string) bool {
	for _, rec := range entry {
		if rec.Token == token {
			return true
		}
	}
	return false
}
