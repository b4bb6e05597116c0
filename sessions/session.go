package sessions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Session is a snapshot of server-side session state. Mutations only become
// visible to other requests through Store.Update.
type Session struct {
	ID                string                     `json:"id"`
	Attributes        map[string]json.RawMessage `json:"attributes,omitempty"`
	InactivityTimeout time.Duration              `json:"inactivity_timeout"`
	CreatedAt         time.Time                  `json:"created_at"`
	LastAccessedAt    time.Time                  `json:"last_accessed_at"`
}

func newSession(id string, timeout time.Duration, now time.Time) *Session {
	return &Session{
		ID:                id,
		Attributes:        make(map[string]json.RawMessage),
		InactivityTimeout: timeout,
		CreatedAt:         now,
		LastAccessedAt:    now,
	}
}

// Expired reports whether the session has been idle longer than its timeout.
// A zero timeout never expires.
func (s *Session) Expired(now time.Time) bool {
	return s.InactivityTimeout > 0 && now.Sub(s.LastAccessedAt) > s.InactivityTimeout
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := *s
	c.Attributes = make(map[string]json.RawMessage, len(s.Attributes))
	for k, v := range s.Attributes {
		c.Attributes[k] = append(json.RawMessage(nil), v...)
	}
	return &c
}

func (s *Session) Has(key string) bool {
	_, ok := s.Attributes[key]
	return ok
}

func (s *Session) Remove(key string) {
	delete(s.Attributes, key)
}

// SetAttr stores v under key as JSON
func SetAttr[T any](s *Session, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("[sessions SetAttr] %s: %w", key, err)
	}
	if s.Attributes == nil {
		s.Attributes = make(map[string]json.RawMessage)
	}
	s.Attributes[key] = data
	return nil
}

// GetAttr decodes the value under key into T. Absent values and values whose
// shape does not match T (including unknown object fields) report false.
func GetAttr[T any](s *Session, key string) (T, bool) {
	var v T
	if s == nil {
		return v, false
	}
	raw, ok := s.Attributes[key]
	if !ok {
		return v, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}
