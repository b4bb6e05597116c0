package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/sponsor-auth/users"
)

var (
	_ users.EmailRepo = (*FakeRepo)(nil)
	_ users.TokenRepo = (*FakeRepo)(nil)
)

// FakeRepo is an in-memory credential store for one role
type FakeRepo struct {
	records map[int]users.Record
	emails  map[string]int // email to record id
	tokens  map[string]int // login token to record id
	lock    sync.RWMutex
	calls   int
	failure error
}

func NewFakeRepo() *FakeRepo {
	return &FakeRepo{
		records: make(map[int]users.Record),
		emails:  make(map[string]int),
		tokens:  make(map[string]int),
	}
}

func (r *FakeRepo) Upsert(rec users.Record) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if old, ok := r.records[rec.ID]; ok {
		delete(r.emails, old.Email)
		delete(r.tokens, old.LoginToken)
	}
	r.records[rec.ID] = rec
	if rec.Email != "" {
		r.emails[rec.Email] = rec.ID
	}
	if rec.LoginToken != "" {
		r.tokens[rec.LoginToken] = rec.ID
	}
}

func (r *FakeRepo) ByEmail(_ context.Context, email string) (*users.Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls++
	if r.failure != nil {
		return nil, r.failure
	}

	id, ok := r.emails[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	rec := r.records[id]
	return &rec, nil
}

func (r *FakeRepo) ByToken(_ context.Context, token string) (*users.Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls++
	if r.failure != nil {
		return nil, r.failure
	}

	id, ok := r.tokens[token]
	if !ok {
		return nil, users.ErrNotFound
	}
	rec := r.records[id]
	return &rec, nil
}

// Calls counts lookups so tests can assert a store was never consulted
func (r *FakeRepo) Calls() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.calls
}

// FailWith makes every lookup return err until called with nil
func (r *FakeRepo) FailWith(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failure = err
}
