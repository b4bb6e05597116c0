package csrf_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/sponsor-auth/csrf"
	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/stretchr/testify/require"
)

const formPair csrf.Form = "PAIR"

type ledgerFixture struct {
	ctx     context.Context
	now     time.Time
	store   *sessions.MemoryStore
	ledger  *csrf.Ledger
	session *sessions.Session
}

func setupTestFixture(t *testing.T, options ...csrf.LedgerOption) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		ctx: context.Background(),
		now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.store = sessions.NewMemoryStore(sessions.WithMemoryNowTime(f.clock))

	policies := csrf.NewPolicies(map[csrf.Form]csrf.Policy{
		csrf.FormLogin:  csrf.RequestScoped(1),
		csrf.FormLogout: csrf.SessionScoped(),
		csrf.FormSSO:    csrf.RequestScoped(csrf.DefaultMaxTokens),
		formPair:        csrf.RequestScoped(2),
	})
	options = append([]csrf.LedgerOption{csrf.WithNowTime(f.clock)}, options...)
	ledger, err := csrf.NewLedger(f.store, policies, options...)
	require.NoError(t, err)
	f.ledger = ledger

	f.session, err = f.store.Create(f.ctx, time.Hour)
	require.NoError(t, err)
	return f
}

func (f *ledgerFixture) clock() time.Time {
	return f.now
}

func (f *ledgerFixture) entry(t *testing.T, form csrf.Form) []string {
	t.Helper()
	s, err := f.store.Load(f.ctx, f.session.ID)
	require.NoError(t, err)
	records, _ := sessions.GetAttr[[]csrf.TokenRecord](s, csrf.AttributeKey(form))
	tokens := make([]string, 0, len(records))
	for _, rec := range records {
		tokens = append(tokens, rec.Token)
	}
	return tokens
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestIssue_EvictsOldestFirst(t *testing.T) {
	f := setupTestFixture(t)

	a, err := f.ledger.Issue(f.ctx, f.session, formPair)
	require.NoError(t, err)
	b, err := f.ledger.Issue(f.ctx, f.session, formPair)
	require.NoError(t, err)
	c, err := f.ledger.Issue(f.ctx, f.session, formPair)
	require.NoError(t, err)

	require.Equal(t, []string{b, c}, f.entry(t, formPair))
	require.False(t, f.ledger.Check(f.ctx, f.session, formPair, a, time.Hour))
	require.True(t, f.ledger.Check(f.ctx, f.session, formPair, b, time.Hour))
	require.True(t, f.ledger.Check(f.ctx, f.session, formPair, c, time.Hour))
}

func TestIssue_SessionScopedReturnsSameToken(t *testing.T) {
	f := setupTestFixture(t)

	first, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogout)
	require.NoError(t, err)
	second, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogout)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, f.entry(t, csrf.FormLogout), 1)

	f.ledger.Invalidate(f.ctx, f.session, csrf.FormLogout, first)
	third, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogout)
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}

func TestIssue_LoginFormKeepsOnlyLatest(t *testing.T) {
	f := setupTestFixture(t)

	first, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogin)
	require.NoError(t, err)
	second, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogin)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.False(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogin, first, time.Hour))
	require.True(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogin, second, time.Hour))
}

func TestIssue_TokenShape(t *testing.T) {
	f := setupTestFixture(t)

	token, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogin)
	require.NoError(t, err)
	require.Len(t, token, 43, "32 bytes base64 raw-url encoded")
	require.NotContains(t, token, "=")
}

func TestIssue_UnknownForm(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.ledger.Issue(f.ctx, f.session, "NOPE")
	require.ErrorIs(t, err, errors.ErrUnknownForm)
	require.False(t, f.ledger.Check(f.ctx, f.session, "NOPE", "x", time.Hour))
}

func TestIssue_CollisionsExhausted(t *testing.T) {
	f := setupTestFixture(t, csrf.WithRandReader(zeroReader{}))

	first, err := f.ledger.Issue(f.ctx, f.session, csrf.FormSSO)
	require.NoError(t, err)

	_, err = f.ledger.Issue(f.ctx, f.session, csrf.FormSSO)
	require.ErrorIs(t, err, errors.ErrTokenGeneration)
	require.Equal(t, []string{first}, f.entry(t, csrf.FormSSO), "failed issuance leaves the entry untouched")
}

func TestIssue_InvalidatedSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Invalidate(f.ctx, f.session.ID))

	_, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogin)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
	require.False(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogin, "x", time.Hour))
}

func TestCheck_Timeout(t *testing.T) {
	f := setupTestFixture(t)

	token, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogin)
	require.NoError(t, err)

	f.now = f.now.Add(999 * time.Millisecond)
	require.True(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogin, token, time.Second))

	f.now = f.now.Add(time.Millisecond)
	require.False(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogin, token, time.Second), "a full second has elapsed")
}

func TestRefresh_ReplacesAgedSessionToken(t *testing.T) {
	f := setupTestFixture(t)
	var err error
	f.session, err = f.store.Create(f.ctx, 3*time.Hour)
	require.NoError(t, err)

	old, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogout)
	require.NoError(t, err)

	f.now = f.now.Add(30 * time.Minute)
	same, err := f.ledger.Refresh(f.ctx, f.session, csrf.FormLogout, time.Hour)
	require.NoError(t, err)
	require.Equal(t, old, same, "a live session token is kept")

	f.now = f.now.Add(31 * time.Minute)
	require.False(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogout, old, time.Hour))
	stale, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogout)
	require.NoError(t, err)
	require.Equal(t, old, stale, "Issue alone keeps the aged token")

	fresh, err := f.ledger.Refresh(f.ctx, f.session, csrf.FormLogout, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, old, fresh)
	require.True(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogout, fresh, time.Hour))
	require.False(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogout, old, time.Hour))
	require.Equal(t, []string{fresh}, f.entry(t, csrf.FormLogout))

	again, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogout)
	require.NoError(t, err)
	require.Equal(t, fresh, again)
}

func TestRefresh_DropsAgedRequestTokens(t *testing.T) {
	f := setupTestFixture(t)

	a, err := f.ledger.Issue(f.ctx, f.session, formPair)
	require.NoError(t, err)
	f.now = f.now.Add(10 * time.Minute)
	b, err := f.ledger.Issue(f.ctx, f.session, formPair)
	require.NoError(t, err)

	f.now = f.now.Add(5 * time.Minute)
	c, err := f.ledger.Refresh(f.ctx, f.session, formPair, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{b, c}, f.entry(t, formPair))
	require.NotEqual(t, a, c)

	_, err = f.ledger.Refresh(f.ctx, f.session, "NOPE", time.Minute)
	require.ErrorIs(t, err, errors.ErrUnknownForm)
}

func TestCheck_DoesNotMutate(t *testing.T) {
	f := setupTestFixture(t)

	token, err := f.ledger.Issue(f.ctx, f.session, csrf.FormLogin)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.True(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogin, token, time.Hour))
	}
	require.False(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogin, "forged", time.Hour))
	require.False(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogin, "", time.Hour))
	require.False(t, f.ledger.Check(f.ctx, f.session, csrf.FormLogout, token, time.Hour), "tokens are per form")
	require.Equal(t, []string{token}, f.entry(t, csrf.FormLogin))
}

func TestInvalidate_Idempotent(t *testing.T) {
	f := setupTestFixture(t)

	a, err := f.ledger.Issue(f.ctx, f.session, formPair)
	require.NoError(t, err)
	b, err := f.ledger.Issue(f.ctx, f.session, formPair)
	require.NoError(t, err)

	f.ledger.Invalidate(f.ctx, f.session, formPair, a)
	f.ledger.Invalidate(f.ctx, f.session, formPair, a)
	f.ledger.Invalidate(f.ctx, f.session, formPair, "never-issued")
	require.Equal(t, []string{b}, f.entry(t, formPair))

	require.NoError(t, f.store.Invalidate(f.ctx, f.session.ID))
	f.ledger.Invalidate(f.ctx, f.session, formPair, b)
}

func TestIssue_ConcurrentRequestsRespectBound(t *testing.T) {
	f := setupTestFixture(t)

	const requests = 25
	var wg sync.WaitGroup
	errs := make(chan error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(local *sessions.Session) {
			defer wg.Done()
			_, err := f.ledger.Issue(f.ctx, local, formPair)
			errs <- err
		}(f.session.Clone())
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, f.entry(t, formPair), 2)
}

func TestNewLedger_RequiresStore(t *testing.T) {
	_, err := csrf.NewLedger(nil, csrf.DefaultPolicies())
	require.Error(t, err)
}
