package sessions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, clock *testClock) sessions.Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *testClock) sessions.Store {
			return sessions.NewMemoryStore(sessions.WithMemoryNowTime(clock.Now))
		},
		"redis": func(t *testing.T, clock *testClock) sessions.Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return sessions.NewRedisStore(rdb,
				sessions.WithRedisNowTime(clock.Now),
				sessions.WithUpdateRetries(200),
			)
		},
	}
}

func TestStore_CreateLoadInvalidate(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newTestClock())

			s, err := store.Create(ctx, time.Minute)
			require.NoError(t, err)
			require.NotEmpty(t, s.ID)

			other, err := store.Create(ctx, time.Minute)
			require.NoError(t, err)
			require.NotEqual(t, s.ID, other.ID)

			loaded, err := store.Load(ctx, s.ID)
			require.NoError(t, err)
			require.Equal(t, s.ID, loaded.ID)
			require.Equal(t, time.Minute, loaded.InactivityTimeout)

			require.NoError(t, store.Invalidate(ctx, s.ID))
			_, err = store.Load(ctx, s.ID)
			require.ErrorIs(t, err, sessions.ErrSessionNotFound)
			require.ErrorIs(t, store.Invalidate(ctx, s.ID), sessions.ErrSessionNotFound)

			_, err = store.Load(ctx, other.ID)
			require.NoError(t, err)
		})
	}
}

func TestStore_UpdatePersistsAttributes(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newTestClock())

			s, err := store.Create(ctx, time.Minute)
			require.NoError(t, err)

			updated, err := store.Update(ctx, s.ID, func(sess *sessions.Session) error {
				return sessions.SetAttr(sess, "colour", "green")
			})
			require.NoError(t, err)
			colour, ok := sessions.GetAttr[string](updated, "colour")
			require.True(t, ok)
			require.Equal(t, "green", colour)

			loaded, err := store.Load(ctx, s.ID)
			require.NoError(t, err)
			colour, ok = sessions.GetAttr[string](loaded, "colour")
			require.True(t, ok)
			require.Equal(t, "green", colour)

			_, err = store.Update(ctx, "missing", func(*sessions.Session) error { return nil })
			require.ErrorIs(t, err, sessions.ErrSessionNotFound)
		})
	}
}

func TestStore_FailedUpdateChangesNothing(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newTestClock())

			s, err := store.Create(ctx, time.Minute)
			require.NoError(t, err)

			_, err = store.Update(ctx, s.ID, func(sess *sessions.Session) error {
				require.NoError(t, sessions.SetAttr(sess, "half", true))
				return errors.ErrTokenGeneration
			})
			require.ErrorIs(t, err, errors.ErrTokenGeneration)

			loaded, err := store.Load(ctx, s.ID)
			require.NoError(t, err)
			require.False(t, loaded.Has("half"))
		})
	}
}

func TestStore_InactivityExpiry(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newTestClock()
			store := factory(t, clock)

			s, err := store.Create(ctx, time.Minute)
			require.NoError(t, err)

			clock.Advance(50 * time.Second)
			_, err = store.Load(ctx, s.ID)
			require.NoError(t, err, "access refreshes the idle window")

			clock.Advance(50 * time.Second)
			_, err = store.Load(ctx, s.ID)
			require.NoError(t, err)

			clock.Advance(61 * time.Second)
			_, err = store.Load(ctx, s.ID)
			require.ErrorIs(t, err, sessions.ErrSessionNotFound)
		})
	}
}

func TestStore_ConcurrentUpdatesAreSerialised(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newTestClock())

			s, err := store.Create(ctx, time.Minute)
			require.NoError(t, err)

			const workers = 20
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.Update(ctx, s.ID, func(sess *sessions.Session) error {
						n, _ := sessions.GetAttr[int](sess, "counter")
						return sessions.SetAttr(sess, "counter", n+1)
					})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			loaded, err := store.Load(ctx, s.ID)
			require.NoError(t, err)
			n, ok := sessions.GetAttr[int](loaded, "counter")
			require.True(t, ok)
			require.Equal(t, workers, n)
		})
	}
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := sessions.NewMemoryStore(sessions.WithMemoryNowTime(clock.Now))

	_, err := store.Create(ctx, time.Minute)
	require.NoError(t, err)
	keep, err := store.Create(ctx, time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	require.Equal(t, 1, store.DeleteExpired())

	_, err = store.Load(ctx, keep.ID)
	require.NoError(t, err)
}

func TestMemoryStore_LoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemoryStore()

	s, err := store.Create(ctx, time.Minute)
	require.NoError(t, err)

	loaded, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, sessions.SetAttr(loaded, "stray", 1))

	again, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	require.False(t, again.Has("stray"))
}

func TestRedisStore_KeyTTLTracksInactivity(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := sessions.NewRedisStore(rdb, sessions.WithKeyPrefix("test:"))

	s, err := store.Create(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists("test:"+s.ID))
	require.Equal(t, time.Minute, mr.TTL("test:"+s.ID))

	mr.FastForward(2 * time.Minute)
	_, err = store.Load(ctx, s.ID)
	require.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestRedisStore_CorruptValueIsFault(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := sessions.NewRedisStore(rdb)

	require.NoError(t, mr.Set("session:broken", "{not json"))
	_, err := store.Load(ctx, "broken")
	require.ErrorIs(t, err, errors.ErrSessionFault)
}
