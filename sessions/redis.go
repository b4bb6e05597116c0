package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix     = "session:"
	defaultUpdateRetries = 10
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each session as one JSON value whose TTL mirrors the
// inactivity timeout. Updates are WATCH/MULTI/EXEC transactions on that key.
type RedisStore struct {
	rdb        redis.UniversalClient
	prefix     string
	maxRetries int
	nowTime    func() time.Time
}

// RedisStoreOption configures a RedisStore
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces the session keys
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithUpdateRetries bounds the optimistic transaction retries
func WithUpdateRetries(n int) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRedisNowTime sets the clock (primarily for testing)
func WithRedisNowTime(nowFunc func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		s.nowTime = nowFunc
	}
}

func NewRedisStore(rdb redis.UniversalClient, options ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:        rdb,
		prefix:     sessionKeyPrefix,
		maxRetries: defaultUpdateRetries,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *RedisStore) Create(ctx context.Context, timeout time.Duration) (*Session, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		sess := newSession(NewID(), timeout, s.nowTime())
		payload, err := json.Marshal(sess)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrSessionFault, "[RedisStore Create] marshal: %v", err)
		}
		ok, err := s.rdb.SetNX(ctx, s.key(sess.ID), payload, timeout).Result()
		if err != nil {
			return nil, fmt.Errorf("[RedisStore Create] %w: %w", errors.ErrSessionFault, err)
		}
		if ok {
			return sess, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrSessionFault, "[RedisStore Create] no free session id")
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	return s.Update(ctx, id, func(*Session) error { return nil })
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	key := s.key(id)
	var updated *Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("[RedisStore Update] %w: corrupt session %s: %w", errors.ErrSessionFault, id, err)
		}
		now := s.nowTime()
		if sess.Expired(now) {
			return ErrSessionNotFound
		}
		if sess.Attributes == nil {
			sess.Attributes = make(map[string]json.RawMessage)
		}

		if err := fn(&sess); err != nil {
			return err
		}
		sess.ID = id
		sess.LastAccessedAt = now

		payload, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("[RedisStore Update] %w: %w", errors.ErrSessionFault, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, sess.InactivityTimeout)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &sess
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, errors.Wrapf(errors.ErrSessionFault, "[RedisStore Update] session %s: too much contention", id)
}

func (s *RedisStore) Invalidate(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("[RedisStore Invalidate] %w: %w", errors.ErrSessionFault, err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}
