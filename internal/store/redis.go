package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/OpenMined/network-ensemble-extras/internal/metrics"
	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

const (
	sessionTTL = 24 * time.Hour
	// defaultLockTTL is used until SetLockTTL is called.
	defaultLockTTL = 5 * time.Minute
)

// unlockScript deletes a lock only if the caller still owns it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore handles Redis operations for sessions and rate limiting.
type RedisStore struct {
	client  *redis.Client
	lockTTL time.Duration
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, lockTTL: defaultLockTTL}, nil
}

// SetLockTTL sets how long a session lock outlives a turn that never
// unlocks. It should exceed the longest turn the server allows.
func (s *RedisStore) SetLockTTL(d time.Duration) {
	if d > 0 {
		s.lockTTL = d
	}
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey returns the key holding a serialized session.
func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// sessionLockKey returns the key marking a session as answering.
func sessionLockKey(id string) string {
	return fmt.Sprintf("session:%s:inflight", id)
}

// CreateSession creates and stores a new empty session.
func (s *RedisStore) CreateSession(ctx context.Context) (*models.Session, error) {
	sess := models.NewSession(newSessionID())
	if err := s.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession retrieves a session, or nil if it expired or never existed.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SaveSession stores a session and refreshes its TTL.
func (s *RedisStore) SaveSession(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	start := time.Now()
	err = s.client.Set(ctx, sessionKey(sess.ID), data, sessionTTL).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// DeleteSession removes a session.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id), sessionLockKey(id)).Err()
}

// Lock marks a session as answering until the returned function is called
// or the lock TTL passes.
func (s *RedisStore) Lock(ctx context.Context, id string) (func(), error) {
	token := ulid.Make().String()
	ok, err := s.client.SetNX(ctx, sessionLockKey(id), token, s.lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionBusy
	}
	return func() {
		// The request context may already be done when the turn ends.
		unlockScript.Run(context.Background(), s.client, []string{sessionLockKey(id)}, token)
	}, nil
}
