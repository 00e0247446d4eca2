package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xuanji-ai/xuanji-web/internal/shared"
)

// StateStore persists panel state per session scope.
type StateStore interface {
	Load(ctx context.Context, scope, panelID string) (State, error)
	Save(ctx context.Context, scope, panelID string, state State) error
}

// Locker guards a panel against concurrent submissions.
type Locker interface {
	Acquire(ctx context.Context, scope, panelID string) (release func(context.Context) error, err error)
	Busy(ctx context.Context, scope, panelID string) (bool, error)
}

// RedisStore keeps panel state next to the session in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. State expires after ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load returns the stored state or an idle state when none exists.
func (s *RedisStore) Load(ctx context.Context, scope, panelID string) (State, error) {
	payload, err := s.client.Get(ctx, shared.PanelStateKey(scope, panelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{Status: StatusIdle}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("panel: load state: %w", err)
	}
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return State{}, fmt.Errorf("panel: decode state: %w", err)
	}
	return state, nil
}

// Save stores the state, refreshing its expiry.
func (s *RedisStore) Save(ctx context.Context, scope, panelID string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("panel: encode state: %w", err)
	}
	if err := s.client.Set(ctx, shared.PanelStateKey(scope, panelID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("panel: save state: %w", err)
	}
	return nil
}

// releaseScript deletes the lock only when it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock. The ttl bounds how long a crashed
// submission can keep a panel busy.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker constructs a RedisLocker.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire takes the lock or returns ErrBusy.
func (l *RedisLocker) Acquire(ctx context.Context, scope, panelID string) (func(context.Context) error, error) {
	key := shared.PanelLockKey(scope, panelID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("panel: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("panel: release lock: %w", err)
		}
		return nil
	}, nil
}

// Busy reports whether a submission currently holds the lock.
func (l *RedisLocker) Busy(ctx context.Context, scope, panelID string) (bool, error) {
	n, err := l.client.Exists(ctx, shared.PanelLockKey(scope, panelID)).Result()
	if err != nil {
		return false, fmt.Errorf("panel: check lock: %w", err)
	}
	return n > 0, nil
}
