// Package lock provides per-project lease locks that stop two sagas from
// mutating the same working prefix at once.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

const keyPrefix = "deploy-engine:lock:"

// Release frees a held lease. It is safe to call more than once.
type Release func(ctx context.Context)

// Locker acquires a lease on key. A held lease fails with CodeConflict.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// ProjectKey is the lock key for a project id.
func ProjectKey(projectID string) string {
	return "project:" + projectID
}

func conflict(key string) error {
	return appErr.Newf(appErr.CodeConflict, "Another operation is already running for %s", key).WithMeta("key", key)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker stores leases as SET NX PX keys so they span API and worker
// processes.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "acquire lock failed")
	}
	if !ok {
		return nil, conflict(key)
	}

	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() {
			if err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
				logger.L().Warn("release lock failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

// MemoryLocker is an in-process Locker for single-instance deployments.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]struct{}{}}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, conflict(key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
