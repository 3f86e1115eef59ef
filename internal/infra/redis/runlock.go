package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/velis74/notify-engine/internal/service"
)

// defaultRunLockTTL bounds how long a dead scheduler pass can block its
// successors. A healthy pass finishes far below this and releases early.
const defaultRunLockTTL = 30 * time.Minute

// releaseScript deletes the lock only if this process still holds it, so a
// slow pass whose lock already expired cannot free a successor's lock.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ service.RunLock = (*RunLock)(nil)

// RunLock is a distributed mutex for scheduler passes. The value is a random
// token identifying the holder; the TTL guarantees liveness when a holder
// crashes without releasing.
type RunLock struct {
	client   *goredis.Client
	key      string
	ttl      time.Duration
	newToken func() string

	mu    sync.Mutex
	token string
}

func NewRunLock(client *goredis.Client, key string, ttl time.Duration) (*RunLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultRunLockTTL
	}

	return &RunLock{
		client:   client,
		key:      key,
		ttl:      ttl,
		newToken: uuid.NewString,
	}, nil
}

func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("run lock is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	token := l.newToken()
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		return false, nil
	}

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

func (l *RunLock) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("run lock is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}
