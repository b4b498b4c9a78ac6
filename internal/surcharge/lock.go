package surcharge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// sessionLocks serializes reconcile calls per session inside this process.
// The host environment is typically single-threaded per request, but a
// double-submitted checkout hits two handlers at once; the guard state must
// not be raced.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (s *sessionLocks) forSession(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	if lock, ok := s.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[sessionID] = lock
	return lock
}

// SessionLocker extends the critical section across processes for the same
// session using a Redis SetNX token lock. Optional: without it reconcile is
// still serialized within the process.
type SessionLocker struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
}

func (l SessionLocker) key(sessionID string) string {
	prefix := l.Prefix
	if prefix == "" {
		prefix = "surcharge:lock:"
	}
	return prefix + sessionID
}

// WithLock runs fn while holding the session lock. The lock is released even
// when fn fails; acquisition gives up when the context is cancelled.
func (l SessionLocker) WithLock(ctx context.Context, sessionID string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil || fn == nil {
		if fn != nil {
			return fn(ctx)
		}
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	token := uuid.NewString()
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	key := l.key(sessionID)

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			// A broken lock backend must not block checkout; fall back to the
			// in-process serialization the controller already holds.
			return fn(ctx)
		}
		if ok {
			defer l.release(context.Background(), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l SessionLocker) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
