package surcharge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore persists baselines in Redis so the guard survives across
// requests of the same checkout session. Values expire with the session.
type RedisStore struct {
	R      *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s RedisStore) key(sessionID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "surcharge:baseline:"
	}
	return prefix + sessionID
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 2 * time.Hour
	}
	return s.TTL
}

// Get loads the session baseline. A missing key is not an error.
func (s RedisStore) Get(ctx context.Context, sessionID string) (Baseline, bool, error) {
	if s.R == nil {
		return Baseline{}, false, fmt.Errorf("%w: redis client not configured", ErrStoreUnavailable)
	}
	raw, err := s.R.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Baseline{}, false, nil
	}
	if err != nil {
		return Baseline{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var baseline Baseline
	if err := json.Unmarshal(raw, &baseline); err != nil {
		// A corrupt value behaves like no baseline: the next reconcile
		// recomputes and overwrites it.
		return Baseline{}, false, nil
	}
	return baseline, true, nil
}

// Put stores the baseline with the session TTL.
func (s RedisStore) Put(ctx context.Context, sessionID string, baseline Baseline) error {
	if s.R == nil {
		return fmt.Errorf("%w: redis client not configured", ErrStoreUnavailable)
	}
	raw, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("surcharge: encode baseline: %w", err)
	}
	if err := s.R.Set(ctx, s.key(sessionID), raw, s.ttl()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete drops the session baseline.
func (s RedisStore) Delete(ctx context.Context, sessionID string) error {
	if s.R == nil {
		return fmt.Errorf("%w: redis client not configured", ErrStoreUnavailable)
	}
	if err := s.R.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
