package surcharge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/pricing-api/internal/cartstate"
)

// ErrStoreUnavailable wraps baseline store failures. Reconciliation fails
// closed on it: the fee list is left untouched and the condition is logged.
var ErrStoreUnavailable = errors.New("surcharge: baseline store unavailable")

// Baseline is the per-session record the controller compares against: the
// fingerprint of the last cart state a fee was computed for, plus a force bit
// a caller can set to demand recomputation regardless of the fingerprint.
type Baseline struct {
	Fingerprint cartstate.Fingerprint `json:"fingerprint"`
	Force       bool                  `json:"force"`
}

// BaselineStore persists baselines keyed by checkout session. Entries follow
// the session lifecycle: created on first fee evaluation, updated on every
// recomputation, dropped when the session expires.
type BaselineStore interface {
	Get(ctx context.Context, sessionID string) (Baseline, bool, error)
	Put(ctx context.Context, sessionID string, baseline Baseline) error
	Delete(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	baseline Baseline
	expires  time.Time
}

// MemoryStore is a process-local BaselineStore for tests and redis-less
// deployments.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore builds a memory store with the provided session TTL. A zero
// TTL keeps entries until Delete.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{TTL: ttl, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Get returns the stored baseline for the session if present and unexpired.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (Baseline, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[sessionID]
	if !ok {
		return Baseline{}, false, nil
	}
	if !entry.expires.IsZero() && m.now().After(entry.expires) {
		delete(m.entries, sessionID)
		return Baseline{}, false, nil
	}
	return entry.baseline, true, nil
}

// Put stores the baseline, refreshing the session TTL.
func (m *MemoryStore) Put(_ context.Context, sessionID string, baseline Baseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]memoryEntry)
	}
	entry := memoryEntry{baseline: baseline}
	if m.TTL > 0 {
		entry.expires = m.now().Add(m.TTL)
	}
	m.entries[sessionID] = entry
	return nil
}

// Delete drops the session's baseline.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}
