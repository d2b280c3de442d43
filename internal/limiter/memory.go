package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/uiruntime/internal/metrics"
)

// Memory keeps counters in process. It is used by local play sessions and tests.
type Memory struct {
	policy Policy
	now    func() time.Time

	mu     sync.Mutex
	counts map[string]attempts
}

type attempts struct {
	fails int
	last  time.Time
	until time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return NewMemoryPolicy(Policy{Window: window, MaxFails: maxFails, BlockFor: blockFor})
}

// NewMemoryPolicy constructs an in-process limiter from a Policy.
func NewMemoryPolicy(p Policy) *Memory {
	return &Memory{policy: p.normalized(), now: time.Now, counts: map[string]attempts{}}
}

func key(email string, scope []byte) string { return string(scope) + "|" + email }

func (m *Memory) Allow(_ context.Context, email string, scope []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	a := m.counts[key(email, scope)]
	m.mu.Unlock()

	if left := a.until.Sub(m.now()); left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

func (m *Memory) Success(_ context.Context, email string, scope []byte) error {
	m.mu.Lock()
	delete(m.counts, key(email, scope))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Failure(_ context.Context, email string, scope []byte) (bool, time.Duration, error) {
	now := m.now()
	k := key(email, scope)

	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.counts[k]
	if now.Sub(a.last) > m.policy.Window {
		a.fails = 0
	}
	a.fails++
	a.last = now
	blocked := a.fails >= m.policy.MaxFails
	if blocked {
		a.until = now.Add(m.policy.BlockFor)
	}
	m.counts[k] = a

	if !blocked {
		return false, 0, nil
	}
	metrics.RecordLockout("memory")
	return true, m.policy.BlockFor, nil
}
