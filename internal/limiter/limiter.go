// Package limiter defines login attempt limiting consulted by the auth:login action.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts per (email, scope).
// The scope is an opaque hash, typically of the application id.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, email string, scope []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, scope []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, email string, scope []byte) (bool, time.Duration, error)
}

// Policy is the lockout rule shared by every backend: MaxFails failures
// less than Window apart block the key for BlockFor.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy matches the server configuration defaults.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}

func (p Policy) normalized() Policy {
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.MaxFails <= 0 {
		p.MaxFails = DefaultPolicy.MaxFails
	}
	if p.BlockFor <= 0 {
		p.BlockFor = DefaultPolicy.BlockFor
	}
	return p
}

// HashScope returns a stable hash for a scope string (app id, client address).
func HashScope(scope string) []byte {
	h := sha256.Sum256([]byte(scope))
	return h[:]
}
