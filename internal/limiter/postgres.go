package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/and161185/uiruntime/internal/metrics"
)

// DB is the subset of pgxpool.Pool used by PG.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG stores counters in the login_limiter table. All time arithmetic happens
// on the database clock so several hosts agree on lockouts.
type PG struct {
	db     DB
	policy Policy
}

var _ Limiter = (*PG)(nil)

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return NewPGWithQuerier(pool, window, maxFails, blockFor)
}

// NewPGWithQuerier constructs a limiter over any DB, such as a transaction.
func NewPGWithQuerier(db DB, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	p := Policy{Window: window, MaxFails: maxFails, BlockFor: blockFor}
	return &PG{db: db, policy: p.normalized()}
}

const (
	sqlRemaining = `
SELECT GREATEST(EXTRACT(EPOCH FROM blocked_until - now()), 0)::float8
  FROM login_limiter
 WHERE email = $1 AND scope_hash = $2`

	sqlReset = `
INSERT INTO login_limiter (email, scope_hash) VALUES ($1, $2)
ON CONFLICT (email, scope_hash)
DO UPDATE SET fail_count = 0, blocked_until = 'epoch', updated_at = now()`

	// $3 window seconds, $4 max fails, $5 block seconds.
	sqlBump = `
INSERT INTO login_limiter AS l (email, scope_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1,
        CASE WHEN 1 >= $4 THEN now() + make_interval(secs => $5) ELSE 'epoch' END,
        now())
ON CONFLICT (email, scope_hash) DO UPDATE SET
  fail_count = CASE WHEN now() - l.updated_at > make_interval(secs => $3) THEN 1
                    ELSE l.fail_count + 1 END,
  blocked_until = CASE WHEN (CASE WHEN now() - l.updated_at > make_interval(secs => $3) THEN 1
                                  ELSE l.fail_count + 1 END) >= $4
                       THEN now() + make_interval(secs => $5)
                       ELSE l.blocked_until END,
  updated_at = now()
RETURNING fail_count >= $4`
)

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func (l *PG) Allow(ctx context.Context, email string, scope []byte) (bool, time.Duration, error) {
	var left float64
	err := l.db.QueryRow(ctx, sqlRemaining, email, scope).Scan(&left)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("limiter allow: %w", err)
	}
	if left > 0 {
		return false, seconds(left), nil
	}
	return true, 0, nil
}

func (l *PG) Success(ctx context.Context, email string, scope []byte) error {
	if _, err := l.db.Exec(ctx, sqlReset, email, scope); err != nil {
		return fmt.Errorf("limiter reset: %w", err)
	}
	return nil
}

// Failure counts the attempt and applies the block in one statement.
func (l *PG) Failure(ctx context.Context, email string, scope []byte) (bool, time.Duration, error) {
	var blocked bool
	err := l.db.QueryRow(ctx, sqlBump, email, scope,
		l.policy.Window.Seconds(), l.policy.MaxFails, l.policy.BlockFor.Seconds(),
	).Scan(&blocked)
	if err != nil {
		return false, 0, fmt.Errorf("limiter failure: %w", err)
	}
	if !blocked {
		return false, 0, nil
	}
	metrics.RecordLockout("postgres")
	return true, l.policy.BlockFor, nil
}
