package possync

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgLocker struct {
	pool *pgxpool.Pool
}

// NewPostgresLocker keeps leases in the sync_leases table.
func NewPostgresLocker(pool *pgxpool.Pool) Locker {
	return &pgLocker{pool: pool}
}

// EnsureSchema creates the lease table. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sync_leases (
	name text PRIMARY KEY,
	holder text NOT NULL,
	acquired_at timestamptz NOT NULL DEFAULT NOW(),
	expires_at timestamptz NOT NULL
);
`)
	return err
}

// Acquire inserts the lease or takes over an expired one in a single statement.
func (p *pgLocker) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (Lease, error) {
	var l Lease
	err := p.pool.QueryRow(ctx, `
		INSERT INTO sync_leases (name, holder, acquired_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + make_interval(secs => $3))
		ON CONFLICT (name) DO UPDATE SET
			holder=EXCLUDED.holder,
			acquired_at=EXCLUDED.acquired_at,
			expires_at=EXCLUDED.expires_at
		WHERE sync_leases.expires_at < NOW()
		RETURNING name, holder, acquired_at, expires_at`, name, holder, ttl.Seconds()).
		Scan(&l.Name, &l.Holder, &l.AcquiredAt, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lease{}, ErrLeaseHeld
	}
	return l, err
}

func (p *pgLocker) Renew(ctx context.Context, name, holder string, ttl time.Duration) (Lease, error) {
	var l Lease
	err := p.pool.QueryRow(ctx, `
		UPDATE sync_leases SET expires_at = NOW() + make_interval(secs => $3)
		WHERE name=$1 AND holder=$2 AND expires_at > NOW()
		RETURNING name, holder, acquired_at, expires_at`, name, holder, ttl.Seconds()).
		Scan(&l.Name, &l.Holder, &l.AcquiredAt, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lease{}, ErrLeaseLost
	}
	return l, err
}

func (p *pgLocker) Release(ctx context.Context, name, holder string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM sync_leases WHERE name=$1 AND holder=$2`, name, holder)
	return err
}

func (p *pgLocker) Status(ctx context.Context, name string) (*Lease, error) {
	var l Lease
	err := p.pool.QueryRow(ctx, `SELECT name, holder, acquired_at, expires_at FROM sync_leases
		WHERE name=$1 AND expires_at > NOW()`, name).Scan(&l.Name, &l.Holder, &l.AcquiredAt, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
