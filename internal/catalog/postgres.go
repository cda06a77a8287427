package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"repairshop/pkg/db"
)

type pgRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository stores services in the services table.
func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

// EnsureSchema creates the services table. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS services (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	description text NOT NULL DEFAULT '',
	price numeric(12,2) NOT NULL DEFAULT 0,
	duration_minutes int NOT NULL DEFAULT 60,
	category text NOT NULL DEFAULT '',
	is_active boolean NOT NULL DEFAULT true,
	created_at timestamptz NOT NULL DEFAULT NOW(),
	updated_at timestamptz NOT NULL DEFAULT NOW()
);
ALTER TABLE services ADD COLUMN IF NOT EXISTS zettle_product_id text;
ALTER TABLE services ADD COLUMN IF NOT EXISTS zettle_etag text;
ALTER TABLE services ADD COLUMN IF NOT EXISTS last_synced_at timestamptz;
CREATE UNIQUE INDEX IF NOT EXISTS services_zettle_product_idx ON services(zettle_product_id) WHERE zettle_product_id IS NOT NULL;
`)
	return err
}

const serviceCols = `id::text, name, description, price::float8, duration_minutes, category, is_active,
	zettle_product_id, zettle_etag, last_synced_at, created_at, updated_at`

func scanService(row pgx.Row) (Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Price, &s.DurationMinutes, &s.Category, &s.IsActive,
		&s.ZettleProductID, &s.ZettleEtag, &s.LastSyncedAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, ErrNotFound
	}
	return s, err
}

func (r *pgRepo) List(ctx context.Context, f Filter) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serviceCols+` FROM services
		WHERE ($1 = false OR is_active) AND ($2 = '' OR lower(category) = lower($2))
		ORDER BY category, name`, f.ActiveOnly, f.Category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *pgRepo) Get(ctx context.Context, id string) (Service, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Service{}, ErrNotFound
	}
	return scanService(r.pool.QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE id=$1`, id))
}

func (r *pgRepo) Create(ctx context.Context, s Service) (Service, error) {
	if err := s.Validate(); err != nil {
		return Service{}, err
	}
	return scanService(r.pool.QueryRow(ctx, `INSERT INTO services(id, name, description, price, duration_minutes, category, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+serviceCols,
		uuid.NewString(), s.Name, s.Description, s.Price, s.DurationMinutes, s.Category, s.IsActive))
}

func (r *pgRepo) Update(ctx context.Context, s Service) (Service, error) {
	if err := s.Validate(); err != nil {
		return Service{}, err
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		return Service{}, ErrNotFound
	}
	return scanService(r.pool.QueryRow(ctx, `UPDATE services SET name=$2, description=$3, price=$4, duration_minutes=$5,
		category=$6, is_active=$7, updated_at=NOW() WHERE id=$1 RETURNING `+serviceCols,
		s.ID, s.Name, s.Description, s.Price, s.DurationMinutes, s.Category, s.IsActive))
}

func (r *pgRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepo) SaveSynced(ctx context.Context, s Service, at time.Time) (Service, error) {
	if err := s.Validate(); err != nil {
		return Service{}, err
	}
	at = at.UTC()
	if s.ID == "" {
		return scanService(r.pool.QueryRow(ctx, `INSERT INTO services(id, name, description, price, duration_minutes, category, is_active,
			zettle_product_id, zettle_etag, last_synced_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10,$10) RETURNING `+serviceCols,
			uuid.NewString(), s.Name, s.Description, s.Price, s.DurationMinutes, s.Category, s.IsActive,
			s.ZettleProductID, s.ZettleEtag, at))
	}
	return scanService(r.pool.QueryRow(ctx, `UPDATE services SET name=$2, description=$3, price=$4, duration_minutes=$5,
		category=$6, is_active=$7, zettle_product_id=$8, zettle_etag=$9, last_synced_at=$10, updated_at=$10
		WHERE id=$1 RETURNING `+serviceCols,
		s.ID, s.Name, s.Description, s.Price, s.DurationMinutes, s.Category, s.IsActive,
		s.ZettleProductID, s.ZettleEtag, at))
}

func (r *pgRepo) DeactivateMissing(ctx context.Context, keep map[string]struct{}, at time.Time) (int, error) {
	ids := make([]string, 0, len(keep))
	for id := range keep {
		ids = append(ids, id)
	}
	n := 0
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE services SET is_active=false, last_synced_at=$2, updated_at=$2
			WHERE is_active AND zettle_product_id IS NOT NULL AND NOT (zettle_product_id = ANY($1))`, ids, at.UTC())
		n = int(tag.RowsAffected())
		return err
	})
	return n, err
}
