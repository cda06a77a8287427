package zettle

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"repairshop/pkg/db"
	"repairshop/pkg/secretbox"
)

type pgTokenStore struct {
	pool *pgxpool.Pool
	box  *secretbox.Box
}

// NewPostgresTokenStore stores the token in the zettle_auth table. Tokens are sealed with box when it has a key.
func NewPostgresTokenStore(pool *pgxpool.Pool, box *secretbox.Box) TokenStore {
	return &pgTokenStore{pool: pool, box: box}
}

// EnsureSchema creates the token table. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS zettle_auth (
	id text PRIMARY KEY,
	access_token text NOT NULL,
	refresh_token text NOT NULL DEFAULT '',
	token_type text NOT NULL DEFAULT 'Bearer',
	scope text,
	expires_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT NOW()
);
ALTER TABLE zettle_auth ADD COLUMN IF NOT EXISTS scope text;
ALTER TABLE zettle_auth ADD COLUMN IF NOT EXISTS updated_at timestamptz NOT NULL DEFAULT NOW();
`)
	return err
}

func (s *pgTokenStore) Load(ctx context.Context) (*StoredToken, error) {
	return s.load(ctx, s.pool.QueryRow(ctx, `SELECT access_token, refresh_token, token_type, COALESCE(scope,''), expires_at, updated_at
		FROM zettle_auth WHERE id=$1`, SingletonID))
}

func (s *pgTokenStore) load(_ context.Context, row pgx.Row) (*StoredToken, error) {
	var t StoredToken
	var access, refresh string
	if err := row.Scan(&access, &refresh, &t.TokenType, &t.Scope, &t.ExpiresAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var err error
	if t.AccessToken, err = s.box.Open(access); err != nil {
		return nil, err
	}
	if t.RefreshToken, err = s.box.Open(refresh); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *pgTokenStore) sealed(t StoredToken) (string, string, error) {
	access, err := s.box.Seal(t.AccessToken)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.box.Seal(t.RefreshToken)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *pgTokenStore) Save(ctx context.Context, t StoredToken) error {
	access, refresh, err := s.sealed(t)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO zettle_auth(id, access_token, refresh_token, token_type, scope, expires_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT (id) DO UPDATE SET access_token=EXCLUDED.access_token, refresh_token=EXCLUDED.refresh_token,
			token_type=EXCLUDED.token_type, scope=EXCLUDED.scope, expires_at=EXCLUDED.expires_at, updated_at=NOW()`,
		SingletonID, access, refresh, tokenType(t.TokenType), t.Scope, t.ExpiresAt.UTC())
	return err
}

// CompareAndSwap locks the row and compares plaintext, since sealed values differ per write.
func (s *pgTokenStore) CompareAndSwap(ctx context.Context, prev, next StoredToken) (bool, error) {
	access, refresh, err := s.sealed(next)
	if err != nil {
		return false, err
	}
	swapped := false
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := s.load(ctx, tx.QueryRow(ctx, `SELECT access_token, refresh_token, token_type, COALESCE(scope,''), expires_at, updated_at
			FROM zettle_auth WHERE id=$1 FOR UPDATE`, SingletonID))
		if err != nil || cur == nil || cur.AccessToken != prev.AccessToken {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE zettle_auth SET access_token=$2, refresh_token=$3, token_type=$4, scope=$5, expires_at=$6, updated_at=$7 WHERE id=$1`,
			SingletonID, access, refresh, tokenType(next.TokenType), next.Scope, next.ExpiresAt.UTC(), time.Now().UTC())
		swapped = err == nil
		return err
	})
	return swapped, err
}

func tokenType(s string) string {
	if s == "" {
		return "Bearer"
	}
	return s
}
