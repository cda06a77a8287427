package zettle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SingletonID is the primary key of the one stored token row.
const SingletonID = "singleton"

// StoredToken is the persisted OAuth token pair for the shop's Zettle account.
type StoredToken struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ValidFor reports whether the access token outlives now+skew.
func (t StoredToken) ValidFor(now time.Time, skew time.Duration) bool {
	return t.AccessToken != "" && t.ExpiresAt.Sub(now) > skew
}

// TokenStore persists the singleton token.
// Load returns (nil, nil) when nothing is stored.
// CompareAndSwap writes next only if the stored access token still equals prev.AccessToken.
type TokenStore interface {
	Load(ctx context.Context) (*StoredToken, error)
	Save(ctx context.Context, t StoredToken) error
	CompareAndSwap(ctx context.Context, prev, next StoredToken) (bool, error)
}

type memTokenStore struct {
	mu  sync.Mutex
	tok *StoredToken
	now func() time.Time
}

// NewMemoryTokenStore keeps the token in process memory (dev and tests).
func NewMemoryTokenStore() TokenStore {
	return &memTokenStore{now: time.Now}
}

func (m *memTokenStore) Load(_ context.Context) (*StoredToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok == nil {
		return nil, nil
	}
	cp := *m.tok
	return &cp, nil
}

func (m *memTokenStore) Save(_ context.Context, t StoredToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.UpdatedAt = m.now().UTC()
	m.tok = &t
	return nil
}

func (m *memTokenStore) CompareAndSwap(_ context.Context, prev, next StoredToken) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok == nil || m.tok.AccessToken != prev.AccessToken {
		return false, nil
	}
	next.UpdatedAt = m.now().UTC()
	m.tok = &next
	return true, nil
}

// TokenBackend names a TokenStore implementation.
type TokenBackend string

const (
	BackendPostgres TokenBackend = "postgres"
	BackendRedis    TokenBackend = "redis"
	BackendMemory   TokenBackend = "memory"
)

// PickBackend resolves the configured backend; empty means postgres, then redis, then memory.
func PickBackend(configured string, havePostgres, haveRedis bool) (TokenBackend, error) {
	switch TokenBackend(configured) {
	case BackendPostgres:
		if !havePostgres {
			return "", errors.New("zettle: TOKEN_STORE=postgres but DATABASE_URL is not set")
		}
		return BackendPostgres, nil
	case BackendRedis:
		if !haveRedis {
			return "", errors.New("zettle: TOKEN_STORE=redis but REDIS_URL is not set")
		}
		return BackendRedis, nil
	case BackendMemory:
		return BackendMemory, nil
	case "":
		switch {
		case havePostgres:
			return BackendPostgres, nil
		case haveRedis:
			return BackendRedis, nil
		}
		return BackendMemory, nil
	}
	return "", fmt.Errorf("zettle: unknown token store %q", configured)
}
