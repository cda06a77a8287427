package zettle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"repairshop/pkg/secretbox"
)

// DefaultTokenKey is the redis key holding the token JSON.
const DefaultTokenKey = "zettle:auth:" + SingletonID

type redisTokenStore struct {
	rdb *redis.Client
	key string
	box *secretbox.Box
}

// NewRedisTokenStore keeps the token as a JSON value under key. CAS uses WATCH/MULTI.
func NewRedisTokenStore(rdb *redis.Client, key string, box *secretbox.Box) TokenStore {
	if key == "" {
		key = DefaultTokenKey
	}
	return &redisTokenStore{rdb: rdb, key: key, box: box}
}

func (s *redisTokenStore) decode(raw []byte) (*StoredToken, error) {
	var t StoredToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	var err error
	if t.AccessToken, err = s.box.Open(t.AccessToken); err != nil {
		return nil, err
	}
	if t.RefreshToken, err = s.box.Open(t.RefreshToken); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *redisTokenStore) encode(t StoredToken) ([]byte, error) {
	var err error
	t.TokenType = tokenType(t.TokenType)
	t.UpdatedAt = time.Now().UTC()
	if t.AccessToken, err = s.box.Seal(t.AccessToken); err != nil {
		return nil, err
	}
	if t.RefreshToken, err = s.box.Seal(t.RefreshToken); err != nil {
		return nil, err
	}
	return json.Marshal(t)
}

func (s *redisTokenStore) Load(ctx context.Context) (*StoredToken, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decode(raw)
}

func (s *redisTokenStore) Save(ctx context.Context, t StoredToken) error {
	b, err := s.encode(t)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, 0).Err()
}

func (s *redisTokenStore) CompareAndSwap(ctx context.Context, prev, next StoredToken) (bool, error) {
	b, err := s.encode(next)
	if err != nil {
		return false, err
	}
	swapped := false
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, s.key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		cur, err := s.decode(raw)
		if err != nil {
			return err
		}
		if cur.AccessToken != prev.AccessToken {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, s.key, b, 0)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, s.key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return swapped, err
}
