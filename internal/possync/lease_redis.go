package possync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLeaseKeyPrefix namespaces lease keys in redis.
const DefaultLeaseKeyPrefix = "zettle:sync:"

// releaseScript deletes the key only when it still holds the caller's lease.
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
local l = cjson.decode(v)
if l["holder"] == ARGV[1] then return redis.call("DEL", KEYS[1]) end
return 0
`)

// renewScript moves the expiry of the caller's lease and returns the new value, or 0.
var renewScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
local l = cjson.decode(v)
if l["holder"] ~= ARGV[1] then return 0 end
l["expiresAt"] = ARGV[2]
local out = cjson.encode(l)
redis.call("SET", KEYS[1], out, "PX", ARGV[3])
return out
`)

type redisLocker struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisLocker stores each lease as a JSON value with a PX expiry (SET NX PX).
func NewRedisLocker(rdb *redis.Client) Locker {
	return &redisLocker{rdb: rdb, prefix: DefaultLeaseKeyPrefix, now: time.Now}
}

func (r *redisLocker) key(name string) string { return r.prefix + name }

func (r *redisLocker) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (Lease, error) {
	now := r.now().UTC()
	l := Lease{Name: name, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	b, err := json.Marshal(l)
	if err != nil {
		return Lease{}, err
	}
	ok, err := r.rdb.SetNX(ctx, r.key(name), b, ttl).Result()
	if err != nil {
		return Lease{}, err
	}
	if !ok {
		return Lease{}, ErrLeaseHeld
	}
	return l, nil
}

func (r *redisLocker) Renew(ctx context.Context, name, holder string, ttl time.Duration) (Lease, error) {
	exp := r.now().UTC().Add(ttl)
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	res, err := renewScript.Run(ctx, r.rdb, []string{r.key(name)}, holder, exp.Format(time.RFC3339Nano), ms).Result()
	if err != nil {
		return Lease{}, err
	}
	raw, ok := res.(string)
	if !ok {
		return Lease{}, ErrLeaseLost
	}
	var l Lease
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return Lease{}, err
	}
	return l, nil
}

func (r *redisLocker) Release(ctx context.Context, name, holder string) error {
	return releaseScript.Run(ctx, r.rdb, []string{r.key(name)}, holder).Err()
}

func (r *redisLocker) Status(ctx context.Context, name string) (*Lease, error) {
	raw, err := r.rdb.Get(ctx, r.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l Lease
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
