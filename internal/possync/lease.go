package possync

import (
	"context"
	"errors"
	"sync"
	"time"
)

// LeaseName identifies the product sync lease.
const LeaseName = "zettle-sync"

// ErrLeaseHeld is returned by Acquire while another holder owns an unexpired lease.
var ErrLeaseHeld = errors.New("possync: lease held")

// ErrLeaseLost is returned by Renew when holder no longer owns a live lease.
var ErrLeaseLost = errors.New("possync: lease lost")

// Lease is a time-boxed claim on a named job.
type Lease struct {
	Name       string    `json:"name"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Locker hands out leases. An expired lease can be taken over by anyone;
// Release only removes a lease still owned by holder.
type Locker interface {
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) (Lease, error)
	// Renew pushes the expiry of holder's live lease to now+ttl.
	Renew(ctx context.Context, name, holder string, ttl time.Duration) (Lease, error)
	Release(ctx context.Context, name, holder string) error
	// Status returns the live lease, or nil when none is held.
	Status(ctx context.Context, name string) (*Lease, error)
}

type memLocker struct {
	mu     sync.Mutex
	leases map[string]Lease
	now    func() time.Time
}

// NewMemoryLocker keeps leases in process memory. It only guards a single replica.
func NewMemoryLocker() Locker {
	return &memLocker{leases: map[string]Lease{}, now: time.Now}
}

func (m *memLocker) Acquire(_ context.Context, name, holder string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if cur, ok := m.leases[name]; ok && cur.ExpiresAt.After(now) {
		return Lease{}, ErrLeaseHeld
	}
	l := Lease{Name: name, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	m.leases[name] = l
	return l, nil
}

func (m *memLocker) Renew(_ context.Context, name, holder string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	cur, ok := m.leases[name]
	if !ok || cur.Holder != holder || !cur.ExpiresAt.After(now) {
		return Lease{}, ErrLeaseLost
	}
	cur.ExpiresAt = now.Add(ttl)
	m.leases[name] = cur
	return cur, nil
}

func (m *memLocker) Release(_ context.Context, name, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[name]; ok && cur.Holder == holder {
		delete(m.leases, name)
	}
	return nil
}

func (m *memLocker) Status(_ context.Context, name string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.leases[name]
	if !ok || !cur.ExpiresAt.After(m.now().UTC()) {
		return nil, nil
	}
	return &cur, nil
}
