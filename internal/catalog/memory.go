package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memRepo struct {
	mu   sync.RWMutex
	byID map[string]Service
	now  func() time.Time
}

// NewMemoryRepository keeps services in process memory (dev and tests).
func NewMemoryRepository() Repository {
	return &memRepo{byID: map[string]Service{}, now: time.Now}
}

func (m *memRepo) List(_ context.Context, f Filter) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Service{}
	for _, s := range m.byID {
		if f.match(s) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := strings.Compare(out[i].Category, out[j].Category); c != 0 {
			return c < 0
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memRepo) Get(_ context.Context, id string) (Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return Service{}, ErrNotFound
	}
	return clone(s), nil
}

func (m *memRepo) Create(_ context.Context, s Service) (Service, error) {
	if err := s.Validate(); err != nil {
		return Service{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	s.ID = uuid.NewString()
	s.CreatedAt, s.UpdatedAt = now, now
	m.byID[s.ID] = clone(s)
	return s, nil
}

func (m *memRepo) Update(_ context.Context, s Service) (Service, error) {
	if err := s.Validate(); err != nil {
		return Service{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[s.ID]
	if !ok {
		return Service{}, ErrNotFound
	}
	s.CreatedAt = cur.CreatedAt
	s.ZettleProductID, s.ZettleEtag, s.LastSyncedAt = cur.ZettleProductID, cur.ZettleEtag, cur.LastSyncedAt
	s.UpdatedAt = m.now().UTC()
	m.byID[s.ID] = clone(s)
	return s, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memRepo) SaveSynced(_ context.Context, s Service, at time.Time) (Service, error) {
	if err := s.Validate(); err != nil {
		return Service{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at = at.UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
		s.CreatedAt = at
	} else if cur, ok := m.byID[s.ID]; ok {
		s.CreatedAt = cur.CreatedAt
	} else {
		return Service{}, ErrNotFound
	}
	s.UpdatedAt = at
	s.LastSyncedAt = &at
	m.byID[s.ID] = clone(s)
	return clone(s), nil
}

func (m *memRepo) DeactivateMissing(_ context.Context, keep map[string]struct{}, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at = at.UTC()
	n := 0
	for id, s := range m.byID {
		if s.ZettleProductID == nil || !s.IsActive {
			continue
		}
		if _, ok := keep[*s.ZettleProductID]; ok {
			continue
		}
		s.IsActive = false
		s.UpdatedAt = at
		s.LastSyncedAt = &at
		m.byID[id] = s
		n++
	}
	return n, nil
}

// clone copies pointer fields so callers cannot mutate stored rows.
func clone(s Service) Service {
	if s.ZettleProductID != nil {
		v := *s.ZettleProductID
		s.ZettleProductID = &v
	}
	if s.ZettleEtag != nil {
		v := *s.ZettleEtag
		s.ZettleEtag = &v
	}
	if s.LastSyncedAt != nil {
		v := *s.LastSyncedAt
		s.LastSyncedAt = &v
	}
	return s
}
