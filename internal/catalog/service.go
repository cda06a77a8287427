// Package catalog holds the shop's repair services, the local side of the POS product sync.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("catalog: service not found")
	ErrInvalid  = errors.New("catalog: invalid service")
)

// DefaultDurationMinutes is used for services imported without a duration.
const DefaultDurationMinutes = 60

// Service is a bookable repair service. Price is in major currency units.
type Service struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Price           float64    `json:"price"`
	DurationMinutes int        `json:"duration"`
	Category        string     `json:"category"`
	IsActive        bool       `json:"isActive"`
	ZettleProductID *string    `json:"zettleProductId,omitempty"`
	ZettleEtag      *string    `json:"zettleEtag,omitempty"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Reconciled reports whether the service has not changed locally since its last sync.
func (s Service) Reconciled() bool {
	return s.ZettleProductID != nil && s.LastSyncedAt != nil && !s.UpdatedAt.After(*s.LastSyncedAt)
}

// Validate normalises the editable fields and checks them.
func (s *Service) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Category = strings.TrimSpace(s.Category)
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if s.Price < 0 || math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
		return fmt.Errorf("%w: price must be a non-negative number", ErrInvalid)
	}
	if s.DurationMinutes == 0 {
		s.DurationMinutes = DefaultDurationMinutes
	}
	if s.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalid)
	}
	s.Price = math.Round(s.Price*100) / 100
	return nil
}

type Filter struct {
	ActiveOnly bool
	Category   string
}

func (f Filter) match(s Service) bool {
	if f.ActiveOnly && !s.IsActive {
		return false
	}
	return f.Category == "" || strings.EqualFold(f.Category, s.Category)
}

// Repository stores services.
//
// Create and Update are admin edits and stamp UpdatedAt with the current time.
// SaveSynced writes a sync outcome: it creates the row when ID is empty and stamps
// both UpdatedAt and LastSyncedAt with at, so the row counts as reconciled.
// DeactivateMissing soft-removes active services linked to a product id outside keep.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Service, error)
	Get(ctx context.Context, id string) (Service, error)
	Create(ctx context.Context, s Service) (Service, error)
	Update(ctx context.Context, s Service) (Service, error)
	Delete(ctx context.Context, id string) error
	SaveSynced(ctx context.Context, s Service, at time.Time) (Service, error)
	DeactivateMissing(ctx context.Context, keep map[string]struct{}, at time.Time) (int, error)
}
