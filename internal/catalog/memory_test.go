package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestCreateValidates(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	cases := []Service{
		{Name: "  "},
		{Name: "Skärmbyte", Price: -1},
		{Name: "Skärmbyte", DurationMinutes: -5},
	}
	for _, c := range cases {
		_, err := r.Create(ctx, c)
		require.ErrorIs(t, err, ErrInvalid)
	}

	s, err := r.Create(ctx, Service{Name: " Skärmbyte ", Price: 899.004, IsActive: true})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, "Skärmbyte", s.Name)
	require.Equal(t, 899.0, s.Price)
	require.Equal(t, DefaultDurationMinutes, s.DurationMinutes)
	require.False(t, s.Reconciled())
}

func TestListFilterAndOrder(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	for _, s := range []Service{
		{Name: "B", Category: "Batteribyte", IsActive: true},
		{Name: "A", Category: "Batteribyte", IsActive: true},
		{Name: "Z", Category: "Mjukvara", IsActive: false},
	} {
		_, err := r.Create(ctx, s)
		require.NoError(t, err)
	}

	all, err := r.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "A", all[0].Name)

	active, err := r.List(ctx, Filter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)

	soft, err := r.List(ctx, Filter{Category: "mjukvara"})
	require.NoError(t, err)
	require.Len(t, soft, 1)
}

func TestUpdateKeepsSyncLinkAndMarksDirty(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	at := time.Now().Add(-time.Minute)

	s, err := r.SaveSynced(ctx, Service{Name: "Skärmbyte", Price: 899, IsActive: true, ZettleProductID: ptr("p1"), ZettleEtag: ptr("e1")}, at)
	require.NoError(t, err)
	require.True(t, s.Reconciled())

	s.Price = 999
	s.ZettleProductID = nil
	up, err := r.Update(ctx, s)
	require.NoError(t, err)
	require.Equal(t, "p1", *up.ZettleProductID)
	require.False(t, up.Reconciled())

	_, err = r.Update(ctx, Service{ID: "missing", Name: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateMissing(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	at := time.Now()
	keep, _ := r.SaveSynced(ctx, Service{Name: "Keep", IsActive: true, ZettleProductID: ptr("p1")}, at)
	gone, _ := r.SaveSynced(ctx, Service{Name: "Gone", IsActive: true, ZettleProductID: ptr("p2")}, at)
	local, _ := r.Create(ctx, Service{Name: "Local", IsActive: true})

	n, err := r.DeactivateMissing(ctx, map[string]struct{}{"p1": {}}, at.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, _ := r.Get(ctx, gone.ID)
	require.False(t, got.IsActive)
	got, _ = r.Get(ctx, keep.ID)
	require.True(t, got.IsActive)
	got, _ = r.Get(ctx, local.ID)
	require.True(t, got.IsActive)

	n, err = r.DeactivateMissing(ctx, map[string]struct{}{"p1": {}}, at.Add(2*time.Second))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDeleteAndGet(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	s, _ := r.Create(ctx, Service{Name: "X"})
	require.NoError(t, r.Delete(ctx, s.ID))
	_, err := r.Get(ctx, s.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Delete(ctx, s.ID), ErrNotFound)
}
