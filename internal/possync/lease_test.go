package possync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &memLocker{leases: map[string]Lease{}, now: func() time.Time { return now }}

	l, err := m.Acquire(ctx, LeaseName, "a", time.Minute)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Minute), l.ExpiresAt)

	_, err = m.Acquire(ctx, LeaseName, "b", time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, m.Release(ctx, LeaseName, "b"))
	st, err := m.Status(ctx, LeaseName)
	require.NoError(t, err)
	require.Equal(t, "a", st.Holder, "release by a non-holder is a no-op")

	now = now.Add(2 * time.Minute)
	st, err = m.Status(ctx, LeaseName)
	require.NoError(t, err)
	require.Nil(t, st)

	l, err = m.Acquire(ctx, LeaseName, "b", time.Minute)
	require.NoError(t, err, "expired lease can be taken over")
	require.Equal(t, "b", l.Holder)

	require.NoError(t, m.Release(ctx, LeaseName, "b"))
	st, _ = m.Status(ctx, LeaseName)
	require.Nil(t, st)
}

func TestMemoryLockerRenew(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &memLocker{leases: map[string]Lease{}, now: func() time.Time { return now }}

	_, err := m.Acquire(ctx, LeaseName, "a", time.Minute)
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	l, err := m.Renew(ctx, LeaseName, "a", time.Minute)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Minute), l.ExpiresAt)
	require.Equal(t, now.Add(-50*time.Second), l.AcquiredAt)

	_, err = m.Renew(ctx, LeaseName, "b", time.Minute)
	require.ErrorIs(t, err, ErrLeaseLost)

	now = now.Add(2 * time.Minute)
	_, err = m.Renew(ctx, LeaseName, "a", time.Minute)
	require.ErrorIs(t, err, ErrLeaseLost, "an expired lease cannot be renewed")

	_, err = m.Renew(ctx, "other", "a", time.Minute)
	require.ErrorIs(t, err, ErrLeaseLost)
}

func TestCategoryMapDefaults(t *testing.T) {
	m := NewCategoryMap(nil)
	cases := []struct {
		remote, local string
	}{
		{"Screen Repair", "Skärmreparation"},
		{"battery", "Batteribyte"},
		{"Water Damage", "Vattenskada"},
		{"Software", "Mjukvara"},
		{"Hardware", "Hårdvara"},
		{"Accessories", "Tillbehör"},
		{"Other", "Övrigt"},
		{"Tablets", "Tablets"},
		{"", DefaultLocalCategory},
	}
	for _, c := range cases {
		require.Equal(t, c.local, m.Local(c.remote), c.remote)
	}
	require.Equal(t, "Screen Repair", m.Remote("skärmreparation"))
	require.Equal(t, DefaultRemoteCategory, m.Remote("Okänd"))
	require.Equal(t, DefaultRemoteCategory, m.Remote(""))
}

func TestLoadCategoryMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  Tablets: Surfplattor\n  Battery: Batteri\n"), 0o600))

	m, err := LoadCategoryMap(path)
	require.NoError(t, err)
	require.Equal(t, "Surfplattor", m.Local("Tablets"))
	require.Equal(t, "Batteri", m.Local("Battery"))
	require.Equal(t, "Skärmreparation", m.Local("Screen Repair"))
	require.Equal(t, "Tablets", m.Remote("Surfplattor"))

	def, err := LoadCategoryMap("")
	require.NoError(t, err)
	require.Equal(t, "Batteribyte", def.Local("Battery"))

	_, err = LoadCategoryMap(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("categories: [oops"), 0o600))
	_, err = LoadCategoryMap(bad)
	require.Error(t, err)
}
