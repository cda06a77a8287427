package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "ZETTLE_API_URL", "ZETTLE_SCOPES", "SYNC_LEASE_TTL_SEC", "ADMIN_CORS_ORIGINS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	require.Equal(t, "dev", cfg.Env)
	require.False(t, cfg.Prod())
	require.Equal(t, "https://oauth.zettle.com", cfg.Zettle.APIURL)
	require.Equal(t, []string{"READ:PURCHASE", "READ:PRODUCT", "WRITE:PRODUCT", "READ:FINANCE"}, cfg.Zettle.Scopes)
	require.Equal(t, 300*time.Second, cfg.SyncLeaseTTL)
	require.Equal(t, 15*time.Second, cfg.Zettle.HTTPTimeout)
	require.Equal(t, "SEK", cfg.Zettle.Currency)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("ZETTLE_API_URL", "https://oauth.example.test/")
	t.Setenv("ZETTLE_CLIENT_ID", "id")
	t.Setenv("ZETTLE_CLIENT_SECRET", "secret")
	t.Setenv("ZETTLE_BREAKER_FAILURES", "9")
	t.Setenv("ADMIN_CORS_ORIGINS", "https://a.test, ,https://b.test")
	t.Setenv("SYNC_LEASE_TTL_SEC", "42")

	cfg := Load()
	require.True(t, cfg.Prod())
	require.Equal(t, "https://oauth.example.test", cfg.Zettle.APIURL)
	require.True(t, cfg.Zettle.HasCredentials())
	require.Equal(t, uint32(9), cfg.Zettle.BreakerFailures)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
	require.Equal(t, 42*time.Second, cfg.SyncLeaseTTL)
}
