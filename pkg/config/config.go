// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Zettle groups the POS provider settings. Base URLs are used as-is (no trailing slash).
type Zettle struct {
	ClientID     string
	ClientSecret string
	APIURL       string // OAuth host: /authorize, /token and org discovery
	RedirectURI  string
	Scopes       []string
	Environment  string // sandbox | production
	Currency     string
	Country      string
	Locale       string
	UnitName     string

	ProductsBaseURL  string
	InventoryBaseURL string
	PurchaseBaseURL  string
	OrganizationID   string // skips discovery when set

	HTTPTimeout     time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// HasCredentials reports whether both halves of the client credential pair are set.
func (z Zettle) HasCredentials() bool {
	return z.ClientID != "" && z.ClientSecret != ""
}

type Config struct {
	Env           string
	HTTPAddr      string
	PublicBaseURL string
	AdminPOSURL   string // OAuth callback redirects land here
	CORSOrigins   []string

	DebugDoubleWrite bool

	// Admin bearer validation. Empty JWKS enables the dev role header.
	AdminJWKSURL     string
	AdminIssuer      string
	AdminAudience    string
	AccessPolicyFile string

	// Redis & Postgres
	RedisURL         string
	DatabaseURL      string
	DBConnectTimeout time.Duration // bounds the startup dial and ping
	DBMaxConns       int32         // 0 keeps the pgxpool default

	TokenStore         string // postgres | redis | memory; empty picks by availability
	TokenEncryptionKey string

	SyncLeaseTTL    time.Duration
	CategoryMapFile string

	OTLPEndpoint string // tracing is off when empty

	Zettle Zettle
}

// Prod reports whether the service runs with production settings.
func (c Config) Prod() bool { return c.Env == "prod" }

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                env("APP_ENV", "dev"),
		HTTPAddr:           env("HTTP_ADDR", ":8080"),
		PublicBaseURL:      env("PUBLIC_BASE_URL", "http://localhost:8080"),
		AdminPOSURL:        env("ADMIN_POS_URL", "/admin/pos"),
		CORSOrigins:        envList("ADMIN_CORS_ORIGINS", []string{"http://localhost:3000"}),
		DebugDoubleWrite:   envBool("DEBUG_DOUBLE_WRITE", false),
		AdminJWKSURL:       env("ADMIN_JWKS_URL", ""),
		AdminIssuer:        env("ADMIN_OIDC_ISSUER", ""),
		AdminAudience:      env("ADMIN_OIDC_AUDIENCE", "repairshop-admin"),
		AccessPolicyFile:   env("ACCESS_POLICY_FILE", ""),
		RedisURL:           env("REDIS_URL", ""),
		DatabaseURL:        env("DATABASE_URL", ""),
		DBConnectTimeout:   envDur("DB_CONNECT_TIMEOUT_SEC", 10) * time.Second,
		DBMaxConns:         int32(envInt("DB_MAX_CONNS", 0)),
		TokenStore:         strings.ToLower(env("TOKEN_STORE", "")),
		TokenEncryptionKey: env("TOKEN_ENCRYPTION_KEY", ""),
		SyncLeaseTTL:       envDur("SYNC_LEASE_TTL_SEC", 300) * time.Second,
		CategoryMapFile:    env("CATEGORY_MAP_FILE", ""),
		OTLPEndpoint:       env("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", env("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		Zettle: Zettle{
			ClientID:         env("ZETTLE_CLIENT_ID", ""),
			ClientSecret:     env("ZETTLE_CLIENT_SECRET", ""),
			APIURL:           strings.TrimRight(env("ZETTLE_API_URL", "https://oauth.zettle.com"), "/"),
			RedirectURI:      env("ZETTLE_REDIRECT_URI", "http://localhost:8080/api/zettle/oauth/callback"),
			Scopes:           strings.Fields(env("ZETTLE_SCOPES", "READ:PURCHASE READ:PRODUCT WRITE:PRODUCT READ:FINANCE")),
			Environment:      strings.TrimSpace(env("ZETTLE_ENVIRONMENT", "sandbox")),
			Currency:         env("ZETTLE_CURRENCY", "SEK"),
			Country:          env("ZETTLE_COUNTRY", "SE"),
			Locale:           env("ZETTLE_LOCALE", "sv-SE"),
			UnitName:         env("ZETTLE_UNIT_NAME", "st"),
			ProductsBaseURL:  strings.TrimRight(env("ZETTLE_PRODUCTS_BASE_URL", "https://products.izettle.com"), "/"),
			InventoryBaseURL: strings.TrimRight(env("ZETTLE_INVENTORY_BASE_URL", "https://inventory.izettle.com"), "/"),
			PurchaseBaseURL:  strings.TrimRight(env("ZETTLE_PURCHASE_BASE_URL", "https://purchase.izettle.com"), "/"),
			OrganizationID:   env("ZETTLE_ORGANIZATION_ID", ""),
			HTTPTimeout:      envDur("ZETTLE_HTTP_TIMEOUT_SEC", 15) * time.Second,
			BreakerFailures:  uint32(envInt("ZETTLE_BREAKER_FAILURES", 5)),
			BreakerCooldown:  envDur("ZETTLE_BREAKER_COOLDOWN_SEC", 60) * time.Second,
		},
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set, using in-memory stores for dev")
	}
	if !cfg.Zettle.HasCredentials() {
		log.Println("[WARN] ZETTLE_CLIENT_ID/ZETTLE_CLIENT_SECRET not set, token refresh disabled")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
func envList(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
