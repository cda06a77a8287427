// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"repairshop/pkg/problems"
)

// DevRoleHeader carries the caller role when no JWKS is configured (dev only).
const DevRoleHeader = "X-Dev-Role"

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

type AdminAuthConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
	// AllowDevRole accepts DevRoleHeader when JWKSURL is empty.
	AllowDevRole bool
	Skew         time.Duration
}

// AdminAuth validates the admin bearer JWT and stores the caller in the context.
func AdminAuth(cfg AdminAuthConfig, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.JWKSURL == "" {
				if !cfg.AllowDevRole {
					problems.Write(w, problems.New(http.StatusInternalServerError, "auth-not-configured", "Admin auth not configured", "ADMIN_JWKS_URL is not set"))
					return
				}
				role := strings.ToUpper(strings.TrimSpace(r.Header.Get(DevRoleHeader)))
				if role == "" {
					problems.Write(w, problems.New(http.StatusUnauthorized, "unauthenticated", "Missing credentials", "send "+DevRoleHeader+" in dev mode"))
					return
				}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Principal{Subject: "dev", Role: role, Dev: true})))
				return
			}

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				problems.Write(w, problems.New(http.StatusUnauthorized, "unauthenticated", "Missing bearer token", ""))
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			set, err := cache.get(r.Context(), cfg.JWKSURL, jwksTTL)
			if err != nil {
				log.Errorw("jwks fetch failed", "url", cfg.JWKSURL, "err", err)
				problems.Write(w, problems.New(http.StatusServiceUnavailable, "jwks-unavailable", "Signing keys unavailable", ""))
				return
			}
			opts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithValidate(true), jwt.WithAcceptableSkew(cfg.Skew)}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}
			jt, err := jwt.Parse([]byte(raw), opts...)
			if err != nil {
				log.Infow("admin token rejected", "err", err)
				problems.Write(w, problems.New(http.StatusUnauthorized, "invalid-token", "Invalid token", ""))
				return
			}
			p := Principal{Subject: jt.Subject(), Role: roleClaim(jt)}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// roleClaim reads "role", falling back to the first entry of "roles".
func roleClaim(jt jwt.Token) string {
	if v, ok := jt.Get("role"); ok {
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
	}
	if v, ok := jt.Get("roles"); ok {
		if list, ok := v.([]any); ok && len(list) > 0 {
			if s, ok := list[0].(string); ok {
				return strings.ToUpper(s)
			}
		}
	}
	return ""
}

// Decider answers whether role may call method on path.
type Decider func(ctx context.Context, role, method, path string) (bool, error)

// Authorize asks decide about every request. It must run after AdminAuth.
func Authorize(decide Decider, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFrom(r.Context())
			ok, err := decide(r.Context(), p.Role, r.Method, r.URL.Path)
			if err != nil {
				log.Errorw("access policy failed", "path", r.URL.Path, "err", err)
				problems.Write(w, problems.New(http.StatusInternalServerError, "policy-error", "Access policy failed", ""))
				return
			}
			if !ok {
				log.Infow("admin access denied", "sub", p.Subject, "role", p.Role, "method", r.Method, "path", r.URL.Path)
				problems.Write(w, problems.New(http.StatusForbidden, "forbidden", "Forbidden", "role "+p.Role+" may not call this route"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
