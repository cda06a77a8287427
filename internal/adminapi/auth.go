package adminapi

import (
	"context"
	"net/http"
	"strings"

	"repairshop/internal/access"
	"repairshop/pkg/middleware"
)

// cors returns a middleware that sets CORS headers and handles preflight requests.
// allowed may contain exact origins (e.g., http://localhost:3000) or "*" to allow all.
func cors(allowed []string) func(http.Handler) http.Handler {
	match := func(origin string) (string, bool) {
		if origin == "" {
			return "", false
		}
		for _, a := range allowed {
			a = strings.TrimSpace(a)
			if a == "*" || a == origin {
				return a, true
			}
		}
		return "", false
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if ao, ok := match(origin); ok {
				allowOrigin := origin
				if ao == "*" {
					allowOrigin = "*"
				}
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+middleware.DevRoleHeader)
				if ao != "*" {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Max-Age", "86400")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// adminAuth validates the admin bearer (or the dev role header without JWKS) and
// asks the access policy whether the caller's role may use the route.
func (a *App) adminAuth() []func(http.Handler) http.Handler {
	authn := middleware.AdminAuth(middleware.AdminAuthConfig{
		JWKSURL:      a.cfg.AdminJWKSURL,
		Issuer:       a.cfg.AdminIssuer,
		Audience:     a.cfg.AdminAudience,
		AllowDevRole: !a.cfg.Prod(),
	}, a.log)
	return []func(http.Handler) http.Handler{authn, middleware.Authorize(a.decide, a.log)}
}

func (a *App) decide(ctx context.Context, role, method, path string) (bool, error) {
	return a.access.Allow(ctx, access.Input{Role: role, Method: method, Path: path})
}
