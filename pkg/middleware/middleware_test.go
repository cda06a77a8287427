package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"repairshop/pkg/logger"
)

type issuer struct {
	key  jwk.Key
	jwks *httptest.Server
}

func newIssuer(t *testing.T) *issuer {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))
	pub, err := priv.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return &issuer{key: priv, jwks: srv}
}

func (i *issuer) token(t *testing.T, aud, role string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer("https://id.shop.test").
		Audience([]string{aud}).
		Subject("owner@shop.test").
		Expiration(exp).
		Claim("role", role).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, i.key))
	require.NoError(t, err)
	return string(signed)
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		_, _ = w.Write([]byte(p.Role + "|" + p.Subject))
	})
}

func serve(h http.Handler, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/zettle/status", nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuthJWT(t *testing.T) {
	iss := newIssuer(t)
	h := AdminAuth(AdminAuthConfig{
		JWKSURL:  iss.jwks.URL,
		Issuer:   "https://id.shop.test",
		Audience: "repairshop-admin",
	}, logger.Nop())(echoPrincipal())

	rec := serve(h, map[string]string{"Authorization": "Bearer " + iss.token(t, "repairshop-admin", "admin", time.Now().Add(time.Hour))})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ADMIN|owner@shop.test", rec.Body.String())

	rec = serve(h, map[string]string{"Authorization": "Bearer " + iss.token(t, "someone-else", "ADMIN", time.Now().Add(time.Hour))})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, map[string]string{"Authorization": "Bearer " + iss.token(t, "repairshop-admin", "ADMIN", time.Now().Add(-time.Hour))})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = serve(h, map[string]string{DevRoleHeader: "ADMIN"})
	require.Equal(t, http.StatusUnauthorized, rec.Code, "dev header is ignored once JWKS is configured")
}

func TestAdminAuthDevRole(t *testing.T) {
	h := AdminAuth(AdminAuthConfig{AllowDevRole: true}, logger.Nop())(echoPrincipal())
	rec := serve(h, map[string]string{DevRoleHeader: "staff"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "STAFF|dev", rec.Body.String())
	require.Equal(t, http.StatusUnauthorized, serve(h, nil).Code)

	prod := AdminAuth(AdminAuthConfig{}, logger.Nop())(echoPrincipal())
	require.Equal(t, http.StatusInternalServerError, serve(prod, map[string]string{DevRoleHeader: "ADMIN"}).Code)
}

func TestAuthorize(t *testing.T) {
	onlyAdmin := func(_ context.Context, role, _, _ string) (bool, error) { return role == "ADMIN", nil }
	h := AdminAuth(AdminAuthConfig{AllowDevRole: true}, logger.Nop())(
		Authorize(onlyAdmin, logger.Nop())(echoPrincipal()))

	require.Equal(t, http.StatusOK, serve(h, map[string]string{DevRoleHeader: "ADMIN"}).Code)
	rec := serve(h, map[string]string{DevRoleHeader: "STAFF"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "forbidden")
}

func TestRequestIDAndRecover(t *testing.T) {
	var seen string
	h := RequestID()(Recover(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "req-1", seen)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	require.Equal(t, seen, rec.Header().Get("X-Request-Id"))
}

func TestDebugWriteHeaderKeepsFirstStatus(t *testing.T) {
	h := DebugWriteHeader(true, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
