package zettle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repairshop/pkg/config"
	"repairshop/pkg/logger"
)

// provider is a fake Zettle: /oauth/* is the token host, the other prefixes are resource APIs.
type provider struct {
	*httptest.Server
	mux           *http.ServeMux
	tokenCalls    atomic.Int32
	lastTokenForm atomic.Value // url.Values
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	p := &provider{mux: http.NewServeMux()}
	p.Server = httptest.NewServer(p.mux)
	t.Cleanup(p.Close)
	return p
}

func (p *provider) config() config.Zettle {
	return config.Zettle{
		ClientID:         "cid",
		ClientSecret:     "csecret",
		APIURL:           p.URL + "/oauth",
		RedirectURI:      "http://shop.test/api/zettle/oauth/callback",
		Scopes:           []string{"READ:PRODUCT", "WRITE:PRODUCT"},
		Currency:         "SEK",
		ProductsBaseURL:  p.URL + "/products-api",
		InventoryBaseURL: p.URL + "/inventory-api",
		PurchaseBaseURL:  p.URL + "/purchase-api",
		HTTPTimeout:      5 * time.Second,
	}
}

// tokenEndpoint answers every grant with the given JSON and status.
func (p *provider) tokenEndpoint(status int, body any) {
	p.mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenCalls.Add(1)
		_ = r.ParseForm()
		p.lastTokenForm.Store(r.PostForm)
		writeTestJSON(w, status, body)
	})
}

func (p *provider) client(t *testing.T, cfg config.Zettle, store TokenStore, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(p.Client())}, opts...)
	return NewClient(cfg, store, logger.Nop(), opts...)
}

func writeTestJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	switch b := body.(type) {
	case nil:
	case string:
		_, _ = w.Write([]byte(b))
	default:
		_ = json.NewEncoder(w).Encode(b)
	}
}

func storeWith(t *testing.T, tok StoredToken) TokenStore {
	t.Helper()
	s := NewMemoryTokenStore()
	require.NoError(t, s.Save(context.Background(), tok))
	return s
}
