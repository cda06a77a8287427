package zettle

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthenticateNotConnected(t *testing.T) {
	p := newProvider(t)
	c := p.client(t, p.config(), NewMemoryTokenStore())

	_, err := c.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
	require.True(t, IsAuthError(err))
}

func TestAuthenticateFreshTokenMakesNoCalls(t *testing.T) {
	for _, left := range []time.Duration{31 * time.Second, 5 * time.Minute, 24 * time.Hour} {
		t.Run(left.String(), func(t *testing.T) {
			p := newProvider(t)
			p.tokenEndpoint(http.StatusOK, map[string]any{"access_token": "should-not-happen", "expires_in": 3600})
			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			store := storeWith(t, StoredToken{AccessToken: "acc", RefreshToken: "ref", ExpiresAt: now.Add(left)})
			c := p.client(t, p.config(), store, WithClock(func() time.Time { return now }))

			tok, err := c.Authenticate(context.Background())
			require.NoError(t, err)
			require.Equal(t, "acc", tok.AccessToken)
			require.Zero(t, p.tokenCalls.Load())
		})
	}
}

func TestAuthenticateRefreshesOnceAndPersists(t *testing.T) {
	for _, left := range []time.Duration{30 * time.Second, 10 * time.Second, -time.Hour} {
		t.Run(left.String(), func(t *testing.T) {
			p := newProvider(t)
			p.tokenEndpoint(http.StatusOK, map[string]any{"access_token": "acc-2", "refresh_token": "ref-2", "expires_in": 3600})
			store := storeWith(t, StoredToken{AccessToken: "acc-1", RefreshToken: "ref-1", ExpiresAt: time.Now().Add(left)})
			c := p.client(t, p.config(), store)

			tok, err := c.Authenticate(context.Background())
			require.NoError(t, err)
			require.Equal(t, "acc-2", tok.AccessToken)
			require.EqualValues(t, 1, p.tokenCalls.Load())

			saved, err := store.Load(context.Background())
			require.NoError(t, err)
			require.Equal(t, "acc-2", saved.AccessToken)
			require.Equal(t, "ref-2", saved.RefreshToken)
			require.True(t, saved.ExpiresAt.After(time.Now()))

			// the persisted token is now fresh: no further refresh
			_, err = c.Authenticate(context.Background())
			require.NoError(t, err)
			require.EqualValues(t, 1, p.tokenCalls.Load())
		})
	}
}

func TestAuthenticateExpiredWithoutCredentials(t *testing.T) {
	p := newProvider(t)
	cfg := p.config()
	cfg.ClientID = ""
	store := storeWith(t, StoredToken{AccessToken: "acc", RefreshToken: "ref", ExpiresAt: time.Now().Add(-time.Minute)})
	c := p.client(t, cfg, store)

	_, err := c.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Zero(t, p.tokenCalls.Load())
}

func TestAuthenticateExpiredWithoutRefreshToken(t *testing.T) {
	p := newProvider(t)
	store := storeWith(t, StoredToken{AccessToken: "acc", ExpiresAt: time.Now().Add(-time.Minute)})
	c := p.client(t, p.config(), store)

	_, err := c.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestExchangeThenAuthenticate(t *testing.T) {
	p := newProvider(t)
	p.tokenEndpoint(http.StatusOK, map[string]any{"access_token": "acc", "refresh_token": "ref", "expires_in": 3600})
	store := NewMemoryTokenStore()
	c := p.client(t, p.config(), store)

	tok, err := c.OAuth().ExchangeCode(context.Background(), "code")
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), tok))

	got, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	require.True(t, got.ExpiresAt.After(time.Now()))
	require.EqualValues(t, 1, p.tokenCalls.Load())
}

// racingStore lets another writer replace the token between Load and CompareAndSwap.
type racingStore struct {
	TokenStore
	winner StoredToken
	once   sync.Once
}

func (r *racingStore) CompareAndSwap(ctx context.Context, prev, next StoredToken) (bool, error) {
	r.once.Do(func() { _ = r.TokenStore.Save(ctx, r.winner) })
	return r.TokenStore.CompareAndSwap(ctx, prev, next)
}

func TestAuthenticateLosingRaceReturnsWinner(t *testing.T) {
	p := newProvider(t)
	p.tokenEndpoint(http.StatusOK, map[string]any{"access_token": "mine", "expires_in": 3600})
	winner := StoredToken{AccessToken: "theirs", RefreshToken: "ref-w", ExpiresAt: time.Now().Add(time.Hour)}
	store := &racingStore{
		TokenStore: storeWith(t, StoredToken{AccessToken: "old", RefreshToken: "ref", ExpiresAt: time.Now().Add(-time.Second)}),
		winner:     winner,
	}
	c := p.client(t, p.config(), store)

	tok, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "theirs", tok.AccessToken)

	saved, _ := store.Load(context.Background())
	require.Equal(t, "theirs", saved.AccessToken)
}

func TestAuthenticateConcurrentCallersShareToken(t *testing.T) {
	p := newProvider(t)
	var n atomic.Int32
	p.mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenCalls.Add(1)
		time.Sleep(20 * time.Millisecond)
		writeTestJSON(w, http.StatusOK, map[string]any{"access_token": fmt.Sprintf("acc-%d", n.Add(1)), "expires_in": 3600})
	})
	store := storeWith(t, StoredToken{AccessToken: "old", RefreshToken: "ref", ExpiresAt: time.Now().Add(-time.Second)})
	c := p.client(t, p.config(), store)

	var wg sync.WaitGroup
	got := make([]string, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := c.Authenticate(context.Background())
			if err == nil {
				got[i] = tok.AccessToken
			}
		}(i)
	}
	wg.Wait()
	for _, g := range got {
		require.Equal(t, "acc-1", g)
	}
}

func TestDoAttachesBearer(t *testing.T) {
	p := newProvider(t)
	var auth string
	p.mux.HandleFunc("/products-api/ping", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeTestJSON(w, http.StatusTeapot, "short and stout")
	})
	c := p.client(t, p.config(), NewMemoryTokenStore())

	_, err := c.do(context.Background(), StoredToken{AccessToken: "acc"}, http.MethodGet, p.URL+"/products-api/ping", nil, nil)
	require.Equal(t, "Bearer acc", auth)
	var he *HTTPStatusError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusTeapot, he.Status)
	require.Equal(t, "short and stout", he.Body)
}

func TestRefreshSurvivesCancelledCaller(t *testing.T) {
	p := newProvider(t)
	entered, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	p.mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenCalls.Add(1)
		once.Do(func() { close(entered) })
		<-release
		writeTestJSON(w, http.StatusOK, map[string]any{"access_token": "acc-2", "refresh_token": "ref-2", "expires_in": 3600})
	})
	store := storeWith(t, StoredToken{AccessToken: "acc-1", RefreshToken: "ref-1", ExpiresAt: time.Now().Add(-time.Minute)})
	c := p.client(t, p.config(), store)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		tok StoredToken
		err error
	}
	first, second := make(chan result, 1), make(chan result, 1)
	go func() {
		tok, err := c.Authenticate(ctx)
		first <- result{tok, err}
	}()
	<-entered
	go func() {
		tok, err := c.Authenticate(context.Background())
		second <- result{tok, err}
	}()
	cancel()
	close(release)

	a, b := <-first, <-second
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	require.Equal(t, "acc-2", a.tok.AccessToken)
	require.Equal(t, "acc-2", b.tok.AccessToken)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "acc-2", saved.AccessToken)
}
