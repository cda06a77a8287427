package zettle

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthCodeURL(t *testing.T) {
	p := newProvider(t)
	o := NewOAuth(p.config(), p.Client())

	u, err := url.Parse(o.AuthCodeURL("st4te"))
	require.NoError(t, err)
	require.Equal(t, "/oauth/authorize", u.Path)
	q := u.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "cid", q.Get("client_id"))
	require.Equal(t, "http://shop.test/api/zettle/oauth/callback", q.Get("redirect_uri"))
	require.Equal(t, "READ:PRODUCT WRITE:PRODUCT", q.Get("scope"))
	require.Equal(t, "st4te", q.Get("state"))
}

func TestExchangeCodeUsesBasicAuth(t *testing.T) {
	p := newProvider(t)
	var user, pass string
	p.mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "http://shop.test/api/zettle/oauth/callback", r.PostForm.Get("redirect_uri"))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"access_token": "acc", "refresh_token": "ref", "token_type": "bearer", "expires_in": 7200, "scope": "READ:PRODUCT",
		})
	})
	o := NewOAuth(p.config(), p.Client())

	before := time.Now()
	tok, err := o.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	require.Equal(t, "cid", user)
	require.Equal(t, "csecret", pass)
	require.Equal(t, "acc", tok.AccessToken)
	require.Equal(t, "ref", tok.RefreshToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, "READ:PRODUCT", tok.Scope)
	require.WithinDuration(t, before.Add(2*time.Hour), tok.ExpiresAt, 5*time.Second)
}

func TestExchangeCodeDefaultsLifetime(t *testing.T) {
	p := newProvider(t)
	p.tokenEndpoint(http.StatusOK, map[string]any{"access_token": "acc"})
	o := NewOAuth(p.config(), p.Client())

	tok, err := o.ExchangeCode(context.Background(), "c")
	require.NoError(t, err)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Empty(t, tok.RefreshToken)
	require.WithinDuration(t, time.Now().Add(DefaultTokenLifetime), tok.ExpiresAt, 5*time.Second)
}

func TestExchangeFailureCarriesStatusAndBody(t *testing.T) {
	p := newProvider(t)
	p.tokenEndpoint(http.StatusBadRequest, `{"error":"invalid_grant"}`)
	o := NewOAuth(p.config(), p.Client())

	_, err := o.ExchangeCode(context.Background(), "bad")
	var te *TokenExchangeError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "authorization_code", te.GrantType)
	require.Equal(t, http.StatusBadRequest, te.Status)
	require.Contains(t, te.Body, "invalid_grant")
	require.True(t, IsAuthError(err))

	_, err = o.Refresh(context.Background(), "old")
	require.ErrorAs(t, err, &te)
	require.Equal(t, "refresh_token", te.GrantType)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	p := newProvider(t)
	p.tokenEndpoint(http.StatusOK, map[string]any{"access_token": "new", "expires_in": 60})
	o := NewOAuth(p.config(), p.Client())

	tok, err := o.Refresh(context.Background(), "keep-me")
	require.NoError(t, err)
	require.Equal(t, "new", tok.AccessToken)
	require.Equal(t, "keep-me", tok.RefreshToken)
	form := p.lastTokenForm.Load().(url.Values)
	require.Equal(t, "refresh_token", form.Get("grant_type"))
	require.Equal(t, "keep-me", form.Get("refresh_token"))
}

func TestGrantsRequireCredentials(t *testing.T) {
	p := newProvider(t)
	cfg := p.config()
	cfg.ClientSecret = ""
	o := NewOAuth(cfg, p.Client())

	_, err := o.ExchangeCode(context.Background(), "c")
	require.ErrorIs(t, err, ErrMissingCredentials)
	_, err = o.Refresh(context.Background(), "r")
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Zero(t, p.tokenCalls.Load())
}
