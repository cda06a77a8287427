package zettle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"repairshop/pkg/config"
)

// DefaultTokenLifetime applies when the provider omits expires_in.
const DefaultTokenLifetime = time.Hour

// OAuth performs the authorization-code and refresh-token grants against <APIURL>/token
// using HTTP Basic client authentication.
type OAuth struct {
	conf     oauth2.Config
	hasCreds bool
	http     *http.Client
	now      func() time.Time
}

func NewOAuth(zc config.Zettle, httpClient *http.Client) *OAuth {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuth{
		conf: oauth2.Config{
			ClientID:     zc.ClientID,
			ClientSecret: zc.ClientSecret,
			RedirectURL:  zc.RedirectURI,
			Scopes:       zc.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   zc.APIURL + "/authorize",
				TokenURL:  zc.APIURL + "/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		hasCreds: zc.HasCredentials(),
		http:     httpClient,
		now:      time.Now,
	}
}

// AuthCodeURL is the provider consent URL carrying response_type=code, client id,
// redirect URI, scopes and state.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.conf.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a token pair.
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (StoredToken, error) {
	if !o.hasCreds {
		return StoredToken{}, ErrMissingCredentials
	}
	tok, err := o.conf.Exchange(o.ctx(ctx), code)
	if err != nil {
		return StoredToken{}, exchangeErr("authorization_code", err)
	}
	return o.stored(tok), nil
}

// Refresh mints a new access token. The old refresh token is kept if the provider does not rotate it.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (StoredToken, error) {
	if !o.hasCreds {
		return StoredToken{}, ErrMissingCredentials
	}
	src := o.conf.TokenSource(o.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return StoredToken{}, exchangeErr("refresh_token", err)
	}
	st := o.stored(tok)
	if st.RefreshToken == "" {
		st.RefreshToken = refreshToken
	}
	return st, nil
}

func (o *OAuth) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.http)
}

func (o *OAuth) stored(tok *oauth2.Token) StoredToken {
	st := StoredToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry.UTC(),
	}
	if s, ok := tok.Extra("scope").(string); ok {
		st.Scope = s
	}
	if tok.Expiry.IsZero() {
		st.ExpiresAt = o.now().Add(DefaultTokenLifetime).UTC()
	}
	return st
}

func exchangeErr(grant string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &TokenExchangeError{GrantType: grant, Status: re.Response.StatusCode, Body: strings.TrimSpace(string(re.Body))}
	}
	return fmt.Errorf("zettle: %s exchange: %w", grant, err)
}
