package adminapi

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"repairshop/internal/zettle"
)

const (
	stateCookie   = "zettle_oauth_state"
	stateTTL      = 10 * time.Minute
	maxReasonBody = 200
)

func (a *App) oauthStart(w http.ResponseWriter, r *http.Request) {
	if !a.cfg.Zettle.HasCredentials() {
		a.log.Warnw("oauth start without client credentials")
		a.posRedirect(w, r, "zettle_error", "missing_client")
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, a.stateCookie(state, int(stateTTL.Seconds())))
	http.Redirect(w, r, a.zettle.OAuth().AuthCodeURL(state), http.StatusFound)
}

func (a *App) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		http.SetCookie(w, a.stateCookie("", -1))
		a.log.Infow("oauth denied by provider", "error", e, "description", q.Get("error_description"))
		a.posRedirect(w, r, "zettle_error", e)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.SetCookie(w, a.stateCookie("", -1))
		a.posRedirect(w, r, "zettle_error", "missing_code")
		return
	}
	err := a.checkState(r, q.Get("state"))
	http.SetCookie(w, a.stateCookie("", -1))
	if err != nil {
		a.log.Warnw("oauth callback rejected", "err", err)
		a.posRedirect(w, r, "zettle_error", "invalid_state")
		return
	}

	tok, err := a.zettle.OAuth().ExchangeCode(r.Context(), code)
	if err != nil {
		a.log.Errorw("oauth code exchange failed", "err", err)
		a.posRedirect(w, r, "zettle_error", exchangeReason(err))
		return
	}
	prev, err := a.zettle.Store().Load(r.Context())
	if err != nil {
		a.log.Warnw("oauth could not read current token", "err", err)
	}
	if err := a.zettle.Store().Save(r.Context(), tok); err != nil {
		a.log.Errorw("oauth token store failed", "err", err)
		a.posRedirect(w, r, "zettle_error", "store_failed")
		return
	}
	if prev != nil {
		a.log.Warnw("zettle token replaced",
			"previous_scope", prev.Scope, "previous_expires_at", prev.ExpiresAt, "previous_updated_at", prev.UpdatedAt,
			"organization_id", a.zettle.Config().OrganizationID, "remote_addr", r.RemoteAddr)
	}
	a.log.Infow("zettle connected", "scope", tok.Scope, "expires_at", tok.ExpiresAt)
	a.posRedirect(w, r, "zettle_connected", "1")
}

func (a *App) checkState(r *http.Request, state string) error {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || state == "" {
		return fmt.Errorf("%w: missing state", zettle.ErrInvalidState)
	}
	if subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) != 1 {
		return fmt.Errorf("%w: state mismatch", zettle.ErrInvalidState)
	}
	return nil
}

func exchangeReason(err error) string {
	var te *zettle.TokenExchangeError
	switch {
	case errors.Is(err, zettle.ErrMissingCredentials):
		return "missing_client"
	case errors.As(err, &te):
		body := te.Body
		if len(body) > maxReasonBody {
			body = body[:maxReasonBody]
		}
		return fmt.Sprintf("token_exchange_failed:%d:%s", te.Status, body)
	}
	return "token_exchange_failed"
}

func (a *App) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     stateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cfg.Prod(),
		SameSite: http.SameSiteLaxMode,
	}
}

// posRedirect sends the browser back to the admin POS page with one query flag.
func (a *App) posRedirect(w http.ResponseWriter, r *http.Request, key, value string) {
	target, err := url.Parse(a.cfg.AdminPOSURL)
	if err != nil {
		target = &url.URL{Path: "/"}
	}
	v := target.Query()
	v.Set(key, value)
	target.RawQuery = v.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
