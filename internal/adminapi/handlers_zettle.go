package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"repairshop/internal/possync"
	"repairshop/internal/zettle"
)

var errBadQuery = errors.New("bad query")

// manualTokenLifetime applies to tokens pasted in by hand.
const manualTokenLifetime = time.Hour

type statusResponse struct {
	Connected      bool              `json:"connected"`
	Expired        bool              `json:"expired"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
	UpdatedAt      *time.Time        `json:"updatedAt,omitempty"`
	Scope          string            `json:"scope,omitempty"`
	TokenType      string            `json:"tokenType,omitempty"`
	HasRefresh     bool              `json:"hasRefreshToken"`
	Configured     bool              `json:"configured"`
	Environment    string            `json:"environment"`
	OrganizationID string            `json:"organizationId,omitempty"`
	TokenStore     string            `json:"tokenStore"`
	SyncRunning    bool              `json:"syncRunning"`
	Lease          *possync.Lease    `json:"lease,omitempty"`
	Endpoints      map[string]string `json:"endpoints"`
}

func (a *App) zettleStatus(w http.ResponseWriter, r *http.Request) {
	zc := a.zettle.Config()
	st := statusResponse{
		Configured:     zc.HasCredentials(),
		Environment:    zc.Environment,
		OrganizationID: zc.OrganizationID,
		TokenStore:     string(a.tokenBackend),
		Endpoints:      map[string]string{},
	}
	tok, err := a.zettle.Store().Load(r.Context())
	if err != nil {
		a.writeError(w, r, fmt.Errorf("load token: %w", err))
		return
	}
	if tok != nil {
		exp, upd := tok.ExpiresAt, tok.UpdatedAt
		st.Connected = true
		st.Expired = !tok.ValidFor(time.Now(), 0)
		st.ExpiresAt, st.UpdatedAt = &exp, &upd
		st.Scope, st.TokenType = tok.Scope, tok.TokenType
		st.HasRefresh = tok.RefreshToken != ""
	}
	lease, err := a.syncer.Lease(r.Context())
	if err != nil {
		a.log.Warnw("lease status failed", "err", err)
	}
	st.Lease, st.SyncRunning = lease, lease != nil
	for _, s := range append(a.zettle.ProductStrategies(), a.zettle.PurchaseStrategies()...) {
		st.Endpoints[s.Name()] = a.zettle.CandidateState(s)
	}
	writeJSON(w, st, http.StatusOK)
}

func (a *App) zettleTestConnection(w http.ResponseWriter, r *http.Request) {
	tok, err := a.zettle.Authenticate(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := map[string]any{"ok": true, "expiresAt": tok.ExpiresAt, "scope": tok.Scope}
	if org, err := a.zettle.OrganizationID(r.Context(), tok); err == nil {
		resp["organizationId"] = org
	} else {
		resp["organizationError"] = err.Error()
	}
	writeJSON(w, resp, http.StatusOK)
}

func (a *App) zettleManualSetup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &in, false); err != nil {
		a.writeError(w, r, err)
		return
	}
	in.AccessToken = strings.TrimSpace(in.AccessToken)
	if in.AccessToken == "" {
		a.writeError(w, r, fmt.Errorf("%w: accessToken is required", errBadJSON))
		return
	}
	tok := zettle.StoredToken{
		AccessToken:  in.AccessToken,
		RefreshToken: strings.TrimSpace(in.RefreshToken),
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(manualTokenLifetime).UTC(),
	}
	if err := a.zettle.Store().Save(r.Context(), tok); err != nil {
		a.writeError(w, r, fmt.Errorf("save token: %w", err))
		return
	}
	a.log.Infow("zettle token stored manually", "has_refresh", tok.RefreshToken != "")
	writeJSON(w, map[string]any{"ok": true, "expiresAt": tok.ExpiresAt}, http.StatusOK)
}

func (a *App) zettleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.zettle.GetProducts(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"products": products, "count": len(products)}, http.StatusOK)
}

func (a *App) zettleQuickSync(w http.ResponseWriter, r *http.Request) {
	rep, err := a.syncer.QuickSync(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, rep, http.StatusOK)
}

func (a *App) zettleSync(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Direction string `json:"direction"`
	}
	if err := decodeJSON(r, &in, true); err != nil {
		a.writeError(w, r, err)
		return
	}
	dir, err := possync.ParseDirection(in.Direction)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	rep, err := a.syncer.Run(r.Context(), dir)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, rep, http.StatusOK)
}

func (a *App) zettleTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := purchaseQuery(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	purchases, err := a.zettle.GetPurchases(r.Context(), q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"transactions": purchases, "count": len(purchases)}, http.StatusOK)
}

func purchaseQuery(r *http.Request) (zettle.PurchaseQuery, error) {
	var q zettle.PurchaseQuery
	v := r.URL.Query()
	var err error
	if q.Start, err = parseDate(v.Get("startDate")); err != nil {
		return q, fmt.Errorf("%w: startDate: %v", errBadQuery, err)
	}
	if q.End, err = parseDate(v.Get("endDate")); err != nil {
		return q, fmt.Errorf("%w: endDate: %v", errBadQuery, err)
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return q, fmt.Errorf("%w: endDate before startDate", errBadQuery)
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, fmt.Errorf("%w: limit must be a positive integer", errBadQuery)
		}
		q.Limit = n
	}
	return q, nil
}

// parseDate accepts RFC3339 or a plain YYYY-MM-DD (midnight UTC).
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}
