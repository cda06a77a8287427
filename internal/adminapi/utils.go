package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"repairshop/internal/catalog"
	"repairshop/internal/possync"
	"repairshop/internal/zettle"
	"repairshop/pkg/problems"
)

const maxRequestBody = 1 << 20

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var errBadJSON = errors.New("bad json")

// decodeJSON reads a JSON body into v. An empty body leaves v untouched when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}

// problemFor maps domain errors to HTTP problems.
func problemFor(err error) problems.Problem {
	var (
		conflict *zettle.ConflictError
		upstream *zettle.AllCandidatesFailedError
		exchange *zettle.TokenExchangeError
		remote   *zettle.HTTPStatusError
	)
	switch {
	case errors.Is(err, zettle.ErrNotConnected):
		return problems.New(http.StatusConflict, "zettle-not-connected", "Zettle is not connected", err.Error())
	case errors.Is(err, possync.ErrSyncInProgress):
		return problems.New(http.StatusConflict, "sync-in-progress", "Sync already running", err.Error())
	case errors.As(err, &conflict):
		return problems.New(http.StatusConflict, "zettle-conflict", "Product changed remotely", err.Error())
	case errors.Is(err, zettle.ErrTokenRace):
		return problems.New(http.StatusConflict, "zettle-token-race", "Token replaced concurrently", err.Error())
	case errors.Is(err, zettle.ErrMissingCredentials):
		return problems.New(http.StatusPreconditionFailed, "zettle-missing-credentials", "Zettle client credentials missing", err.Error())
	case errors.As(err, &upstream):
		p := problems.New(http.StatusBadGateway, "zettle-unavailable", "Zettle endpoints failed", err.Error())
		p.Extra = map[string]any{"resource": upstream.Resource, "status": upstream.Status(), "body": upstream.Body(), "attempts": len(upstream.Attempts)}
		return p
	case errors.As(err, &exchange):
		p := problems.New(http.StatusBadGateway, "zettle-token-exchange", "Zettle token exchange failed", err.Error())
		p.Extra = map[string]any{"status": exchange.Status, "body": exchange.Body}
		return p
	case errors.As(err, &remote):
		p := problems.New(http.StatusBadGateway, "zettle-error", "Zettle request failed", err.Error())
		p.Extra = map[string]any{"status": remote.Status, "body": remote.Body}
		return p
	case errors.Is(err, possync.ErrInvalidDirection), errors.Is(err, catalog.ErrInvalid), errors.Is(err, errBadJSON), errors.Is(err, errBadQuery):
		return problems.New(http.StatusBadRequest, "invalid-input", "Invalid input", err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		return problems.New(http.StatusNotFound, "not-found", "Not found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return problems.New(http.StatusGatewayTimeout, "timeout", "Timed out", err.Error())
	}
	return problems.New(http.StatusInternalServerError, "internal", "Internal error", "")
}

func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	if p.Status >= 500 {
		a.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "status", p.Status, "err", err)
	} else {
		a.log.Infow("request rejected", "method", r.Method, "path", r.URL.Path, "status", p.Status, "err", err)
	}
	problems.Write(w, p)
}
