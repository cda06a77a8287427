package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"repairshop/internal/catalog"
	"repairshop/internal/possync"
	"repairshop/internal/zettle"
)

func TestProblemFor(t *testing.T) {
	upstream := &zettle.AllCandidatesFailedError{Resource: "products", Attempts: []zettle.Attempt{{Status: 503, Body: "down"}}}
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("possync: authenticate: %w", zettle.ErrNotConnected), http.StatusConflict},
		{possync.ErrSyncInProgress, http.StatusConflict},
		{&zettle.ConflictError{UUID: "p-1", ETag: `"1"`}, http.StatusConflict},
		{zettle.ErrMissingCredentials, http.StatusPreconditionFailed},
		{upstream, http.StatusBadGateway},
		{&zettle.TokenExchangeError{GrantType: "refresh_token", Status: 400, Body: "bad"}, http.StatusBadGateway},
		{fmt.Errorf("%w: x", possync.ErrInvalidDirection), http.StatusBadRequest},
		{fmt.Errorf("%w: name", catalog.ErrInvalid), http.StatusBadRequest},
		{catalog.ErrNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, problemFor(tc.err).Status, tc.err.Error())
	}

	p := problemFor(upstream)
	assert.Equal(t, 503, p.Extra["status"])
	assert.Equal(t, "down", p.Extra["body"])
	assert.Empty(t, problemFor(errors.New("secret detail")).Detail)
}
