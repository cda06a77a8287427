package zettle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means no token is stored (or it cannot be refreshed); the admin must run the OAuth flow.
	ErrNotConnected = errors.New("zettle: not connected")
	// ErrInvalidState means the OAuth callback state did not match the state cookie.
	ErrInvalidState = errors.New("zettle: invalid oauth state")
	// ErrMissingCredentials means client id or secret is not configured.
	ErrMissingCredentials = errors.New("zettle: missing client credentials")
	// ErrTokenRace means a concurrent refresh replaced the token with one that is already unusable.
	ErrTokenRace = errors.New("zettle: token replaced concurrently")
)

// TokenExchangeError is a non-2xx answer from the provider token endpoint.
type TokenExchangeError struct {
	GrantType string
	Status    int
	Body      string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("zettle: %s exchange failed: %d %s", e.GrantType, e.Status, e.Body)
}

// HTTPStatusError is a non-2xx answer from a resource API.
type HTTPStatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("zettle: %s %s: %d %s", e.Method, e.URL, e.Status, e.Body)
}

// ConflictError is a write rejected because the supplied etag is stale.
type ConflictError struct {
	UUID string
	ETag string
	Err  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("zettle: product %s changed remotely (etag %q is stale)", e.UUID, e.ETag)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Attempt records the outcome of one probe candidate.
type Attempt struct {
	Candidate string
	URL       string
	Status    int
	Body      string
	Err       error
}

// AllCandidatesFailedError is returned when every strategy for a resource failed.
// Status and Body describe the last candidate tried.
type AllCandidatesFailedError struct {
	Resource string
	Attempts []Attempt
}

func (e *AllCandidatesFailedError) last() Attempt {
	if len(e.Attempts) == 0 {
		return Attempt{}
	}
	return e.Attempts[len(e.Attempts)-1]
}

func (e *AllCandidatesFailedError) Status() int  { return e.last().Status }
func (e *AllCandidatesFailedError) Body() string { return e.last().Body }

func (e *AllCandidatesFailedError) Error() string {
	l := e.last()
	if l.Status != 0 {
		return fmt.Sprintf("zettle: all %d %s candidates failed, last %s: %d %s", len(e.Attempts), e.Resource, l.URL, l.Status, l.Body)
	}
	return fmt.Sprintf("zettle: all %d %s candidates failed, last %s: %v", len(e.Attempts), e.Resource, l.URL, l.Err)
}

func (e *AllCandidatesFailedError) Unwrap() error { return e.last().Err }

// IsAuthError reports errors that make any further provider call pointless.
func IsAuthError(err error) bool {
	var tx *TokenExchangeError
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrTokenRace) ||
		errors.As(err, &tx)
}
