package zettle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sony/gobreaker"
)

// SelfOrg is the path segment used when no organization id is known.
const SelfOrg = "self"

// Strategy is one known way of reaching a resource: a base URL and a path template.
// "{org}" in Path is replaced with the organization id.
type Strategy struct {
	Base string
	Path string
}

func (s Strategy) Name() string { return s.Base + s.Path }

func (s Strategy) URL(org string) string {
	if org == "" {
		org = SelfOrg
	}
	return s.Base + strings.ReplaceAll(s.Path, "{org}", org)
}

// Candidate is a Strategy resolved for one call.
type Candidate struct {
	Name string
	URL  string
}

// Resolve expands strategies for org, dropping duplicate URLs and keeping order.
func Resolve(strategies []Strategy, org string) []Candidate {
	seen := map[string]bool{}
	out := make([]Candidate, 0, len(strategies))
	for _, s := range strategies {
		u := s.URL(org)
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, Candidate{Name: s.Name(), URL: u})
	}
	return out
}

// FirstSuccess tries candidates in order and returns the first result without error.
// When all fail the error is an *AllCandidatesFailedError whose last attempt is the final candidate.
func FirstSuccess[T any](ctx context.Context, resource string, cands []Candidate, try func(context.Context, Candidate) (T, error)) (T, error) {
	var zero T
	if len(cands) == 0 {
		return zero, fmt.Errorf("zettle: no %s candidates configured", resource)
	}
	failed := &AllCandidatesFailedError{Resource: resource}
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := try(ctx, c)
		if err == nil {
			return v, nil
		}
		failed.Attempts = append(failed.Attempts, attemptFrom(c, err))
	}
	return zero, failed
}

func attemptFrom(c Candidate, err error) Attempt {
	a := Attempt{Candidate: c.Name, URL: c.URL, Err: err}
	var he *HTTPStatusError
	if errors.As(err, &he) {
		a.Status = he.Status
		a.Body = he.Body
	}
	return a
}

// breakers holds one circuit breaker per candidate. An open breaker demotes its
// candidate behind the healthy ones; it never prevents the call.
type breakers struct {
	mu       sync.Mutex
	settings gobreaker.Settings
	byName   map[string]*gobreaker.CircuitBreaker
	enabled  bool
}

func newBreakers(failures uint32, settings gobreaker.Settings) *breakers {
	settings.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= failures }
	settings.IsSuccessful = healthyOutcome
	return &breakers{settings: settings, byName: map[string]*gobreaker.CircuitBreaker{}, enabled: failures > 0}
}

// healthyOutcome keeps auth rejections and caller cancellation out of endpoint health.
func healthyOutcome(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var he *HTTPStatusError
	return errors.As(err, &he) && (he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden)
}

func (b *breakers) get(name string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.byName[name]
	if !ok {
		s := b.settings
		s.Name = name
		cb = gobreaker.NewCircuitBreaker(s)
		b.byName[name] = cb
	}
	return cb
}

// reset closes the breaker for name after a call succeeded while it was open.
func (b *breakers) reset(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byName, name)
}

// order keeps the candidate order but moves those with an open breaker to the end.
func (b *breakers) order(cands []Candidate) []Candidate {
	if !b.enabled {
		return cands
	}
	healthy := make([]Candidate, 0, len(cands))
	var open []Candidate
	for _, c := range cands {
		if b.State(c.Name) == gobreaker.StateOpen.String() {
			open = append(open, c)
			continue
		}
		healthy = append(healthy, c)
	}
	return append(healthy, open...)
}

// run calls fn behind the breaker for name. When the breaker refuses, fn still runs
// so the caller always gets a real answer; a success closes the breaker.
func (b *breakers) run(name string, fn func() (any, error)) (any, error) {
	if !b.enabled {
		return fn()
	}
	v, err := b.get(name).Execute(fn)
	if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		return v, err
	}
	v, err = fn()
	if err == nil {
		b.reset(name)
	}
	return v, err
}

// State reports the breaker state for a candidate name, for status pages.
func (b *breakers) State(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.byName[name]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}
