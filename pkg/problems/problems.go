package problems

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
)

var base atomic.Value // string

// SetBase sets the base URL for problem type identifiers, usually PUBLIC_BASE_URL + "/problems".
func SetBase(u string) { base.Store(strings.TrimRight(u, "/")) }

// Base returns the base URL for problem type identifiers.
func Base() string {
	if b, _ := base.Load().(string); b != "" {
		return b
	}
	return "https://example.com/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(slug string) string { return Base() + "/" + slug }

// Problem is an RFC 9457 problem document.
type Problem struct {
	Type   string         `json:"type"`
	Title  string         `json:"title"`
	Status int            `json:"status"`
	Detail string         `json:"detail,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// New builds a problem for slug.
func New(status int, slug, title, detail string) Problem {
	return Problem{Type: Type(slug), Title: title, Status: status, Detail: detail}
}

// Write sends p as application/problem+json.
func Write(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
