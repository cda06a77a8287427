package possync

import "math"

// Action is what happened to one item during a run.
type Action string

const (
	Created   Action = "created"
	Updated   Action = "updated"
	Unchanged Action = "unchanged"
	Skipped   Action = "skipped"
)

// Result is the outcome of syncing one item.
type Result[T any] struct {
	Item   T
	Action Action
	Err    error
}

// SyncResult counts the outcomes of one direction of a run.
type SyncResult struct {
	Fetched int      `json:"fetched"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

func newSyncResult() SyncResult { return SyncResult{Errors: []string{}} }

// Add folds one item outcome into the counters. An error always counts as skipped.
func Add[T any](s *SyncResult, r Result[T], label string) {
	if r.Err != nil {
		s.Skipped++
		s.Errors = append(s.Errors, label+": "+r.Err.Error())
		return
	}
	switch r.Action {
	case Created:
		s.Created++
	case Updated:
		s.Updated++
	case Skipped:
		s.Skipped++
	}
}

// Fail records a run-level error that is not tied to an item.
func (s *SyncResult) Fail(err error) {
	s.Errors = append(s.Errors, err.Error())
}

// Merge adds the counters of o to a copy of s.
func (s SyncResult) Merge(o SyncResult) SyncResult {
	out := SyncResult{
		Fetched: s.Fetched + o.Fetched,
		Created: s.Created + o.Created,
		Updated: s.Updated + o.Updated,
		Skipped: s.Skipped + o.Skipped,
		Errors:  make([]string, 0, len(s.Errors)+len(o.Errors)),
	}
	out.Errors = append(out.Errors, s.Errors...)
	out.Errors = append(out.Errors, o.Errors...)
	return out
}

// Report is what a run returns. FromZettle and ToZettle are set for the directions that ran.
type Report struct {
	Direction  Direction   `json:"direction"`
	FromZettle *SyncResult `json:"fromZettle,omitempty"`
	ToZettle   *SyncResult `json:"toZettle,omitempty"`
	Total      SyncResult  `json:"total"`
}

func (r *Report) total() {
	t := newSyncResult()
	if r.FromZettle != nil {
		t = t.Merge(*r.FromZettle)
	}
	if r.ToZettle != nil {
		t = t.Merge(*r.ToZettle)
	}
	r.Total = t
}

// ToMajor converts minor units (öre) to a major-unit price with two decimals.
func ToMajor(minor int64) float64 {
	return float64(minor) / 100
}

// ToMinor converts a major-unit price to minor units, rounding half away from zero.
func ToMinor(major float64) int64 {
	return int64(math.Round(major * 100))
}
