package bulk

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is a bulk mutation.
type Kind string

const (
	Delete  Kind = "delete"
	Archive Kind = "archive"
	Star    Kind = "star"
	Unstar  Kind = "unstar"
)

// ParseKind accepts the lowercase kind names.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Delete, Archive, Star, Unstar:
		return k, nil
	default:
		return "", fmt.Errorf("unknown bulk action %q", s)
	}
}

// State is the lifecycle of one bulk action.
type State int

const (
	Idle State = iota
	InFlight
	Succeeded
	PartiallyFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case PartiallyFailed:
		return "partially_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Policy decides how a finished report is folded back into local state.
type Policy string

const (
	// AllOrNothing applies the action locally only when every item
	// succeeded.
	AllOrNothing Policy = "all_or_nothing"
	// PerItem applies each success individually and keeps failures.
	PerItem Policy = "per_item"
)

// ParsePolicy maps a config value onto a Policy. Empty means AllOrNothing.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return AllOrNothing, nil
	case AllOrNothing, PerItem:
		return p, nil
	default:
		return "", fmt.Errorf("unknown reconciliation policy %q", s)
	}
}

// Outcome is the result of the mutation for one id.
type Outcome struct {
	ID  string
	Err error
}

// Report is the joined result of one bulk action. Outcomes follow the order
// of the deduplicated target ids.
type Report struct {
	ID       string
	Kind     Kind
	State    State
	Outcomes []Outcome
	Started  time.Time
	Finished time.Time
}

// Succeeded lists ids whose mutation succeeded.
func (r Report) Succeeded() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Err == nil {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Failed lists the failed outcomes.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Duration is the wall time between dispatch and join.
func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Err is nil when every item succeeded, otherwise a *FailureError.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &FailureError{Kind: r.Kind, Total: len(r.Outcomes), Failed: failed}
}

// FailureError aggregates the failed items of a bulk action.
type FailureError struct {
	Kind   Kind
	Total  int
	Failed []Outcome
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s failed for %d of %d messages", e.Kind, len(e.Failed), e.Total)
}

// Unwrap exposes each item error to errors.Is and errors.As.
func (e *FailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// IDs lists the failed ids.
func (e *FailureError) IDs() []string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.ID)
	}
	return ids
}

// AsFailure extracts a *FailureError from err.
func AsFailure(err error) (*FailureError, bool) {
	var f *FailureError
	ok := errors.As(err, &f)
	return f, ok
}
