// Package bulk fans one logical bulk action out to independent per-message
// remote mutations and joins their outcomes into a single report.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrEmptyTarget is returned before any dispatch when no ids were given.
var ErrEmptyTarget = errors.New("bulk: empty target")

// Mutator performs single-message remote mutations.
type Mutator interface {
	DeleteMessage(ctx context.Context, id string) error
	ArchiveMessage(ctx context.Context, id string) error
	StarMessage(ctx context.Context, id string) error
	UnstarMessage(ctx context.Context, id string) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxInFlight caps the number of concurrent mutations. Zero or less means
// every mutation of a bulk action is dispatched at once.
func WithMaxInFlight(n int) Option {
	return func(o *Orchestrator) { o.maxInFlight = n }
}

// WithRate spaces dispatches with a token bucket of the given rate and burst.
// A non-positive rate disables limiting.
func WithRate(perSecond float64, burst int) Option {
	return func(o *Orchestrator) {
		if perSecond <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithClock overrides time.Now for report timings.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator dispatching through m.
func New(m Mutator, log *slog.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		m:   m,
		log: log,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrator is safe for concurrent use; each Run is independent.
type Orchestrator struct {
	m           Mutator
	log         *slog.Logger
	now         func() time.Time
	maxInFlight int
	limiter     *rate.Limiter
}

// Run dispatches kind once per distinct id and waits for every call to
// finish. Dispatched calls are detached from ctx cancellation, so a report
// always covers every id. The returned error is only set when nothing was
// dispatched; per-item failures are carried in the report.
func (o *Orchestrator) Run(ctx context.Context, kind Kind, ids []string) (Report, error) {
	call, err := o.mutation(kind)
	if err != nil {
		return Report{}, err
	}

	targets := dedupe(ids)
	if len(targets) == 0 {
		return Report{}, ErrEmptyTarget
	}

	rep := Report{
		ID:       uuid.NewString(),
		Kind:     kind,
		State:    InFlight,
		Started:  o.now(),
		Outcomes: make([]Outcome, len(targets)),
	}

	log := o.log.With("op_id", rep.ID, "kind", string(kind))
	log.Info("bulk action dispatched", "targets", len(targets))

	dctx := context.WithoutCancel(ctx)

	var g errgroup.Group
	if o.maxInFlight > 0 {
		g.SetLimit(o.maxInFlight)
	}

	for i, id := range targets {
		g.Go(func() error {
			rep.Outcomes[i] = Outcome{ID: id, Err: o.dispatch(dctx, call, id)}
			return nil
		})
	}
	_ = g.Wait()

	rep.Finished = o.now()
	rep.State = Succeeded
	if failed := rep.Failed(); len(failed) > 0 {
		rep.State = PartiallyFailed
		for _, f := range failed {
			log.Warn("bulk item failed", "id", f.ID, "error", f.Err)
		}
	}

	log.Info("bulk action finished",
		"state", rep.State.String(),
		"succeeded", len(rep.Succeeded()),
		"failed", len(rep.Failed()),
		"duration", rep.Duration(),
	)

	return rep, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, call func(context.Context, string) error, id string) error {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("limiter.Wait failed: %w", err)
		}
	}
	return call(ctx, id)
}

func (o *Orchestrator) mutation(kind Kind) (func(context.Context, string) error, error) {
	switch kind {
	case Delete:
		return o.m.DeleteMessage, nil
	case Archive:
		return o.m.ArchiveMessage, nil
	case Star:
		return o.m.StarMessage, nil
	case Unstar:
		return o.m.UnstarMessage, nil
	default:
		return nil, fmt.Errorf("unknown bulk action %q", kind)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
