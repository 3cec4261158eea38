package bulk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMutator struct {
	mu    sync.Mutex
	calls map[string][]string
	fail  map[string]error
	delay time.Duration

	active  atomic.Int32
	maxSeen atomic.Int32
}

func newFakeMutator() *fakeMutator {
	return &fakeMutator{calls: map[string][]string{}, fail: map[string]error{}}
}

func (f *fakeMutator) record(ctx context.Context, op, id string) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op] = append(f.calls[op], id)
	return f.fail[id]
}

func (f *fakeMutator) DeleteMessage(ctx context.Context, id string) error {
	return f.record(ctx, "delete", id)
}

func (f *fakeMutator) ArchiveMessage(ctx context.Context, id string) error {
	return f.record(ctx, "archive", id)
}

func (f *fakeMutator) StarMessage(ctx context.Context, id string) error {
	return f.record(ctx, "star", id)
}

func (f *fakeMutator) UnstarMessage(ctx context.Context, id string) error {
	return f.record(ctx, "unstar", id)
}

func (f *fakeMutator) called(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[op]...)
}

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		kind      Kind
		ids       []string
		fail      map[string]error
		wantState State
		wantOK    []string
		wantFail  []string
	}{
		{
			name:      "all_succeed",
			kind:      Delete,
			ids:       []string{"a", "b", "c"},
			wantState: Succeeded,
			wantOK:    []string{"a", "b", "c"},
		},
		{
			name:      "one_fails",
			kind:      Archive,
			ids:       []string{"a", "b", "c"},
			fail:      map[string]error{"b": errors.New("boom")},
			wantState: PartiallyFailed,
			wantOK:    []string{"a", "c"},
			wantFail:  []string{"b"},
		},
		{
			name:      "duplicates_dispatched_once",
			kind:      Star,
			ids:       []string{"a", "a", "", "b", "a"},
			wantState: Succeeded,
			wantOK:    []string{"a", "b"},
		},
		{
			name:      "unstar",
			kind:      Unstar,
			ids:       []string{"x"},
			wantState: Succeeded,
			wantOK:    []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMutator()
			for id, err := range tt.fail {
				m.fail[id] = err
			}

			rep, err := New(m, nil).Run(context.Background(), tt.kind, tt.ids)
			require.NoError(t, err)

			assert.NotEmpty(t, rep.ID)
			assert.Equal(t, tt.kind, rep.Kind)
			assert.Equal(t, tt.wantState, rep.State)
			assert.Equal(t, tt.wantOK, rep.Succeeded())
			assert.Len(t, rep.Outcomes, len(tt.wantOK)+len(tt.wantFail))
			assert.ElementsMatch(t, append(append([]string{}, tt.wantOK...), tt.wantFail...), m.called(string(tt.kind)))

			if len(tt.wantFail) == 0 {
				assert.NoError(t, rep.Err())
				return
			}

			f, ok := AsFailure(rep.Err())
			require.True(t, ok)
			assert.Equal(t, tt.wantFail, f.IDs())
			assert.Equal(t, len(rep.Outcomes), f.Total)
			assert.ErrorContains(t, rep.Err(), "1 of 3")
		})
	}
}

func TestRunEmptyTarget(t *testing.T) {
	m := newFakeMutator()
	o := New(m, nil)

	_, err := o.Run(context.Background(), Delete, nil)
	assert.ErrorIs(t, err, ErrEmptyTarget)

	_, err = o.Run(context.Background(), Delete, []string{"", ""})
	assert.ErrorIs(t, err, ErrEmptyTarget)

	assert.Empty(t, m.called("delete"))
}

func TestRunUnknownKind(t *testing.T) {
	_, err := New(newFakeMutator(), nil).Run(context.Background(), Kind("purge"), []string{"a"})
	assert.ErrorContains(t, err, "unknown bulk action")
}

func TestRunMaxInFlight(t *testing.T) {
	m := newFakeMutator()
	m.delay = 5 * time.Millisecond

	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	rep, err := New(m, nil, WithMaxInFlight(2)).Run(context.Background(), Delete, ids)
	require.NoError(t, err)

	assert.Equal(t, Succeeded, rep.State)
	assert.LessOrEqual(t, m.maxSeen.Load(), int32(2))
	assert.Len(t, m.called("delete"), len(ids))
}

func TestRunDetachedFromCancel(t *testing.T) {
	m := newFakeMutator()
	m.delay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := New(m, nil, WithRate(1000, 1)).Run(ctx, Archive, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, Succeeded, rep.State)
	assert.ElementsMatch(t, []string{"a", "b"}, m.called("archive"))
}

func TestRunTimings(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(3 * time.Second)}
	var i int
	clock := func() time.Time {
		ts := ticks[i]
		i++
		return ts
	}

	rep, err := New(newFakeMutator(), nil, WithClock(clock)).Run(context.Background(), Star, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, rep.Duration())
}

func TestParse(t *testing.T) {
	k, err := ParseKind(" Archive ")
	require.NoError(t, err)
	assert.Equal(t, Archive, k)

	_, err = ParseKind("move")
	assert.Error(t, err)

	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, AllOrNothing, p)

	p, err = ParsePolicy("per_item")
	require.NoError(t, err)
	assert.Equal(t, PerItem, p)

	_, err = ParsePolicy("best_effort")
	assert.Error(t, err)

	assert.Equal(t, "partially_failed", PartiallyFailed.String())
}
