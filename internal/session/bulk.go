package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hal9000y/mailbulk/internal/bulk"
	"github.com/hal9000y/mailbulk/internal/mailbox"
	"github.com/hal9000y/mailbulk/internal/selection"
)

// Result is what a bulk action did to the session.
type Result struct {
	Report bulk.Report
	// Applied lists ids whose change was folded into the view.
	Applied []string
	// Failed lists ids left untouched because their mutation failed, or
	// because a sibling failed under AllOrNothing.
	Failed []string
}

// Bulk runs kind over ids, or over the current selection when ids is empty,
// and reconciles the view according to the session policy. A returned
// *bulk.FailureError means at least one item failed; Result is still valid.
func (s *Session) Bulk(ctx context.Context, kind bulk.Kind, ids []string) (Result, error) {
	if len(ids) == 0 {
		ids = s.Selection()
	}
	if !selection.CanConfirm(ids) {
		return Result{}, bulk.ErrEmptyTarget
	}

	rep, err := s.runner.Run(ctx, kind, ids)
	if err != nil {
		return Result{}, fmt.Errorf("runner.Run failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.reconcile(rep)
	s.last = s.notify(rep, res)

	return res, rep.Err()
}

func (s *Session) reconcile(rep bulk.Report) Result {
	res := Result{Report: rep}

	if s.cfg.Policy == bulk.AllOrNothing && rep.State != bulk.Succeeded {
		for _, o := range rep.Outcomes {
			res.Failed = append(res.Failed, o.ID)
		}
		return res
	}

	for _, o := range rep.Outcomes {
		if o.Err != nil {
			res.Failed = append(res.Failed, o.ID)
			continue
		}
		s.apply(rep.Kind, o.ID)
		res.Applied = append(res.Applied, o.ID)
	}

	if s.cfg.Policy == bulk.AllOrNothing {
		s.selected.Clear()
	} else {
		s.selected.Remove(res.Applied...)
	}

	return res
}

func (s *Session) apply(kind bulk.Kind, id string) {
	i := s.index(id)
	if i < 0 {
		return
	}

	switch kind {
	case bulk.Delete, bulk.Archive:
		s.view = append(s.view[:i], s.view[i+1:]...)
		if s.openID == id {
			s.openID = ""
		}
	case bulk.Star:
		s.view[i].IsStarred = true
		if !s.view[i].HasLabel(mailbox.LabelStarred) {
			s.view[i].Labels = append(s.view[i].Labels, mailbox.LabelStarred)
		}
	case bulk.Unstar:
		s.view[i].IsStarred = false
		s.view[i].Labels = withoutLabel(s.view[i].Labels, mailbox.LabelStarred)
	}
}

func (s *Session) notify(rep bulk.Report, res Result) *Notification {
	n := &Notification{
		OpID:      rep.ID,
		Kind:      rep.Kind,
		Policy:    s.cfg.Policy,
		State:     rep.State,
		Succeeded: len(rep.Succeeded()),
		FailedIDs: res.Failed,
		At:        s.now(),
	}
	if err := rep.Err(); err != nil {
		n.Reason = failureReason(err)
	}
	return n
}

func failureReason(err error) string {
	f, ok := bulk.AsFailure(err)
	if !ok || len(f.Failed) == 0 {
		return err.Error()
	}
	return fmt.Sprintf("%s: first error: %v", f.Error(), f.Failed[0].Err)
}

// DeleteMode picks the target of the delete dialog.
type DeleteMode string

const (
	DeleteAll       DeleteMode = "all"
	DeleteRead      DeleteMode = "read"
	DeleteUnread    DeleteMode = "unread"
	DeleteCustom    DeleteMode = "custom"
	DeleteDateRange DeleteMode = "dateRange"
)

// DeleteOptions describes one confirmation of the delete dialog. IDs is used
// by DeleteCustom, Start and End by DeleteDateRange.
type DeleteOptions struct {
	Mode  DeleteMode
	IDs   []string
	Start time.Time
	End   time.Time
}

// DeleteTargets resolves opts against the view without side effects. It is
// the count the dialog shows before confirmation.
func (s *Session) DeleteTargets(opts DeleteOptions) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch opts.Mode {
	case DeleteAll:
		return selection.IDs(s.view), nil
	case DeleteRead:
		return selection.IDs(selection.ByStatus(s.view, selection.ReadOnly)), nil
	case DeleteUnread:
		return selection.IDs(selection.ByStatus(s.view, selection.UnreadOnly)), nil
	case DeleteCustom:
		return append([]string{}, opts.IDs...), nil
	case DeleteDateRange:
		if opts.Start.IsZero() || opts.End.IsZero() {
			return []string{}, nil
		}
		return selection.IDs(selection.ByDateRange(s.view, opts.Start, opts.End)), nil
	default:
		return nil, fmt.Errorf("unknown delete mode %q", opts.Mode)
	}
}

// Delete confirms the delete dialog. An empty target is reported as
// bulk.ErrEmptyTarget without any remote call.
func (s *Session) Delete(ctx context.Context, opts DeleteOptions) (Result, error) {
	ids, err := s.DeleteTargets(opts)
	if err != nil {
		return Result{}, err
	}
	if !selection.CanConfirm(ids) {
		return Result{}, bulk.ErrEmptyTarget
	}
	return s.Bulk(ctx, bulk.Delete, ids)
}

// IsEmptyTarget reports whether err is a refused empty bulk action.
func IsEmptyTarget(err error) bool {
	return errors.Is(err, bulk.ErrEmptyTarget)
}
