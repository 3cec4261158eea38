// Package session holds the state of one signed-in mailbox session: the local
// mailbox view, the ad hoc selection and the outcome of the latest bulk
// action. All mutations of that state go through a Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hal9000y/mailbulk/internal/bulk"
	"github.com/hal9000y/mailbulk/internal/mailbox"
	"github.com/hal9000y/mailbulk/internal/selection"
)

// ErrUnknownEmail is returned for ids not present in the view.
var ErrUnknownEmail = errors.New("email not in mailbox view")

type mailboxService interface {
	ListMessages(ctx context.Context, maxResults int64, query string) ([]string, error)
	FetchEmails(ctx context.Context, ids []string) ([]mailbox.Email, error)
	MarkRead(ctx context.Context, id string) error
}

type bulkRunner interface {
	Run(ctx context.Context, kind bulk.Kind, ids []string) (bulk.Report, error)
}

// Config tunes a Session. Zero values fall back to the access layer defaults
// and the AllOrNothing policy.
type Config struct {
	MaxResults int64
	Query      string
	Policy     bulk.Policy
}

// Notification summarises a finished bulk action for the user.
type Notification struct {
	OpID      string
	Kind      bulk.Kind
	Policy    bulk.Policy
	State     bulk.State
	Succeeded int
	FailedIDs []string
	Reason    string
	At        time.Time
}

// New creates an empty session.
func New(svc mailboxService, runner bulkRunner, cfg Config, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Policy == "" {
		cfg.Policy = bulk.AllOrNothing
	}
	return &Session{
		svc:    svc,
		runner: runner,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Session is safe for concurrent use. Remote calls are made without holding
// the lock.
type Session struct {
	svc    mailboxService
	runner bulkRunner
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	view     []mailbox.Email
	selected selection.Set
	openID   string
	last     *Notification

	background sync.WaitGroup
}

// SetClock overrides time.Now for date presets and notifications.
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Policy is the active reconciliation policy.
func (s *Session) Policy() bulk.Policy {
	return s.cfg.Policy
}

// Load replaces the view with a fresh listing. On failure the view is left as
// it was. Selected ids that are no longer listed are dropped.
func (s *Session) Load(ctx context.Context, maxResults int64, query string) ([]mailbox.Email, error) {
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}
	if query == "" {
		query = s.cfg.Query
	}

	ids, err := s.svc.ListMessages(ctx, maxResults, query)
	if err != nil {
		return nil, fmt.Errorf("svc.ListMessages failed: %w", err)
	}

	emails, err := s.svc.FetchEmails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("svc.FetchEmails failed: %w", err)
	}

	view := make([]mailbox.Email, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		e.PendingSync = false
		view = append(view, e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.view = view
	for _, id := range s.selected.IDs() {
		if _, ok := seen[id]; !ok {
			s.selected.Remove(id)
		}
	}
	if _, ok := seen[s.openID]; !ok {
		s.openID = ""
	}

	s.log.Info("mailbox loaded", "count", len(view), "query", query)

	return cloneAll(view), nil
}

// Emails is a snapshot of the view in display order.
func (s *Session) Emails() []mailbox.Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.view)
}

// Email returns one email of the view.
func (s *Session) Email(id string) (mailbox.Email, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return mailbox.Email{}, false
	}
	return s.view[i].Clone(), true
}

// Open marks the email as the open one and flips it to read locally. An
// unread email gets one background MarkRead; PendingSync stays set until that
// call succeeds or the next Load.
func (s *Session) Open(ctx context.Context, id string) (mailbox.Email, error) {
	s.mu.Lock()
	i := s.index(id)
	if i < 0 {
		s.mu.Unlock()
		return mailbox.Email{}, fmt.Errorf("open %s: %w", id, ErrUnknownEmail)
	}

	s.openID = id
	e := &s.view[i]
	needSync := !e.IsRead
	if needSync {
		e.IsRead = true
		e.PendingSync = true
		e.Labels = withoutLabel(e.Labels, mailbox.LabelUnread)
	}
	out := e.Clone()
	s.mu.Unlock()

	if needSync {
		s.background.Add(1)
		go s.markRead(context.WithoutCancel(ctx), id)
	}

	return out, nil
}

// OpenID is the id of the currently open email, if any.
func (s *Session) OpenID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openID
}

// Wait blocks until background mark-read calls have finished.
func (s *Session) Wait() {
	s.background.Wait()
}

func (s *Session) markRead(ctx context.Context, id string) {
	defer s.background.Done()

	if err := s.svc.MarkRead(ctx, id); err != nil {
		s.log.Warn("mark read failed", "id", id, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		s.view[i].PendingSync = false
	}
}

// Filter evaluates c against the view. The view and the selection are
// untouched.
func (s *Session) Filter(c selection.Criteria) ([]mailbox.Email, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return selection.Apply(s.view, c, s.now()), nil
}

// Toggle flips selection of one email of the view.
func (s *Session) Toggle(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(id) < 0 {
		return false, fmt.Errorf("select %s: %w", id, ErrUnknownEmail)
	}
	return s.selected.Toggle(id), nil
}

// SelectAll selects every email matching c, or clears the selection when
// checked is false.
func (s *Session) SelectAll(c selection.Criteria, checked bool) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected.SelectAll(selection.IDs(selection.Apply(s.view, c, s.now())), checked)
	return s.selected.IDs(), nil
}

// ClearSelection empties the selection.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected.Clear()
}

// Selection lists the selected ids.
func (s *Session) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected.IDs()
}

// LastResult is the notification of the latest finished bulk action.
func (s *Session) LastResult() (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Notification{}, false
	}
	n := *s.last
	n.FailedIDs = append([]string(nil), n.FailedIDs...)
	return n, true
}

func (s *Session) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.view {
		if s.view[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(emails []mailbox.Email) []mailbox.Email {
	out := make([]mailbox.Email, len(emails))
	for i, e := range emails {
		out[i] = e.Clone()
	}
	return out
}

func withoutLabel(labels []string, label string) []string {
	out := labels[:0:0]
	for _, l := range labels {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}
