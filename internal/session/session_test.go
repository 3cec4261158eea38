package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/mailbulk/internal/bulk"
	"github.com/hal9000y/mailbulk/internal/mailbox"
	"github.com/hal9000y/mailbulk/internal/selection"
)

var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type fakeRemote struct {
	mu        sync.Mutex
	emails    []mailbox.Email
	listErr   error
	fail      map[string]error
	markRead  chan string
	markErr   error
	mutations map[string][]string
	lastQuery string
	lastMax   int64
}

func newFakeRemote(emails ...mailbox.Email) *fakeRemote {
	return &fakeRemote{
		emails:    emails,
		fail:      map[string]error{},
		mutations: map[string][]string{},
		markRead:  make(chan string, 16),
	}
}

func (f *fakeRemote) ListMessages(_ context.Context, maxResults int64, query string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery, f.lastMax = query, maxResults
	if f.listErr != nil {
		return nil, f.listErr
	}
	return selection.IDs(f.emails), nil
}

func (f *fakeRemote) FetchEmails(_ context.Context, ids []string) ([]mailbox.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mailbox.Email, 0, len(ids))
	for _, id := range ids {
		for _, e := range f.emails {
			if e.ID == id {
				out = append(out, e.Clone())
			}
		}
	}
	return out, nil
}

func (f *fakeRemote) MarkRead(_ context.Context, id string) error {
	f.markRead <- id
	return f.markErr
}

func (f *fakeRemote) mutate(op, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations[op] = append(f.mutations[op], id)
	return f.fail[id]
}

func (f *fakeRemote) DeleteMessage(_ context.Context, id string) error  { return f.mutate("delete", id) }
func (f *fakeRemote) ArchiveMessage(_ context.Context, id string) error { return f.mutate("archive", id) }
func (f *fakeRemote) StarMessage(_ context.Context, id string) error    { return f.mutate("star", id) }
func (f *fakeRemote) UnstarMessage(_ context.Context, id string) error  { return f.mutate("unstar", id) }

func (f *fakeRemote) calls(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.mutations[op]...)
}

func fiveEmails() []mailbox.Email {
	return []mailbox.Email{
		{ID: "a", IsRead: true, Timestamp: testNow.Add(-time.Hour), Labels: []string{mailbox.LabelInbox}},
		{ID: "b", IsRead: false, Timestamp: testNow.Add(-2 * time.Hour), Labels: []string{mailbox.LabelInbox, mailbox.LabelUnread}},
		{ID: "c", IsRead: true, Timestamp: testNow.Add(-48 * time.Hour), Labels: []string{mailbox.LabelInbox}},
		{ID: "d", IsRead: false, Timestamp: testNow.Add(-72 * time.Hour), Labels: []string{mailbox.LabelInbox, mailbox.LabelUnread}},
		{ID: "e", IsRead: true, Timestamp: testNow.Add(-40 * 24 * time.Hour), Labels: []string{mailbox.LabelInbox}},
	}
}

func newTestSession(t *testing.T, remote *fakeRemote, policy bulk.Policy) *Session {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(remote, bulk.New(remote, log), Config{MaxResults: 20, Query: "in:inbox", Policy: policy}, log)
	s.SetClock(func() time.Time { return testNow })

	_, err := s.Load(context.Background(), 0, "")
	require.NoError(t, err)
	return s
}

func TestLoad(t *testing.T) {
	remote := newFakeRemote(fiveEmails()...)
	s := newTestSession(t, remote, "")

	assert.Equal(t, "in:inbox", remote.lastQuery)
	assert.Equal(t, int64(20), remote.lastMax)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, selection.IDs(s.Emails()))
	assert.Equal(t, bulk.AllOrNothing, s.Policy())

	_, err := s.Toggle("c")
	require.NoError(t, err)

	remote.mu.Lock()
	remote.emails = append(remote.emails[:2:2], remote.emails[3:]...)
	remote.emails = append(remote.emails, remote.emails[0])
	remote.mu.Unlock()

	got, err := s.Load(context.Background(), 5, "from:x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d", "e"}, selection.IDs(got))
	assert.Equal(t, "from:x", remote.lastQuery)
	assert.Empty(t, s.Selection())
}

func TestLoadFailureKeepsView(t *testing.T) {
	remote := newFakeRemote(fiveEmails()...)
	s := newTestSession(t, remote, "")

	remote.listErr = errors.New("offline")
	_, err := s.Load(context.Background(), 0, "")
	assert.ErrorContains(t, err, "offline")
	assert.Len(t, s.Emails(), 5)
}

func TestOpenMarksReadInBackground(t *testing.T) {
	remote := newFakeRemote(fiveEmails()...)
	s := newTestSession(t, remote, "")

	e, err := s.Open(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, e.IsRead)
	assert.True(t, e.PendingSync)
	assert.False(t, e.HasLabel(mailbox.LabelUnread))
	assert.Equal(t, "b", s.OpenID())

	assert.Equal(t, "b", <-remote.markRead)
	s.Wait()

	got, ok := s.Email("b")
	require.True(t, ok)
	assert.True(t, got.IsRead)
	assert.False(t, got.PendingSync)

	// already read: no remote call
	_, err = s.Open(context.Background(), "a")
	require.NoError(t, err)
	s.Wait()
	assert.Empty(t, remote.markRead)

	_, err = s.Open(context.Background(), "zzz")
	assert.ErrorIs(t, err, ErrUnknownEmail)
}

func TestOpenMarkReadFailureKeepsPending(t *testing.T) {
	remote := newFakeRemote(fiveEmails()...)
	remote.markErr = errors.New("503")
	s := newTestSession(t, remote, "")

	_, err := s.Open(context.Background(), "d")
	require.NoError(t, err)
	<-remote.markRead
	s.Wait()

	got, _ := s.Email("d")
	assert.True(t, got.IsRead)
	assert.True(t, got.PendingSync)

	// the next fetch settles the flag
	_, err = s.Load(context.Background(), 0, "")
	require.NoError(t, err)
	got, _ = s.Email("d")
	assert.False(t, got.PendingSync)
}

func TestFilterAndSelect(t *testing.T) {
	s := newTestSession(t, newFakeRemote(fiveEmails()...), "")

	unread, err := s.Filter(selection.Criteria{ReadStatus: selection.UnreadOnly})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, selection.IDs(unread))
	assert.Empty(t, s.Selection())

	ids, err := s.SelectAll(selection.Criteria{DateRange: selection.DateToday}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	on, err := s.Toggle("a")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, []string{"b"}, s.Selection())

	_, err = s.Toggle("nope")
	assert.ErrorIs(t, err, ErrUnknownEmail)

	ids, err = s.SelectAll(selection.Criteria{}, false)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = s.Filter(selection.Criteria{DateRange: "someday"})
	assert.Error(t, err)
}

func TestBulkAllOrNothing(t *testing.T) {
	t.Run("success_applies_and_clears_selection", func(t *testing.T) {
		remote := newFakeRemote(fiveEmails()...)
		s := newTestSession(t, remote, bulk.AllOrNothing)
		_, err := s.SelectAll(selection.Criteria{ReadStatus: selection.UnreadOnly}, true)
		require.NoError(t, err)

		res, err := s.Bulk(context.Background(), bulk.Delete, nil)
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"b", "d"}, res.Applied)
		assert.ElementsMatch(t, []string{"b", "d"}, remote.calls("delete"))
		assert.Equal(t, []string{"a", "c", "e"}, selection.IDs(s.Emails()))
		assert.Empty(t, s.Selection())

		n, ok := s.LastResult()
		require.True(t, ok)
		assert.Equal(t, bulk.Succeeded, n.State)
		assert.Equal(t, 2, n.Succeeded)
		assert.Empty(t, n.Reason)
		assert.Equal(t, testNow, n.At)
	})

	t.Run("one_failure_leaves_view_and_selection", func(t *testing.T) {
		remote := newFakeRemote(fiveEmails()...)
		remote.fail["c"] = errors.New("remote 500")
		s := newTestSession(t, remote, bulk.AllOrNothing)
		s.SelectAll(selection.Criteria{}, true)

		before := s.Emails()
		res, err := s.Bulk(context.Background(), bulk.Archive, nil)

		f, ok := bulk.AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, []string{"c"}, f.IDs())
		assert.Empty(t, res.Applied)
		assert.Len(t, res.Failed, 5)
		assert.Equal(t, before, s.Emails())
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, s.Selection())

		n, ok := s.LastResult()
		require.True(t, ok)
		assert.Equal(t, bulk.PartiallyFailed, n.State)
		assert.Contains(t, n.Reason, "remote 500")
	})
}

func TestBulkPerItem(t *testing.T) {
	remote := newFakeRemote(fiveEmails()...)
	remote.fail["b"] = errors.New("remote 429")
	s := newTestSession(t, remote, bulk.PerItem)
	s.SelectAll(selection.Criteria{DateRange: selection.DateWeek}, true)

	res, err := s.Bulk(context.Background(), bulk.Star, nil)
	require.Error(t, err)

	assert.ElementsMatch(t, []string{"a", "c", "d"}, res.Applied)
	assert.Equal(t, []string{"b"}, res.Failed)
	assert.Equal(t, []string{"b"}, s.Selection())

	for _, e := range s.Emails() {
		want := e.ID == "a" || e.ID == "c" || e.ID == "d"
		assert.Equal(t, want, e.IsStarred, e.ID)
		assert.Equal(t, want, e.HasLabel(mailbox.LabelStarred), e.ID)
	}

	n, _ := s.LastResult()
	assert.Equal(t, []string{"b"}, n.FailedIDs)
	assert.Equal(t, bulk.PerItem, n.Policy)
}

func TestBulkArchiveIdempotent(t *testing.T) {
	remote := newFakeRemote(fiveEmails()...)
	s := newTestSession(t, remote, "")

	_, err := s.Bulk(context.Background(), bulk.Archive, []string{"a", "a"})
	require.NoError(t, err)
	_, err = s.Bulk(context.Background(), bulk.Archive, []string{"a"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a"}, remote.calls("archive"))
	assert.Equal(t, []string{"b", "c", "d", "e"}, selection.IDs(s.Emails()))
}

func TestBulkUnstar(t *testing.T) {
	emails := fiveEmails()
	emails[0].IsStarred = true
	emails[0].Labels = append(emails[0].Labels, mailbox.LabelStarred)
	s := newTestSession(t, newFakeRemote(emails...), "")

	_, err := s.Bulk(context.Background(), bulk.Unstar, []string{"a"})
	require.NoError(t, err)

	got, _ := s.Email("a")
	assert.False(t, got.IsStarred)
	assert.Equal(t, []string{mailbox.LabelInbox}, got.Labels)
}

func TestBulkEmptyTarget(t *testing.T) {
	remote := newFakeRemote(fiveEmails()...)
	s := newTestSession(t, remote, "")

	_, err := s.Bulk(context.Background(), bulk.Delete, nil)
	assert.True(t, IsEmptyTarget(err))
	assert.Empty(t, remote.calls("delete"))

	_, ok := s.LastResult()
	assert.False(t, ok)
}

func TestDeleteModes(t *testing.T) {
	tests := []struct {
		name string
		opts DeleteOptions
		want []string
	}{
		{name: "all", opts: DeleteOptions{Mode: DeleteAll}, want: []string{"a", "b", "c", "d", "e"}},
		{name: "read", opts: DeleteOptions{Mode: DeleteRead}, want: []string{"a", "c", "e"}},
		{name: "unread", opts: DeleteOptions{Mode: DeleteUnread}, want: []string{"b", "d"}},
		{name: "custom", opts: DeleteOptions{Mode: DeleteCustom, IDs: []string{"e", "a"}}, want: []string{"e", "a"}},
		{
			name: "date_range_whole_end_day",
			opts: DeleteOptions{
				Mode:  DeleteDateRange,
				Start: selection.StartOfDay(testNow.Add(-72 * time.Hour)),
				End:   selection.StartOfDay(testNow.Add(-48 * time.Hour)),
			},
			want: []string{"c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote(fiveEmails()...)
			s := newTestSession(t, remote, "")

			got, err := s.DeleteTargets(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			_, err = s.Delete(context.Background(), tt.opts)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, remote.calls("delete"))

			left, _ := s.DeleteTargets(DeleteOptions{Mode: DeleteAll})
			assert.Len(t, left, 5-len(tt.want))
		})
	}
}

func TestDeleteEmptyRange(t *testing.T) {
	remote := newFakeRemote(fiveEmails()...)
	s := newTestSession(t, remote, "")

	_, err := s.Delete(context.Background(), DeleteOptions{Mode: DeleteDateRange})
	assert.True(t, IsEmptyTarget(err))

	_, err = s.Delete(context.Background(), DeleteOptions{Mode: "everything"})
	assert.ErrorContains(t, err, "unknown delete mode")
	assert.Empty(t, remote.calls("delete"))
}

// Five loaded, two unread: deleting unread issues exactly two deletes and
// leaves only the three read emails.
func TestDeleteUnreadScenario(t *testing.T) {
	remote := newFakeRemote(fiveEmails()...)
	s := newTestSession(t, remote, "")

	res, err := s.Delete(context.Background(), DeleteOptions{Mode: DeleteUnread})
	require.NoError(t, err)

	assert.Len(t, remote.calls("delete"), 2)
	assert.ElementsMatch(t, []string{"b", "d"}, res.Applied)
	assert.Equal(t, []string{"a", "c", "e"}, selection.IDs(s.Emails()))
}
