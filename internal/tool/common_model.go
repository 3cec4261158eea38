package tool

import (
	"fmt"
	"time"

	"github.com/hal9000y/mailbulk/internal/bulk"
	"github.com/hal9000y/mailbulk/internal/mailbox"
	"github.com/hal9000y/mailbulk/internal/selection"
	"github.com/hal9000y/mailbulk/internal/session"
)

// DateLayout is the calendar date format accepted by date inputs.
const DateLayout = "2006-01-02"

// Sender represents the parsed From header.
type Sender struct {
	Name      string `json:"name" jsonschema:"the display name"`
	Email     string `json:"email" jsonschema:"the email address"`
	AvatarURL string `json:"avatar_url,omitempty" jsonschema:"avatar image URL"`
}

// EmailSummary contains the list view of one email.
type EmailSummary struct {
	ID            string   `json:"id" jsonschema:"message ID"`
	ThreadID      string   `json:"thread_id" jsonschema:"thread ID"`
	Timestamp     string   `json:"timestamp" jsonschema:"received time, RFC 3339"`
	From          Sender   `json:"from" jsonschema:"sender information"`
	Subject       string   `json:"subject" jsonschema:"email subject"`
	Preview       string   `json:"preview" jsonschema:"plain text excerpt"`
	IsRead        bool     `json:"is_read" jsonschema:"whether the email is read"`
	IsStarred     bool     `json:"is_starred" jsonschema:"whether the email is starred"`
	IsImportant   bool     `json:"is_important" jsonschema:"whether the email is marked important"`
	HasAttachment bool     `json:"has_attachment" jsonschema:"whether the email has attachments"`
	PendingSync   bool     `json:"pending_sync,omitempty" jsonschema:"local change not yet confirmed remotely"`
	Labels        []string `json:"labels,omitempty" jsonschema:"raw label IDs"`
	Selected      bool     `json:"selected,omitempty" jsonschema:"whether the email is in the selection"`
}

// Criteria is the filter input shared by filtering and selection tools.
type Criteria struct {
	Sender     string `json:"sender,omitempty" jsonschema:"substring of sender name or address, case-insensitive"`
	DateRange  string `json:"date_range,omitempty" jsonschema:"one of all, today, week, month, older, custom"`
	CustomDate string `json:"custom_date,omitempty" jsonschema:"day for the custom date range, YYYY-MM-DD"`
	ReadStatus string `json:"read_status,omitempty" jsonschema:"one of all, read, unread"`
	Attachment string `json:"attachment,omitempty" jsonschema:"one of all, with, without"`
}

// FailedItem is one failed mutation.
type FailedItem struct {
	ID    string `json:"id" jsonschema:"message ID"`
	Error string `json:"error" jsonschema:"failure reason"`
}

// BulkResult reports a finished bulk action.
type BulkResult struct {
	OperationID string       `json:"operation_id" jsonschema:"bulk operation ID"`
	Action      string       `json:"action" jsonschema:"bulk action"`
	Policy      string       `json:"policy" jsonschema:"reconciliation policy"`
	State       string       `json:"state" jsonschema:"succeeded or partially_failed"`
	Succeeded   int          `json:"succeeded" jsonschema:"number of successful mutations"`
	Applied     []string     `json:"applied,omitempty" jsonschema:"IDs whose change was applied locally"`
	Failed      []FailedItem `json:"failed,omitempty" jsonschema:"failed mutations"`
	Error       string       `json:"error,omitempty" jsonschema:"aggregate failure reason"`
	DurationMS  int64        `json:"duration_ms" jsonschema:"wall time in milliseconds"`
}

func summarize(e mailbox.Email) EmailSummary {
	return EmailSummary{
		ID:        e.ID,
		ThreadID:  e.ThreadID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		From: Sender{
			Name:      e.Sender.Name,
			Email:     e.Sender.Email,
			AvatarURL: e.Sender.AvatarURL,
		},
		Subject:       e.Subject,
		Preview:       e.Preview,
		IsRead:        e.IsRead,
		IsStarred:     e.IsStarred,
		IsImportant:   e.IsImportant,
		HasAttachment: e.HasAttachment,
		PendingSync:   e.PendingSync,
		Labels:        e.Labels,
	}
}

func summarizeAll(emails []mailbox.Email, selected []string) []EmailSummary {
	sel := selection.NewSet(selected...)
	out := make([]EmailSummary, 0, len(emails))
	for _, e := range emails {
		s := summarize(e)
		s.Selected = sel.Contains(e.ID)
		out = append(out, s)
	}
	return out
}

func (c Criteria) toSelection(loc *time.Location) (selection.Criteria, error) {
	out := selection.Criteria{
		Sender:     c.Sender,
		DateRange:  selection.DateRange(c.DateRange),
		ReadStatus: selection.ReadStatus(c.ReadStatus),
		Attachment: selection.AttachmentFilter(c.Attachment),
	}
	if c.CustomDate != "" {
		d, err := parseDate(c.CustomDate, loc)
		if err != nil {
			return selection.Criteria{}, err
		}
		out.CustomDate = d
	}
	if err := out.Validate(); err != nil {
		return selection.Criteria{}, err
	}
	return out, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

func bulkResult(res session.Result, policy bulk.Policy, err error) BulkResult {
	rep := res.Report
	out := BulkResult{
		OperationID: rep.ID,
		Action:      string(rep.Kind),
		Policy:      string(policy),
		State:       rep.State.String(),
		Succeeded:   len(rep.Succeeded()),
		Applied:     res.Applied,
		DurationMS:  rep.Duration().Milliseconds(),
	}
	for _, f := range rep.Failed() {
		out.Failed = append(out.Failed, FailedItem{ID: f.ID, Error: f.Err.Error()})
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
