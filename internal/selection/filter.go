// Package selection computes which emails match filter criteria and keeps the
// ad hoc, user-driven selection. Nothing here performs I/O or mutates the
// mailbox view it is given.
package selection

import (
	"fmt"
	"strings"
	"time"

	"github.com/hal9000y/mailbulk/internal/mailbox"
)

// ReadStatus filters on the read flag.
type ReadStatus string

const (
	ReadAll    ReadStatus = "all"
	ReadOnly   ReadStatus = "read"
	UnreadOnly ReadStatus = "unread"
)

// DateRange is a date window preset.
type DateRange string

const (
	DateAll    DateRange = "all"
	DateToday  DateRange = "today"
	DateWeek   DateRange = "week"
	DateMonth  DateRange = "month"
	DateOlder  DateRange = "older"
	DateCustom DateRange = "custom"
)

// AttachmentFilter filters on attachment presence.
type AttachmentFilter string

const (
	AttachmentAll     AttachmentFilter = "all"
	AttachmentWith    AttachmentFilter = "with"
	AttachmentWithout AttachmentFilter = "without"
)

const (
	weekSpan  = 7 * 24 * time.Hour
	monthSpan = 30 * 24 * time.Hour
)

// Criteria is a filter preset. Zero values mean "all".
type Criteria struct {
	Sender     string
	DateRange  DateRange
	CustomDate time.Time
	ReadStatus ReadStatus
	Attachment AttachmentFilter
}

// Active reports whether c narrows the mailbox at all.
func (c Criteria) Active() bool {
	return strings.TrimSpace(c.Sender) != "" ||
		(c.DateRange != "" && c.DateRange != DateAll) ||
		(c.ReadStatus != "" && c.ReadStatus != ReadAll) ||
		(c.Attachment != "" && c.Attachment != AttachmentAll)
}

// Validate rejects unknown enum values and a custom range without a date.
func (c Criteria) Validate() error {
	switch c.ReadStatus {
	case "", ReadAll, ReadOnly, UnreadOnly:
	default:
		return fmt.Errorf("unknown read status %q", c.ReadStatus)
	}
	switch c.Attachment {
	case "", AttachmentAll, AttachmentWith, AttachmentWithout:
	default:
		return fmt.Errorf("unknown attachment filter %q", c.Attachment)
	}
	switch c.DateRange {
	case "", DateAll, DateToday, DateWeek, DateMonth, DateOlder:
	case DateCustom:
		if c.CustomDate.IsZero() {
			return fmt.Errorf("custom date range requires a date")
		}
	default:
		return fmt.Errorf("unknown date range %q", c.DateRange)
	}
	return nil
}

// Apply returns the emails matching every criterion, in view order. now
// anchors the relative date presets.
func Apply(emails []mailbox.Email, c Criteria, now time.Time) []mailbox.Email {
	out := emails
	if s := strings.TrimSpace(c.Sender); s != "" {
		out = BySender(out, s)
	}
	if c.ReadStatus != "" {
		out = ByStatus(out, c.ReadStatus)
	}
	if c.Attachment != "" {
		out = ByAttachment(out, c.Attachment)
	}
	out = byPreset(out, c.DateRange, c.CustomDate, now)

	return clone(out)
}

// ByStatus selects by read flag.
func ByStatus(emails []mailbox.Email, status ReadStatus) []mailbox.Email {
	switch status {
	case ReadOnly:
		return where(emails, func(e mailbox.Email) bool { return e.IsRead })
	case UnreadOnly:
		return where(emails, func(e mailbox.Email) bool { return !e.IsRead })
	default:
		return clone(emails)
	}
}

// ByAttachment selects by attachment presence.
func ByAttachment(emails []mailbox.Email, f AttachmentFilter) []mailbox.Email {
	switch f {
	case AttachmentWith:
		return where(emails, func(e mailbox.Email) bool { return e.HasAttachment })
	case AttachmentWithout:
		return where(emails, func(e mailbox.Email) bool { return !e.HasAttachment })
	default:
		return clone(emails)
	}
}

// ByDateRange selects start <= timestamp <= end, where end is widened to the
// last instant of its calendar day.
func ByDateRange(emails []mailbox.Email, start, end time.Time) []mailbox.Email {
	last := EndOfDay(end)
	return where(emails, func(e mailbox.Email) bool {
		return !e.Timestamp.Before(start) && !e.Timestamp.After(last)
	})
}

// BySender matches substring case-insensitively against name or address.
func BySender(emails []mailbox.Email, substring string) []mailbox.Email {
	needle := strings.ToLower(substring)
	return where(emails, func(e mailbox.Email) bool {
		return strings.Contains(strings.ToLower(e.Sender.Name), needle) ||
			strings.Contains(strings.ToLower(e.Sender.Email), needle)
	})
}

// StartOfDay is midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay is the last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// IDs lists the ids of emails in order.
func IDs(emails []mailbox.Email) []string {
	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		ids = append(ids, e.ID)
	}
	return ids
}

// CanConfirm reports whether a bulk action over ids may be confirmed. An empty
// target never reaches the orchestrator.
func CanConfirm(ids []string) bool {
	return len(ids) > 0
}

func byPreset(emails []mailbox.Email, r DateRange, custom, now time.Time) []mailbox.Email {
	switch r {
	case DateToday:
		return where(emails, func(e mailbox.Email) bool { return !e.Timestamp.Before(StartOfDay(now)) })
	case DateWeek:
		return where(emails, func(e mailbox.Email) bool { return !e.Timestamp.Before(now.Add(-weekSpan)) })
	case DateMonth:
		return where(emails, func(e mailbox.Email) bool { return !e.Timestamp.Before(now.Add(-monthSpan)) })
	case DateOlder:
		return where(emails, func(e mailbox.Email) bool { return e.Timestamp.Before(now.Add(-monthSpan)) })
	case DateCustom:
		if custom.IsZero() {
			return emails
		}
		return ByDateRange(emails, StartOfDay(custom), custom)
	default:
		return emails
	}
}

func where(emails []mailbox.Email, keep func(mailbox.Email) bool) []mailbox.Email {
	out := make([]mailbox.Email, 0, len(emails))
	for _, e := range emails {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func clone(emails []mailbox.Email) []mailbox.Email {
	out := make([]mailbox.Email, len(emails))
	for i, e := range emails {
		out[i] = e.Clone()
	}
	return out
}
