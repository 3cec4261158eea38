// Package mailbox holds the canonical local email model and the normalization
// of Gmail wire records into it.
package mailbox

import "time"

// Gmail system labels the model derives flags from.
const (
	LabelInbox     = "INBOX"
	LabelUnread    = "UNREAD"
	LabelStarred   = "STARRED"
	LabelImportant = "IMPORTANT"
)

// Sender is the parsed From header of a message.
type Sender struct {
	Name      string
	Email     string
	AvatarURL string
}

// Email is a message as held in the local mailbox view.
type Email struct {
	ID            string
	ThreadID      string
	Sender        Sender
	Subject       string
	Preview       string
	Timestamp     time.Time
	IsRead        bool
	IsStarred     bool
	IsImportant   bool
	HasAttachment bool
	Labels        []string
	Body          string

	// PendingSync is set while a local optimistic change has not been
	// confirmed by the provider.
	PendingSync bool
}

// Clone returns a copy that shares no slices with e.
func (e Email) Clone() Email {
	if e.Labels != nil {
		e.Labels = append([]string(nil), e.Labels...)
	}
	return e
}

// HasLabel reports whether the raw label set contains label.
func (e Email) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}
