package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailbulk/internal/mailbox"
	"github.com/hal9000y/mailbulk/internal/selection"
)

// FilterEmailsResponse contains the matching emails.
type FilterEmailsResponse struct {
	Emails []EmailSummary `json:"emails" jsonschema:"matching emails in display order"`
	Total  int            `json:"total" jsonschema:"number of matching emails"`
}

type filterEmailsSession interface {
	Filter(c selection.Criteria) ([]mailbox.Email, error)
	Selection() []string
}

func NewFilterEmails(sess filterEmailsSession, loc *time.Location) *FilterEmails {
	return &FilterEmails{sess: sess, loc: loc}
}

type FilterEmails struct {
	sess filterEmailsSession
	loc  *time.Location
}

func (t *FilterEmails) FilterEmails(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input Criteria,
) (*mcp.CallToolResult, FilterEmailsResponse, error) {
	c, err := input.toSelection(t.loc)
	if err != nil {
		return nil, FilterEmailsResponse{}, err
	}

	emails, err := t.sess.Filter(c)
	if err != nil {
		return nil, FilterEmailsResponse{}, fmt.Errorf("sess.Filter failed: %w", err)
	}

	return nil, FilterEmailsResponse{
		Emails: summarizeAll(emails, t.sess.Selection()),
		Total:  len(emails),
	}, nil
}
