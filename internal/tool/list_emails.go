package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailbulk/internal/mailbox"
)

// ListEmailsRequest selects what to load.
type ListEmailsRequest struct {
	Query      string `json:"query,omitempty" jsonschema:"the Gmail search query, in:inbox by default"`
	MaxResults int64  `json:"max_results,omitempty" jsonschema:"max emails to load"`
}

// ListEmailsResponse is the loaded view.
type ListEmailsResponse struct {
	Emails   []EmailSummary `json:"emails" jsonschema:"emails in display order"`
	Total    int            `json:"total" jsonschema:"number of emails in the view"`
	Selected []string       `json:"selected,omitempty" jsonschema:"IDs currently selected"`
}

type listEmailsSession interface {
	Load(ctx context.Context, maxResults int64, query string) ([]mailbox.Email, error)
	Selection() []string
}

func NewListEmails(sess listEmailsSession) *ListEmails {
	return &ListEmails{sess: sess}
}

type ListEmails struct {
	sess listEmailsSession
}

func (t *ListEmails) ListEmails(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListEmailsRequest,
) (*mcp.CallToolResult, ListEmailsResponse, error) {
	emails, err := t.sess.Load(ctx, input.MaxResults, input.Query)
	if err != nil {
		return nil, ListEmailsResponse{}, fmt.Errorf("sess.Load failed: %w", err)
	}

	selected := t.sess.Selection()

	return nil, ListEmailsResponse{
		Emails:   summarizeAll(emails, selected),
		Total:    len(emails),
		Selected: selected,
	}, nil
}
