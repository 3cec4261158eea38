package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailbulk/internal/format"
	"github.com/hal9000y/mailbulk/internal/mailbox"
)

// OpenEmailRequest names the email to open.
type OpenEmailRequest struct {
	ID string `json:"id" jsonschema:"message ID from the view"`
}

// OpenEmailResponse contains the opened email.
type OpenEmailResponse struct {
	Summary  EmailSummary `json:"summary" jsonschema:"summary"`
	BodyText string       `json:"body_text,omitempty" jsonschema:"text body"`
}

type openEmailSession interface {
	Open(ctx context.Context, id string) (mailbox.Email, error)
}

// NewOpenEmail creates a new OpenEmail tool.
func NewOpenEmail(sess openEmailSession) *OpenEmail {
	return &OpenEmail{sess: sess}
}

// OpenEmail shows one email and marks it read.
type OpenEmail struct {
	sess openEmailSession
}

// OpenEmail opens the email. The remote mark-read runs in the background.
func (t *OpenEmail) OpenEmail(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input OpenEmailRequest,
) (*mcp.CallToolResult, OpenEmailResponse, error) {
	e, err := t.sess.Open(ctx, input.ID)
	if err != nil {
		return nil, OpenEmailResponse{}, fmt.Errorf("sess.Open failed: %w", err)
	}

	return nil, OpenEmailResponse{
		Summary:  summarize(e),
		BodyText: format.PlainText(e.Body),
	}, nil
}
