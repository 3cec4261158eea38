package tool

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailbulk/internal/session"
)

// LastResultRequest takes no arguments.
type LastResultRequest struct{}

// LastResultResponse is the latest bulk notification.
type LastResultResponse struct {
	Available   bool     `json:"available" jsonschema:"whether any bulk action has finished"`
	OperationID string   `json:"operation_id,omitempty" jsonschema:"bulk operation ID"`
	Action      string   `json:"action,omitempty" jsonschema:"bulk action"`
	Policy      string   `json:"policy,omitempty" jsonschema:"reconciliation policy"`
	State       string   `json:"state,omitempty" jsonschema:"final state"`
	Succeeded   int      `json:"succeeded" jsonschema:"number of successful mutations"`
	FailedIDs   []string `json:"failed_ids,omitempty" jsonschema:"IDs left untouched"`
	Reason      string   `json:"reason,omitempty" jsonschema:"failure reason"`
	FinishedAt  string   `json:"finished_at,omitempty" jsonschema:"completion time, RFC 3339"`
}

type lastResultSession interface {
	LastResult() (session.Notification, bool)
}

func NewLastResult(sess lastResultSession) *LastResult {
	return &LastResult{sess: sess}
}

type LastResult struct {
	sess lastResultSession
}

func (t *LastResult) LastResult(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ LastResultRequest,
) (*mcp.CallToolResult, LastResultResponse, error) {
	n, ok := t.sess.LastResult()
	if !ok {
		return nil, LastResultResponse{}, nil
	}

	return nil, LastResultResponse{
		Available:   true,
		OperationID: n.OpID,
		Action:      string(n.Kind),
		Policy:      string(n.Policy),
		State:       n.State.String(),
		Succeeded:   n.Succeeded,
		FailedIDs:   n.FailedIDs,
		Reason:      n.Reason,
		FinishedAt:  n.At.UTC().Format(time.RFC3339),
	}, nil
}
