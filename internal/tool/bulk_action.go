package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailbulk/internal/bulk"
	"github.com/hal9000y/mailbulk/internal/session"
)

var errNothingSelected = errors.New("no emails to act on, action disabled")

// BulkActionRequest describes one bulk action.
type BulkActionRequest struct {
	Action string   `json:"action" jsonschema:"one of delete, archive, star, unstar"`
	IDs    []string `json:"ids,omitempty" jsonschema:"target IDs, the current selection when empty"`
}

type bulkActionSession interface {
	Bulk(ctx context.Context, kind bulk.Kind, ids []string) (session.Result, error)
	Policy() bulk.Policy
}

func NewBulkAction(sess bulkActionSession) *BulkAction {
	return &BulkAction{sess: sess}
}

type BulkAction struct {
	sess bulkActionSession
}

// BulkAction runs the action. Item failures are reported in the result, not
// as a tool error, so the caller always sees which IDs failed.
func (t *BulkAction) BulkAction(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BulkActionRequest,
) (*mcp.CallToolResult, BulkResult, error) {
	kind, err := bulk.ParseKind(input.Action)
	if err != nil {
		return nil, BulkResult{}, err
	}

	res, err := t.sess.Bulk(ctx, kind, input.IDs)
	return bulkOutcome(res, t.sess.Policy(), err)
}

func bulkOutcome(res session.Result, policy bulk.Policy, err error) (*mcp.CallToolResult, BulkResult, error) {
	switch {
	case err == nil:
	case session.IsEmptyTarget(err):
		return nil, BulkResult{}, errNothingSelected
	case !isItemFailure(err):
		return nil, BulkResult{}, fmt.Errorf("sess.Bulk failed: %w", err)
	}

	return nil, bulkResult(res, policy, err), nil
}

func isItemFailure(err error) bool {
	_, ok := bulk.AsFailure(err)
	return ok
}
