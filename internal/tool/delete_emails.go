package tool

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailbulk/internal/bulk"
	"github.com/hal9000y/mailbulk/internal/selection"
	"github.com/hal9000y/mailbulk/internal/session"
)

// DeleteEmailsRequest is one confirmation of the delete dialog.
type DeleteEmailsRequest struct {
	Mode      string   `json:"mode" jsonschema:"one of all, read, unread, custom, dateRange"`
	IDs       []string `json:"ids,omitempty" jsonschema:"IDs for mode custom"`
	StartDate string   `json:"start_date,omitempty" jsonschema:"first day for mode dateRange, YYYY-MM-DD"`
	EndDate   string   `json:"end_date,omitempty" jsonschema:"last day for mode dateRange, inclusive, YYYY-MM-DD"`
	DryRun    bool     `json:"dry_run,omitempty" jsonschema:"only count the targets, delete nothing"`
}

// DeleteEmailsResponse reports the targets and, unless dry run, the result.
type DeleteEmailsResponse struct {
	Count  int         `json:"count" jsonschema:"number of targeted emails"`
	IDs    []string    `json:"ids" jsonschema:"targeted IDs"`
	Result *BulkResult `json:"result,omitempty" jsonschema:"outcome of the delete"`
}

type deleteEmailsSession interface {
	DeleteTargets(opts session.DeleteOptions) ([]string, error)
	Bulk(ctx context.Context, kind bulk.Kind, ids []string) (session.Result, error)
	Policy() bulk.Policy
}

func NewDeleteEmails(sess deleteEmailsSession, loc *time.Location) *DeleteEmails {
	return &DeleteEmails{sess: sess, loc: loc}
}

type DeleteEmails struct {
	sess deleteEmailsSession
	loc  *time.Location
}

func (t *DeleteEmails) DeleteEmails(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeleteEmailsRequest,
) (*mcp.CallToolResult, DeleteEmailsResponse, error) {
	opts := session.DeleteOptions{
		Mode: session.DeleteMode(input.Mode),
		IDs:  input.IDs,
	}

	var err error
	if input.StartDate != "" {
		if opts.Start, err = parseDate(input.StartDate, t.loc); err != nil {
			return nil, DeleteEmailsResponse{}, err
		}
	}
	if input.EndDate != "" {
		if opts.End, err = parseDate(input.EndDate, t.loc); err != nil {
			return nil, DeleteEmailsResponse{}, err
		}
	}

	ids, err := t.sess.DeleteTargets(opts)
	if err != nil {
		return nil, DeleteEmailsResponse{}, err
	}

	out := DeleteEmailsResponse{Count: len(ids), IDs: ids}
	if input.DryRun {
		return nil, out, nil
	}

	// Bulk falls back to the selection for an empty id list.
	var res session.Result
	err = bulk.ErrEmptyTarget
	if selection.CanConfirm(ids) {
		res, err = t.sess.Bulk(ctx, bulk.Delete, ids)
	}
	_, result, err := bulkOutcome(res, t.sess.Policy(), err)
	if err != nil {
		return nil, DeleteEmailsResponse{}, err
	}
	out.Result = &result

	return nil, out, nil
}
