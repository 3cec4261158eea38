package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailbulk/internal/selection"
)

// Selection changes.
const (
	SelectToggle = "toggle"
	SelectAll    = "all"
	SelectNone   = "none"
)

// SelectEmailsRequest describes a selection change.
type SelectEmailsRequest struct {
	Mode     string    `json:"mode" jsonschema:"one of toggle, all, none"`
	IDs      []string  `json:"ids,omitempty" jsonschema:"IDs to toggle"`
	Criteria *Criteria `json:"criteria,omitempty" jsonschema:"for mode all: select only emails matching these criteria"`
}

// SelectEmailsResponse is the selection after the change.
type SelectEmailsResponse struct {
	Selected []string `json:"selected" jsonschema:"selected IDs"`
	Count    int      `json:"count" jsonschema:"number of selected emails"`
}

type selectEmailsSession interface {
	Toggle(id string) (bool, error)
	SelectAll(c selection.Criteria, checked bool) ([]string, error)
	ClearSelection()
	Selection() []string
}

func NewSelectEmails(sess selectEmailsSession, loc *time.Location) *SelectEmails {
	return &SelectEmails{sess: sess, loc: loc}
}

type SelectEmails struct {
	sess selectEmailsSession
	loc  *time.Location
}

func (t *SelectEmails) SelectEmails(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SelectEmailsRequest,
) (*mcp.CallToolResult, SelectEmailsResponse, error) {
	switch input.Mode {
	case SelectToggle:
		if len(input.IDs) == 0 {
			return nil, SelectEmailsResponse{}, fmt.Errorf("toggle needs at least one id")
		}
		for _, id := range input.IDs {
			if _, err := t.sess.Toggle(id); err != nil {
				return nil, SelectEmailsResponse{}, fmt.Errorf("sess.Toggle failed: %w", err)
			}
		}
	case SelectAll:
		var c selection.Criteria
		if input.Criteria != nil {
			var err error
			if c, err = input.Criteria.toSelection(t.loc); err != nil {
				return nil, SelectEmailsResponse{}, err
			}
		}
		if _, err := t.sess.SelectAll(c, true); err != nil {
			return nil, SelectEmailsResponse{}, fmt.Errorf("sess.SelectAll failed: %w", err)
		}
	case SelectNone:
		t.sess.ClearSelection()
	default:
		return nil, SelectEmailsResponse{}, fmt.Errorf("unknown selection mode %q", input.Mode)
	}

	selected := t.sess.Selection()

	return nil, SelectEmailsResponse{
		Selected: selected,
		Count:    len(selected),
	}, nil
}
