package tool

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type mailSession interface {
	listEmailsSession
	openEmailSession
	filterEmailsSession
	selectEmailsSession
	bulkActionSession
	deleteEmailsSession
	lastResultSession
}

// NewServer creates an MCP server exposing the mailbox session as tools. Date
// inputs are interpreted in loc, time.Local when nil.
func NewServer(sess mailSession, loc *time.Location) *mcp.Server {
	if loc == nil {
		loc = time.Local
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "mailbulk", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_emails",
		Description: "Load the mailbox view from Gmail and list it",
	}, NewListEmails(sess).ListEmails)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "open_email",
		Description: "Open one email of the view, marking it read, and return its text body",
	}, NewOpenEmail(sess).OpenEmail)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "filter_emails",
		Description: "List emails of the view matching filter criteria without changing anything",
	}, NewFilterEmails(sess, loc).FilterEmails)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_emails",
		Description: "Change the selection: toggle IDs, select all matching criteria, or clear",
	}, NewSelectEmails(sess, loc).SelectEmails)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "bulk_action",
		Description: "Delete, archive, star or unstar the given IDs, or the selection when none are given",
	}, NewBulkAction(sess).BulkAction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_emails",
		Description: "Delete all, read, unread, custom IDs, or a date range of the view",
	}, NewDeleteEmails(sess, loc).DeleteEmails)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "last_result",
		Description: "Show the outcome of the latest bulk action",
	}, NewLastResult(sess).LastResult)

	return server
}
