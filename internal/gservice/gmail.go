// Package gservice is the authenticated access layer over the Gmail API.
package gservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/hal9000y/mailbulk/internal/auth"
	"github.com/hal9000y/mailbulk/internal/mailbox"
)

const (
	gmailUserID = "me"

	// DefaultQuery is used when ListMessages gets an empty query.
	DefaultQuery = "in:inbox"
	// DefaultMaxResults is used when ListMessages gets a non-positive limit.
	DefaultMaxResults = 50

	defaultFetchConcurrency = 10
)

type tokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// NewGmail creates the access layer. Options are passed to gmail.NewService
// after the authenticated HTTP client, so an endpoint override works.
func NewGmail(tok tokenProvider, log *slog.Logger, opts ...option.ClientOption) *GMail {
	if log == nil {
		log = slog.Default()
	}
	return &GMail{
		tok:              tok,
		opts:             opts,
		log:              log,
		fetchConcurrency: defaultFetchConcurrency,
	}
}

// GMail issues one authenticated request per call. The token is looked up on
// every call and never retained.
type GMail struct {
	tok              tokenProvider
	opts             []option.ClientOption
	log              *slog.Logger
	fetchConcurrency int
}

// SetFetchConcurrency bounds the number of parallel FetchFull calls made by
// FetchEmails. Non-positive means unbounded.
func (m *GMail) SetFetchConcurrency(n int) {
	m.fetchConcurrency = n
}

// ListMessages returns message ids matching query, newest first as ordered by
// the provider. An empty mailbox is an empty slice.
func (m *GMail) ListMessages(ctx context.Context, maxResults int64, query string) ([]string, error) {
	if query == "" {
		query = DefaultQuery
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	svc, err := m.newSvc(ctx)
	if err != nil {
		return nil, err
	}

	m.log.Debug("listing messages", "query", query, "max_results", maxResults)

	res, err := svc.Users.Messages.List(gmailUserID).
		Q(query).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		if isEmptyBody(err) {
			return []string{}, nil
		}
		return nil, classify("messages.List", err)
	}

	ids := make([]string, 0, len(res.Messages))
	for _, msg := range res.Messages {
		ids = append(ids, msg.Id)
	}

	return ids, nil
}

// FetchFull returns the full wire record of a message.
func (m *GMail) FetchFull(ctx context.Context, id string) (*gmail.Message, error) {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get(gmailUserID, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("messages.Get", err)
	}

	return msg, nil
}

// FetchEmails fetches and normalizes the given ids concurrently, preserving
// their order. Any single failure fails the whole call.
func (m *GMail) FetchEmails(ctx context.Context, ids []string) ([]mailbox.Email, error) {
	emails := make([]mailbox.Email, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	if m.fetchConcurrency > 0 {
		g.SetLimit(m.fetchConcurrency)
	}

	for i, id := range ids {
		g.Go(func() error {
			msg, err := m.FetchFull(gctx, id)
			if err != nil {
				return fmt.Errorf("fetch message %s failed: %w", id, err)
			}
			emails[i] = mailbox.Normalize(msg)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return emails, nil
}

// DeleteMessage permanently deletes a message. A message that is already gone
// counts as deleted.
func (m *GMail) DeleteMessage(ctx context.Context, id string) error {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return err
	}

	err = svc.Users.Messages.Delete(gmailUserID, id).Context(ctx).Do()
	if err == nil {
		return nil
	}

	err = classify("messages.Delete", err)
	if IsNotFound(err) {
		m.log.Debug("message already deleted", "id", id)
		return nil
	}

	return err
}

// ArchiveMessage removes the INBOX label.
func (m *GMail) ArchiveMessage(ctx context.Context, id string) error {
	return m.modify(ctx, id, nil, []string{mailbox.LabelInbox})
}

// StarMessage adds the STARRED label.
func (m *GMail) StarMessage(ctx context.Context, id string) error {
	return m.modify(ctx, id, []string{mailbox.LabelStarred}, nil)
}

// UnstarMessage removes the STARRED label.
func (m *GMail) UnstarMessage(ctx context.Context, id string) error {
	return m.modify(ctx, id, nil, []string{mailbox.LabelStarred})
}

// MarkRead removes the UNREAD label.
func (m *GMail) MarkRead(ctx context.Context, id string) error {
	return m.modify(ctx, id, nil, []string{mailbox.LabelUnread})
}

func (m *GMail) modify(ctx context.Context, id string, add, remove []string) error {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}

	_, err = svc.Users.Messages.Modify(gmailUserID, id, req).Context(ctx).Do()
	if err != nil {
		if isEmptyBody(err) {
			return nil
		}
		return classify("messages.Modify", err)
	}

	return nil
}

func (m *GMail) newSvc(ctx context.Context) (*gmail.Service, error) {
	access, err := m.tok.AccessToken(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrAuthExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("tok.AccessToken failed: %w", err)
	}

	clt := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
	}))

	opts := append([]option.ClientOption{option.WithHTTPClient(clt)}, m.opts...)

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return svc, nil
}
