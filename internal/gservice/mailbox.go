// Package gservice reads messages from the authorized Gmail inbox.
package gservice

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUserID = "me"

// MaxSearchResults caps a single search.
const MaxSearchResults = 50

type clientSource interface {
	Client(ctx context.Context) (*http.Client, error)
}

// Mailbox is a read-only view of the inbox.
type Mailbox struct {
	src  clientSource
	opts []option.ClientOption
}

// NewMailbox builds a Mailbox authorized by src. Extra options are passed to
// the Gmail client, e.g. an endpoint override.
func NewMailbox(src clientSource, opts ...option.ClientOption) *Mailbox {
	return &Mailbox{src: src, opts: opts}
}

// Search returns the ids of messages matching a Gmail query, newest first.
func (m *Mailbox) Search(ctx context.Context, query string, maxResults int64) ([]string, error) {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("newSvc failed: %w", err)
	}

	res, err := svc.Users.Messages.List(gmailUserID).
		Q(query).
		MaxResults(clampResults(maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("messages.List failed: %w", err)
	}

	ids := make([]string, 0, len(res.Messages))
	for _, msg := range res.Messages {
		ids = append(ids, msg.Id)
	}

	return ids, nil
}

// Message fetches one message with its bodies.
func (m *Mailbox) Message(ctx context.Context, id string) (Message, error) {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("newSvc failed: %w", err)
	}

	msg, err := svc.Users.Messages.Get(gmailUserID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return Message{}, fmt.Errorf("messages.Get failed: %w", err)
	}

	return ParseMessage(msg), nil
}

func (m *Mailbox) newSvc(ctx context.Context) (*gmail.Service, error) {
	clt, err := m.src.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("src.Client failed: %w", err)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(clt)}, m.opts...)

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return svc, nil
}

func clampResults(n int64) int64 {
	if n <= 0 {
		return 10
	}
	return min(n, MaxSearchResults)
}
