package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/gservice"
	"github.com/hal9000y/mailtriage/internal/render"
	"github.com/hal9000y/mailtriage/internal/triage"
)

type TriageGmailRequest struct {
	Query      string `json:"query" jsonschema:"the Gmail search query"`
	MaxResults int64  `json:"max_results,omitempty" jsonschema:"max messages to classify, up to 50"`
}

type TriageGmailResponse struct {
	Messages []TriagedMessage `json:"messages" jsonschema:"one entry per message, in search order"`
	Totals   render.Totals    `json:"totals" jsonschema:"counts per classification"`
}

// TriagedMessage is the triage outcome of one Gmail message.
type TriagedMessage struct {
	ID       string           `json:"id" jsonschema:"message ID"`
	From     gservice.Address `json:"from" jsonschema:"sender"`
	Subject  string           `json:"subject" jsonschema:"email subject"`
	Language string           `json:"language,omitempty" jsonschema:"ISO 639-1 code of the detected body language"`
	Items    []render.Item    `json:"items" jsonschema:"triage results for the message"`
}

func NewTriageGmail(ctrl triageCtrl, mb mailbox, conv htmlConverter) *TriageGmail {
	return &TriageGmail{ctrl: ctrl, mb: mb, conv: conv}
}

// TriageGmail classifies inbox messages one by one in the gmail slot, so
// other tools do not interrupt it. A message that fails is reported as an
// error item and does not stop the others.
type TriageGmail struct {
	ctrl triageCtrl
	mb   mailbox
	conv htmlConverter
}

func (t *TriageGmail) TriageGmail(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TriageGmailRequest,
) (*mcp.CallToolResult, TriageGmailResponse, error) {
	ids, err := t.mb.Search(ctx, input.Query, input.MaxResults)
	if err != nil {
		return nil, TriageGmailResponse{}, fmt.Errorf("mb.Search failed: %w", err)
	}

	messages := make([]TriagedMessage, 0, len(ids))
	var all []render.Item

	err = t.ctrl.Session(ctx, controller.ModeGmail, func(ctx context.Context) error {
		for _, id := range ids {
			tm, err := t.triage(ctx, id)
			if err != nil {
				return err
			}

			messages = append(messages, tm)
			all = append(all, tm.Items...)
		}
		return nil
	})
	if err != nil {
		return nil, TriageGmailResponse{}, fmt.Errorf("ctrl.Session failed: %w", err)
	}

	return nil, TriageGmailResponse{
		Messages: messages,
		Totals:   *render.CountItems(len(all), all),
	}, nil
}

// triage returns an error only when the whole run must stop.
func (t *TriageGmail) triage(ctx context.Context, id string) (TriagedMessage, error) {
	tm := TriagedMessage{ID: id}

	msg, err := t.mb.Message(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return tm, fmt.Errorf("mb.Message failed: %w", err)
		}
		tm.Items = []render.Item{render.NewItem(triage.SyntheticError(err))}
		return tm, nil
	}

	tm.From = msg.From
	tm.Subject = msg.Subject

	body, err := t.body(msg)
	if err != nil {
		tm.Items = []render.Item{render.NewItem(triage.SyntheticError(err))}
		return tm, nil
	}

	tm.Language = whatlanggo.Detect(body).Lang.Iso6391()

	content := body
	if msg.Subject != "" {
		content = "Assunto: " + msg.Subject + "\n\n" + body
	}

	out, err := t.ctrl.Submit(ctx, content, senderOf(msg.From))
	switch {
	case err != nil && ctx.Err() != nil:
		return tm, fmt.Errorf("ctrl.Submit failed: %w", err)
	case err != nil:
		tm.Items = []render.Item{render.NewItem(triage.SyntheticError(err))}
		return tm, nil
	}

	tm.Items = itemsOf(out.Summary)
	return tm, nil
}

func (t *TriageGmail) body(msg gservice.Message) (string, error) {
	if text := strings.TrimSpace(msg.Text); text != "" {
		return text, nil
	}

	if msg.HTML != "" {
		text, err := t.conv.HTMLToText([]byte(msg.HTML))
		if err != nil {
			return "", fmt.Errorf("conv.HTMLToText failed: %w", err)
		}
		if text != "" {
			return text, nil
		}
	}

	if snippet := strings.TrimSpace(msg.Snippet); snippet != "" {
		return snippet, nil
	}

	return "", fmt.Errorf("message %s has no readable body", msg.ID)
}

// senderOf drops addresses the backend would reject.
func senderOf(a gservice.Address) string {
	if !strings.Contains(a.Email, "@") || strings.ContainsAny(a.Email, " <>") {
		return ""
	}
	return a.Email
}

func itemsOf(s render.Summary) []render.Item {
	switch s.Branch {
	case render.BranchSingle, render.BranchBatch:
		return s.Items
	case render.BranchError:
		return []render.Item{render.NewItem(triage.SyntheticError(errors.New(s.Error)))}
	default:
		return []render.Item{render.NewItem(triage.Result{Summary: s.Raw})}
	}
}
