package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/hal9000y/mailtriage/internal/auth"
	"github.com/hal9000y/mailtriage/internal/config"
	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/format"
	"github.com/hal9000y/mailtriage/internal/gservice"
	"github.com/hal9000y/mailtriage/internal/render"
	"github.com/hal9000y/mailtriage/internal/tool"
)

var errGmailDisabled = errors.New("OAUTH_GOOGLE_CLIENT_ID and OAUTH_GOOGLE_CLIENT_SECRET must be set")

type inbox interface {
	Search(ctx context.Context, query string, maxResults int64) ([]string, error)
	Message(ctx context.Context, id string) (gservice.Message, error)
}

// gmailMailbox opens the inbox with the token saved by a previous
// authorization through serve.
func gmailMailbox(cfg config.Config, log *zap.Logger) (*gservice.Mailbox, error) {
	oauthCfg, ok := oauthConfig(cfg.HTTPAddr, cfg.OAuthURL)
	if !ok {
		return nil, errGmailDisabled
	}

	tok, err := auth.NewToken(oauthCfg, cfg.GmailTokenFile, log)
	if err != nil {
		return nil, fmt.Errorf("auth.NewToken failed: %w", err)
	}
	if _, err := tok.OAuthToken(); err != nil {
		return nil, fmt.Errorf("gmail not authorized, run serve and open /oauth first: %w", err)
	}

	return gservice.NewMailbox(tok), nil
}

func triageGmail(ctx context.Context, ctrl *controller.Controller, mb inbox, args []string) (tool.TriageGmailResponse, error) {
	fs := flag.NewFlagSet("gmail", flag.ContinueOnError)
	maxResults := fs.Int64("max", 0, "Max messages to classify, up to 50")
	if err := fs.Parse(args); err != nil {
		return tool.TriageGmailResponse{}, fmt.Errorf("%w: %v", errUsage, err)
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return tool.TriageGmailResponse{}, fmt.Errorf("%w: gmail takes a search query", errUsage)
	}

	_, resp, err := tool.NewTriageGmail(ctrl, mb, format.Converter{}).
		TriageGmail(ctx, nil, tool.TriageGmailRequest{Query: query, MaxResults: *maxResults})
	if err != nil {
		return tool.TriageGmailResponse{}, err
	}
	return resp, nil
}

func runGmail(ctx context.Context, ctrl *controller.Controller, mb inbox, args []string, w io.Writer, colours bool) error {
	resp, err := triageGmail(ctx, ctrl, mb, args)
	if err != nil {
		return err
	}

	if err := render.Text(w, gmailSummary(resp), render.Options{Colours: colours}); err != nil {
		return fmt.Errorf("render.Text failed: %w", err)
	}
	return nil
}

func gmailSummary(resp tool.TriageGmailResponse) render.Summary {
	var items []render.Item
	for _, msg := range resp.Messages {
		for _, it := range msg.Items {
			if it.Sender == "" {
				it.Sender = msg.From.Email
			}
			items = append(items, it)
		}
	}

	totals := resp.Totals
	return render.Summary{
		Branch:  render.BranchBatch,
		Items:   items,
		Totals:  &totals,
		Message: fmt.Sprintf("%d mensagem(ns) do Gmail triada(s)", len(resp.Messages)),
	}
}
