// Package tool exposes email triage as MCP tools.
package tool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/gservice"
	"github.com/hal9000y/mailtriage/internal/triage"
)

type triageCtrl interface {
	Analyze(ctx context.Context, content, sender string) (controller.Outcome, error)
	UploadFile(ctx context.Context, f triage.FileUpload) (controller.Outcome, error)
	Fixture(ctx context.Context, kind string) (controller.Outcome, error)
	Webhook(ctx context.Context, raw []byte) (controller.Outcome, error)
	Status(ctx context.Context, jobID string, wait bool) (controller.Outcome, error)
	Session(ctx context.Context, mode controller.Mode, fn func(ctx context.Context) error) error
	Submit(ctx context.Context, content, sender string) (controller.Outcome, error)
}

type mailbox interface {
	Search(ctx context.Context, query string, maxResults int64) ([]string, error)
	Message(ctx context.Context, id string) (gservice.Message, error)
}

type htmlConverter interface {
	HTMLToText(raw []byte) (string, error)
}

// NewServer creates an MCP server with the triage tools. triage_gmail is
// registered only when mb is not nil.
func NewServer(ctrl triageCtrl, mb mailbox, conv htmlConverter) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "mailtriage", Version: "v1.0.0"}, nil)

	t := NewTriage(ctrl)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_email",
		Description: "Classify an email text as productive or unproductive and suggest a reply",
	}, t.AnalyzeEmail)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "upload_email_file",
		Description: "Classify an email stored in a .txt or .pdf file (base64 encoded, up to 10 MB)",
	}, t.UploadEmailFile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_fixture",
		Description: "Run the backend's sample analysis: produtivo, improdutivo, spam or reclamacao",
	}, t.RunFixture)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_webhook",
		Description: "Send a JSON email payload to the backend webhook",
	}, t.SendWebhook)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_status",
		Description: "Report an analysis job, optionally waiting until it finishes",
	}, t.JobStatus)

	if mb != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "triage_gmail",
			Description: "Search Gmail and classify every matching message",
		}, NewTriageGmail(ctrl, mb, conv).TriageGmail)
	}

	return server
}
