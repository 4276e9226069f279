package tool

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/render"
	"github.com/hal9000y/mailtriage/internal/triage"
)

type AnalyzeEmailRequest struct {
	EmailContent string `json:"email_content" jsonschema:"the email text"`
	Sender       string `json:"sender,omitempty" jsonschema:"the sender address"`
}

type UploadEmailFileRequest struct {
	Filename      string `json:"filename" jsonschema:"file name, .txt or .pdf"`
	ContentBase64 string `json:"content_base64" jsonschema:"file content, standard base64"`
	MediaType     string `json:"media_type,omitempty" jsonschema:"text/plain or application/pdf, derived from the name when empty"`
}

type RunFixtureRequest struct {
	Kind string `json:"kind" jsonschema:"produtivo, improdutivo, spam or reclamacao"`
}

type SendWebhookRequest struct {
	Payload map[string]any `json:"payload" jsonschema:"JSON object with email_content"`
}

type JobStatusRequest struct {
	JobID string `json:"job_id" jsonschema:"the job ID"`
	Wait  bool   `json:"wait,omitempty" jsonschema:"poll until the job finishes"`
}

// TriageResponse is the outcome of a triage tool.
type TriageResponse struct {
	Summary render.Summary `json:"summary" jsonschema:"structured outcome"`
	Text    string         `json:"text" jsonschema:"outcome rendered for reading"`
}

func NewTriage(ctrl triageCtrl) *Triage {
	return &Triage{ctrl: ctrl}
}

// Triage runs single analyses through the controller.
type Triage struct {
	ctrl triageCtrl
}

func (t *Triage) AnalyzeEmail(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnalyzeEmailRequest,
) (*mcp.CallToolResult, TriageResponse, error) {
	out, err := t.ctrl.Analyze(ctx, input.EmailContent, input.Sender)
	if err != nil {
		return nil, TriageResponse{}, fmt.Errorf("ctrl.Analyze failed: %w", err)
	}

	return respond(out)
}

func (t *Triage) UploadEmailFile(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input UploadEmailFileRequest,
) (*mcp.CallToolResult, TriageResponse, error) {
	content, err := base64.StdEncoding.DecodeString(input.ContentBase64)
	if err != nil {
		return nil, TriageResponse{}, fmt.Errorf("content_base64 is not valid base64: %w", err)
	}

	out, err := t.ctrl.UploadFile(ctx, triage.NewFileUpload(input.Filename, input.MediaType, content))
	if err != nil {
		return nil, TriageResponse{}, fmt.Errorf("ctrl.UploadFile failed: %w", err)
	}

	return respond(out)
}

func (t *Triage) RunFixture(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunFixtureRequest,
) (*mcp.CallToolResult, TriageResponse, error) {
	out, err := t.ctrl.Fixture(ctx, input.Kind)
	if err != nil {
		return nil, TriageResponse{}, fmt.Errorf("ctrl.Fixture failed: %w", err)
	}

	return respond(out)
}

func (t *Triage) SendWebhook(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SendWebhookRequest,
) (*mcp.CallToolResult, TriageResponse, error) {
	raw, err := json.Marshal(input.Payload)
	if err != nil {
		return nil, TriageResponse{}, fmt.Errorf("json.Marshal failed: %w", err)
	}

	out, err := t.ctrl.Webhook(ctx, raw)
	if err != nil {
		return nil, TriageResponse{}, fmt.Errorf("ctrl.Webhook failed: %w", err)
	}

	return respond(out)
}

func (t *Triage) JobStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input JobStatusRequest,
) (*mcp.CallToolResult, TriageResponse, error) {
	out, err := t.ctrl.Status(ctx, input.JobID, input.Wait)
	if err != nil {
		return nil, TriageResponse{}, fmt.Errorf("ctrl.Status failed: %w", err)
	}

	return respond(out)
}

func respond(out controller.Outcome) (*mcp.CallToolResult, TriageResponse, error) {
	resp, err := newTriageResponse(out.Summary)
	if err != nil {
		return nil, TriageResponse{}, err
	}

	// the error branch is a backend answer, not a tool failure, but the
	// caller should still see it flagged
	if out.Summary.Branch == render.BranchError {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: resp.Text}},
		}, resp, nil
	}

	return nil, resp, nil
}

func newTriageResponse(s render.Summary) (TriageResponse, error) {
	var buf bytes.Buffer
	if err := render.Text(&buf, s, render.Options{}); err != nil {
		return TriageResponse{}, fmt.Errorf("render.Text failed: %w", err)
	}

	return TriageResponse{Summary: s, Text: buf.String()}, nil
}
