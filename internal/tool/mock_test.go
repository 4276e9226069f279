package tool_test

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/gservice"
	"github.com/hal9000y/mailtriage/internal/triage"
)

type ctrlMock struct {
	AnalyzeFunc    func(ctx context.Context, content, sender string) (controller.Outcome, error)
	UploadFileFunc func(ctx context.Context, f triage.FileUpload) (controller.Outcome, error)
	FixtureFunc    func(ctx context.Context, kind string) (controller.Outcome, error)
	WebhookFunc    func(ctx context.Context, raw []byte) (controller.Outcome, error)
	StatusFunc     func(ctx context.Context, jobID string, wait bool) (controller.Outcome, error)
	SessionFunc    func(ctx context.Context, mode controller.Mode, fn func(ctx context.Context) error) error
	SubmitFunc     func(ctx context.Context, content, sender string) (controller.Outcome, error)
}

func (m *ctrlMock) Analyze(ctx context.Context, content, sender string) (controller.Outcome, error) {
	return m.AnalyzeFunc(ctx, content, sender)
}

func (m *ctrlMock) UploadFile(ctx context.Context, f triage.FileUpload) (controller.Outcome, error) {
	return m.UploadFileFunc(ctx, f)
}

func (m *ctrlMock) Fixture(ctx context.Context, kind string) (controller.Outcome, error) {
	return m.FixtureFunc(ctx, kind)
}

func (m *ctrlMock) Webhook(ctx context.Context, raw []byte) (controller.Outcome, error) {
	return m.WebhookFunc(ctx, raw)
}

func (m *ctrlMock) Status(ctx context.Context, jobID string, wait bool) (controller.Outcome, error) {
	return m.StatusFunc(ctx, jobID, wait)
}

func (m *ctrlMock) Session(ctx context.Context, mode controller.Mode, fn func(ctx context.Context) error) error {
	if m.SessionFunc == nil {
		return fn(ctx)
	}
	return m.SessionFunc(ctx, mode, fn)
}

func (m *ctrlMock) Submit(ctx context.Context, content, sender string) (controller.Outcome, error) {
	return m.SubmitFunc(ctx, content, sender)
}

type mailboxMock struct {
	SearchFunc  func(ctx context.Context, query string, maxResults int64) ([]string, error)
	MessageFunc func(ctx context.Context, id string) (gservice.Message, error)
}

func (m *mailboxMock) Search(ctx context.Context, query string, maxResults int64) ([]string, error) {
	return m.SearchFunc(ctx, query, maxResults)
}

func (m *mailboxMock) Message(ctx context.Context, id string) (gservice.Message, error) {
	return m.MessageFunc(ctx, id)
}

type converterMock struct {
	HTMLToTextFunc func(raw []byte) (string, error)
}

func (m *converterMock) HTMLToText(raw []byte) (string, error) {
	return m.HTMLToTextFunc(raw)
}

func connect(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content should be text")
	return text.Text
}
