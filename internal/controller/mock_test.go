package controller_test

import (
	"context"
	"sync"

	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/triage"
)

type backendMock struct {
	AnalyzeTextFunc func(ctx context.Context, req triage.AnalysisRequest) (triage.Response, error)
	AnalyzeFileFunc func(ctx context.Context, f triage.FileUpload) (triage.Response, error)
	RunFixtureFunc  func(ctx context.Context, kind string) (triage.Response, error)
	SendWebhookFunc func(ctx context.Context, payload map[string]any) (triage.Response, error)
	JobStatusFunc   func(ctx context.Context, jobID string) (triage.JobStatus, error)
	ResolveFunc     func(ctx context.Context, resp triage.Response) (triage.Response, error)

	mu    sync.Mutex
	calls []string
}

func (m *backendMock) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *backendMock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *backendMock) AnalyzeText(ctx context.Context, req triage.AnalysisRequest) (triage.Response, error) {
	m.record("AnalyzeText")
	return m.AnalyzeTextFunc(ctx, req)
}

func (m *backendMock) AnalyzeFile(ctx context.Context, f triage.FileUpload) (triage.Response, error) {
	m.record("AnalyzeFile")
	return m.AnalyzeFileFunc(ctx, f)
}

func (m *backendMock) RunFixture(ctx context.Context, kind string) (triage.Response, error) {
	m.record("RunFixture")
	return m.RunFixtureFunc(ctx, kind)
}

func (m *backendMock) SendWebhook(ctx context.Context, payload map[string]any) (triage.Response, error) {
	m.record("SendWebhook")
	return m.SendWebhookFunc(ctx, payload)
}

func (m *backendMock) JobStatus(ctx context.Context, jobID string) (triage.JobStatus, error) {
	m.record("JobStatus")
	return m.JobStatusFunc(ctx, jobID)
}

func (m *backendMock) Resolve(ctx context.Context, resp triage.Response) (triage.Response, error) {
	if m.ResolveFunc == nil {
		return resp, nil
	}
	m.record("Resolve")
	return m.ResolveFunc(ctx, resp)
}

func (m *backendMock) MaxFileSize() int64 {
	return triage.DefaultMaxFileSize
}

type notifierRecorder struct {
	mu   sync.Mutex
	msgs []controller.Notification
}

func (r *notifierRecorder) Notify(n controller.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, n)
}

func (r *notifierRecorder) Levels() []controller.Level {
	r.mu.Lock()
	defer r.mu.Unlock()

	levels := make([]controller.Level, 0, len(r.msgs))
	for _, m := range r.msgs {
		levels = append(levels, m.Level)
	}
	return levels
}

func (r *notifierRecorder) Last() controller.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[len(r.msgs)-1]
}
