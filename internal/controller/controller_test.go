package controller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/render"
	"github.com/hal9000y/mailtriage/internal/triage"
)

func singleResponse(category string) triage.Response {
	return triage.Response{Kind: triage.KindSingle, Result: &triage.Result{Category: category}}
}

func TestAnalyzeEmptyTextSkipsBackend(t *testing.T) {
	svc := &backendMock{}
	notes := &notifierRecorder{}
	ctrl := controller.New(svc, notes, nil)

	_, err := ctrl.Analyze(context.Background(), "   ", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, triage.ErrValidation)
	assert.Empty(t, svc.Calls())
	assert.Equal(t, []controller.Level{controller.LevelError}, notes.Levels())
}

func TestUploadWithoutFileSkipsBackend(t *testing.T) {
	svc := &backendMock{}
	notes := &notifierRecorder{}
	ctrl := controller.New(svc, notes, nil)

	_, err := ctrl.Upload(context.Background())
	assert.ErrorIs(t, err, triage.ErrValidation)
	assert.Empty(t, svc.Calls())
	assert.Equal(t, "Por favor, selecione um arquivo", notes.Last().Message)
}

func TestSelectFileAndUpload(t *testing.T) {
	var uploaded triage.FileUpload
	svc := &backendMock{
		AnalyzeFileFunc: func(_ context.Context, f triage.FileUpload) (triage.Response, error) {
			uploaded = f
			return singleResponse("Spam"), nil
		},
	}
	notes := &notifierRecorder{}
	ctrl := controller.New(svc, notes, nil)

	err := ctrl.SelectFile(triage.NewFileUpload("photo.png", "image/png", []byte("\x89PNG\r\n\x1a\n")))
	require.Error(t, err)
	_, ok := ctrl.SelectedFile()
	assert.False(t, ok)

	require.NoError(t, ctrl.SelectFile(triage.NewFileUpload("mail.txt", "", []byte("From: a@b.com\n\nOlá"))))
	name, ok := ctrl.SelectedFile()
	require.True(t, ok)
	assert.Equal(t, "mail.txt", name)

	out, err := ctrl.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, controller.ModeUpload, out.Mode)
	assert.Equal(t, controller.ModeUpload, ctrl.Mode())
	assert.Equal(t, "mail.txt", uploaded.Filename)
	assert.Equal(t, triage.Unproductive, out.Summary.Items[0].Badge)
	assert.Equal(t, controller.LevelSuccess, notes.Last().Level)
}

func TestAnalyzeResolvesJobs(t *testing.T) {
	svc := &backendMock{
		AnalyzeTextFunc: func(_ context.Context, req triage.AnalysisRequest) (triage.Response, error) {
			assert.Equal(t, "Reunião amanhã", req.EmailContent)
			return triage.Response{Kind: triage.KindJobs, JobIDs: []string{"a", "b"}}, nil
		},
		ResolveFunc: func(_ context.Context, resp triage.Response) (triage.Response, error) {
			assert.Equal(t, []string{"a", "b"}, resp.JobIDs)
			return triage.Response{Kind: triage.KindBatch, Batch: &triage.Aggregate{
				TotalEmails: 2,
				Results:     []triage.Result{{Category: "Produtivo"}, triage.SyntheticError(errors.New("boom"))},
			}}, nil
		},
	}
	ctrl := controller.New(svc, &notifierRecorder{}, nil)

	out, err := ctrl.Analyze(context.Background(), "Reunião amanhã", "")
	require.NoError(t, err)
	assert.Equal(t, render.BranchBatch, out.Summary.Branch)
	assert.Equal(t, render.Totals{Total: 2, Productive: 1, Unproductive: 1}, *out.Summary.Totals)
	assert.Equal(t, []string{"AnalyzeText", "Resolve"}, svc.Calls())
}

func TestErrorsBecomeNotifications(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "request failed",
			err:      &triage.Error{Kind: triage.KindRequestFailed, Status: 429, Message: "Rate limit excedido"},
			contains: "Rate limit excedido",
		},
		{
			name:     "timeout",
			err:      &triage.Error{Kind: triage.KindTimeout, Message: "job x not finished after 60 attempts"},
			contains: "tempo esgotado",
		},
		{
			name:     "transport",
			err:      &triage.Error{Kind: triage.KindTransport, Message: "request failed", Err: errors.New("connection refused")},
			contains: "request failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &backendMock{
				RunFixtureFunc: func(context.Context, string) (triage.Response, error) {
					return triage.Response{}, tc.err
				},
			}
			notes := &notifierRecorder{}
			ctrl := controller.New(svc, notes, nil)

			_, err := ctrl.Fixture(context.Background(), "spam")
			require.ErrorIs(t, err, tc.err)

			last := notes.Last()
			assert.Equal(t, controller.LevelError, last.Level)
			assert.Contains(t, last.Message, tc.contains)
		})
	}
}

func TestErrorEnvelopeIsNotifiedAsError(t *testing.T) {
	svc := &backendMock{
		RunFixtureFunc: func(context.Context, string) (triage.Response, error) {
			return triage.Response{Kind: triage.KindError, Error: "Tipo de teste inválido"}, nil
		},
	}
	notes := &notifierRecorder{}
	ctrl := controller.New(svc, notes, nil)

	out, err := ctrl.Fixture(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, render.BranchError, out.Summary.Branch)
	assert.Equal(t, controller.LevelError, notes.Last().Level)
}

func TestNewActionSupersedesSameSlot(t *testing.T) {
	started := make(chan struct{})
	svc := &backendMock{
		RunFixtureFunc: func(ctx context.Context, kind string) (triage.Response, error) {
			if kind == "slow" {
				close(started)
				<-ctx.Done()
				return triage.Response{}, ctx.Err()
			}
			return singleResponse("Produtivo"), nil
		},
	}
	notes := &notifierRecorder{}
	ctrl := controller.New(svc, notes, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.Fixture(context.Background(), "slow")
		errCh <- err
	}()

	<-started
	out, err := ctrl.Fixture(context.Background(), "produtivo")
	require.NoError(t, err)
	assert.Equal(t, triage.Productive, out.Summary.Items[0].Badge)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, controller.ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded action did not return")
	}

	// the superseded action does not notify
	assert.Equal(t, []controller.Level{controller.LevelSuccess}, notes.Levels())
}

func TestLateReplyOfSupersededActionIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &backendMock{
		RunFixtureFunc: func(_ context.Context, kind string) (triage.Response, error) {
			if kind == "slow" {
				close(started)
				<-release
				return singleResponse("Spam"), nil
			}
			return singleResponse("Produtivo"), nil
		},
	}
	notes := &notifierRecorder{}
	ctrl := controller.New(svc, notes, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.Fixture(context.Background(), "slow")
		errCh <- err
	}()

	<-started
	_, err := ctrl.Fixture(context.Background(), "produtivo")
	require.NoError(t, err)
	close(release)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, controller.ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded action did not return")
	}
	assert.Equal(t, []controller.Level{controller.LevelSuccess}, notes.Levels())
}

func TestSessionSupersededByNewerSession(t *testing.T) {
	ctrl := controller.New(&backendMock{}, &notifierRecorder{}, nil)

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Session(context.Background(), controller.ModeGmail, func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return nil
		})
	}()

	<-started
	require.NoError(t, ctrl.Session(context.Background(), controller.ModeGmail, func(context.Context) error { return nil }))
	assert.ErrorIs(t, <-errCh, controller.ErrSuperseded)
	assert.Equal(t, controller.ModeAnalyze, ctrl.Mode())
}

func TestSubmitIsNotCancelledByAnalyze(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &backendMock{
		AnalyzeTextFunc: func(ctx context.Context, req triage.AnalysisRequest) (triage.Response, error) {
			if req.EmailContent == "caixa" {
				close(started)
				select {
				case <-release:
				case <-ctx.Done():
					return triage.Response{}, ctx.Err()
				}
			}
			return singleResponse("Produtivo"), nil
		},
	}
	notes := &notifierRecorder{}
	ctrl := controller.New(svc, notes, nil)

	type result struct {
		out controller.Outcome
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		out, err := ctrl.Submit(context.Background(), "caixa", "")
		resCh <- result{out, err}
	}()

	<-started
	_, err := ctrl.Analyze(context.Background(), "outro texto", "")
	require.NoError(t, err)
	close(release)

	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, triage.Productive, res.out.Summary.Items[0].Badge)
	// only the Analyze call notifies
	assert.Equal(t, []controller.Level{controller.LevelSuccess}, notes.Levels())
}

func TestOtherSlotsAreIndependent(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	svc := &backendMock{
		RunFixtureFunc: func(ctx context.Context, _ string) (triage.Response, error) {
			close(started)
			select {
			case <-release:
				return singleResponse("Spam"), nil
			case <-ctx.Done():
				return triage.Response{}, ctx.Err()
			}
		},
		AnalyzeTextFunc: func(context.Context, triage.AnalysisRequest) (triage.Response, error) {
			return singleResponse("Produtivo"), nil
		},
	}
	ctrl := controller.New(svc, &notifierRecorder{}, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.Fixture(context.Background(), "spam")
		errCh <- err
	}()

	<-started
	_, err := ctrl.Analyze(context.Background(), "texto", "")
	require.NoError(t, err)

	close(release)
	assert.NoError(t, <-errCh)
}

func TestCallerCancellationIsNotSupersede(t *testing.T) {
	svc := &backendMock{
		RunFixtureFunc: func(ctx context.Context, _ string) (triage.Response, error) {
			<-ctx.Done()
			return triage.Response{}, ctx.Err()
		},
	}
	notes := &notifierRecorder{}
	ctrl := controller.New(svc, notes, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := ctrl.Fixture(ctx, "spam")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, controller.ErrSuperseded)
	assert.Equal(t, controller.LevelError, notes.Last().Level)
}

func TestWebhookInvalidJSON(t *testing.T) {
	svc := &backendMock{}
	notes := &notifierRecorder{}
	ctrl := controller.New(svc, notes, nil)

	_, err := ctrl.Webhook(context.Background(), []byte(`{"email_content": `))
	assert.ErrorIs(t, err, triage.ErrValidation)
	assert.Empty(t, svc.Calls())
	assert.Contains(t, notes.Last().Message, "JSON inválido")
}

func TestStatus(t *testing.T) {
	svc := &backendMock{
		JobStatusFunc: func(_ context.Context, jobID string) (triage.JobStatus, error) {
			switch jobID {
			case "done":
				return triage.JobStatus{JobID: jobID, State: triage.JobCompleted, Result: &triage.Result{Category: "Spam"}}, nil
			case "failed":
				return triage.JobStatus{JobID: jobID, State: triage.JobError, Error: "falhou"}, nil
			default:
				return triage.JobStatus{JobID: jobID, State: triage.JobPending}, nil
			}
		},
		ResolveFunc: func(_ context.Context, resp triage.Response) (triage.Response, error) {
			if resp.Kind == triage.KindJobs && resp.Message == "" {
				return singleResponse("Produtivo"), nil
			}
			return resp, nil
		},
	}
	ctrl := controller.New(svc, &notifierRecorder{}, nil)
	ctx := context.Background()

	out, err := ctrl.Status(ctx, "done", false)
	require.NoError(t, err)
	assert.Equal(t, render.BranchSingle, out.Summary.Branch)

	out, err = ctrl.Status(ctx, "failed", false)
	require.NoError(t, err)
	assert.Equal(t, render.BranchError, out.Summary.Branch)
	assert.Equal(t, "falhou", out.Summary.Error)

	out, err = ctrl.Status(ctx, "running", false)
	require.NoError(t, err)
	assert.Equal(t, render.BranchJobs, out.Summary.Branch)
	assert.Equal(t, []string{"running"}, out.Summary.JobIDs)

	out, err = ctrl.Status(ctx, "running", true)
	require.NoError(t, err)
	assert.Equal(t, render.BranchSingle, out.Summary.Branch)
}

func TestSwitchMode(t *testing.T) {
	ctrl := controller.New(&backendMock{}, nil, nil)
	assert.Equal(t, controller.ModeAnalyze, ctrl.Mode())

	require.NoError(t, ctrl.SwitchMode(controller.ModeWebhook))
	assert.Equal(t, controller.ModeWebhook, ctrl.Mode())
	assert.Error(t, ctrl.SwitchMode("easter-egg"))
}

func TestUploadFileSubmitsGivenFile(t *testing.T) {
	svc := &backendMock{
		AnalyzeFileFunc: func(_ context.Context, f triage.FileUpload) (triage.Response, error) {
			return singleResponse("Produtivo"), nil
		},
	}
	ctrl := controller.New(svc, &notifierRecorder{}, nil)

	_, err := ctrl.UploadFile(context.Background(), triage.NewFileUpload("empty.txt", "", nil))
	assert.ErrorIs(t, err, triage.ErrValidation)
	assert.Empty(t, svc.Calls())

	out, err := ctrl.UploadFile(context.Background(), triage.NewFileUpload("mail.txt", "", []byte("Olá")))
	require.NoError(t, err)
	assert.Equal(t, triage.Productive, out.Summary.Items[0].Badge)
	assert.Equal(t, []string{"AnalyzeFile"}, svc.Calls())
}
