// Package controller owns the interactive state of a triage session and
// runs user actions against the backend, one lane per kind of action.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hal9000y/mailtriage/internal/render"
	"github.com/hal9000y/mailtriage/internal/triage"
)

// Mode is the kind of action, and the slot it runs in.
type Mode string

const (
	ModeAnalyze Mode = "analyze"
	ModeUpload  Mode = "upload"
	ModeFixture Mode = "fixture"
	ModeWebhook Mode = "webhook"
	ModeStatus  Mode = "status"
)

// ModeGmail is the slot of an inbox triage run. It is not a selectable mode.
const ModeGmail Mode = "gmail"

// Modes lists every mode in display order.
var Modes = []Mode{ModeAnalyze, ModeUpload, ModeFixture, ModeWebhook, ModeStatus}

// ErrSuperseded is returned by an action replaced by a newer one in its slot.
var ErrSuperseded = errors.New("superseded by a newer request")

type backend interface {
	AnalyzeText(ctx context.Context, req triage.AnalysisRequest) (triage.Response, error)
	AnalyzeFile(ctx context.Context, f triage.FileUpload) (triage.Response, error)
	RunFixture(ctx context.Context, kind string) (triage.Response, error)
	SendWebhook(ctx context.Context, payload map[string]any) (triage.Response, error)
	JobStatus(ctx context.Context, jobID string) (triage.JobStatus, error)
	Resolve(ctx context.Context, resp triage.Response) (triage.Response, error)
	MaxFileSize() int64
}

// Outcome is the rendered result of an action.
type Outcome struct {
	Mode     Mode            `json:"mode"`
	Response triage.Response `json:"-"`
	Summary  render.Summary  `json:"summary"`
}

type slot struct {
	id         uint64
	cancel     context.CancelFunc
	superseded bool
}

// Controller is safe for concurrent use. A new action cancels the action
// still running in the same slot.
type Controller struct {
	svc      backend
	notifier Notifier
	log      *zap.Logger

	mu       sync.Mutex
	mode     Mode
	selected *triage.FileUpload
	slots    map[Mode]*slot
	seq      uint64
}

func New(svc backend, notifier Notifier, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}

	return &Controller{
		svc:      svc,
		notifier: notifier,
		log:      log,
		mode:     ModeAnalyze,
		slots:    make(map[Mode]*slot),
	}
}

// Mode returns the active mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SwitchMode changes the active mode.
func (c *Controller) SwitchMode(m Mode) error {
	if !validMode(m) {
		return fmt.Errorf("unknown mode %q", m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	return nil
}

func validMode(m Mode) bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// SelectFile validates and remembers the file for Upload.
func (c *Controller) SelectFile(f triage.FileUpload) error {
	if err := f.Validate(c.svc.MaxFileSize()); err != nil {
		c.notify(LevelError, "Apenas arquivos .txt e .pdf são permitidos: "+message(err))
		return err
	}

	c.mu.Lock()
	c.selected = &f
	c.mu.Unlock()

	c.notify(LevelSuccess, fmt.Sprintf("Arquivo %q selecionado", f.Filename))
	return nil
}

// SelectedFile returns the selected file name, if any.
func (c *Controller) SelectedFile() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == nil {
		return "", false
	}
	return c.selected.Filename, true
}

// Analyze submits email text.
func (c *Controller) Analyze(ctx context.Context, content, sender string) (Outcome, error) {
	req := triage.AnalysisRequest{EmailContent: content, Sender: sender}
	if err := req.Validate(); err != nil {
		c.notify(LevelError, "Por favor, insira o conteúdo do email: "+message(err))
		return Outcome{}, err
	}

	return c.run(ctx, ModeAnalyze, "Email analisado com sucesso!", "Erro ao analisar email", func(ctx context.Context) (triage.Response, error) {
		return c.svc.AnalyzeText(ctx, req)
	})
}

// Upload submits the selected file.
func (c *Controller) Upload(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	selected := c.selected
	c.mu.Unlock()

	if selected == nil {
		err := &triage.Error{Kind: triage.KindValidation, Message: "no file selected"}
		c.notify(LevelError, "Por favor, selecione um arquivo")
		return Outcome{}, err
	}
	return c.upload(ctx, *selected)
}

// UploadFile selects f and submits it in one step.
func (c *Controller) UploadFile(ctx context.Context, f triage.FileUpload) (Outcome, error) {
	if err := c.SelectFile(f); err != nil {
		return Outcome{}, err
	}
	return c.upload(ctx, f)
}

func (c *Controller) upload(ctx context.Context, f triage.FileUpload) (Outcome, error) {
	return c.run(ctx, ModeUpload, fmt.Sprintf("Arquivo %q analisado com sucesso!", f.Filename), "Erro ao analisar arquivo", func(ctx context.Context) (triage.Response, error) {
		return c.svc.AnalyzeFile(ctx, f)
	})
}

// Fixture runs the backend's canned analysis of the given kind.
func (c *Controller) Fixture(ctx context.Context, kind string) (Outcome, error) {
	return c.run(ctx, ModeFixture, fmt.Sprintf("Teste de email %s executado!", kind), "Erro ao executar teste", func(ctx context.Context) (triage.Response, error) {
		return c.svc.RunFixture(ctx, kind)
	})
}

// Webhook sends a raw JSON payload to the webhook endpoint.
func (c *Controller) Webhook(ctx context.Context, raw []byte) (Outcome, error) {
	payload, err := triage.ParseWebhookPayload(raw)
	if err != nil {
		c.notify(LevelError, "JSON inválido. Verifique a sintaxe: "+message(err))
		return Outcome{}, err
	}

	return c.run(ctx, ModeWebhook, "Dados enviados para webhook com sucesso!", "Erro ao enviar dados para webhook", func(ctx context.Context) (triage.Response, error) {
		return c.svc.SendWebhook(ctx, payload)
	})
}

// Status reports a job. With wait it polls until the job is terminal,
// otherwise it queries once and reports pending jobs as such.
func (c *Controller) Status(ctx context.Context, jobID string, wait bool) (Outcome, error) {
	return c.run(ctx, ModeStatus, fmt.Sprintf("Status do job %s consultado", jobID), "Erro ao consultar job", func(ctx context.Context) (triage.Response, error) {
		if wait {
			return triage.Response{Kind: triage.KindJobs, JobIDs: []string{jobID}}, nil
		}

		s, err := c.svc.JobStatus(ctx, jobID)
		if err != nil {
			return triage.Response{}, err
		}

		switch s.State {
		case triage.JobCompleted:
			res := triage.Result{Summary: s.Message}
			if s.Result != nil {
				res = *s.Result
			}
			return triage.Response{Kind: triage.KindSingle, Result: &res}, nil
		case triage.JobError:
			return triage.Response{Kind: triage.KindError, Error: s.Error, Message: s.Message}, nil
		default:
			return triage.Response{Kind: triage.KindJobs, JobIDs: []string{s.JobID}, Message: string(s.State)}, nil
		}
	})
}

func (c *Controller) run(
	ctx context.Context,
	mode Mode,
	successMsg, failureMsg string,
	submit func(context.Context) (triage.Response, error),
) (Outcome, error) {
	ctx, s := c.begin(ctx, mode)
	defer c.end(mode, s)

	log := c.log.With(zap.String("mode", string(mode)), zap.Uint64("action", s.id))

	resp, err := submit(ctx)
	if err == nil {
		resp, err = c.svc.Resolve(ctx, resp)
	}

	if c.superseded(s) {
		log.Info("action superseded", zap.Bool("failed", err != nil))
		return Outcome{}, ErrSuperseded
	}

	if err != nil {
		log.Warn("action failed", zap.Error(err), zap.Stringer("kind", triage.KindOf(err)))
		c.notify(LevelError, failureMsg+": "+message(err))
		return Outcome{}, err
	}

	out := Outcome{Mode: mode, Response: resp, Summary: render.Summarize(resp)}
	if out.Summary.Branch == render.BranchError {
		c.notify(LevelError, failureMsg+": "+out.Summary.Error)
	} else {
		c.notify(LevelSuccess, successMsg)
	}

	return out, nil
}

// Session runs fn in mode's slot without notifications. A newer action in
// the same slot cancels fn's context, and Session then returns ErrSuperseded.
func (c *Controller) Session(ctx context.Context, mode Mode, fn func(ctx context.Context) error) error {
	ctx, s := c.begin(ctx, mode)
	defer c.end(mode, s)

	err := fn(ctx)
	if c.superseded(s) {
		c.log.Info("session superseded", zap.String("mode", string(mode)), zap.Uint64("action", s.id))
		return ErrSuperseded
	}
	return err
}

// Submit analyses email text and waits for its jobs outside of any slot,
// without notifications. It is meant for steps of a Session.
func (c *Controller) Submit(ctx context.Context, content, sender string) (Outcome, error) {
	req := triage.AnalysisRequest{EmailContent: content, Sender: sender}

	resp, err := c.svc.AnalyzeText(ctx, req)
	if err == nil {
		resp, err = c.svc.Resolve(ctx, resp)
	}
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Mode: ModeAnalyze, Response: resp, Summary: render.Summarize(resp)}, nil
}

func (c *Controller) begin(parent context.Context, mode Mode) (context.Context, *slot) {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.slots[mode]; ok {
		prev.superseded = true
		prev.cancel()
	}

	c.seq++
	s := &slot{id: c.seq, cancel: cancel}
	c.slots[mode] = s
	if validMode(mode) {
		c.mode = mode
	}

	return ctx, s
}

func (c *Controller) end(mode Mode, s *slot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.cancel()
	if c.slots[mode] == s {
		delete(c.slots, mode)
	}
}

// superseded reports whether the action was cancelled by a newer one
// rather than by its caller.
func (c *Controller) superseded(s *slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return s.superseded
}

func (c *Controller) notify(level Level, msg string) {
	c.notifier.Notify(Notification{Level: level, Message: msg})
}

func message(err error) string {
	var terr *triage.Error
	if errors.As(err, &terr) && terr.Message != "" {
		if terr.Kind == triage.KindTimeout {
			return "tempo esgotado: " + terr.Message
		}
		return terr.Message
	}
	return err.Error()
}
