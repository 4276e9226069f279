// Package triage is the client for the MailMind analysis backend: it
// submits emails, polls asynchronous jobs and normalizes the responses.
package triage

import (
	"encoding/json"
	"strings"
)

// JobState is the lifecycle state reported by the status endpoint.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobError      JobState = "error"
)

// Terminal reports whether polling should stop on this state.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// JobStatus is one reply of GET /analyze/status/{id}.
type JobStatus struct {
	JobID   string   `json:"job_id,omitempty"`
	State   JobState `json:"status"`
	Result  *Result  `json:"result,omitempty"`
	Error   string   `json:"error,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Result is the analysis of a single email.
type Result struct {
	Category            string `json:"categoria"`
	NeedsHumanAttention bool   `json:"atencao_humana"`
	Summary             string `json:"resumo"`
	Suggestion          string `json:"sugestao"`
	ActionTaken         string `json:"acao"`
	Sender              string `json:"sender,omitempty"`
	Cached              bool   `json:"cached,omitempty"`
}

type wireResult struct {
	Category       string          `json:"categoria"`
	Attention      json.RawMessage `json:"atencao_humana"`
	Summary        string          `json:"resumo"`
	Suggestion     string          `json:"sugestao"`
	SuggestionLong string          `json:"sugestao_resposta_ou_acao"`
	Action         string          `json:"acao"`
	ActionTaken    string          `json:"acao_executada"`
	Sender         string          `json:"sender"`
	Cached         bool            `json:"cached"`
}

// UnmarshalJSON accepts the field variants the backend has used over time.
func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*r = Result{
		Category:            w.Category,
		NeedsHumanAttention: parseAttention(w.Attention),
		Summary:             w.Summary,
		Suggestion:          firstNonEmpty(w.Suggestion, w.SuggestionLong),
		ActionTaken:         firstNonEmpty(w.Action, w.ActionTaken),
		Sender:              w.Sender,
		Cached:              w.Cached,
	}
	return nil
}

// MarshalJSON writes the attention flag back in the backend's "SIM"/"NÃO" form.
func (r Result) MarshalJSON() ([]byte, error) {
	attention := "NÃO"
	if r.NeedsHumanAttention {
		attention = "SIM"
	}

	return json.Marshal(struct {
		Category    string `json:"categoria"`
		Attention   string `json:"atencao_humana"`
		Summary     string `json:"resumo"`
		Suggestion  string `json:"sugestao"`
		ActionTaken string `json:"acao"`
		Sender      string `json:"sender,omitempty"`
		Cached      bool   `json:"cached,omitempty"`
	}{r.Category, attention, r.Summary, r.Suggestion, r.ActionTaken, r.Sender, r.Cached})
}

func parseAttention(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}

	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SIM", "YES", "TRUE", "S", "Y":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Aggregate holds the outcomes of a multi-email submission in submission order.
type Aggregate struct {
	TotalEmails int      `json:"total_emails"`
	Results     []Result `json:"results"`
	Message     string   `json:"message,omitempty"`
}

// Synthetic error record values used in place of a failed batch member.
const (
	ErrorCategory   = "❌ ERRO"
	errorSuggestion = "Verifique o conteúdo e tente novamente"
	errorAction     = "⚠️ Erro no processamento"
	unknownSender   = "Não identificado"
)

// SyntheticError builds the placeholder result for a batch member that failed.
func SyntheticError(reason error) Result {
	msg := "erro desconhecido"
	if reason != nil {
		msg = reason.Error()
	}
	if r := []rune(msg); len(r) > 100 {
		msg = string(r[:100])
	}

	return Result{
		Category:            ErrorCategory,
		NeedsHumanAttention: true,
		Summary:             "Falha na análise: " + msg,
		Suggestion:          errorSuggestion,
		ActionTaken:         errorAction,
		Sender:              unknownSender,
	}
}
