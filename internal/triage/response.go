package triage

import (
	"bytes"
	"encoding/json"
)

// ResponseKind is the closed set of shapes a backend reply can take.
type ResponseKind int

const (
	KindRaw ResponseKind = iota
	KindJobs
	KindWrapped
	KindSingle
	KindBatch
	KindError
)

func (k ResponseKind) String() string {
	switch k {
	case KindJobs:
		return "jobs"
	case KindWrapped:
		return "wrapped"
	case KindSingle:
		return "single"
	case KindBatch:
		return "batch"
	case KindError:
		return "error"
	default:
		return "raw"
	}
}

// Response is a backend reply decoded once at the client boundary.
// Exactly the fields matching Kind are set.
type Response struct {
	Kind ResponseKind

	// KindJobs
	JobIDs []string
	// KindWrapped, KindSingle
	Result *Result
	// KindBatch
	Batch *Aggregate
	// KindError
	Error string
	// Message accompanies wrapped, batch and error replies when present.
	Message string
	// Raw is the undecoded body, always set.
	Raw json.RawMessage
}

// AlternateBatchField is the second name under which batch results appear.
const AlternateBatchField = "resultados"

type envelope struct {
	JobID       *string          `json:"job_id"`
	JobIDs      []string         `json:"job_ids"`
	Result      json.RawMessage  `json:"result"`
	Category    *string          `json:"categoria"`
	Attention   json.RawMessage  `json:"atencao_humana"`
	Results     json.RawMessage  `json:"results"`
	Resultados  json.RawMessage  `json:"resultados"`
	TotalEmails *int             `json:"total_emails"`
	Error       *json.RawMessage `json:"error"`
	Message     string           `json:"message"`
}

// DecodeResponse inspects body for the known shape markers in priority
// order: jobs, wrapped result, bare result, results array, alternate batch
// array, error field. Anything else, including non-JSON, is KindRaw.
func DecodeResponse(body []byte) Response {
	raw := json.RawMessage(bytes.TrimSpace(body))
	resp := Response{Kind: KindRaw, Raw: raw}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp
	}
	resp.Message = env.Message

	switch {
	case env.JobID != nil && *env.JobID != "":
		resp.Kind = KindJobs
		resp.JobIDs = []string{*env.JobID}
	case len(env.JobIDs) > 0:
		resp.Kind = KindJobs
		resp.JobIDs = env.JobIDs
	case isObject(env.Result):
		var r Result
		if err := json.Unmarshal(env.Result, &r); err != nil {
			return resp
		}
		resp.Kind = KindWrapped
		resp.Result = &r
	case env.Category != nil || isPresent(env.Attention):
		var r Result
		if err := json.Unmarshal(raw, &r); err != nil {
			return resp
		}
		resp.Kind = KindSingle
		resp.Result = &r
	case isArray(env.Results):
		return decodeBatch(resp, env.Results, env.TotalEmails)
	case isArray(env.Resultados):
		return decodeBatch(resp, env.Resultados, env.TotalEmails)
	case env.Error != nil && isPresent(*env.Error):
		resp.Kind = KindError
		resp.Error = errorText(*env.Error)
	}

	return resp
}

func decodeBatch(resp Response, items json.RawMessage, total *int) Response {
	var results []Result
	if err := json.Unmarshal(items, &results); err != nil {
		return resp
	}

	agg := &Aggregate{
		TotalEmails: len(results),
		Results:     results,
		Message:     resp.Message,
	}
	if total != nil {
		agg.TotalEmails = *total
	}

	resp.Kind = KindBatch
	resp.Batch = agg
	return resp
}

func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '['
}
