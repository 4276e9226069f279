// Package render turns decoded backend responses into display summaries.
package render

import (
	"github.com/samber/lo"

	"github.com/hal9000y/mailtriage/internal/triage"
)

// Branch names which rendering path a response took.
type Branch string

const (
	BranchSingle Branch = "single"
	BranchBatch  Branch = "batch"
	BranchError  Branch = "error"
	BranchJobs   Branch = "jobs"
	BranchRaw    Branch = "raw"
)

const notAvailable = "N/A"

// Item is one analysed email ready for display.
type Item struct {
	Badge          triage.Classification `json:"badge"`
	Category       string                `json:"category"`
	HumanAttention bool                  `json:"human_attention"`
	Summary        string                `json:"summary"`
	Suggestion     string                `json:"suggestion"`
	ActionTaken    string                `json:"action_taken"`
	Sender         string                `json:"sender,omitempty"`
}

// Totals counts batch items per classification.
type Totals struct {
	Total        int `json:"total"`
	Productive   int `json:"productive"`
	Unproductive int `json:"unproductive"`
	Undefined    int `json:"undefined"`
}

// Summary is what gets shown for a response.
type Summary struct {
	Branch  Branch   `json:"branch"`
	Items   []Item   `json:"items,omitempty"`
	Totals  *Totals  `json:"totals,omitempty"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	JobIDs  []string `json:"job_ids,omitempty"`
	Raw     string   `json:"raw,omitempty"`
}

// Summarize picks the rendering branch for resp.
func Summarize(resp triage.Response) Summary {
	switch resp.Kind {
	case triage.KindSingle, triage.KindWrapped:
		if resp.Result == nil {
			break
		}
		return Summary{Branch: BranchSingle, Items: []Item{NewItem(*resp.Result)}, Message: resp.Message}
	case triage.KindBatch:
		if resp.Batch == nil {
			break
		}
		return summarizeBatch(*resp.Batch)
	case triage.KindError:
		return Summary{Branch: BranchError, Error: resp.Error, Message: resp.Message}
	case triage.KindJobs:
		return Summary{Branch: BranchJobs, JobIDs: resp.JobIDs, Message: resp.Message}
	}

	return Summary{Branch: BranchRaw, Raw: string(resp.Raw)}
}

// SummarizeAggregate renders the outcome of a multi-job wait.
func SummarizeAggregate(agg triage.Aggregate) Summary {
	return summarizeBatch(agg)
}

func summarizeBatch(agg triage.Aggregate) Summary {
	items := lo.Map(agg.Results, func(r triage.Result, _ int) Item { return NewItem(r) })

	return Summary{
		Branch:  BranchBatch,
		Items:   items,
		Totals:  CountItems(agg.TotalEmails, items),
		Message: agg.Message,
	}
}

// CountItems tallies items by badge. total is the number of emails the
// backend reported; it falls back to len(items) when zero.
func CountItems(total int, items []Item) *Totals {
	if total == 0 {
		total = len(items)
	}

	badgeIs := func(c triage.Classification) func(Item) bool {
		return func(it Item) bool { return it.Badge == c }
	}

	return &Totals{
		Total:        total,
		Productive:   lo.CountBy(items, badgeIs(triage.Productive)),
		Unproductive: lo.CountBy(items, badgeIs(triage.Unproductive)),
		Undefined:    lo.CountBy(items, badgeIs(triage.Undefined)),
	}
}

// NewItem builds the display item of a result, filling blanks with N/A.
func NewItem(r triage.Result) Item {
	return Item{
		Badge:          r.Classification(),
		Category:       orNA(r.Category),
		HumanAttention: r.NeedsHumanAttention,
		Summary:        orNA(r.Summary),
		Suggestion:     orNA(r.Suggestion),
		ActionTaken:    orNA(r.ActionTaken),
		Sender:         r.Sender,
	}
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
