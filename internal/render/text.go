package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/hal9000y/mailtriage/internal/triage"
)

// Options controls terminal output.
type Options struct {
	Colours bool
}

var badgeLabels = map[triage.Classification]string{
	triage.Productive:   "Produtivo",
	triage.Unproductive: "Improdutivo",
	triage.Undefined:    "Indefinido",
}

// BadgeLabel is the user-facing label of a classification.
func BadgeLabel(c triage.Classification) string {
	if l, ok := badgeLabels[c]; ok {
		return l
	}
	return string(c)
}

func badge(c triage.Classification, opts Options) string {
	label := BadgeLabel(c)
	if !opts.Colours {
		return label
	}

	switch c {
	case triage.Productive:
		return color.New(color.FgBlack, color.BgGreen).Render(" " + label + " ")
	case triage.Unproductive:
		return color.New(color.FgWhite, color.BgRed).Render(" " + label + " ")
	default:
		return color.New(color.FgBlack, color.BgYellow).Render(" " + label + " ")
	}
}

func attention(v bool) string {
	if v {
		return "SIM"
	}
	return "NÃO"
}

// Text writes s for a terminal.
func Text(w io.Writer, s Summary, opts Options) error {
	switch s.Branch {
	case BranchSingle:
		if s.Message != "" {
			if _, err := fmt.Fprintln(w, s.Message); err != nil {
				return err
			}
		}
		for _, it := range s.Items {
			if err := writeItem(w, it, opts); err != nil {
				return err
			}
		}
		return nil
	case BranchBatch:
		return writeBatch(w, s, opts)
	case BranchError:
		label := "Erro"
		if opts.Colours {
			label = color.Red.Render(label)
		}
		_, err := fmt.Fprintf(w, "%s: %s\n", label, s.Error)
		return err
	case BranchJobs:
		_, err := fmt.Fprintf(w, "Jobs pendentes: %s\n", strings.Join(s.JobIDs, ", "))
		return err
	default:
		_, err := fmt.Fprintln(w, s.Raw)
		return err
	}
}

func writeItem(w io.Writer, it Item, opts Options) error {
	rows := [][2]string{
		{"Categoria", it.Category},
		{"Atenção humana", attention(it.HumanAttention)},
		{"Resumo", it.Summary},
		{"Sugestão", it.Suggestion},
		{"Ação Executada", it.ActionTaken},
	}
	if it.Sender != "" {
		rows = append(rows, [2]string{"Remetente", it.Sender})
	}

	if _, err := fmt.Fprintln(w, badge(it.Badge, opts)); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%s: %s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return nil
}

func writeBatch(w io.Writer, s Summary, opts Options) error {
	t := s.Totals
	if t == nil {
		t = CountItems(0, s.Items)
	}

	if s.Message != "" {
		if _, err := fmt.Fprintln(w, s.Message); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Total de emails processados: %d\nEmails produtivos: %d\nEmails improdutivos: %d\n",
		t.Total, t.Productive, t.Unproductive); err != nil {
		return err
	}
	if t.Undefined > 0 {
		if _, err := fmt.Fprintf(w, "Emails indefinidos: %d\n", t.Undefined); err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Status", "Categoria", "Atenção", "Resumo", "Sugestão"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for i, it := range s.Items {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			badge(it.Badge, opts),
			it.Category,
			attention(it.HumanAttention),
			it.Summary,
			it.Suggestion,
		})
	}
	table.Render()

	return nil
}
