// Package format extracts readable text from email bodies.
package format

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Converter turns HTML email bodies into plain text.
type Converter struct{}

// HTMLToText returns the visible text of an HTML document. Scripts, styles
// and the head are dropped; block elements become line breaks and list items
// get a "- " prefix.
func (Converter) HTMLToText(raw []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("html.Parse failed: %w", err)
	}

	var w textWriter
	w.walk(doc)

	return strings.TrimSpace(w.b.String()), nil
}

// paragraph elements are separated by a blank line, the rest of blockBreaks
// by a single newline.
var blockBreaks = map[atom.Atom]int{
	atom.P: 2, atom.H1: 2, atom.H2: 2, atom.H3: 2, atom.H4: 2, atom.H5: 2, atom.H6: 2,
	atom.Blockquote: 2, atom.Pre: 2, atom.Table: 2, atom.Ul: 2, atom.Ol: 2,
	atom.Div: 1, atom.Section: 1, atom.Article: 1, atom.Header: 1, atom.Footer: 1,
	atom.Tr: 1, atom.Li: 1, atom.Hr: 1, atom.Dt: 1, atom.Dd: 1,
}

var skipped = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
}

type textWriter struct {
	b      strings.Builder
	space  bool // whitespace seen since the last word
	breaks int  // trailing newlines, at most 2
}

func (w *textWriter) walk(n *html.Node) {
	if n.Type == html.TextNode {
		w.text(n.Data)
		return
	}

	if n.Type == html.ElementNode {
		if skipped[n.DataAtom] {
			return
		}

		switch n.DataAtom {
		case atom.Br:
			w.newline()
			return
		case atom.Td, atom.Th:
			w.space = true
		}
	}

	breaks := 0
	if n.Type == html.ElementNode {
		breaks = blockBreaks[n.DataAtom]
	}

	w.lineBreak(breaks)
	if n.DataAtom == atom.Li {
		w.text("- ")
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	w.lineBreak(breaks)
}

func (w *textWriter) text(s string) {
	words := strings.Fields(s)
	if len(words) == 0 {
		if s != "" {
			w.space = true
		}
		return
	}

	first, _ := utf8.DecodeRuneInString(s)
	if w.b.Len() > 0 && w.breaks == 0 && (w.space || unicode.IsSpace(first)) {
		w.b.WriteByte(' ')
	}
	w.b.WriteString(strings.Join(words, " "))

	last, _ := utf8.DecodeLastRuneInString(s)
	w.space = unicode.IsSpace(last)
	w.breaks = 0
}

func (w *textWriter) newline() {
	if w.b.Len() > 0 && w.breaks < 2 {
		w.b.WriteByte('\n')
		w.breaks++
	}
	w.space = false
}

func (w *textWriter) lineBreak(n int) {
	if w.b.Len() == 0 {
		return
	}
	for w.breaks < n {
		w.b.WriteByte('\n')
		w.breaks++
	}
	if n > 0 {
		w.space = false
	}
}
