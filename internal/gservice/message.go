package gservice

import (
	"encoding/base64"
	"mime"
	"net/mail"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// Address is a parsed mailbox header value.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Message is the part of a Gmail message used for triage.
type Message struct {
	ID       string  `json:"id"`
	ThreadID string  `json:"thread_id"`
	From     Address `json:"from"`
	Subject  string  `json:"subject"`
	Date     string  `json:"date"`
	Snippet  string  `json:"snippet"`
	Text     string  `json:"-"`
	HTML     string  `json:"-"`
}

// ParseMessage extracts headers and the first text/plain and text/html
// bodies. Attachments are skipped.
func ParseMessage(msg *gmail.Message) Message {
	out := Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if msg.Payload == nil {
		return out
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			out.From = ParseAddress(h.Value)
		case "subject":
			out.Subject = h.Value
		case "date":
			out.Date = h.Value
		}
	}

	collectBodies(msg.Payload, &out)

	return out
}

func collectBodies(part *gmail.MessagePart, out *Message) {
	if part == nil {
		return
	}

	if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
		mt, _, _ := mime.ParseMediaType(part.MimeType)
		switch {
		case mt == "text/plain" && out.Text == "":
			out.Text = decodeBase64URL(part.Body.Data)
		case mt == "text/html" && out.HTML == "":
			out.HTML = decodeBase64URL(part.Body.Data)
		}
	}

	for _, p := range part.Parts {
		collectBodies(p, out)
	}
}

// ParseAddress parses a From header, falling back to the raw value when it
// is not RFC 5322 compliant.
func ParseAddress(v string) Address {
	if a, err := mail.ParseAddress(v); err == nil {
		return Address{Name: a.Name, Email: a.Address}
	}

	addr := Address{Email: strings.TrimSpace(v)}
	if i := strings.Index(v, "<"); i != -1 {
		if j := strings.Index(v[i:], ">"); j != -1 {
			addr.Name = strings.Trim(strings.TrimSpace(v[:i]), `"`)
			addr.Email = strings.TrimSpace(v[i+1 : i+j])
		}
	}

	return addr
}

func decodeBase64URL(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return data
		}
	}
	return string(decoded)
}
