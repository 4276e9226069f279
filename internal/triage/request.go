package triage

import (
	"encoding/json"
	"errors"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

const (
	MediaTypeText = "text/plain"
	MediaTypePDF  = "application/pdf"

	// DefaultMaxFileSize mirrors the backend's upload limit.
	DefaultMaxFileSize = 10 << 20

	fileField = "email_file"
)

var validate = validator.New()

// AnalysisRequest is the JSON body of POST /analyze.
type AnalysisRequest struct {
	EmailContent string `json:"email_content" validate:"required"`
	Sender       string `json:"sender,omitempty" validate:"omitempty,email"`
}

// Validate trims the request and rejects it before any network call.
func (r *AnalysisRequest) Validate() error {
	r.EmailContent = strings.TrimSpace(r.EmailContent)
	r.Sender = strings.TrimSpace(r.Sender)

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "EmailContent":
				return validationError("email content is required")
			case "Sender":
				return validationError("sender %q is not a valid email address", r.Sender)
			}
		}
		return validationError("invalid request: %v", err)
	}

	return nil
}

// FileUpload is an email file sent as multipart form data.
type FileUpload struct {
	Filename  string
	MediaType string
	Content   []byte
}

// NewFileUpload builds an upload, deriving the media type from the file
// extension when declared is empty.
func NewFileUpload(filename, declared string, content []byte) FileUpload {
	if declared == "" {
		switch ext := strings.ToLower(filepath.Ext(filename)); ext {
		case ".txt":
			declared = MediaTypeText
		default:
			declared = mime.TypeByExtension(ext)
		}
	}
	return FileUpload{Filename: filename, MediaType: declared, Content: content}
}

// Validate checks the file name ends in .txt or .pdf, the declared type is
// text or PDF, and that the content agrees with it.
func (f FileUpload) Validate(maxSize int64) error {
	if f.Filename == "" {
		return validationError("a file must be selected")
	}
	if len(f.Content) == 0 {
		return validationError("file %q is empty", f.Filename)
	}
	if maxSize > 0 && int64(len(f.Content)) > maxSize {
		return validationError("file %q exceeds the %d MB limit", f.Filename, maxSize>>20)
	}

	if ext := strings.ToLower(filepath.Ext(f.Filename)); ext != ".txt" && ext != ".pdf" {
		return validationError("only .txt and .pdf files are allowed, got %q", f.Filename)
	}

	declared := baseMediaType(f.MediaType)
	if declared != MediaTypeText && declared != MediaTypePDF {
		return validationError("only .txt and .pdf files are allowed, got %q", f.MediaType)
	}

	detected := mimetype.Detect(f.Content)
	switch declared {
	case MediaTypePDF:
		if !detected.Is(MediaTypePDF) {
			return validationError("file %q is declared as PDF but looks like %s", f.Filename, detected.String())
		}
	case MediaTypeText:
		if !isTextual(detected) {
			return validationError("file %q is declared as text but looks like %s", f.Filename, detected.String())
		}
	}

	return nil
}

func isTextual(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(MediaTypeText) {
			return true
		}
	}
	return false
}

func baseMediaType(v string) string {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}

var fixturePattern = regexp.MustCompile(`^[a-z_]+$`)

// Fixture kinds served by GET /test/{kind}.
var FixtureKinds = []string{"produtivo", "improdutivo", "spam", "reclamacao"}

func validateFixture(kind string) error {
	if !fixturePattern.MatchString(kind) {
		return validationError("invalid fixture kind %q", kind)
	}
	return nil
}

// ParseWebhookPayload checks raw is a JSON object carrying email content.
func ParseWebhookPayload(raw []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, validationError("webhook payload is required")
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &Error{Kind: KindValidation, Message: "invalid JSON payload", Err: err}
	}

	if !hasText(payload, "email_content") && !hasText(payload, "content") {
		return nil, validationError("webhook payload needs email_content or content")
	}

	return payload, nil
}

func hasText(payload map[string]any, key string) bool {
	s, ok := payload[key].(string)
	return ok && strings.TrimSpace(s) != ""
}
