package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval   = time.Second
	DefaultMaxAttempts    = 60
	DefaultRequestTimeout = 30 * time.Second

	maxResponseSize = 16 << 20

	pathAnalyze = "/analyze"
	pathStatus  = "/analyze/status/"
	pathFixture = "/test/"
	pathWebhook = "/webhook/email"
)

// Observer receives client events, e.g. for metrics.
type Observer interface {
	RequestDone(endpoint string, status int, d time.Duration)
	Polled(state string)
	JobDone(outcome string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) RequestDone(string, int, time.Duration) {}
func (nopObserver) Polled(string)                          {}
func (nopObserver) JobDone(string, time.Duration)          {}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	PollInterval time.Duration
	MaxAttempts  int
	MaxFileSize  int64
	Cache        StatusCache
	Observer     Observer
	Logger       *zap.Logger
}

// Client talks to the analysis backend.
type Client struct {
	baseURL      *url.URL
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
	maxAttempts  int
	maxFileSize  int64
	cache        StatusCache
	obs          Observer
	log          *zap.Logger
}

func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("url.Parse failed: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL %q must be http or https", opts.BaseURL)
	}

	c := &Client{
		baseURL:      u,
		apiKey:       opts.APIKey,
		http:         opts.HTTPClient,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		maxFileSize:  opts.MaxFileSize,
		cache:        opts.Cache,
		obs:          opts.Observer,
		log:          opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.maxFileSize <= 0 {
		c.maxFileSize = DefaultMaxFileSize
	}
	if c.cache == nil {
		c.cache = NewMemoryCache(DefaultStatusTTL, DefaultMemoryCacheEntries)
	}
	if c.obs == nil {
		c.obs = nopObserver{}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}

	return c, nil
}

// MaxFileSize is the upload limit enforced before sending a file.
func (c *Client) MaxFileSize() int64 {
	return c.maxFileSize
}

// AnalyzeText submits email text as JSON.
func (c *Client) AnalyzeText(ctx context.Context, req AnalysisRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("json.Marshal failed: %w", err)
	}

	return c.send(ctx, http.MethodPost, pathAnalyze, "application/json", bytes.NewReader(body), false)
}

// AnalyzeFile submits a .txt or .pdf file as multipart form data.
func (c *Client) AnalyzeFile(ctx context.Context, f FileUpload) (Response, error) {
	if err := f.Validate(c.maxFileSize); err != nil {
		return Response{}, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, f.Filename))
	h.Set("Content-Type", baseMediaType(f.MediaType))

	part, err := mw.CreatePart(h)
	if err != nil {
		return Response{}, fmt.Errorf("mw.CreatePart failed: %w", err)
	}
	if _, err := part.Write(f.Content); err != nil {
		return Response{}, fmt.Errorf("part.Write failed: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Response{}, fmt.Errorf("mw.Close failed: %w", err)
	}

	return c.send(ctx, http.MethodPost, pathAnalyze, mw.FormDataContentType(), &buf, false)
}

// RunFixture asks the backend for a canned analysis of the given kind.
func (c *Client) RunFixture(ctx context.Context, kind string) (Response, error) {
	if err := validateFixture(kind); err != nil {
		return Response{}, err
	}

	return c.send(ctx, http.MethodGet, pathFixture+kind, "", nil, false)
}

// SendWebhook posts payload unchanged to the webhook endpoint.
func (c *Client) SendWebhook(ctx context.Context, payload map[string]any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, &Error{Kind: KindValidation, Message: "payload is not serializable", Err: err}
	}

	return c.send(ctx, http.MethodPost, pathWebhook, "application/json", bytes.NewReader(body), true)
}

// JobStatus queries the status endpoint once.
func (c *Client) JobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return JobStatus{}, validationError("job id is required")
	}

	raw, err := c.do(ctx, http.MethodGet, pathStatus+url.PathEscape(jobID), "", nil, false)
	if err != nil {
		return JobStatus{}, err
	}

	var s JobStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return JobStatus{}, &Error{Kind: KindTransport, Message: "malformed status reply", Err: err}
	}
	if s.JobID == "" {
		s.JobID = jobID
	}

	return s, nil
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader, withKey bool) (Response, error) {
	raw, err := c.do(ctx, method, path, contentType, body, withKey)
	if err != nil {
		return Response{}, err
	}

	return DecodeResponse(raw), nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, withKey bool) ([]byte, error) {
	target := c.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequestWithContext failed: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if withKey && c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	log := c.log.With(zap.String("request_id", requestID), zap.String("method", method), zap.String("path", path))
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		c.obs.RequestDone(endpointLabel(path), 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("backend request failed", zap.Error(err))
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	c.obs.RequestDone(endpointLabel(path), resp.StatusCode, time.Since(start))
	if err != nil {
		log.Warn("reading backend reply failed", zap.Error(err))
		return nil, transportError(err)
	}

	log.Debug("backend replied", zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, requestFailed(resp.StatusCode, raw)
	}

	return raw, nil
}

func requestFailed(status int, body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	msg := fmt.Sprintf("HTTP error! status: %d", status)
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error != "" && payload.Message != "":
			msg = payload.Error + ": " + payload.Message
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}

	return &Error{Kind: KindRequestFailed, Status: status, Message: msg}
}

func endpointLabel(path string) string {
	switch {
	case strings.HasPrefix(path, pathStatus):
		return "status"
	case strings.HasPrefix(path, pathFixture):
		return "fixture"
	case path == pathWebhook:
		return "webhook"
	default:
		return "analyze"
	}
}

// IsCanceled reports whether err comes from a cancelled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
