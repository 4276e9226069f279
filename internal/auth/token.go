// Package auth keeps the Google OAuth token used to read the Gmail inbox.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ErrTokenNotSet indicates the inbox has not been authorized yet.
var ErrTokenNotSet = errors.New("no token defined")

// ErrInvalidState is returned for an unknown, reused or expired state value.
var ErrInvalidState = errors.New("invalid or expired state parameter")

// DefaultStateTTL bounds how long an authorization link stays usable.
const DefaultStateTTL = 5 * time.Minute

// Token holds the OAuth token and the pending authorization states.
type Token struct {
	cfg         *oauth2.Config
	persistPath string
	log         *zap.Logger

	StateTTL time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	token  *oauth2.Token
	states map[string]time.Time
}

// NewToken loads the cached token from persistPath when the file exists. An
// empty path keeps the token in memory only.
func NewToken(cfg *oauth2.Config, persistPath string, log *zap.Logger) (*Token, error) {
	if log == nil {
		log = zap.NewNop()
	}

	t := &Token{
		cfg:         cfg,
		persistPath: persistPath,
		log:         log,
		StateTTL:    DefaultStateTTL,
		now:         time.Now,
		states:      make(map[string]time.Time),
	}
	if persistPath == "" {
		return t, nil
	}

	data, err := os.ReadFile(persistPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("token file not found, it is written after authorization", zap.String("path", persistPath))
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile failed: %w", err)
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("json.Unmarshal failed: %w", err)
	}
	t.token = token

	return t, nil
}

// RedirectURL returns the Google consent URL carrying a fresh state value.
func (t *Token) RedirectURL() (string, error) {
	state, err := t.newState()
	if err != nil {
		return "", fmt.Errorf("newState failed: %w", err)
	}

	return t.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (t *Token) newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read failed: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for s, exp := range t.states {
		if exp.Before(now) {
			delete(t.states, s)
		}
	}
	t.states[state] = now.Add(t.StateTTL)

	return state, nil
}

// consumeState accepts each state once, before it expires.
func (t *Token) consumeState(state string) bool {
	if state == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	exp, ok := t.states[state]
	if !ok {
		return false
	}
	delete(t.states, state)

	return !t.now().After(exp)
}

// AuthorizeCode exchanges the authorization code after checking state, and
// persists the resulting token.
func (t *Token) AuthorizeCode(ctx context.Context, code, state string) error {
	if !t.consumeState(state) {
		return ErrInvalidState
	}

	tok, err := t.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("cfg.Exchange failed: %w", err)
	}

	t.set(tok)
	t.log.Info("gmail authorized", zap.Time("expiry", tok.Expiry))

	return t.Persist()
}

// OAuthToken returns the current token.
func (t *Token) OAuthToken() (*oauth2.Token, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.token == nil {
		return nil, ErrTokenNotSet
	}

	return t.token, nil
}

// Client returns an HTTP client that refreshes the token as needed and
// persists refreshed tokens.
func (t *Token) Client(ctx context.Context) (*http.Client, error) {
	tok, err := t.OAuthToken()
	if err != nil {
		return nil, err
	}

	src := oauth2.ReuseTokenSource(tok, &savingSource{base: t.cfg.TokenSource(ctx, tok), tok: t})
	return oauth2.NewClient(ctx, src), nil
}

type savingSource struct {
	base oauth2.TokenSource
	tok  *Token
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	if cur, err := s.tok.OAuthToken(); err != nil || cur.AccessToken != tok.AccessToken {
		s.tok.set(tok)
		s.tok.log.Debug("oauth token refreshed", zap.Time("expiry", tok.Expiry))
		if err := s.tok.Persist(); err != nil {
			s.tok.log.Warn("refreshed token not persisted", zap.Error(err))
		}
	}

	return tok, nil
}

func (t *Token) set(tok *oauth2.Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = tok
}

// Persist writes the token to disk through a temp file and rename.
func (t *Token) Persist() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.persistPath == "" || t.token == nil {
		return nil
	}

	data, err := json.Marshal(t.token)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %w", err)
	}

	dir := filepath.Dir(t.persistPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("os.MkdirAll failed: %w", err)
	}

	f, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("os.CreateTemp failed: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("f.Write failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("f.Close failed: %w", err)
	}

	if err := os.Rename(f.Name(), t.persistPath); err != nil {
		return fmt.Errorf("os.Rename failed: %w", err)
	}

	return nil
}
