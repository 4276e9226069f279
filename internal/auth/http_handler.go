package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type tokenStore interface {
	AuthorizeCode(ctx context.Context, code, state string) error
	OAuthToken() (*oauth2.Token, error)
	RedirectURL() (string, error)
}

// HTTPHandler serves the OAuth flow: ?redirect=1 starts it, ?code=&state=
// completes it, and a bare request reports the token status as JSON.
type HTTPHandler struct {
	tok tokenStore
	log *zap.Logger
}

func NewHTTPHandler(tok tokenStore, log *zap.Logger) *HTTPHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPHandler{tok: tok, log: log}
}

// Status is the body of a status request.
type Status struct {
	Authorized bool   `json:"authorized"`
	Token      string `json:"token,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("redirect") != "" {
		u, err := h.tok.RedirectURL()
		if err != nil {
			h.log.Error("building consent url failed", zap.Error(err))
			http.Error(w, "Unable to start authorization", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	if code := q.Get("code"); code != "" {
		if err := h.tok.AuthorizeCode(r.Context(), code, q.Get("state")); err != nil {
			h.log.Warn("authorization failed", zap.Error(err))
			http.Error(w, "Unable to authorize provided code", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, r.URL.EscapedPath(), http.StatusFound)
		return
	}

	status := Status{}
	code := http.StatusUnauthorized

	t, err := h.tok.OAuthToken()
	switch {
	case errors.Is(err, ErrTokenNotSet):
	case err != nil:
		h.log.Error("reading token failed", zap.Error(err))
		http.Error(w, "Unable to read token", http.StatusInternalServerError)
		return
	default:
		code = http.StatusOK
		status = Status{Authorized: true, Token: maskLeft(t.AccessToken)}
		if !t.Expiry.IsZero() {
			status.Expiry = t.Expiry.Format(time.RFC3339)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// maskLeft hides all but the last four runes.
func maskLeft(s string) string {
	rs := []rune(s)
	for i := 0; i < len(rs)-4; i++ {
		rs[i] = 'X'
	}
	return string(rs)
}
