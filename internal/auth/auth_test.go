package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/hal9000y/mailtriage/internal/auth"
)

type tokenEndpoint struct {
	srv   *httptest.Server
	calls atomic.Int32
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()

	te := &tokenEndpoint{}
	te.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.calls.Add(1)
		if err := r.ParseForm(); err == nil && r.PostForm.Get("grant_type") == "refresh_token" && r.PostForm.Get("refresh_token") == "r" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"access-refreshed","token_type":"Bearer","expires_in":3600}`))
			return
		}
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1234","token_type":"Bearer","refresh_token":"r","expires_in":3600}`))
	}))
	t.Cleanup(te.srv.Close)

	return te
}

func (te *tokenEndpoint) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/oauth",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  te.srv.URL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func stateOf(t *testing.T, tok *auth.Token) string {
	t.Helper()

	raw, err := tok.RedirectURL()
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "accounts.example.com", u.Host)
	assert.Equal(t, "offline", u.Query().Get("access_type"))

	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestAuthorizeCodePersists(t *testing.T) {
	te := newTokenEndpoint(t)
	path := filepath.Join(t.TempDir(), "data", "token.json")

	tok, err := auth.NewToken(te.config(), path, nil)
	require.NoError(t, err)

	_, err = tok.OAuthToken()
	require.ErrorIs(t, err, auth.ErrTokenNotSet)

	require.NoError(t, tok.AuthorizeCode(context.Background(), "good-code", stateOf(t, tok)))

	got, err := tok.OAuthToken()
	require.NoError(t, err)
	assert.Equal(t, "access-1234", got.AccessToken)

	reloaded, err := auth.NewToken(te.config(), path, nil)
	require.NoError(t, err)
	got, err = reloaded.OAuthToken()
	require.NoError(t, err)
	assert.Equal(t, "access-1234", got.AccessToken)
}

func TestAuthorizeCodeStates(t *testing.T) {
	te := newTokenEndpoint(t)

	tok, err := auth.NewToken(te.config(), "", nil)
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, tok.AuthorizeCode(ctx, "good-code", ""), auth.ErrInvalidState)
	assert.ErrorIs(t, tok.AuthorizeCode(ctx, "good-code", "forged"), auth.ErrInvalidState)

	state := stateOf(t, tok)
	assert.Error(t, tok.AuthorizeCode(ctx, "bad-code", state))
	// a state is single use even when the exchange fails
	assert.ErrorIs(t, tok.AuthorizeCode(ctx, "good-code", state), auth.ErrInvalidState)

	tok.StateTTL = -time.Second
	assert.ErrorIs(t, tok.AuthorizeCode(ctx, "good-code", stateOf(t, tok)), auth.ErrInvalidState)

	assert.Equal(t, int32(1), te.calls.Load())
}

func TestClientRequiresToken(t *testing.T) {
	te := newTokenEndpoint(t)

	tok, err := auth.NewToken(te.config(), "", nil)
	require.NoError(t, err)

	_, err = tok.Client(context.Background())
	assert.ErrorIs(t, err, auth.ErrTokenNotSet)
}

func TestClientPersistsRefreshedToken(t *testing.T) {
	te := newTokenEndpoint(t)
	path := filepath.Join(t.TempDir(), "token.json")

	expired := oauth2.Token{AccessToken: "old", TokenType: "Bearer", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)}
	raw, err := json.Marshal(expired)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	var gotAuth atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
	}))
	defer api.Close()

	tok, err := auth.NewToken(te.config(), path, nil)
	require.NoError(t, err)

	client, err := tok.Client(context.Background())
	require.NoError(t, err)

	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "Bearer access-refreshed", gotAuth.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var saved oauth2.Token
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "access-refreshed", saved.AccessToken)
	// the refresh token survives when the endpoint does not return a new one
	assert.Equal(t, "r", saved.RefreshToken)
}

func TestHTTPHandler(t *testing.T) {
	te := newTokenEndpoint(t)

	tok, err := auth.NewToken(te.config(), "", nil)
	require.NoError(t, err)

	h := auth.NewHTTPHandler(tok, nil)
	noFollow := func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	srv := httptest.NewServer(h)
	defer srv.Close()
	clt := &http.Client{CheckRedirect: noFollow}

	status := func() (int, auth.Status) {
		resp, err := clt.Get(srv.URL + "/oauth")
		require.NoError(t, err)
		defer resp.Body.Close()

		var s auth.Status
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
		return resp.StatusCode, s
	}

	code, s := status()
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, s.Authorized)

	resp, err := clt.Get(srv.URL + "/oauth?redirect=1")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err = clt.Get(srv.URL + "/oauth?code=good-code&state=wrong")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = clt.Get(srv.URL + "/oauth?code=good-code&state=" + url.QueryEscape(state))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/oauth", resp.Header.Get("Location"))

	code, s = status()
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, s.Authorized)
	assert.Equal(t, "XXXXXXX1234", s.Token)
	assert.NotEmpty(t, s.Expiry)
}
