package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailtriage/internal/auth"
	"github.com/hal9000y/mailtriage/internal/config"
	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/format"
	"github.com/hal9000y/mailtriage/internal/gservice"
	"github.com/hal9000y/mailtriage/internal/metrics"
	"github.com/hal9000y/mailtriage/internal/tool"
)

var errStdioClosed = errors.New("stdio transport closed")

func serve(ctx context.Context, cfg config.Config, enableStdio bool, ctrl *controller.Controller, m *metrics.Metrics, log *zap.Logger) error {
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("net.Listen failed: %w", err)
	}

	var (
		mcpSrv  *mcp.Server
		authTok *auth.Token
	)

	oauthCfg, ok := oauthConfig(ln.Addr().String(), cfg.OAuthURL)
	if ok {
		authTok, err = auth.NewToken(oauthCfg, cfg.GmailTokenFile, log)
		if err != nil {
			return fmt.Errorf("auth.NewToken failed: %w", err)
		}
		mcpSrv = tool.NewServer(ctrl, gservice.NewMailbox(authTok), format.Converter{})
	} else {
		log.Info("OAUTH_GOOGLE_CLIENT_ID and OAUTH_GOOGLE_CLIENT_SECRET not set, gmail triage disabled")
		mcpSrv = tool.NewServer(ctrl, nil, nil)
	}

	var authHTTP http.Handler
	if authTok != nil {
		authHTTP = auth.NewHTTPHandler(authTok, log)
	}

	srv := &http.Server{
		Handler:           routes(mcpSrv, authHTTP, m),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(log),
	}

	if authTok != nil {
		if _, err := authTok.OAuthToken(); errors.Is(err, auth.ErrTokenNotSet) {
			openBrowser(oauthCfg.RedirectURL, log)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("srv.Serve failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("srv.Shutdown failed: %w", err)
		}
		return nil
	})

	if enableStdio {
		g.Go(func() error {
			log.Info("starting stdio transport")
			if err := mcpSrv.Run(gctx, &mcp.StdioTransport{}); err != nil && gctx.Err() == nil {
				return fmt.Errorf("mcpSrv.Run failed: %w", err)
			}
			return errStdioClosed
		})
	}

	err = g.Wait()

	if authTok != nil {
		if perr := authTok.Persist(); perr != nil {
			log.Warn("authTok.Persist failed", zap.Error(perr))
		}
	}

	if errors.Is(err, errStdioClosed) {
		return nil
	}
	return err
}

// routes mounts the MCP, OAuth, metrics and health endpoints. authHTTP may
// be nil when Gmail is not configured.
func routes(mcpSrv *mcp.Server, authHTTP http.Handler, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return mcpSrv }, nil))
	if authHTTP != nil {
		r.Handle("/oauth", authHTTP)
	}
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "gmail": authHTTP != nil})
	})

	return r
}

func oauthConfig(lnAddr, oauthURL string) (*oauth2.Config, bool) {
	clientID := os.Getenv("OAUTH_GOOGLE_CLIENT_ID")
	clientSec := os.Getenv("OAUTH_GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSec == "" {
		return nil, false
	}

	if oauthURL == "" {
		oauthURL = fmt.Sprintf("http://%s/oauth", lnAddr)
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSec,
		RedirectURL:  oauthURL,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}, true
}

func openBrowser(url string, log *zap.Logger) {
	url = fmt.Sprintf("%s?redirect=1", url)
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		log.Warn("could not open browser, open the link manually", zap.String("url", url), zap.Error(err))
	}
}
