// mailtriage classifies emails through an analysis backend, from the command
// line or as an MCP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hal9000y/mailtriage/internal/config"
	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/logging"
	"github.com/hal9000y/mailtriage/internal/metrics"
	"github.com/hal9000y/mailtriage/internal/triage"
)

const usageText = `Usage: mailtriage [flags] <command> [args]

Commands:
  analyze [-sender addr] <text|->   classify email text (- reads stdin)
  upload <file>                     classify a .txt or .pdf file
  fixture <kind>                    run a sample: produtivo, improdutivo, spam, reclamacao
  webhook <file|->                  send a JSON payload to the webhook
  status [-wait] <job_id>           report an analysis job
  gmail [-max n] <query>            classify Gmail messages matching a search query
  serve                             run the MCP server (HTTP, optionally stdio)

Flags:
`

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	envFileParam := flag.String("env-file", "", "Path to env file")
	backendURL := flag.String("backend-url", "", "Analysis backend URL, overrides config")
	httpAddr := flag.String("http-addr", "", "HTTP SERVER listen addr, overrides config")
	oauthURLParam := flag.String("oauth-url", "", "OAuth URL, overrides config")
	enableStdio := flag.Bool("stdio", false, "Enable stdio transport for MCP (disables stdout logging)")
	logFile := flag.String("log-file", "", "Path to log file, overrides config")
	noColour := flag.Bool("no-colour", false, "Disable coloured output")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	mustLoadEnv(envFileParam)

	cfg := mustLoadConfig(*configPath, func(c *config.Config) {
		setIf(&c.BackendURL, *backendURL)
		setIf(&c.HTTPAddr, *httpAddr)
		setIf(&c.OAuthURL, *oauthURLParam)
		setIf(&c.LogFile, *logFile)
		if *noColour {
			c.Colours = false
		}
	})

	cmd := args[0]
	// only serve without stdio may log to stdout, commands print results there
	quiet := *enableStdio || cmd != "serve"

	log, flush, err := logging.New(cfg.LogLevel, cfg.LogFile, quiet)
	if err != nil {
		panic(fmt.Errorf("logging.New failed: %w", err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	cache, closeCache := mustStatusCache(ctx, cfg, log)
	defer closeCache()

	client := mustClient(cfg, cache, m, log)

	if cmd == "serve" {
		ctrl := controller.New(client, controller.LogNotifier{Log: log}, log)
		err = serve(ctx, cfg, *enableStdio, ctrl, m, log)
	} else {
		notifier := controller.Notifiers{
			controller.NewWriterNotifier(os.Stderr, cfg.Colours),
			controller.LogNotifier{Log: log},
		}
		ctrl := controller.New(client, notifier, log)
		err = runCommand(ctx, ctrl, cfg, args, log)
	}

	if err != nil {
		log.Error("command failed", zap.String("command", cmd), zap.Error(err))
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			flag.Usage()
			flush()
			os.Exit(2)
		}
		flush()
		os.Exit(1)
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mustLoadEnv(envFileParam *string) {
	if envFileParam == nil || *envFileParam == "" {
		return
	}
	if err := godotenv.Load(*envFileParam); err != nil {
		panic(fmt.Errorf("godotenv.Load failed: %w", err))
	}
}

func mustLoadConfig(path string, override func(*config.Config)) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		panic(fmt.Errorf("config.Load failed: %w", err))
	}

	override(&cfg)

	if err := cfg.Validate(); err != nil {
		panic(fmt.Errorf("cfg.Validate failed: %w", err))
	}

	return cfg
}

func mustStatusCache(ctx context.Context, cfg config.Config, log *zap.Logger) (triage.StatusCache, func()) {
	if cfg.RedisAddr == "" {
		return triage.NewMemoryCache(cfg.StatusTTL, triage.DefaultMemoryCacheEntries), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		panic(fmt.Errorf("rdb.Ping failed: %w", err))
	}

	log.Info("using redis status cache", zap.String("addr", cfg.RedisAddr))

	return triage.NewRedisCache(rdb, cfg.StatusTTL), func() {
		if err := rdb.Close(); err != nil {
			log.Warn("rdb.Close failed", zap.Error(err))
		}
	}
}

func mustClient(cfg config.Config, cache triage.StatusCache, obs triage.Observer, log *zap.Logger) *triage.Client {
	client, err := triage.NewClient(triage.Options{
		BaseURL:      cfg.BackendURL,
		APIKey:       cfg.APIKey,
		HTTPClient:   &http.Client{Timeout: cfg.RequestTimeout},
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
		MaxFileSize:  cfg.MaxFileSize,
		Cache:        cache,
		Observer:     obs,
		Logger:       log,
	})
	if err != nil {
		panic(fmt.Errorf("triage.NewClient failed: %w", err))
	}

	return client
}
