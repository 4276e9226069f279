package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hal9000y/mailtriage/internal/config"
	"github.com/hal9000y/mailtriage/internal/controller"
	"github.com/hal9000y/mailtriage/internal/render"
	"github.com/hal9000y/mailtriage/internal/triage"
)

var errUsage = errors.New("invalid usage")

func runCommand(ctx context.Context, ctrl *controller.Controller, cfg config.Config, args []string, log *zap.Logger) error {
	if args[0] == "gmail" {
		mb, err := gmailMailbox(cfg, log)
		if err != nil {
			return err
		}
		return runGmail(ctx, ctrl, mb, args[1:], os.Stdout, cfg.Colours)
	}

	out, err := dispatch(ctx, ctrl, args, os.Stdin)
	if err != nil {
		return err
	}

	if err := render.Text(os.Stdout, out.Summary, render.Options{Colours: cfg.Colours}); err != nil {
		return fmt.Errorf("render.Text failed: %w", err)
	}

	if out.Summary.Branch == render.BranchError {
		return fmt.Errorf("backend reported: %s", out.Summary.Error)
	}
	return nil
}

func dispatch(ctx context.Context, ctrl *controller.Controller, args []string, stdin io.Reader) (controller.Outcome, error) {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "analyze":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		sender := fs.String("sender", "", "Sender address")
		if err := fs.Parse(rest); err != nil {
			return controller.Outcome{}, fmt.Errorf("%w: %v", errUsage, err)
		}

		text, err := argOrStdin(strings.Join(fs.Args(), " "), stdin)
		if err != nil {
			return controller.Outcome{}, err
		}
		return ctrl.Analyze(ctx, text, *sender)

	case "upload":
		path, err := single(cmd, rest)
		if err != nil {
			return controller.Outcome{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return controller.Outcome{}, fmt.Errorf("os.ReadFile failed: %w", err)
		}
		if err := ctrl.SelectFile(triage.NewFileUpload(filepath.Base(path), "", data)); err != nil {
			return controller.Outcome{}, err
		}
		return ctrl.Upload(ctx)

	case "fixture":
		kind, err := single(cmd, rest)
		if err != nil {
			return controller.Outcome{}, err
		}
		return ctrl.Fixture(ctx, kind)

	case "webhook":
		src, err := single(cmd, rest)
		if err != nil {
			return controller.Outcome{}, err
		}
		raw, err := readSource(src, stdin)
		if err != nil {
			return controller.Outcome{}, err
		}
		return ctrl.Webhook(ctx, raw)

	case "status":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		wait := fs.Bool("wait", false, "Poll until the job finishes")
		if err := fs.Parse(rest); err != nil {
			return controller.Outcome{}, fmt.Errorf("%w: %v", errUsage, err)
		}
		jobID, err := single(cmd, fs.Args())
		if err != nil {
			return controller.Outcome{}, err
		}
		return ctrl.Status(ctx, jobID, *wait)
	}

	return controller.Outcome{}, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func single(cmd string, args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", fmt.Errorf("%w: %s takes exactly one argument", errUsage, cmd)
	}
	return args[0], nil
}

func argOrStdin(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("io.ReadAll failed: %w", err)
	}
	return string(data), nil
}

func readSource(src string, stdin io.Reader) ([]byte, error) {
	if src == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("io.ReadAll failed: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile failed: %w", err)
	}
	return data, nil
}
