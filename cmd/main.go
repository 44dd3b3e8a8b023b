package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	keeper "github.com/web-sentinel/keeper"
	"github.com/web-sentinel/keeper/exitcodes"
	"github.com/web-sentinel/keeper/flags"
	"github.com/web-sentinel/keeper/service"
)

var (
	Version   = "v0.3.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "sentinel-keeper"
	app.Usage = "UI Test Suite Execution & Ledger Reconciliation Service"
	app.Description = "sentinel-keeper runs UI test suites and reconciles their results into the ledger"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if keeper.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if keeper.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		slog.Error("Failed to setup open telemetry", "error", err)
		os.Exit(exitcodes.RuntimeErr)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(ctx *cli.Context) error {
	log := newLogger(ctx.String(flags.LogLevel.Name))
	slog.SetDefault(log)

	cfg, err := keeper.NewConfig(
		ctx,
		log,
		ctx.String(flags.LedgerFile.Name),
		ctx.String(flags.ProjectDir.Name),
		ctx.String(flags.Suite.Name),
	)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return keeper.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	appCtx, cancel := context.WithCancelCause(ctx.Context)
	defer cancel(nil)

	k, err := keeper.New(appCtx, cfg, Version, cancel)
	if err != nil {
		return keeper.NewRuntimeError(fmt.Errorf("failed to create keeper: %w", err))
	}

	// Start the healthz, metrics and API servers
	svc := service.New(k, log, cfg.APIAddr)
	svc.Start(appCtx)
	defer svc.Shutdown()

	if err := k.Start(appCtx); err != nil {
		return err
	}

	<-appCtx.Done()
	if err := k.Stop(context.Background()); err != nil {
		log.Error("Error stopping keeper", "error", err)
	}

	if cause := context.Cause(appCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// newLogger builds a text logger at the requested level, defaulting to info
// on unknown level names.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
