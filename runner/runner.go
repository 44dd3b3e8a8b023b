// Package runner invokes the external test runner collaborator and parses
// the report file it produces. The runner subprocess is opaque: its exit
// code only says whether the process ran, outcomes are read from the report.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/web-sentinel/keeper/types"
)

var _ TestRunner = (*pytestRunner)(nil)

// TestRunner defines the interface for executing an ordered list of test
// script identifiers.
type TestRunner interface {
	// RunScripts executes the given scripts in order and returns the captured
	// subprocess output. A non-zero exit caused by failing tests is not an
	// error; outcomes are read from the report file, not the exit code.
	RunScripts(ctx context.Context, scripts []string) (string, error)
}

// Config holds configuration for creating a new runner
type Config struct {
	Log          *slog.Logger
	ProjectDir   string        // Directory holding the test project; the subprocess working directory
	VenvDir      string        // Python virtualenv to prefer; empty to fall back to PATH lookup
	PythonBinary string        // Explicit interpreter override
	Timeout      time.Duration // Kill the subprocess after this long; 0 = no bound
}

// pytestRunner runs test scripts through `python -m pytest`
type pytestRunner struct {
	config Config
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.ProjectDir == "" {
		return nil, fmt.Errorf("project directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
		cfg.Log.Error("No logger provided, using default")
	}
	return &pytestRunner{config: cfg}, nil
}

// RunScripts implements the TestRunner interface
func (r *pytestRunner) RunScripts(ctx context.Context, scripts []string) (string, error) {
	if len(scripts) == 0 {
		return "", fmt.Errorf("no test scripts provided")
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	python := r.resolvePython()
	args := append([]string{ModuleFlag, PytestModule}, scripts...)

	r.config.Log.Info("Running test scripts", "python", python, "scripts", len(scripts))
	r.config.Log.Debug("Runner command", "args", args, "dir", r.config.ProjectDir)

	cmd := exec.CommandContext(ctx, python, args...)
	cmd.Dir = r.config.ProjectDir
	// Give the subprocess a moment to flush output after a cancellation kill
	cmd.WaitDelay = 10 * time.Second

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runErr != nil {
		if ctx.Err() != nil {
			return output.String(), fmt.Errorf("test runner canceled: %w", ctx.Err())
		}
		exitErr := &exec.ExitError{}
		if errors.As(runErr, &exitErr) && exitErr.ExitCode() == 1 {
			// Exit code 1 means the process ran but some tests failed.
			// Outcomes come from the report file.
			r.config.Log.Debug("Test runner reported failing tests", "duration", duration)
		} else {
			return output.String(), types.NewCollaboratorError("test runner", output.String(), runErr)
		}
	}

	r.config.Log.Info("Test runner finished", "duration", duration)
	return output.String(), nil
}

// resolvePython picks the interpreter: explicit override, then the project
// venv (either platform layout), then whatever is on PATH.
func (r *pytestRunner) resolvePython() string {
	if r.config.PythonBinary != "" {
		return r.config.PythonBinary
	}
	if r.config.VenvDir != "" {
		candidates := []string{
			filepath.Join(r.config.VenvDir, "bin", "python"),
			filepath.Join(r.config.VenvDir, "Scripts", "python.exe"),
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return DefaultPythonBinary
}
