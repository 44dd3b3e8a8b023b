// Package workspace provisions the test project: cloning it from git,
// creating a Python virtualenv and installing its dependencies, and
// installing uploaded environment files. Every step is an opaque
// subprocess, killable through the context.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/web-sentinel/keeper/types"
)

const (
	DefaultBranch = "main"

	cloneTimeout   = 2 * time.Minute
	installTimeout = 20 * time.Minute
)

// Workspace manages the test project checkout
type Workspace struct {
	config Config
}

// Config holds configuration for creating a new workspace
type Config struct {
	Log        *slog.Logger
	RootDir    string // Directory holding the venv and the project checkout
	ProjectDir string // Checkout destination; removed and recreated on clone
	VenvDir    string // Virtualenv location; defaults to <RootDir>/.venv
}

// New creates a new workspace instance
func New(cfg Config) (*Workspace, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = filepath.Join(cfg.RootDir, "project")
	}
	if cfg.VenvDir == "" {
		cfg.VenvDir = filepath.Join(cfg.RootDir, ".venv")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Workspace{config: cfg}, nil
}

// ProjectDir returns the project checkout path
func (w *Workspace) ProjectDir() string {
	return w.config.ProjectDir
}

// VenvDir returns the virtualenv path
func (w *Workspace) VenvDir() string {
	return w.config.VenvDir
}

// Provision clones the test project at the given branch, replacing any
// existing checkout, and installs its Python dependencies when the project
// declares a package.
func (w *Workspace) Provision(ctx context.Context, repoURL, branch string) error {
	if repoURL == "" {
		return fmt.Errorf("repository URL is required")
	}
	if branch == "" {
		branch = DefaultBranch
	}

	if err := os.RemoveAll(w.config.ProjectDir); err != nil {
		return fmt.Errorf("removing existing checkout: %w", err)
	}

	w.config.Log.Info("Cloning test project", "repo", repoURL, "branch", branch)
	cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()
	if err := w.run(cloneCtx, w.config.RootDir, "git",
		"clone", "--branch", branch, "--single-branch", repoURL, w.config.ProjectDir); err != nil {
		return err
	}

	if !w.hasPythonPackage() {
		w.config.Log.Info("Project has no Python package, skipping dependency install")
		return nil
	}
	return w.installDeps(ctx)
}

// installDeps creates the venv and installs the project's dependencies,
// the browser runtime and the project itself in editable mode.
func (w *Workspace) installDeps(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	w.config.Log.Info("Creating virtualenv", "dir", w.config.VenvDir)
	if err := w.run(ctx, w.config.RootDir, "python", "-m", "venv", w.config.VenvDir); err != nil {
		return err
	}

	python := w.venvPython()
	w.config.Log.Info("Installing project dependencies, this can take a while")
	steps := [][]string{
		{"-m", "pip", "install", "--upgrade", "pip"},
		{"-m", "pip", "install", "-r", "requirements.txt", "-c", "constraints.txt"},
		{"-m", "playwright", "install"},
		{"-m", "pip", "install", "-e", "."},
	}
	for _, args := range steps {
		if err := w.run(ctx, w.config.ProjectDir, python, args...); err != nil {
			return err
		}
	}

	w.config.Log.Info("Project dependencies installed")
	return nil
}

// InstallEnvFile writes an uploaded environment file to the project's .env
// with owner-only permissions.
func (w *Workspace) InstallEnvFile(data []byte) (string, error) {
	dest := filepath.Join(w.config.ProjectDir, ".env")
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return "", fmt.Errorf("writing env file: %w", err)
	}
	w.config.Log.Info("Env file installed", "path", dest)
	return dest, nil
}

// hasPythonPackage reports whether the checkout declares a Python package
func (w *Workspace) hasPythonPackage() bool {
	for _, name := range []string{"setup.py", "pyproject.toml"} {
		if _, err := os.Stat(filepath.Join(w.config.ProjectDir, name)); err == nil {
			return true
		}
	}
	return false
}

// venvPython returns the venv interpreter path for the current platform
func (w *Workspace) venvPython() string {
	unix := filepath.Join(w.config.VenvDir, "bin", "python")
	if _, err := os.Stat(unix); err == nil {
		return unix
	}
	return filepath.Join(w.config.VenvDir, "Scripts", "python.exe")
}

func (w *Workspace) run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	w.config.Log.Debug("Running provisioning step", "command", name, "args", args)
	if err := cmd.Run(); err != nil {
		return types.NewCollaboratorError(name, output.String(), err)
	}
	return nil
}
