package keeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v2"

	"github.com/web-sentinel/keeper/exitcodes"
	"github.com/web-sentinel/keeper/ledger"
	"github.com/web-sentinel/keeper/reconciler"
	"github.com/web-sentinel/keeper/registry"
	"github.com/web-sentinel/keeper/runner"
	"github.com/web-sentinel/keeper/service"
	"github.com/web-sentinel/keeper/tracker"
	"github.com/web-sentinel/keeper/types"
	"github.com/web-sentinel/keeper/uploader"
	"github.com/web-sentinel/keeper/workspace"
)

// keeper implements the service.Core interface.
var _ service.Core = &keeper{}

// keeper runs test suites and reconciles their results into the ledger.
type keeper struct {
	ctx     context.Context
	config  *Config
	version string

	store      *ledger.Store
	registry   *registry.Registry
	runner     runner.TestRunner
	reconciler *reconciler.Reconciler
	uploader   *uploader.Uploader // nil when no uploader command is configured
	pusher     *tracker.Pusher    // nil when no pusher command is configured
	workspace  *workspace.Workspace

	results []*types.SuiteRun

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	// runMu serializes whole passes: a suite run, a project run and a bare
	// reconcile never interleave their ledger read-modify-write cycles.
	runMu sync.Mutex

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*keeper, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating keeper with config",
		"ledgerFile", config.LedgerFile,
		"projectDir", config.ProjectDir,
		"resultsDir", config.ResultsDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	store, err := ledger.NewStore(ledger.Config{
		Log:  config.Log,
		Path: config.LedgerFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger store: %w", err)
	}

	reg, err := registry.NewRegistry(registry.Config{
		Log:   config.Log,
		Store: store,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	ws, err := workspace.New(workspace.Config{
		Log:        config.Log,
		RootDir:    config.RootDir,
		ProjectDir: config.ProjectDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Log:          config.Log,
		ProjectDir:   config.ProjectDir,
		VenvDir:      ws.VenvDir(),
		PythonBinary: config.PythonBinary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	rec, err := reconciler.NewReconciler(reconciler.Config{
		Log:           config.Log,
		Store:         store,
		ResultsDir:    config.ResultsDir,
		ReportFile:    config.ReportFile,
		PollInterval:  config.PollInterval,
		ReportTimeout: config.ReportTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}

	k := &keeper{
		ctx:              ctx,
		config:           config,
		version:          version,
		store:            store,
		registry:         reg,
		runner:           testRunner,
		reconciler:       rec,
		workspace:        ws,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}

	if config.UploaderCommand != "" {
		k.uploader, err = uploader.NewUploader(uploader.Config{
			Log:        config.Log,
			Store:      store,
			ResultsDir: config.ResultsDir,
			Command:    config.UploaderCommand,
			WorkDir:    config.ProjectDir,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create uploader: %w", err)
		}
	}
	if config.PusherCommand != "" {
		k.pusher, err = tracker.NewPusher(tracker.Config{
			Log:       config.Log,
			Store:     store,
			Command:   config.PusherCommand,
			WorkDir:   config.ProjectDir,
			ExportDir: config.ResultsDir,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pusher: %w", err)
		}
	}

	config.Log.Info("keeper.New: created ledger store, registry and test runner")
	return k, nil
}

// Start runs the configured suites and reconciles results, periodically at
// the configured interval or once.
func (k *keeper) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			k.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	k.ctx = ctx
	k.done = make(chan struct{})
	k.running.Store(true)

	if k.config.RunOnce {
		k.config.Log.Info("Starting sentinel-keeper in run-once mode")
	} else {
		k.config.Log.Info("Starting sentinel-keeper in continuous mode", "interval", k.config.RunInterval)
	}

	// Run immediately on startup
	err := k.runScheduled(ctx)
	if err != nil {
		k.config.Log.Error("Runtime error running suites", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// If in run-once mode, trigger shutdown and return
	if k.config.RunOnce {
		k.config.Log.Info("Run completed, exiting (run-once mode)")

		if failed := k.failedCases(); failed > 0 {
			k.config.Log.Warn("Run-once pass completed with failures, returning exit code 1", "failed", failed)
			return NewTestFailureError(fmt.Sprintf("%d test case(s) failed", failed))
		}

		go func() {
			k.shutdownCallback(nil)
		}()
		return nil
	}

	// Start a goroutine for periodic execution
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.config.Log.Debug("Starting periodic runner goroutine", "interval", k.config.RunInterval)

		for {
			select {
			case <-time.After(k.config.RunInterval):
				if !k.running.Load() {
					k.config.Log.Debug("Service stopped, exiting periodic runner")
					return
				}

				k.config.Log.Info("Running scheduled suites")
				if err := k.runScheduled(ctx); err != nil {
					k.config.Log.Error("Error running scheduled suites", "error", err)
				}

			case <-k.done:
				k.config.Log.Debug("Done signal received, stopping periodic runner")
				return

			case <-ctx.Done():
				k.config.Log.Debug("Context canceled, stopping periodic runner")
				k.running.Store(false)
				return
			}
		}
	}()
	k.config.Log.Debug("sentinel-keeper started successfully")
	return nil
}

// runScheduled runs the target suite, or every suite in the ledger when no
// target is configured, and prints the results.
func (k *keeper) runScheduled(ctx context.Context) error {
	var runs []*types.SuiteRun
	var err error

	if k.config.TargetSuite != "" {
		var run *types.SuiteRun
		run, err = k.RunSuite(ctx, k.config.TargetSuite)
		if run != nil {
			runs = []*types.SuiteRun{run}
		}
	} else {
		runs, err = k.RunProject(ctx)
	}
	if err != nil {
		return NewRuntimeError(err)
	}

	k.results = runs
	k.printResultsTable(runs)
	return nil
}

// RunSuite expands the named suite, runs its scripts and reconciles the
// resulting report into the ledger.
func (k *keeper) RunSuite(ctx context.Context, suite string) (*types.SuiteRun, error) {
	k.runMu.Lock()
	defer k.runMu.Unlock()
	return k.runSuiteLocked(ctx, suite)
}

func (k *keeper) runSuiteLocked(ctx context.Context, suite string) (*types.SuiteRun, error) {
	scripts, err := k.registry.ExpandSuite(suite)
	if err != nil {
		return nil, err
	}
	k.config.Log.Info("Running suite", "suite", suite, "scripts", len(scripts))

	// A stale report from a previous run would satisfy the report wait
	// before the runner has produced anything.
	k.removeStaleReport()

	output, err := k.runner.RunScripts(ctx, scripts)
	if err != nil {
		return nil, fmt.Errorf("suite %q: %w", suite, err)
	}
	k.config.Log.Debug("Runner finished", "suite", suite, "outputBytes", len(output))

	pass, err := k.reconciler.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("suite %q: %w", suite, err)
	}

	return &types.SuiteRun{
		Suite:   suite,
		Scripts: len(scripts),
		Pass:    pass,
	}, nil
}

// RunProject runs every suite in the ledger in declaration order, each
// followed by its own reconciliation pass.
func (k *keeper) RunProject(ctx context.Context) ([]*types.SuiteRun, error) {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	names, err := k.registry.SuiteNames()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("ledger declares no suites")
	}

	runs := make([]*types.SuiteRun, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		run, err := k.runSuiteLocked(ctx, name)
		if err != nil {
			// Suites without runnable scripts are skipped, not fatal
			if errors.Is(err, registry.ErrEmptySuite) {
				k.config.Log.Warn("Skipping suite without runnable scripts", "suite", name)
				continue
			}
			return runs, fmt.Errorf("project run stopped at suite %q: %w", name, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Reconcile runs a bare reconciliation pass against whatever report the
// results directory currently holds.
func (k *keeper) Reconcile(ctx context.Context) (*types.PassResult, error) {
	k.runMu.Lock()
	defer k.runMu.Unlock()
	return k.reconciler.Run(ctx)
}

// UploadArtifacts sweeps the artifact folders through the uploader
// collaborator and annotates the ledger with the returned locators.
func (k *keeper) UploadArtifacts(ctx context.Context, creds uploader.Credentials) (*uploader.SweepResult, error) {
	if k.uploader == nil {
		return nil, errors.New("no uploader command configured")
	}
	return k.uploader.UploadAll(ctx, creds)
}

// PushTracker exports the ledger and pushes it through the tracking-system
// collaborator.
func (k *keeper) PushTracker(ctx context.Context, creds tracker.Credentials) (*tracker.PushResult, error) {
	if k.pusher == nil {
		return nil, errors.New("no pusher command configured")
	}
	return k.pusher.Push(ctx, creds)
}

// LedgerJSON returns the current ledger serialized with its key order intact.
func (k *keeper) LedgerJSON(ctx context.Context) ([]byte, error) {
	l, err := k.store.Load()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(l, "", "  ")
}

// ProvisionWorkspace replaces the project checkout. It holds the run lock so
// the checkout is never replaced under a running suite.
func (k *keeper) ProvisionWorkspace(ctx context.Context, repoURL, branch string) error {
	k.runMu.Lock()
	defer k.runMu.Unlock()
	return k.workspace.Provision(ctx, repoURL, branch)
}

// InstallEnvFile places an environment file into the project checkout.
func (k *keeper) InstallEnvFile(data []byte) (string, error) {
	return k.workspace.InstallEnvFile(data)
}

// removeStaleReport deletes a leftover report file; a missing file is fine.
func (k *keeper) removeStaleReport() {
	path := k.reconciler.ReportFile()
	if err := os.Remove(path); err == nil {
		k.config.Log.Debug("Removed stale report file", "path", path)
	} else if !os.IsNotExist(err) {
		k.config.Log.Warn("Failed to remove stale report file", "path", path, "error", err)
	}
}

// failedCases sums the failed counts over the most recent run.
func (k *keeper) failedCases() int {
	failed := 0
	for _, run := range k.results {
		if run.Pass != nil {
			failed += run.Pass.Failed
		}
	}
	return failed
}

// Stop stops the sentinel-keeper service.
func (k *keeper) Stop(ctx context.Context) error {
	k.config.Log.Info("Stopping sentinel-keeper")

	if !k.running.Load() {
		k.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new runs
	k.running.Store(false)

	k.config.Log.Debug("Sending done signal to goroutines")
	close(k.done)

	k.config.Log.Info("sentinel-keeper stopped successfully")
	return nil
}

// Stopped returns true if the sentinel-keeper service is stopped.
func (k *keeper) Stopped() bool {
	return !k.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (k *keeper) WaitForShutdown(ctx context.Context) error {
	k.config.Log.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		k.config.Log.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		k.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}

// printResultsTable prints the pass results to the console.
func (k *keeper) printResultsTable(runs []*types.SuiteRun) {
	k.config.Log.Info("Printing results...")

	var totalDuration time.Duration
	totals := &types.PassResult{}
	for _, run := range runs {
		if run.Pass == nil {
			continue
		}
		totals.Matched += run.Pass.Matched
		totals.Missed += run.Pass.Missed
		totals.Passed += run.Pass.Passed
		totals.Failed += run.Pass.Failed
		totals.Skipped += run.Pass.Skipped
		totalDuration += run.Pass.Duration
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Suite Run Results (%s)", formatDuration(totalDuration)))

	t.AppendHeader(table.Row{
		"Suite", "Scripts", "Duration", "Matched", "Missed", "Passed", "Failed", "Skipped", "Status",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Suite", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Scripts", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Matched", Align: text.AlignRight},
		{Name: "Missed", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
	})

	for _, run := range runs {
		if run.Pass == nil {
			continue
		}
		t.AppendRow(table.Row{
			run.Suite,
			run.Scripts,
			formatDuration(run.Pass.Duration),
			run.Pass.Matched,
			run.Pass.Missed,
			run.Pass.Passed,
			run.Pass.Failed,
			run.Pass.Skipped,
			getResultString(run.Pass.Status()),
		})
	}

	status := totals.Status()
	if status == types.CaseStatusPassed {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if status == types.CaseStatusSkipped {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(totalDuration),
		totals.Matched,
		totals.Missed,
		totals.Passed,
		totals.Failed,
		totals.Skipped,
		getResultString(status),
	})

	t.Render()
}

// getResultString returns a colored string representing the pass result
func getResultString(status types.CaseStatus) string {
	switch status {
	case types.CaseStatusPassed:
		return "✓ pass"
	case types.CaseStatusSkipped:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
