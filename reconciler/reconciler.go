// Package reconciler implements the ledger reconciliation pass: waiting for
// the runner's report, correlating its results and the produced artifact
// folders back to ledger entries by test name, and persisting the merged
// state atomically.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/web-sentinel/keeper/ledger"
	"github.com/web-sentinel/keeper/metrics"
	"github.com/web-sentinel/keeper/runner"
	"github.com/web-sentinel/keeper/types"
)

// Reconciler runs reconciliation passes against the ledger store
type Reconciler struct {
	config Config
	tracer trace.Tracer
}

// Config holds configuration for creating a new reconciler
type Config struct {
	Log           *slog.Logger
	Store         *ledger.Store
	ResultsDir    string            // Directory holding the report file and artifact folders
	ReportFile    string            // Report file path; defaults to <ResultsDir>/test-results.json
	PollInterval  time.Duration     // Interval between report existence checks
	ReportTimeout time.Duration     // Bound on the report wait
	Extractor     *runner.Extractor // Report parser; defaults to the standard field names
}

// NewReconciler creates a new reconciler instance
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.ResultsDir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.ReportFile == "" {
		cfg.ReportFile = filepath.Join(cfg.ResultsDir, runner.DefaultReportFileName)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = runner.DefaultPollInterval
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = runner.DefaultReportTimeout
	}
	if cfg.Extractor == nil {
		cfg.Extractor = runner.NewExtractor()
	}

	return &Reconciler{
		config: cfg,
		tracer: otel.Tracer("reconciler"),
	}, nil
}

// ReportFile returns the report file path this reconciler waits on
func (r *Reconciler) ReportFile() string {
	return r.config.ReportFile
}

// Run executes one reconciliation pass. Stages:
//
//  1. Await the report file (bounded, cancellable). A timeout aborts the
//     pass before any ledger change.
//  2. Extract the (name, outcome) pairs from the report.
//  3. Enumerate artifact folders with their cleaned names.
//  4. Under the store's serialization point: reset every defined
//     needs-upload flag, then merge results and folder matches, then
//     persist atomically.
//
// Correlation misses are counted and logged, never fatal. A failed persist
// aborts the pass and leaves the on-disk ledger untouched.
func (r *Reconciler) Run(ctx context.Context) (*types.PassResult, error) {
	ctx, span := r.tracer.Start(ctx, "reconciliation pass")
	defer span.End()

	start := time.Now()
	result := &types.PassResult{RunID: uuid.New().String()}
	r.config.Log.Info("Starting reconciliation pass", "run_id", result.RunID, "report", r.config.ReportFile)

	outcomes, err := r.awaitAndExtract(ctx)
	if err != nil {
		metrics.RecordErrorDetails("reconciliation", err)
		return nil, err
	}

	folders, err := ListFolders(r.config.ResultsDir)
	if err != nil {
		metrics.RecordErrorDetails("reconciliation", err)
		return nil, err
	}
	r.config.Log.Debug("Enumerated artifact folders", "count", len(folders))

	err = r.config.Store.Update(func(l *ledger.Ledger) error {
		reset := resetNeedUploadFlags(l)
		r.config.Log.Debug("Reset needs-upload flags", "run_id", result.RunID, "touched", reset)
		r.merge(l, outcomes, folders, result)
		return nil
	})
	if err != nil {
		metrics.RecordErrorDetails("reconciliation", err)
		return nil, err
	}

	result.Duration = time.Since(start)
	metrics.RecordPass(result.RunID, string(result.Status()), result.Matched, result.Missed, result.Duration)
	r.config.Log.Info("Reconciliation pass completed",
		"run_id", result.RunID,
		"matched", result.Matched,
		"missed", result.Missed,
		"folders_matched", result.FolderMatched,
		"folders_missed", result.FolderMissed,
		"duration", result.Duration)
	return result, nil
}

// awaitAndExtract waits for the report file and parses it. No ledger state
// is touched here, so a timeout or malformed report is all-or-nothing.
func (r *Reconciler) awaitAndExtract(ctx context.Context) ([]types.CaseOutcome, error) {
	ctx, span := r.tracer.Start(ctx, "await report")
	defer span.End()

	if err := runner.WaitForFile(ctx, r.config.ReportFile, r.config.PollInterval, r.config.ReportTimeout); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.config.ReportFile)
	if err != nil {
		return nil, fmt.Errorf("reading report file: %w", err)
	}

	outcomes, err := r.config.Extractor.Extract(data)
	if err != nil {
		return nil, err
	}
	r.config.Log.Debug("Extracted report results", "count", len(outcomes))
	return outcomes, nil
}

// merge applies extracted outcomes and folder matches to the ledger.
// Lookups return every case sharing the name; all of them are updated and
// collisions are counted as modeled ambiguity rather than resolved silently.
func (r *Reconciler) merge(l *ledger.Ledger, outcomes []types.CaseOutcome, folders []types.Folder, result *types.PassResult) {
	for _, outcome := range outcomes {
		matches := l.FindCasesByName(outcome.Name)
		if len(matches) == 0 {
			result.Missed++
			metrics.RecordCorrelationMiss("result")
			r.config.Log.Warn("Result has no matching ledger entry", "name", outcome.Name, "outcome", outcome.Outcome)
			continue
		}
		if len(matches) > 1 {
			result.Ambiguous++
			r.config.Log.Warn("Multiple ledger cases share a name", "name", outcome.Name, "cases", len(matches))
		}

		result.Matched++
		switch outcome.Outcome {
		case types.CaseStatusPassed:
			result.Passed++
		case types.CaseStatusFailed:
			result.Failed++
		case types.CaseStatusSkipped:
			result.Skipped++
		}

		folderMatches := matchFolders(folders, outcome.Name)
		if len(folderMatches) > 1 {
			result.Ambiguous++
			r.config.Log.Warn("Multiple artifact folders clean to the same name", "name", outcome.Name, "folders", len(folderMatches))
		}

		for _, c := range matches {
			c.SetLastResult(string(outcome.Outcome))
			c.SetNeedUpload(true)
			c.ClearLogPath()
			if len(folderMatches) > 0 {
				c.SetFolder(folderMatches[0].Raw, folderMatches[0].Clean)
			}
		}
	}

	// Count folder correlation separately so an unmatched folder surfaces
	// as a miss even though it changes nothing in the ledger.
	for _, folder := range folders {
		if len(l.FindCasesByName(folder.Clean)) == 0 {
			result.FolderMissed++
			metrics.RecordCorrelationMiss("folder")
			r.config.Log.Warn("Artifact folder has no matching ledger entry", "folder", folder.Raw, "clean", folder.Clean)
		} else {
			result.FolderMatched++
		}
	}
}

// matchFolders returns every folder whose cleaned name equals the case name
func matchFolders(folders []types.Folder, name string) []types.Folder {
	var matches []types.Folder
	for _, folder := range folders {
		if folder.Clean == name {
			matches = append(matches, folder)
		}
	}
	return matches
}

// resetNeedUploadFlags sets every defined needs-upload flag to false. Runs
// before any merge in the same pass, exactly once per pass, so only cases
// the pass touches end up flagged. Idempotent.
func resetNeedUploadFlags(l *ledger.Ledger) int {
	touched := 0
	for _, suite := range l.Suites() {
		for _, c := range suite.Cases() {
			if c.HasNeedUpload() {
				c.SetNeedUpload(false)
				touched++
			}
		}
	}
	return touched
}
