package reconciler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web-sentinel/keeper/ledger"
	"github.com/web-sentinel/keeper/runner"
	"github.com/web-sentinel/keeper/types"
)

const testLedger = `{
  "Login Suite": {
    "Test suite name": "Login Suite",
    "Test case 1": {
      "Name": "Login with valid credentials",
      "Default Test Script": "tests/test_login.py::test_valid",
      "Last Result": "failed",
      "Need Upload": "True",
      "Log Path": "https://artifacts.example.com/old-run"
    },
    "Test case 2": {
      "Name": "Login with invalid credentials",
      "Default Test Script": "tests/test_login.py::test_invalid",
      "Need Upload": "True"
    },
    "Test case 3": {
      "Name": "Untouched case",
      "Default Test Script": "tests/test_login.py::test_untouched",
      "Need Upload": "True"
    }
  }
}`

const testReport = `{"run-1": [
  {"jazz_id": "Login with valid credentials", "outcome": "passed"},
  {"jazz_id": "Login with invalid credentials", "outcome": "failed"},
  {"jazz_id": "Result without ledger entry", "outcome": "passed"}
]}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store      *ledger.Store
	resultsDir string
	reconciler *Reconciler
}

func newFixture(t *testing.T, reportTimeout time.Duration) *fixture {
	t.Helper()
	dir := t.TempDir()

	ledgerPath := filepath.Join(dir, "ledger.json")
	require.NoError(t, os.WriteFile(ledgerPath, []byte(testLedger), 0o644))

	resultsDir := filepath.Join(dir, "test-results")
	require.NoError(t, os.MkdirAll(resultsDir, 0o755))

	store, err := ledger.NewStore(ledger.Config{Path: ledgerPath})
	require.NoError(t, err)

	rec, err := NewReconciler(Config{
		Log:           discardLogger(),
		Store:         store,
		ResultsDir:    resultsDir,
		PollInterval:  5 * time.Millisecond,
		ReportTimeout: reportTimeout,
	})
	require.NoError(t, err)

	return &fixture{store: store, resultsDir: resultsDir, reconciler: rec}
}

func (f *fixture) writeReport(t *testing.T, report string) {
	t.Helper()
	require.NoError(t, os.WriteFile(
		filepath.Join(f.resultsDir, runner.DefaultReportFileName), []byte(report), 0o644))
}

func (f *fixture) mkFolder(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.Mkdir(filepath.Join(f.resultsDir, name), 0o755))
}

func TestNewReconcilerValidation(t *testing.T) {
	_, err := NewReconciler(Config{})
	assert.Error(t, err)

	store, err := ledger.NewStore(ledger.Config{Path: filepath.Join(t.TempDir(), "l.json")})
	require.NoError(t, err)
	_, err = NewReconciler(Config{Store: store})
	assert.Error(t, err, "results directory is required")
}

func TestRunMergesResults(t *testing.T) {
	f := newFixture(t, time.Second)
	f.writeReport(t, testReport)
	f.mkFolder(t, "Login with valid credentials [chrome]")
	f.mkFolder(t, "Orphan folder [chrome]")

	result, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 1, result.Missed)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 1, result.FolderMatched)
	assert.Equal(t, 1, result.FolderMissed)

	l, err := f.store.Load()
	require.NoError(t, err)

	matched := l.FindCasesByName("Login with valid credentials")
	require.Len(t, matched, 1)
	assert.Equal(t, "passed", matched[0].LastResult())
	assert.True(t, matched[0].NeedUpload())
	assert.Equal(t, "", matched[0].LogPath(), "stale log path cleared")
	assert.Equal(t, "Login with valid credentials [chrome]", matched[0].FolderRaw())
	assert.Equal(t, "Login with valid credentials", matched[0].FolderClean())

	failedCase := l.FindCasesByName("Login with invalid credentials")
	require.Len(t, failedCase, 1)
	assert.Equal(t, "failed", failedCase[0].LastResult())
	assert.True(t, failedCase[0].NeedUpload())

	// Cases the pass did not touch end up un-flagged
	untouched := l.FindCasesByName("Untouched case")
	require.Len(t, untouched, 1)
	assert.False(t, untouched[0].NeedUpload(), "reset must clear flags of untouched cases")
	assert.Equal(t, "", untouched[0].LastResult())
}

func TestRunTimeoutLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	// No report file is ever written

	before, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)

	_, err = f.reconciler.Run(context.Background())
	assert.ErrorIs(t, err, runner.ErrReportTimeout)

	after, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "timed-out pass must not modify the ledger")
}

func TestRunMalformedReportLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, time.Second)
	f.writeReport(t, `["not", "a", "mapping"]`)

	before, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)

	_, err = f.reconciler.Run(context.Background())
	assert.ErrorIs(t, err, runner.ErrMalformedReport)

	after, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.reconciler.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPreservesLedgerKeyOrder(t *testing.T) {
	f := newFixture(t, time.Second)
	f.writeReport(t, testReport)

	_, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)

	var l ledger.Ledger
	require.NoError(t, json.Unmarshal(data, &l))
	suites := l.Suites()
	require.Len(t, suites, 1)
	cases := suites[0].Cases()
	require.Len(t, cases, 3)
	assert.Equal(t, "Test case 1", cases[0].Slot())
	assert.Equal(t, "Test case 3", cases[2].Slot())
}

func TestMergeAmbiguousNames(t *testing.T) {
	raw := `{
  "Suite A": {
    "Test suite name": "Suite A",
    "Test case 1": {"Name": "Shared name", "Default Test Script": "a.py"}
  },
  "Suite B": {
    "Test suite name": "Suite B",
    "Test case 1": {"Name": "Shared name", "Default Test Script": "b.py"}
  }
}`
	var l ledger.Ledger
	require.NoError(t, json.Unmarshal([]byte(raw), &l))

	rec := &Reconciler{config: Config{Log: discardLogger()}}
	result := &types.PassResult{}
	rec.merge(&l, []types.CaseOutcome{
		{Name: "Shared name", Outcome: types.CaseStatusPassed},
	}, nil, result)

	assert.Equal(t, 1, result.Matched, "one result, however many cases it lands in")
	assert.Equal(t, 1, result.Ambiguous)

	// Every case sharing the name is updated, none silently chosen
	for _, c := range l.FindCasesByName("Shared name") {
		assert.Equal(t, "passed", c.LastResult())
		assert.True(t, c.NeedUpload())
	}
}

func TestResetNeedUploadFlags(t *testing.T) {
	var l ledger.Ledger
	require.NoError(t, json.Unmarshal([]byte(testLedger), &l))

	touched := resetNeedUploadFlags(&l)
	assert.Equal(t, 3, touched)
	for _, suite := range l.Suites() {
		for _, c := range suite.Cases() {
			assert.False(t, c.NeedUpload())
		}
	}

	// Idempotent: a second reset touches the same defined flags
	assert.Equal(t, 3, resetNeedUploadFlags(&l))
}
