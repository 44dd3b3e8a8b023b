// Package tracker exports the ledger to a tabular form and pushes it to the
// external tracking system through the pusher collaborator.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/web-sentinel/keeper/ledger"
	"github.com/web-sentinel/keeper/metrics"
	"github.com/web-sentinel/keeper/types"
)

const exportFileName = "ledger-export.csv"

// Credentials authenticate the push against the tracking system
type Credentials struct {
	User     string
	Password string
	Project  string
}

// Validate checks that all required credential fields are present
func (c Credentials) Validate() error {
	if c.User == "" || c.Password == "" || c.Project == "" {
		return fmt.Errorf("missing required tracking-system credentials")
	}
	return nil
}

// PushResult captures the outcome of one tracking-system push. Clean is
// false when the collaborator exited successfully but its output carried
// failure markers for individual records.
type PushResult struct {
	Clean   bool
	Output  string
	CSVPath string
}

// Pusher exports the ledger and invokes the pusher collaborator
type Pusher struct {
	config Config
}

// Config holds configuration for creating a new pusher
type Config struct {
	Log       *slog.Logger
	Store     *ledger.Store
	Command   string // Pusher collaborator executable
	WorkDir   string // Working directory for the collaborator
	ExportDir string // Directory to write the tabular export into
}

// NewPusher creates a new pusher instance
func NewPusher(cfg Config) (*Pusher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("pusher command is required")
	}
	if cfg.ExportDir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Pusher{config: cfg}, nil
}

// Push exports the current ledger to CSV and hands it to the pusher
// collaborator. A non-zero exit is a collaborator failure; exit zero with
// FAIL markers in the output is reported as a non-clean push, delivery of
// the remaining records being at-least-once.
func (p *Pusher) Push(ctx context.Context, creds Credentials) (*PushResult, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	l, err := p.config.Store.Load()
	if err != nil {
		return nil, err
	}

	csvPath := filepath.Join(p.config.ExportDir, exportFileName)
	if err := os.WriteFile(csvPath, []byte(ExportCSV(l)), 0o644); err != nil {
		return nil, fmt.Errorf("writing ledger export: %w", err)
	}
	p.config.Log.Info("Ledger exported", "path", csvPath)

	cmd := exec.CommandContext(ctx, p.config.Command,
		"-u", creds.User,
		"-p", creds.Password,
		"-a", creds.Project,
		"-f", csvPath,
		"-q", "True",
	)
	if p.config.WorkDir != "" {
		cmd.Dir = p.config.WorkDir
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		metrics.RecordPush(false)
		return nil, types.NewCollaboratorError("tracker pusher", output.String(), err)
	}

	result := &PushResult{
		Clean:   !hasFailureMarkers(output.String()),
		Output:  output.String(),
		CSVPath: csvPath,
	}
	metrics.RecordPush(result.Clean)
	if !result.Clean {
		p.config.Log.Warn("Tracker push completed with failure markers", "csv", csvPath)
	} else {
		p.config.Log.Info("Tracker push completed", "csv", csvPath)
	}
	return result, nil
}

// hasFailureMarkers scans collaborator output for per-record failure lines
func hasFailureMarkers(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "FAIL") {
			return true
		}
	}
	return false
}

// ExportCSV renders every test case in the ledger as one CSV row. The
// header is the union of all case field keys in first-seen order, so
// columns carried over from the original spreadsheet import survive the
// round trip.
func ExportCSV(l *ledger.Ledger) string {
	var header []string
	seen := make(map[string]bool)
	for _, suite := range l.Suites() {
		for _, c := range suite.Cases() {
			for _, key := range c.Fields().Keys() {
				if !seen[key] {
					seen[key] = true
					header = append(header, key)
				}
			}
		}
	}

	t := table.NewWriter()
	headerRow := make(table.Row, len(header))
	for i, key := range header {
		headerRow[i] = key
	}
	t.AppendHeader(headerRow)

	for _, suite := range l.Suites() {
		for _, c := range suite.Cases() {
			row := make(table.Row, len(header))
			for i, key := range header {
				v, _ := c.Fields().Get(key)
				row[i] = fieldString(v)
			}
			t.AppendRow(row)
		}
	}

	return t.RenderCSV() + "\n"
}

func fieldString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
