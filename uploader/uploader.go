// Package uploader invokes the artifact uploader collaborator for each
// artifact folder and writes the returned storage locators back into the
// ledger.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/web-sentinel/keeper/ledger"
	"github.com/web-sentinel/keeper/metrics"
	"github.com/web-sentinel/keeper/reconciler"
	"github.com/web-sentinel/keeper/types"
)

// Credentials identify the artifact store destination
type Credentials struct {
	URL   string
	Repo  string
	Token string
}

// Validate checks that all required credential fields are present
func (c Credentials) Validate() error {
	if c.URL == "" || c.Repo == "" || c.Token == "" {
		return fmt.Errorf("missing required artifact store credentials")
	}
	return nil
}

// SweepResult captures the outcome of one upload sweep over the results
// directory.
type SweepResult struct {
	Uploaded int
	Failed   int
	Locators map[string]string // folder raw name -> locator
}

// Uploader runs the artifact uploader collaborator
type Uploader struct {
	config Config
}

// Config holds configuration for creating a new uploader
type Config struct {
	Log        *slog.Logger
	Store      *ledger.Store
	ResultsDir string // Directory holding the artifact folders
	Command    string // Uploader collaborator executable
	WorkDir    string // Working directory for the collaborator
}

// NewUploader creates a new uploader instance
func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.ResultsDir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("uploader command is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Uploader{config: cfg}, nil
}

// UploadAll uploads every artifact folder under the results directory and
// annotates the ledger with the returned locators. Individual upload
// failures are counted and logged; the sweep continues. The returned error
// is non-nil only when the sweep itself could not run.
func (u *Uploader) UploadAll(ctx context.Context, creds Credentials) (*SweepResult, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	folders, err := reconciler.ListFolders(u.config.ResultsDir)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Locators: make(map[string]string)}
	for _, folder := range folders {
		locator, err := u.uploadFolder(ctx, folder.Raw, creds)
		if err != nil {
			result.Failed++
			metrics.RecordUpload(false)
			u.config.Log.Error("Artifact folder upload failed", "folder", folder.Raw, "error", err)
			continue
		}

		result.Uploaded++
		result.Locators[folder.Raw] = locator
		metrics.RecordUpload(true)
		u.config.Log.Info("Artifact folder uploaded", "folder", folder.Raw, "locator", locator)

		if err := u.Annotate(locator, folder.Clean); err != nil {
			return result, err
		}
	}

	return result, nil
}

// uploadFolder invokes the collaborator for one folder and parses the
// artifact locator out of its output.
func (u *Uploader) uploadFolder(ctx context.Context, folderName string, creds Credentials) (string, error) {
	cmd := exec.CommandContext(ctx, u.config.Command, folderName, creds.URL, creds.Repo, creds.Token)
	if u.config.WorkDir != "" {
		cmd.Dir = u.config.WorkDir
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return "", types.NewCollaboratorError("artifact uploader", output.String(), err)
	}

	locator, ok := parseArtifactLocator(output.String())
	if !ok {
		return "", types.NewCollaboratorError("artifact uploader", output.String(),
			fmt.Errorf("no artifact locator in output"))
	}
	return locator, nil
}

// parseArtifactLocator extracts the locator from the collaborator's output:
// the first '{' to the last '}' is treated as a JSON blob carrying an
// "artifact_url" field. ANSI color codes are stripped first; the
// collaborator writes colored output.
func parseArtifactLocator(output string) (string, bool) {
	clean := stripansi.Strip(output)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start == -1 || end <= start {
		return "", false
	}

	var payload struct {
		ArtifactURL string `json:"artifact_url"`
	}
	if err := json.Unmarshal([]byte(clean[start:end+1]), &payload); err != nil {
		return "", false
	}
	if payload.ArtifactURL == "" {
		return "", false
	}
	return payload.ArtifactURL, true
}

// Annotate writes the storage locator back into the ledger entry whose name
// equals testName. A missing entry is a warning, not an error: uploads may
// legitimately race ahead of ledger state. The needs-upload flag is left
// untouched; only the next reconciliation pass's reset clears it.
func (u *Uploader) Annotate(locator, testName string) error {
	return u.config.Store.Update(func(l *ledger.Ledger) error {
		matches := l.FindCasesByName(testName)
		if len(matches) == 0 {
			u.config.Log.Warn("No ledger entry for uploaded artifact", "name", testName, "locator", locator)
			return nil
		}
		for _, c := range matches {
			c.SetLogPath(locator)
		}
		u.config.Log.Debug("Annotated ledger with artifact locator", "name", testName, "cases", len(matches))
		return nil
	})
}
