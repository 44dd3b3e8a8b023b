package keeper

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/web-sentinel/keeper/flags"
)

// Config holds the application configuration
type Config struct {
	LedgerFile      string
	ProjectDir      string
	RootDir         string        // Parent of ProjectDir; workspace provisioning replaces ProjectDir underneath it
	ResultsDir      string        // Directory holding the report file and artifact folders
	ReportFile      string        // Report file path; empty means the default under ResultsDir
	TargetSuite     string        // Suite to run; empty means every suite in the ledger
	RunInterval     time.Duration // Interval between scheduled runs
	RunOnce         bool          // Indicates if the service should exit after one run
	PollInterval    time.Duration // Interval between report file existence checks
	ReportTimeout   time.Duration // Bound on the wait for the report file
	PythonBinary    string
	UploaderCommand string
	PusherCommand   string
	APIAddr         string
	Log             *slog.Logger
}

// CollaboratorsConfig declares the collaborator executables and report paths.
// Flags take precedence over file values.
type CollaboratorsConfig struct {
	Runner struct {
		Python string `yaml:"python"`
	} `yaml:"runner"`
	Uploader struct {
		Command string `yaml:"command"`
	} `yaml:"uploader"`
	Pusher struct {
		Command string `yaml:"command"`
	} `yaml:"pusher"`
	Results struct {
		Dir    string `yaml:"dir"`
		Report string `yaml:"report"`
	} `yaml:"results"`
}

// LoadCollaboratorsConfig parses the collaborators YAML file
func LoadCollaboratorsConfig(path string) (*CollaboratorsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collaborators config '%s': %w", path, err)
	}
	var cfg CollaboratorsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse collaborators config '%s': %w", path, err)
	}
	return &cfg, nil
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *slog.Logger, ledgerFile string, projectDir string, suite string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if ledgerFile == "" {
		return nil, errors.New("ledger file is required")
	}
	if projectDir == "" {
		return nil, errors.New("project directory is required")
	}

	absLedgerFile, err := filepath.Abs(ledgerFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for ledger file '%s': %w", ledgerFile, err)
	}
	absProjectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for project directory '%s': %w", projectDir, err)
	}

	pythonBinary := ctx.String(flags.PythonBinary.Name)
	uploaderCommand := ctx.String(flags.UploaderCommand.Name)
	pusherCommand := ctx.String(flags.PusherCommand.Name)
	resultsDir := ctx.String(flags.ResultsDir.Name)
	reportFile := ""

	if path := ctx.String(flags.CollaboratorsConfig.Name); path != "" {
		collab, err := LoadCollaboratorsConfig(path)
		if err != nil {
			return nil, err
		}
		if pythonBinary == "" {
			pythonBinary = collab.Runner.Python
		}
		if uploaderCommand == "" {
			uploaderCommand = collab.Uploader.Command
		}
		if pusherCommand == "" {
			pusherCommand = collab.Pusher.Command
		}
		if resultsDir == "" {
			resultsDir = collab.Results.Dir
		}
		reportFile = collab.Results.Report
	}

	// Default the results directory to the runner's output location inside the project
	if resultsDir == "" {
		resultsDir = filepath.Join(absProjectDir, "test-results")
	} else {
		resultsDir, err = filepath.Abs(resultsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for results directory '%s': %w", resultsDir, err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		LedgerFile:      absLedgerFile,
		ProjectDir:      absProjectDir,
		RootDir:         filepath.Dir(absProjectDir),
		ResultsDir:      resultsDir,
		ReportFile:      reportFile,
		TargetSuite:     suite,
		RunInterval:     runInterval,
		RunOnce:         runOnce,
		PollInterval:    ctx.Duration(flags.PollInterval.Name),
		ReportTimeout:   ctx.Duration(flags.ReportTimeout.Name),
		PythonBinary:    pythonBinary,
		UploaderCommand: uploaderCommand,
		PusherCommand:   pusherCommand,
		APIAddr:         ctx.String(flags.APIAddr.Name),
		Log:             log,
	}, nil
}
