package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "SENTINEL_KEEPER"

// prefixEnvVars prepends the application env var prefix to a name
func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	LedgerFile = &cli.StringFlag{
		Name:     "ledger",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("LEDGER"),
		Usage:    "Path to the ledger file (eg. 'outputs/out.json')",
	}
	ProjectDir = &cli.StringFlag{
		Name:     "project-dir",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("PROJECT_DIR"),
		Usage:    "Path to the test project checkout from which test scripts are run",
	}
	ResultsDir = &cli.StringFlag{
		Name:    "results-dir",
		Value:   "",
		EnvVars: prefixEnvVars("RESULTS_DIR"),
		Usage:   "Directory holding the runner's report file and artifact folders. Defaults to '<project-dir>/test-results'.",
	}
	Suite = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: prefixEnvVars("SUITE"),
		Usage:   "Suite to run (eg. 'Login Suite'). Omit to run every suite in the ledger.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	PollInterval = &cli.DurationFlag{
		Name:    "poll-interval",
		Value:   500 * time.Millisecond,
		EnvVars: prefixEnvVars("POLL_INTERVAL"),
		Usage:   "Interval between report file existence checks",
	}
	ReportTimeout = &cli.DurationFlag{
		Name:    "report-timeout",
		Value:   3 * time.Minute,
		EnvVars: prefixEnvVars("REPORT_TIMEOUT"),
		Usage:   "Bound on the wait for the runner's report file",
	}
	PythonBinary = &cli.StringFlag{
		Name:    "python-binary",
		Value:   "",
		EnvVars: prefixEnvVars("PYTHON_BINARY"),
		Usage:   "Path to the Python interpreter to use for running tests. Defaults to the project venv.",
	}
	UploaderCommand = &cli.StringFlag{
		Name:    "uploader-command",
		Value:   "",
		EnvVars: prefixEnvVars("UPLOADER_COMMAND"),
		Usage:   "Path to the artifact uploader collaborator executable",
	}
	CollaboratorsConfig = &cli.StringFlag{
		Name:    "collaborators",
		Value:   "",
		EnvVars: prefixEnvVars("COLLABORATORS"),
		Usage:   "Path to a YAML file declaring collaborator executables and report paths",
	}
	PusherCommand = &cli.StringFlag{
		Name:    "pusher-command",
		Value:   "",
		EnvVars: prefixEnvVars("PUSHER_COMMAND"),
		Usage:   "Path to the tracking-system pusher collaborator executable",
	}
	APIAddr = &cli.StringFlag{
		Name:    "api-addr",
		Value:   "0.0.0.0:5000",
		EnvVars: prefixEnvVars("API_ADDR"),
		Usage:   "Listen address for the HTTP API",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (debug, info, warn, error)",
	}
)

var requiredFlags = []cli.Flag{
	LedgerFile,
	ProjectDir,
}

var optionalFlags = []cli.Flag{
	ResultsDir,
	Suite,
	RunInterval,
	PollInterval,
	ReportTimeout,
	PythonBinary,
	UploaderCommand,
	PusherCommand,
	CollaboratorsConfig,
	APIAddr,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
