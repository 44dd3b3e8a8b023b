package runner

import "time"

// Test execution constants
const (
	// DefaultPollInterval is the interval between report file existence checks
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultReportTimeout bounds the wait for the runner's report file
	DefaultReportTimeout = 3 * time.Minute

	// Default python binary name when no venv interpreter is found
	DefaultPythonBinary = "python"

	// Module invoked to run test scripts
	PytestModule = "pytest"

	// ModuleFlag passes the module name to the interpreter
	ModuleFlag = "-m"

	// Results directory and report file names produced by the test project
	DefaultResultsDirName = "test-results"
	DefaultReportFileName = "test-results.json"

	// Report entry field names used by the runner's JSON report
	DefaultIdentifierField = "jazz_id"
	DefaultOutcomeField    = "outcome"
)
