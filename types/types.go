package types

import (
	"fmt"
	"strings"
)

// CaseStatus represents the possible outcomes of a test case execution,
// as reported by the test runner's report file.
type CaseStatus string

const (
	CaseStatusPassed  CaseStatus = "passed"
	CaseStatusFailed  CaseStatus = "failed"
	CaseStatusSkipped CaseStatus = "skipped"
)

// CaseOutcome is one extracted (test name, outcome) pair from a runner report.
// Name is the canonical correlation key joining the report, the ledger and
// the artifact folders.
type CaseOutcome struct {
	Name    string
	Outcome CaseStatus
}

// Folder is one artifact folder produced by a test run. Raw is the literal
// directory name, Clean the correlation form with the bracketed suffix
// removed.
type Folder struct {
	Raw   string
	Clean string
}

// CollaboratorError wraps a failure from one of the external collaborators
// (test runner, artifact uploader, tracking-system pusher). Output carries
// the captured subprocess output for caller diagnostics.
type CollaboratorError struct {
	Collaborator string
	Output       string
	Err          error
}

func (e *CollaboratorError) Error() string {
	msg := fmt.Sprintf("collaborator %s failed: %v", e.Collaborator, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg = fmt.Sprintf("%s\noutput: %s", msg, out)
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError creates a new CollaboratorError
func NewCollaboratorError(collaborator string, output string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Output: output, Err: err}
}
