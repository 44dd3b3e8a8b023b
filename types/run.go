package types

import (
	"fmt"
	"time"
)

// PassResult captures the counts of one completed reconciliation pass
type PassResult struct {
	RunID         string        `json:"run_id"`
	Matched       int           `json:"matched"`        // results merged into at least one ledger case
	Missed        int           `json:"missed"`         // results with no matching ledger entry
	FolderMatched int           `json:"folder_matched"` // artifact folders that correlate to a ledger case
	FolderMissed  int           `json:"folder_missed"`  // artifact folders with no matching ledger entry
	Ambiguous     int           `json:"ambiguous"`      // name collisions across cases or folders
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	Duration      time.Duration `json:"duration"`
}

// Status summarizes a pass for exit code and display purposes
func (p *PassResult) Status() CaseStatus {
	if p.Failed > 0 {
		return CaseStatusFailed
	}
	if p.Passed == 0 && p.Skipped > 0 {
		return CaseStatusSkipped
	}
	return CaseStatusPassed
}

func (p *PassResult) String() string {
	return fmt.Sprintf("pass %s: %d matched, %d missed, %d passed, %d failed, %d skipped (%.1fs)",
		p.RunID, p.Matched, p.Missed, p.Passed, p.Failed, p.Skipped, p.Duration.Seconds())
}

// SuiteRun pairs one executed suite with its reconciliation pass
type SuiteRun struct {
	Suite   string      `json:"suite"`
	Scripts int         `json:"scripts"`
	Pass    *PassResult `json:"pass"`
}
