package runner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/web-sentinel/keeper/types"
)

// ErrMalformedReport indicates the report file does not conform to the
// expected shape: a top-level mapping of group -> list of case results.
var ErrMalformedReport = errors.New("malformed report")

// Extractor parses a runner report into (test name, outcome) pairs.
type Extractor struct {
	// IdentifierField and OutcomeField name the report entry fields holding
	// the correlation key and the case outcome.
	IdentifierField string
	OutcomeField    string
}

// NewExtractor creates an extractor with the default report field names
func NewExtractor() *Extractor {
	return &Extractor{
		IdentifierField: DefaultIdentifierField,
		OutcomeField:    DefaultOutcomeField,
	}
}

// Extract validates the report shape and returns the case results of the
// first top-level group. Additional groups are ignored: the report producer
// emits a single group per run, and merging further groups has not been
// confirmed as intended.
func (e *Extractor) Extract(data []byte) ([]types.CaseOutcome, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: top level is not a mapping", ErrMalformedReport)
	}
	if !dec.More() {
		return nil, fmt.Errorf("%w: mapping has no groups", ErrMalformedReport)
	}

	groupTok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	group, ok := groupTok.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected token %v", ErrMalformedReport, groupTok)
	}

	var entries []map[string]any
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: group %q is not a list of case results: %v", ErrMalformedReport, group, err)
	}

	outcomes := make([]types.CaseOutcome, 0, len(entries))
	for i, entry := range entries {
		name, ok := entry[e.IdentifierField].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: entry %d in group %q has no %q field", ErrMalformedReport, i, group, e.IdentifierField)
		}
		outcome, ok := entry[e.OutcomeField].(string)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d in group %q has no %q field", ErrMalformedReport, i, group, e.OutcomeField)
		}
		outcomes = append(outcomes, types.CaseOutcome{
			Name:    name,
			Outcome: types.CaseStatus(outcome),
		})
	}

	return outcomes, nil
}
