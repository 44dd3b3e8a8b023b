package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web-sentinel/keeper/types"
)

func TestExtract(t *testing.T) {
	extractor := NewExtractor()

	tests := []struct {
		name    string
		report  string
		want    []types.CaseOutcome
		wantErr bool
	}{
		{
			name: "valid single group",
			report: `{"run-2024": [
				{"jazz_id": "Login with valid credentials", "outcome": "passed"},
				{"jazz_id": "Login with invalid credentials", "outcome": "failed"},
				{"jazz_id": "Legacy login", "outcome": "skipped"}
			]}`,
			want: []types.CaseOutcome{
				{Name: "Login with valid credentials", Outcome: types.CaseStatusPassed},
				{Name: "Login with invalid credentials", Outcome: types.CaseStatusFailed},
				{Name: "Legacy login", Outcome: types.CaseStatusSkipped},
			},
		},
		{
			name: "only first group consumed",
			report: `{
				"first": [{"jazz_id": "A", "outcome": "passed"}],
				"second": [{"jazz_id": "B", "outcome": "failed"}]
			}`,
			want: []types.CaseOutcome{{Name: "A", Outcome: types.CaseStatusPassed}},
		},
		{
			name:   "extra entry fields tolerated",
			report: `{"g": [{"jazz_id": "A", "outcome": "passed", "duration": 1.5, "nodeid": "tests/a.py"}]}`,
			want:   []types.CaseOutcome{{Name: "A", Outcome: types.CaseStatusPassed}},
		},
		{
			name:   "empty group list",
			report: `{"g": []}`,
			want:   []types.CaseOutcome{},
		},
		{
			name:    "top level not a mapping",
			report:  `[{"jazz_id": "A", "outcome": "passed"}]`,
			wantErr: true,
		},
		{
			name:    "mapping with no groups",
			report:  `{}`,
			wantErr: true,
		},
		{
			name:    "group is not a list",
			report:  `{"g": {"jazz_id": "A"}}`,
			wantErr: true,
		},
		{
			name:    "entry missing identifier",
			report:  `{"g": [{"outcome": "passed"}]}`,
			wantErr: true,
		},
		{
			name:    "entry with empty identifier",
			report:  `{"g": [{"jazz_id": "", "outcome": "passed"}]}`,
			wantErr: true,
		},
		{
			name:    "entry missing outcome",
			report:  `{"g": [{"jazz_id": "A"}]}`,
			wantErr: true,
		},
		{
			name:    "identifier not a string",
			report:  `{"g": [{"jazz_id": 42, "outcome": "passed"}]}`,
			wantErr: true,
		},
		{
			name:    "not json at all",
			report:  `pytest crashed before writing the report`,
			wantErr: true,
		},
		{
			name:    "empty input",
			report:  ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractor.Extract([]byte(tt.report))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedReport)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractCustomFieldNames(t *testing.T) {
	extractor := &Extractor{IdentifierField: "id", OutcomeField: "result"}

	got, err := extractor.Extract([]byte(`{"g": [{"id": "A", "result": "passed"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []types.CaseOutcome{{Name: "A", Outcome: types.CaseStatusPassed}}, got)
}
