package tracker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web-sentinel/keeper/ledger"
	"github.com/web-sentinel/keeper/types"
)

const testLedger = `{
  "Login Suite": {
    "Test suite name": "Login Suite",
    "Test case 1": {
      "Name": "Login with valid credentials",
      "Default Test Script": "tests/test_login.py::test_valid",
      "Last Result": "passed",
      "Need Upload": "False",
      "Log Path": null
    },
    "Test case 2": {
      "Name": "Login with invalid credentials",
      "Default Test Script": "tests/test_login.py::test_invalid"
    }
  }
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(testLedger), 0o644))
	store, err := ledger.NewStore(ledger.Config{Path: path})
	require.NoError(t, err)
	return store
}

func TestCredentialsValidate(t *testing.T) {
	valid := Credentials{User: "svc-user", Password: "secret", Project: "WebShop"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, Credentials{Password: "p", Project: "a"}.Validate())
	assert.Error(t, Credentials{User: "u", Project: "a"}.Validate())
	assert.Error(t, Credentials{User: "u", Password: "p"}.Validate())
}

func TestHasFailureMarkers(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"all records pass", "record 1: PASS\nrecord 2: PASS\n", false},
		{"one record fails", "record 1: PASS\nrecord 2: FAIL\n", true},
		{"failure mid line", "pushing record 2 ... FAILED to update\n", true},
		{"empty output", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasFailureMarkers(tt.output))
		})
	}
}

func TestExportCSV(t *testing.T) {
	var l ledger.Ledger
	require.NoError(t, json.Unmarshal([]byte(testLedger), &l))

	g := goldie.New(t)
	g.Assert(t, "ledger-export", []byte(ExportCSV(&l)))
}

func TestFieldString(t *testing.T) {
	assert.Equal(t, "", fieldString(nil))
	assert.Equal(t, "text", fieldString("text"))
	assert.Equal(t, "42", fieldString(json.Number("42")))
	assert.Equal(t, "true", fieldString(true))
}

func TestPushCleanRun(t *testing.T) {
	store := newTestStore(t)
	exportDir := t.TempDir()

	script := filepath.Join(t.TempDir(), "pusher.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"record 1: PASS\"\n"), 0o755))

	p, err := NewPusher(Config{
		Log:       discardLogger(),
		Store:     store,
		Command:   script,
		ExportDir: exportDir,
	})
	require.NoError(t, err)

	creds := Credentials{User: "svc-user", Password: "secret", Project: "WebShop"}
	result, err := p.Push(context.Background(), creds)
	require.NoError(t, err)
	assert.True(t, result.Clean)
	assert.Contains(t, result.Output, "PASS")

	// The export is left on disk next to the results
	data, err := os.ReadFile(result.CSVPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Login with valid credentials")
}

func TestPushFailureMarkers(t *testing.T) {
	store := newTestStore(t)

	script := filepath.Join(t.TempDir(), "pusher.sh")
	require.NoError(t, os.WriteFile(script,
		[]byte("#!/bin/sh\necho \"record 1: PASS\"\necho \"record 2: FAIL\"\n"), 0o755))

	p, err := NewPusher(Config{
		Log:       discardLogger(),
		Store:     store,
		Command:   script,
		ExportDir: t.TempDir(),
	})
	require.NoError(t, err)

	creds := Credentials{User: "svc-user", Password: "secret", Project: "WebShop"}
	result, err := p.Push(context.Background(), creds)
	require.NoError(t, err, "exit zero with FAIL markers is a soft failure, not an error")
	assert.False(t, result.Clean)
}

func TestPushCollaboratorFailure(t *testing.T) {
	store := newTestStore(t)

	script := filepath.Join(t.TempDir(), "pusher.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho auth rejected >&2\nexit 2\n"), 0o755))

	p, err := NewPusher(Config{
		Log:       discardLogger(),
		Store:     store,
		Command:   script,
		ExportDir: t.TempDir(),
	})
	require.NoError(t, err)

	creds := Credentials{User: "svc-user", Password: "secret", Project: "WebShop"}
	_, err = p.Push(context.Background(), creds)
	require.Error(t, err)

	var collabErr *types.CollaboratorError
	require.ErrorAs(t, err, &collabErr)
	assert.Contains(t, collabErr.Output, "auth rejected")
}
