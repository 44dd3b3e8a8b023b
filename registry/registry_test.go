package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web-sentinel/keeper/ledger"
)

const testLedger = `{
  "Login Suite": {
    "Test suite name": "Login Suite",
    "Test case 1": {
      "Name": "Login with valid credentials",
      "Default Test Script": "tests/test_login.py::test_valid"
    },
    "Test case 2": {
      "Name": "Manual-only login check",
      "Default Test Script": ""
    },
    "Test case 3": {
      "Name": "Login with invalid credentials",
      "Default Test Script": "tests/test_login.py::test_invalid"
    }
  },
  "Manual Suite": {
    "Test suite name": "Manual Suite",
    "Test case 1": {
      "Name": "Exploratory session",
      "Default Test Script": ""
    }
  }
}`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(testLedger), 0o644))

	store, err := ledger.NewStore(ledger.Config{Path: path})
	require.NoError(t, err)
	reg, err := NewRegistry(Config{Store: store})
	require.NoError(t, err)
	return reg
}

func TestNewRegistryRequiresStore(t *testing.T) {
	_, err := NewRegistry(Config{})
	assert.Error(t, err)
}

func TestExpandSuite(t *testing.T) {
	reg := newTestRegistry(t)

	scripts, err := reg.ExpandSuite("Login Suite")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"tests/test_login.py::test_valid",
		"tests/test_login.py::test_invalid",
	}, scripts, "declaration order preserved, script-less cases skipped")
}

func TestExpandSuiteNotFound(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.ExpandSuite("No Such Suite")
	assert.ErrorIs(t, err, ErrSuiteNotFound)
}

func TestExpandSuiteEmpty(t *testing.T) {
	reg := newTestRegistry(t)

	// The suite exists but no case declares a runnable script
	_, err := reg.ExpandSuite("Manual Suite")
	assert.ErrorIs(t, err, ErrEmptySuite)
	assert.NotErrorIs(t, err, ErrSuiteNotFound)
}

func TestSuiteNames(t *testing.T) {
	reg := newTestRegistry(t)

	names, err := reg.SuiteNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Login Suite", "Manual Suite"}, names)
}
