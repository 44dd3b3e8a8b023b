package ledger

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
  },
  "Checkout Suite": {
    "Test suite name": "Checkout Suite",
    "Test case 1": {
      "Name": "Login with valid credentials",
      "Default Test Script": "tests/test_checkout.py::test_shared_name"
    },
    "Test case 2": {
      "Name": "Checkout with saved card",
      "Default Test Script": ""
    }
  }
}`

func parseTestLedger(t *testing.T) *Ledger {
	t.Helper()
	var l Ledger
	require.NoError(t, json.Unmarshal([]byte(testLedger), &l))
	return &l
}

func TestLedgerSuites(t *testing.T) {
	l := parseTestLedger(t)

	suites := l.Suites()
	require.Len(t, suites, 2)
	assert.Equal(t, "Login Suite", suites[0].Key())
	assert.Equal(t, "Checkout Suite", suites[1].Key())
	assert.Equal(t, "Login Suite", suites[0].Name())
}

func TestLedgerSuiteLookup(t *testing.T) {
	l := parseTestLedger(t)

	suite, ok := l.Suite("Login Suite")
	require.True(t, ok)
	assert.Equal(t, "Login Suite", suite.Name())

	_, ok = l.Suite("Nonexistent Suite")
	assert.False(t, ok)
}

func TestSuiteCases(t *testing.T) {
	l := parseTestLedger(t)

	suite, ok := l.Suite("Login Suite")
	require.True(t, ok)

	cases := suite.Cases()
	require.Len(t, cases, 2)
	assert.Equal(t, "Test case 1", cases[0].Slot())
	assert.Equal(t, "Login with valid credentials", cases[0].Name())
	assert.Equal(t, "tests/test_login.py::test_valid", cases[0].DefaultScript())
	assert.Equal(t, "passed", cases[0].LastResult())
	assert.Equal(t, "Login with invalid credentials", cases[1].Name())
	assert.Equal(t, "", cases[1].LastResult(), "never-run case has no last result")
}

func TestFindCasesByName(t *testing.T) {
	l := parseTestLedger(t)

	// Two suites share a case name; the join returns both
	matches := l.FindCasesByName("Login with valid credentials")
	assert.Len(t, matches, 2)

	matches = l.FindCasesByName("Checkout with saved card")
	assert.Len(t, matches, 1)

	matches = l.FindCasesByName("No such test")
	assert.Empty(t, matches)
}

func TestCaseNeedUpload(t *testing.T) {
	l := parseTestLedger(t)

	suite, _ := l.Suite("Login Suite")
	cases := suite.Cases()

	withFlag, withoutFlag := cases[0], cases[1]

	assert.True(t, withFlag.HasNeedUpload())
	assert.False(t, withFlag.NeedUpload())
	assert.False(t, withoutFlag.HasNeedUpload(), "flag never defined for this case")

	withFlag.SetNeedUpload(true)
	assert.True(t, withFlag.NeedUpload())
	assert.Equal(t, "True", withFlag.Fields().GetString(KeyNeedUpload), "on-disk representation is a string")

	withFlag.SetNeedUpload(false)
	assert.False(t, withFlag.NeedUpload())
	assert.Equal(t, "False", withFlag.Fields().GetString(KeyNeedUpload))
}

func TestCaseMutationsReachMarshaledOutput(t *testing.T) {
	l := parseTestLedger(t)

	suite, _ := l.Suite("Login Suite")
	c := suite.Cases()[0]
	c.SetLastResult("failed")
	c.SetLogPath("https://artifacts.example.com/run-1")
	c.SetFolder("Login with valid credentials [chrome]", "Login with valid credentials")

	data, err := json.Marshal(l)
	require.NoError(t, err)

	var reparsed Ledger
	require.NoError(t, json.Unmarshal(data, &reparsed))
	again := reparsed.FindCasesByName("Login with valid credentials")
	require.NotEmpty(t, again)
	assert.Equal(t, "failed", again[0].LastResult())
	assert.Equal(t, "https://artifacts.example.com/run-1", again[0].LogPath())
	assert.Equal(t, "Login with valid credentials [chrome]", again[0].FolderRaw())
	assert.Equal(t, "Login with valid credentials", again[0].FolderClean())
}

func TestClearLogPathMarshalsNull(t *testing.T) {
	l := parseTestLedger(t)

	suite, _ := l.Suite("Login Suite")
	c := suite.Cases()[0]
	c.SetLogPath("somewhere")
	c.ClearLogPath()

	assert.Equal(t, "", c.LogPath())
	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Log Path":null`)
}

func TestLedgerRejectsScalarSuite(t *testing.T) {
	var l Ledger
	err := json.Unmarshal([]byte(`{"Login Suite":"not an object"}`), &l)
	assert.Error(t, err)
}

func TestLedgerMarshalPreservesSuiteOrder(t *testing.T) {
	l := parseTestLedger(t)

	data, err := json.Marshal(l)
	require.NoError(t, err)

	// "Checkout Suite" sorts before "Login Suite"; order must stay as imported
	loginIdx := strings.Index(string(data), `"Login Suite"`)
	checkoutIdx := strings.Index(string(data), `"Checkout Suite"`)
	require.NotEqual(t, -1, loginIdx)
	require.NotEqual(t, -1, checkoutIdx)
	assert.Less(t, loginIdx, checkoutIdx)
}
