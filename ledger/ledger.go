// Package ledger implements the persisted test case ledger: an ordered JSON
// mapping of test suites to their tracked test cases and run state. The
// ledger file is the sole persisted state of the service; every mutator goes
// through the Store's serialized read-modify-write cycle.
package ledger

import (
	"fmt"
	"strings"
)

// Ledger field keys, mirroring the column names of the imported spreadsheet.
const (
	KeySuiteName     = "Test suite name"
	KeyName          = "Name"
	KeyDefaultScript = "Default Test Script"
	KeyLastResult    = "Last Result"
	KeyNeedUpload    = "Need Upload"
	KeyLogPath       = "Log Path"
	KeyFolderRaw     = "Folder Raw"
	KeyFolderClean   = "Folder Clean"

	// Case entries are keyed positionally ("Test case 1", "Test case 2", ...).
	// The slot number is a stable identifier only and carries no meaning.
	caseKeyPrefix = "Test case "

	needUploadTrue  = "True"
	needUploadFalse = "False"
)

// Ledger is the in-memory form of the ledger file: suite name -> suite
// record, in original import order.
type Ledger struct {
	root *Fields
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{root: NewFields()}
}

// UnmarshalJSON implements json.Unmarshaler
func (l *Ledger) UnmarshalJSON(data []byte) error {
	root := NewFields()
	if err := root.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("parsing ledger: %w", err)
	}
	// Every top-level value must be a suite record
	for _, key := range root.Keys() {
		v, _ := root.Get(key)
		if _, ok := v.(*Fields); !ok {
			return fmt.Errorf("suite %q is not an object", key)
		}
	}
	l.root = root
	return nil
}

// MarshalJSON implements json.Marshaler
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return l.root.MarshalJSON()
}

// Suites returns all suite records in declaration order
func (l *Ledger) Suites() []*Suite {
	suites := make([]*Suite, 0, l.root.Len())
	for _, key := range l.root.Keys() {
		v, _ := l.root.Get(key)
		fields, ok := v.(*Fields)
		if !ok {
			continue
		}
		suites = append(suites, &Suite{key: key, fields: fields})
	}
	return suites
}

// Suite looks up a suite record by its exact name
func (l *Ledger) Suite(name string) (*Suite, bool) {
	v, ok := l.root.Get(name)
	if !ok {
		return nil, false
	}
	fields, ok := v.(*Fields)
	if !ok {
		return nil, false
	}
	return &Suite{key: name, fields: fields}, true
}

// FindCasesByName returns every test case across all suites whose Name field
// equals name. Correlation is a join on this single key; the data model does
// not enforce uniqueness, so callers get all matches and apply their own
// ambiguity policy.
func (l *Ledger) FindCasesByName(name string) []*Case {
	var matches []*Case
	for _, suite := range l.Suites() {
		for _, c := range suite.Cases() {
			if c.Name() == name {
				matches = append(matches, c)
			}
		}
	}
	return matches
}

// Suite is a view over one suite record. Mutations through its cases write
// into the owning Ledger.
type Suite struct {
	key    string
	fields *Fields
}

// Key returns the suite's top-level key in the ledger file
func (s *Suite) Key() string {
	return s.key
}

// Name returns the suite's declared name, falling back to its key
func (s *Suite) Name() string {
	if name := s.fields.GetString(KeySuiteName); name != "" {
		return name
	}
	return s.key
}

// Cases returns the suite's test cases in slot order
func (s *Suite) Cases() []*Case {
	var cases []*Case
	for _, key := range s.fields.Keys() {
		if !strings.HasPrefix(key, caseKeyPrefix) {
			continue
		}
		v, _ := s.fields.Get(key)
		fields, ok := v.(*Fields)
		if !ok {
			continue
		}
		cases = append(cases, &Case{slot: key, fields: fields})
	}
	return cases
}

// Case is a view over one test case record
type Case struct {
	slot   string
	fields *Fields
}

// Slot returns the positional key of the case within its suite
func (c *Case) Slot() string {
	return c.slot
}

// Name returns the test case name, the correlation key
func (c *Case) Name() string {
	return c.fields.GetString(KeyName)
}

// DefaultScript returns the runnable identifier passed to the test runner,
// or "" if the case declares none
func (c *Case) DefaultScript() string {
	return c.fields.GetString(KeyDefaultScript)
}

// LastResult returns the most recently merged outcome, or "" if never run
func (c *Case) LastResult() string {
	return c.fields.GetString(KeyLastResult)
}

// SetLastResult records a fresh outcome
func (c *Case) SetLastResult(outcome string) {
	c.fields.Set(KeyLastResult, outcome)
}

// HasNeedUpload reports whether the needs-upload flag has ever been defined
// for this case. The reset step only rewrites defined flags.
func (c *Case) HasNeedUpload() bool {
	return c.fields.Has(KeyNeedUpload)
}

// NeedUpload reports whether the case's latest result is pending upload
func (c *Case) NeedUpload() bool {
	return c.fields.GetString(KeyNeedUpload) == needUploadTrue
}

// SetNeedUpload sets the needs-upload flag. The on-disk representation is
// the string "True"/"False", carried over from the spreadsheet import.
func (c *Case) SetNeedUpload(pending bool) {
	if pending {
		c.fields.Set(KeyNeedUpload, needUploadTrue)
	} else {
		c.fields.Set(KeyNeedUpload, needUploadFalse)
	}
}

// LogPath returns the artifact locator recorded for the case, or ""
func (c *Case) LogPath() string {
	return c.fields.GetString(KeyLogPath)
}

// SetLogPath records the artifact locator written back after an upload
func (c *Case) SetLogPath(locator string) {
	c.fields.Set(KeyLogPath, locator)
}

// ClearLogPath nulls the locator. A stale log path must never be presented
// as belonging to a fresh result.
func (c *Case) ClearLogPath() {
	c.fields.Set(KeyLogPath, nil)
}

// SetFolder records the matched artifact folder's literal and cleaned names
func (c *Case) SetFolder(raw, clean string) {
	c.fields.Set(KeyFolderRaw, raw)
	c.fields.Set(KeyFolderClean, clean)
}

// FolderRaw returns the literal name of the matched artifact folder, or ""
func (c *Case) FolderRaw() string {
	return c.fields.GetString(KeyFolderRaw)
}

// FolderClean returns the cleaned name of the matched artifact folder, or ""
func (c *Case) FolderClean() string {
	return c.fields.GetString(KeyFolderClean)
}

// Fields exposes the underlying ordered record for consumers that need the
// full imported row, such as the tracker export.
func (c *Case) Fields() *Fields {
	return c.fields
}
