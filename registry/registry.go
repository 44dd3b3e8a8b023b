// Package registry resolves suite names into concrete runnable test
// identifiers declared in the ledger.
package registry

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/web-sentinel/keeper/ledger"
)

var (
	// ErrSuiteNotFound indicates the suite name is absent from the ledger
	ErrSuiteNotFound = errors.New("suite not found")
	// ErrEmptySuite indicates the suite exists but expands to zero runnable
	// scripts. Distinguished from ErrSuiteNotFound for caller diagnostics.
	ErrEmptySuite = errors.New("suite has no runnable test scripts")
)

// Registry expands suites against the ledger store
type Registry struct {
	config Config
}

// Config contains registry configuration
type Config struct {
	Log   *slog.Logger
	Store *ledger.Store
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Registry{config: cfg}, nil
}

// ExpandSuite returns the runnable script identifiers declared under the
// named suite, in declaration order. Cases without a default script are
// skipped. Read-only; never mutates the ledger.
func (r *Registry) ExpandSuite(suiteName string) ([]string, error) {
	l, err := r.config.Store.Load()
	if err != nil {
		return nil, err
	}

	suite, ok := l.Suite(suiteName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSuiteNotFound, suiteName)
	}

	var scripts []string
	for _, c := range suite.Cases() {
		if script := c.DefaultScript(); script != "" {
			scripts = append(scripts, script)
		}
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptySuite, suiteName)
	}

	r.config.Log.Debug("Expanded suite", "suite", suiteName, "scripts", len(scripts))
	return scripts, nil
}

// SuiteNames returns every suite name in the ledger, in import order
func (r *Registry) SuiteNames() ([]string, error) {
	l, err := r.config.Store.Load()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, suite := range l.Suites() {
		names = append(names, suite.Key())
	}
	return names, nil
}
