package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrPersist indicates the ledger write failed. The pass that triggered the
// write must abort; the on-disk ledger keeps its pre-pass contents.
var ErrPersist = errors.New("ledger persist failed")

// Store owns the ledger file and serializes every read-modify-write against
// it. The reset/merge/persist sequence of a reconciliation pass is not atomic
// on its own, so all mutators (reconciler, upload annotator, any future
// caller) must go through Update.
type Store struct {
	config Config
	mu     sync.Mutex
}

// Config contains store configuration
type Config struct {
	Log  *slog.Logger
	Path string
}

// NewStore creates a store for the ledger file at cfg.Path
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Store{config: cfg}, nil
}

// Path returns the ledger file path
func (s *Store) Path() string {
	return s.config.Path
}

// Load reads the ledger from disk
func (s *Store) Load() (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update runs fn against the current ledger contents and persists the result
// atomically. The store lock is held for the whole cycle so concurrent passes
// cannot interleave their reset and merge steps. If fn returns an error the
// on-disk ledger is left untouched.
func (s *Store) Update(fn func(*Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(l); err != nil {
		return err
	}
	return s.persist(l)
}

func (s *Store) load() (*Ledger, error) {
	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		return nil, fmt.Errorf("reading ledger file: %w", err)
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing ledger file %s: %w", s.config.Path, err)
	}
	return &l, nil
}

// persist writes the full ledger back via temp-file-then-rename so a crash
// mid-write cannot corrupt the store.
func (s *Store) persist(l *Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding ledger: %v", ErrPersist, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.config.Path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrPersist, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: writing temp file: %v", ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: closing temp file: %v", ErrPersist, err)
	}
	if err := os.Rename(tmpPath, s.config.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: replacing ledger file: %v", ErrPersist, err)
	}

	s.config.Log.Debug("Ledger persisted", "path", s.config.Path, "bytes", len(data))
	return nil
}
