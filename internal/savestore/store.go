// Package savestore reads save files from the emulator's save directory.
package savestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/savesync/internal/safefs"
)

// DefaultTimeout bounds each filesystem call against the save directory.
const DefaultTimeout = 5 * time.Second

// ErrOutsideRoot is returned for names that would resolve outside the save directory.
var ErrOutsideRoot = errors.New("save file outside save directory")

// Store gives read access to <ROM_DIRECTORY>/<SAVE_DIRECTORY>.
type Store struct {
	root    string
	timeout time.Duration
}

// New creates a store rooted at root. A non-positive timeout selects DefaultTimeout.
func New(root string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{root: filepath.Clean(root), timeout: timeout}
}

// Root returns the save directory.
func (s *Store) Root() string {
	return s.root
}

// Path resolves a save file name inside the root.
func (s *Store) Path(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, name)
	}
	p := filepath.Join(s.root, name)
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, name)
	}
	return p, nil
}

// Exists reports whether name is a regular file in the save directory.
// Any error, including a timed out stat, counts as missing.
func (s *Store) Exists(ctx context.Context, name string) bool {
	p, err := s.Path(name)
	if err != nil {
		return false
	}
	info, err := safefs.Stat(ctx, p, s.timeout)
	return err == nil && info.Mode().IsRegular()
}

// Open opens a save file for reading.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := safefs.Open(ctx, p, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("open save file %s: %w", name, err)
	}
	return f, nil
}
