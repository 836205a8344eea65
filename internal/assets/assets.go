// Package assets abstracts access to deployment assets: key material, the
// login page, and the attribute configuration. Handlers never touch the
// filesystem directly; everything goes through a Store so a missing or
// unreadable asset surfaces as one well-known error.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnavailable reports an asset that could not be opened or read.
var ErrUnavailable = errors.New("asset unavailable")

// Store loads named assets.
type Store interface {
	Load(name string) ([]byte, error)
}

// Dir serves assets from a single directory. Names are bare file names; path
// separators and parent references are rejected.
type Dir struct {
	root string
}

// NewDir returns a Store rooted at the given directory.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Load reads the named asset. A name that would escape the root directory is
// treated the same as a missing asset.
func (d *Dir) Load(name string) ([]byte, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: invalid asset name %q", ErrUnavailable, name)
	}
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}
	return data, nil
}

// Mem is an in-memory Store for tests.
type Mem map[string][]byte

func (m Mem) Load(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, name)
	}
	return data, nil
}
