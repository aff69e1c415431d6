// Package driver adapts git's external diff and merge driver invocations to
// the diff and merge engines.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gitast/internal/codec"
	"gitast/internal/filter"
	"gitast/internal/syntax"
	"gitast/internal/tree"
)

var (
	// ErrUsage is returned for argument lists git would never pass.
	ErrUsage = errors.New("unexpected arguments")

	// ErrConflict is returned by the merge driver when the merged file still
	// needs manual resolution.
	ErrConflict = errors.New("merge has conflicts")
)

// Pipeline is the part of filter.Pipeline the drivers need.
type Pipeline interface {
	Load(ctx context.Context, pathname string, content []byte) (*tree.Snapshot, bool, error)
	Text(snap *tree.Snapshot) ([]byte, error)
	Encode(snap *tree.Snapshot) ([]byte, error)
	Printer() filter.Printer
}

// Blobs reads objects from the repository.
type Blobs interface {
	Blob(hex string) ([]byte, error)
}

// unparsable reports whether err means the content is not something the
// engines can work on, as opposed to an I/O failure.
func unparsable(err error) bool {
	var perr *syntax.ParseError
	var cerr *codec.Error
	return errors.As(err, &perr) || errors.As(err, &cerr) || errors.Is(err, syntax.ErrUnsupportedLanguage)
}

// writeFile replaces path with data through a rename so readers never see a
// partial file. The original permissions are kept.
func writeFile(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
