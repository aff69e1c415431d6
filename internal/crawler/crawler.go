// Package crawler walks a work tree and checks that every supported file
// survives clean followed by smudge unchanged.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitast/internal/logging"
)

// ErrNotFixedPoint is reported for files that do not come back byte for
// byte, or whose canonical form changes when cleaned again.
var ErrNotFixedPoint = errors.New("file is not a clean/smudge fixed point")

// Pipeline is the part of filter.Pipeline the crawler needs.
type Pipeline interface {
	Clean(ctx context.Context, pathname string, src []byte) ([]byte, error)
	Smudge(ctx context.Context, pathname string, blob []byte) ([]byte, error)
}

// Languages decides which files are checked.
type Languages interface {
	Supports(pathname string) bool
}

// Result is the outcome for one file. Err is nil when the file passed.
type Result struct {
	Path string
	Err  error
}

// Crawler scans a directory for source files.
type Crawler struct {
	pipe    Pipeline
	langs   Languages
	ignored []string
	workers int
}

// NewCrawler creates a new crawler instance.
func NewCrawler(pipe Pipeline, langs Languages) *Crawler {
	return &Crawler{
		pipe:    pipe,
		langs:   langs,
		ignored: []string{".git", "vendor", "node_modules"},
		workers: runtime.GOMAXPROCS(0),
	}
}

// Scan walks root and calls onFile for every supported file.
func (c *Crawler) Scan(root string, onFile func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			for _, ign := range c.ignored {
				if d.Name() == ign {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() || !c.langs.Supports(path) {
			return nil
		}
		return onFile(path)
	})
}

// Check verifies every supported file under root. When only is non-empty
// just those paths are checked. Results are sorted by path.
func (c *Crawler) Check(ctx context.Context, root string, only []string) ([]Result, error) {
	paths := only
	if len(paths) == 0 {
		err := c.Scan(root, func(path string) error {
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", root, err)
		}
	}

	results := make([]Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = Result{Path: path, Err: c.checkFile(ctx, path)}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

func (c *Crawler) checkFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := Verify(ctx, c.pipe, path, src); err != nil {
		logging.From(ctx).Debug("check failed", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

// Verify checks that smudge(clean(src)) == src and clean(clean(src)) ==
// clean(src).
func Verify(ctx context.Context, pipe Pipeline, pathname string, src []byte) error {
	blob, err := pipe.Clean(ctx, pathname, src)
	if err != nil {
		return err
	}
	again, err := pipe.Clean(ctx, pathname, blob)
	if err != nil {
		return err
	}
	if !bytes.Equal(blob, again) {
		return fmt.Errorf("%w: canonical form changed on second clean", ErrNotFixedPoint)
	}
	text, err := pipe.Smudge(ctx, pathname, blob)
	if err != nil {
		return err
	}
	if !bytes.Equal(text, src) {
		return fmt.Errorf("%w: smudged text differs from the original", ErrNotFixedPoint)
	}
	return nil
}
