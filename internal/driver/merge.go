package driver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitast/internal/gitstore"
	"gitast/internal/logging"
	"gitast/internal/merge"
	"gitast/internal/render"
	"gitast/internal/tree"
)

const (
	OnConflictMarkers = "markers"
	OnConflictAbort   = "abort"
)

type MergeOptions struct {
	Merge      merge.Options
	MarkerSize int // used when git passes no usable size
	OnConflict string
}

// TextMerge merges three files line by line, leaving the result in current.
type TextMerge func(ctx context.Context, current, base, other string, markerSize int) (bool, error)

// MergeDriver implements merge.<driver>.driver.
type MergeDriver struct {
	pipe     Pipeline
	opts     MergeOptions
	fallback TextMerge
}

// NewMergeDriver creates a merge driver that falls back to git merge-file
// for content it cannot parse.
func NewMergeDriver(pipe Pipeline, opts MergeOptions) *MergeDriver {
	if opts.MarkerSize <= 0 {
		opts.MarkerSize = render.DefaultMarkerSize
	}
	return &MergeDriver{pipe: pipe, opts: opts, fallback: gitstore.MergeFile}
}

type input struct {
	file      string
	content   []byte
	snap      *tree.Snapshot
	canonical bool
	err       error // load error, I/O errors abort the run instead
}

// Run handles one invocation with git's arguments
//
//	base-file current-file other-file marker-size pathname
//
// The result replaces current-file. ErrConflict is returned when conflicts
// remain.
func (d *MergeDriver) Run(ctx context.Context, args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("%w: merge driver takes 5 arguments, got %d", ErrUsage, len(args))
	}
	pathname := args[4]
	markerSize, err := strconv.Atoi(args[3])
	if err != nil || markerSize <= 0 {
		markerSize = d.opts.MarkerSize
	}
	log := logging.From(ctx).With(zap.String("pathname", pathname))

	inputs := []*input{{file: args[0]}, {file: args[1]}, {file: args[2]}}
	g, gctx := errgroup.WithContext(ctx)
	for _, in := range inputs {
		g.Go(func() error {
			b, err := os.ReadFile(in.file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", in.file, err)
			}
			in.content = b
			in.snap, in.canonical, in.err = d.pipe.Load(gctx, pathname, b)
			if in.err != nil && !unparsable(in.err) {
				return in.err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	base, ours, theirs := inputs[0], inputs[1], inputs[2]

	for _, in := range inputs {
		if in.err != nil {
			log.Info("falling back to a line merge", zap.Error(in.err))
			return d.textMerge(ctx, ours, base, theirs, markerSize)
		}
	}

	res, err := merge.Merge(base.snap, ours.snap, theirs.snap, d.opts.Merge)
	if err != nil {
		return fmt.Errorf("failed to merge %s: %w", pathname, err)
	}
	for _, c := range res.Conflicts {
		log.Info("conflict", zap.Stringer("kind", c.Kind), zap.String("path", res.Tree.Path(c.Node)), zap.String("description", c.Description))
	}

	if !res.Clean() && d.opts.OnConflict == OnConflictAbort {
		log.Warn("leaving file untouched", zap.Int("conflicts", len(res.Conflicts)))
		return ErrConflict
	}

	var out []byte
	switch {
	case res.Clean() && base.canonical && ours.canonical && theirs.canonical:
		out, err = d.pipe.Encode(res.Tree)
	case res.Clean():
		out, err = d.pipe.Text(res.Tree)
	default:
		var buf bytes.Buffer
		err = render.Conflicts(&buf, d.pipe.Printer(), res, markerSize)
		out = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", pathname, err)
	}
	if err := writeFile(ours.file, out); err != nil {
		return err
	}
	if !res.Clean() {
		return ErrConflict
	}
	return nil
}

// textMerge runs the line based fallback on the source text of each side,
// so canonical inputs that decoded are merged as text too.
func (d *MergeDriver) textMerge(ctx context.Context, ours, base, theirs *input, markerSize int) error {
	dir, err := os.MkdirTemp("", "git-ast-merge-")
	if err != nil {
		return fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer os.RemoveAll(dir)

	names := []string{"ours", "base", "theirs"}
	paths := make([]string, len(names))
	for i, in := range []*input{ours, base, theirs} {
		text := in.content
		if in.snap != nil {
			if t, err := d.pipe.Text(in.snap); err == nil {
				text = t
			}
		}
		paths[i] = filepath.Join(dir, names[i])
		if err := os.WriteFile(paths[i], text, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", paths[i], err)
		}
	}

	conflicted, err := d.fallback(ctx, paths[0], paths[1], paths[2], markerSize)
	if err != nil {
		return err
	}
	if conflicted && d.opts.OnConflict == OnConflictAbort {
		return ErrConflict
	}
	merged, err := os.ReadFile(paths[0])
	if err != nil {
		return fmt.Errorf("failed to read merge result: %w", err)
	}
	if err := writeFile(ours.file, merged); err != nil {
		return err
	}
	if conflicted {
		return ErrConflict
	}
	return nil
}
