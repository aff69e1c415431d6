package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"gitast/internal/diff"
	"gitast/internal/gitstore"
	"gitast/internal/logging"
	"gitast/internal/render"
	"gitast/internal/tree"
)

const devNull = "/dev/null"

type DiffOptions struct {
	Diff    diff.Options
	Format  string
	Color   string
	Context int
}

// DiffDriver implements git's external diff command (GIT_EXTERNAL_DIFF or
// diff.<driver>.command).
type DiffDriver struct {
	pipe  Pipeline
	blobs Blobs
	opts  DiffOptions
}

// NewDiffDriver creates a diff driver. blobs may be nil when no repository
// is available.
func NewDiffDriver(pipe Pipeline, blobs Blobs, opts DiffOptions) *DiffDriver {
	return &DiffDriver{pipe: pipe, blobs: blobs, opts: opts}
}

// version is one side of a diff.
type version struct {
	file, hex, mode string
}

// Run handles one invocation. git passes
//
//	path old-file old-hex old-mode new-file new-hex new-mode [new-path rename-info]
//
// or just the path for unmerged entries.
func (d *DiffDriver) Run(ctx context.Context, w io.Writer, args []string) error {
	switch len(args) {
	case 1:
		_, err := fmt.Fprintf(w, "* Unmerged path %s\n", args[0])
		return err
	case 7, 9:
	default:
		return fmt.Errorf("%w: diff driver takes 1, 7 or 9 arguments, got %d", ErrUsage, len(args))
	}

	path, newPath, info := args[0], args[0], ""
	if len(args) == 9 {
		newPath, info = args[7], args[8]
	}
	old := version{file: args[1], hex: args[2], mode: args[3]}
	cur := version{file: args[4], hex: args[5], mode: args[6]}

	oldSrc, err := d.read(old)
	if err != nil {
		return err
	}
	newSrc, err := d.read(cur)
	if err != nil {
		return err
	}

	textual := d.opts.Format == "" || d.opts.Format == render.FormatText
	style := render.NewStyle(w, d.opts.Color)
	if textual {
		var hdr strings.Builder
		fmt.Fprintf(&hdr, "%s\n", style.Header.Render(fmt.Sprintf("diff --git-ast a/%s b/%s", path, newPath)))
		if info != "" {
			hdr.WriteString(strings.TrimRight(info, "\n") + "\n")
		}
		if old.mode != cur.mode && old.file != devNull && cur.file != devNull {
			fmt.Fprintf(&hdr, "old mode %s\nnew mode %s\n", old.mode, cur.mode)
		}
		if _, err := io.WriteString(w, hdr.String()); err != nil {
			return err
		}
	}

	oldSnap, oldErr := d.load(ctx, path, oldSrc)
	newSnap, newErr := d.load(ctx, newPath, newSrc)
	if oldErr != nil || newErr != nil {
		if err := firstFatal(oldErr, newErr); err != nil {
			return err
		}
		logging.From(ctx).Debug("falling back to a line diff", zap.String("path", path), zap.NamedError("old", oldErr), zap.NamedError("new", newErr))
		return render.Unified(w, path, d.text(oldSnap, oldSrc), d.text(newSnap, newSrc), d.opts.Context)
	}

	script := diff.Compute(oldSnap, newSnap, d.opts.Diff)
	if script.Empty() && textual && string(d.text(oldSnap, oldSrc)) != string(d.text(newSnap, newSrc)) {
		_, err := fmt.Fprintln(w, style.Path.Render("layout changes only"))
		return err
	}
	return render.Script(w, script, d.opts.Format, style)
}

// read returns the content of one side. /dev/null is empty; a file that
// cannot be read is looked up by object name.
func (d *DiffDriver) read(v version) ([]byte, error) {
	if v.file == devNull {
		return nil, nil
	}
	b, err := os.ReadFile(v.file)
	if err == nil {
		return b, nil
	}
	if d.blobs == nil || v.hex == "" || v.hex == gitstore.NullHex || v.hex == "." {
		return nil, fmt.Errorf("failed to read %s: %w", v.file, err)
	}
	b, berr := d.blobs.Blob(v.hex)
	if berr != nil {
		return nil, fmt.Errorf("failed to read %s: %w", v.file, berr)
	}
	return b, nil
}

func (d *DiffDriver) load(ctx context.Context, path string, src []byte) (*tree.Snapshot, error) {
	snap, _, err := d.pipe.Load(ctx, path, src)
	return snap, err
}

// text returns the source text of a side, smudging canonical content when
// it could be decoded.
func (d *DiffDriver) text(snap *tree.Snapshot, src []byte) []byte {
	if snap == nil {
		return src
	}
	out, err := d.pipe.Text(snap)
	if err != nil {
		return src
	}
	return out
}

func firstFatal(errs ...error) error {
	for _, err := range errs {
		if err != nil && !unparsable(err) {
			return err
		}
	}
	return nil
}
