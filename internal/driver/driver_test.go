package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitast/internal/codec"
	"gitast/internal/diff"
	"gitast/internal/filter"
	"gitast/internal/gitstore"
	"gitast/internal/merge"
	"gitast/internal/render"
	"gitast/internal/syntax"
)

const base = `def f(a):
    return 1


def g():
    return 2
`

func pipeline() *filter.Pipeline {
	return filter.New(syntax.NewRegistry(), codec.Codec{}, syntax.LayoutPrinter{}, filter.Options{OnParseError: filter.OnParseErrorFail})
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func clean(t *testing.T, src string) string {
	t.Helper()
	out, err := pipeline().Clean(context.Background(), "m.py", []byte(src))
	require.NoError(t, err)
	return string(out)
}

type blobs map[string]string

func (b blobs) Blob(hex string) ([]byte, error) {
	if s, ok := b[hex]; ok {
		return []byte(s), nil
	}
	return nil, errors.New("object not found")
}

const oldHex = "1111111111111111111111111111111111111111"

func TestDiffDriver(t *testing.T) {
	dir := t.TempDir()
	oldFile := write(t, dir, "old", base)
	newFile := write(t, dir, "new", "def f(x):\n    return 1\n\n\ndef g():\n    return 2\n")
	opts := DiffOptions{Diff: diff.DefaultOptions(), Format: render.FormatText, Color: render.ColorNever, Context: 3}

	run := func(t *testing.T, d *DiffDriver, args ...string) (string, error) {
		t.Helper()
		var buf bytes.Buffer
		err := d.Run(context.Background(), &buf, args)
		return buf.String(), err
	}

	t.Run("Structural", func(t *testing.T) {
		out, err := run(t, NewDiffDriver(pipeline(), nil, opts), "m.py", oldFile, oldHex, "100644", newFile, gitstore.NullHex, "100644")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "diff --git-ast a/m.py b/m.py\n"))
		assert.Contains(t, out, "update")
		assert.Contains(t, out, `"a" -> "x"`)
		assert.NotContains(t, out, "old mode")
	})

	t.Run("Canonical Sides", func(t *testing.T) {
		canon := write(t, dir, "canon", clean(t, base))
		out, err := run(t, NewDiffDriver(pipeline(), nil, opts), "m.py", canon, oldHex, "100644", newFile, gitstore.NullHex, "100755")
		require.NoError(t, err)
		assert.Contains(t, out, `"a" -> "x"`)
		assert.Contains(t, out, "old mode 100644\nnew mode 100755\n")
	})

	t.Run("Dev Null", func(t *testing.T) {
		out, err := run(t, NewDiffDriver(pipeline(), nil, opts), "m.py", "/dev/null", gitstore.NullHex, ".", newFile, gitstore.NullHex, "100644")
		require.NoError(t, err)
		assert.Contains(t, out, "insert")
		assert.NotContains(t, out, "delete")
	})

	t.Run("Rename", func(t *testing.T) {
		out, err := run(t, NewDiffDriver(pipeline(), nil, opts), "m.py", oldFile, oldHex, "100644", newFile, gitstore.NullHex, "100644",
			"n.py", "similarity index 90%\nrename from m.py\nrename to n.py\n")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "diff --git-ast a/m.py b/n.py\nsimilarity index 90%\nrename from m.py\nrename to n.py\n"))
	})

	t.Run("Blob Fallback", func(t *testing.T) {
		missing := filepath.Join(dir, "gone")
		d := NewDiffDriver(pipeline(), blobs{oldHex: base}, opts)
		out, err := run(t, d, "m.py", missing, oldHex, "100644", newFile, gitstore.NullHex, "100644")
		require.NoError(t, err)
		assert.Contains(t, out, `"a" -> "x"`)

		_, err = run(t, NewDiffDriver(pipeline(), nil, opts), "m.py", missing, oldHex, "100644", newFile, gitstore.NullHex, "100644")
		assert.Error(t, err)
	})

	t.Run("Unparsable", func(t *testing.T) {
		broken := write(t, dir, "broken", "def f(:\n")
		out, err := run(t, NewDiffDriver(pipeline(), nil, opts), "m.py", oldFile, oldHex, "100644", broken, gitstore.NullHex, "100644")
		require.NoError(t, err)
		assert.Contains(t, out, "--- a/m.py")
		assert.Contains(t, out, "+def f(:\n")
	})

	t.Run("Layout Only", func(t *testing.T) {
		a := write(t, dir, "a", "x = 1\n")
		b := write(t, dir, "b", "x  =  1\n")
		out, err := run(t, NewDiffDriver(pipeline(), nil, opts), "m.py", a, oldHex, "100644", b, gitstore.NullHex, "100644")
		require.NoError(t, err)
		assert.Contains(t, out, "layout changes only")
	})

	t.Run("JSON", func(t *testing.T) {
		jsonOpts := opts
		jsonOpts.Format = render.FormatJSON
		out, err := run(t, NewDiffDriver(pipeline(), nil, jsonOpts), "m.py", oldFile, oldHex, "100644", newFile, gitstore.NullHex, "100644")
		require.NoError(t, err)
		var recs []render.Record
		require.NoError(t, json.Unmarshal([]byte(out), &recs))
		require.Len(t, recs, 1)
		assert.Equal(t, "update", recs[0].Op)
	})

	t.Run("Unmerged", func(t *testing.T) {
		out, err := run(t, NewDiffDriver(pipeline(), nil, opts), "m.py")
		require.NoError(t, err)
		assert.Equal(t, "* Unmerged path m.py\n", out)
	})

	t.Run("Usage", func(t *testing.T) {
		_, err := run(t, NewDiffDriver(pipeline(), nil, opts), "a", "b", "c")
		assert.ErrorIs(t, err, ErrUsage)
	})
}

func TestMergeDriver(t *testing.T) {
	opts := MergeOptions{Merge: merge.DefaultOptions(), MarkerSize: 7, OnConflict: OnConflictMarkers}
	ours := "def f(x):\n    return 1\n\n\ndef g():\n    return 2\n"
	theirs := "def f(y):\n    return 1\n\n\ndef g():\n    return 2\n"

	setup := func(t *testing.T, b, o, th string) (string, []string) {
		t.Helper()
		dir := t.TempDir()
		cur := write(t, dir, "cur", o)
		return cur, []string{write(t, dir, "base", b), cur, write(t, dir, "other", th), "7", "m.py"}
	}
	read := func(t *testing.T, p string) string {
		t.Helper()
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(b)
	}

	t.Run("Clean", func(t *testing.T) {
		cur, args := setup(t, base,
			"def f(a):\n    return 10\n\n\ndef g():\n    return 2\n",
			"def f(a):\n    return 1\n\n\ndef g():\n    return 20\n")
		require.NoError(t, NewMergeDriver(pipeline(), opts).Run(context.Background(), args))
		assert.Equal(t, "def f(a):\n    return 10\n\n\ndef g():\n    return 20\n", read(t, cur))
	})

	t.Run("Conflict", func(t *testing.T) {
		cur, args := setup(t, base, ours, theirs)
		err := NewMergeDriver(pipeline(), opts).Run(context.Background(), args)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, "<<<<<<< HEAD\ndef f(x):\n=======\ndef f(y):\n>>>>>>> BRANCH\n    return 1\n\n\ndef g():\n    return 2\n", read(t, cur))
	})

	t.Run("Canonical", func(t *testing.T) {
		cur, args := setup(t, clean(t, base),
			clean(t, "def f(a):\n    return 10\n\n\ndef g():\n    return 2\n"),
			clean(t, "def f(a):\n    return 1\n\n\ndef g():\n    return 20\n"))
		require.NoError(t, NewMergeDriver(pipeline(), opts).Run(context.Background(), args))

		got := read(t, cur)
		require.True(t, codec.HasHeader([]byte(got)), "clean canonical merge stays canonical")
		text, err := pipeline().Smudge(context.Background(), "m.py", []byte(got))
		require.NoError(t, err)
		assert.Equal(t, "def f(a):\n    return 10\n\n\ndef g():\n    return 20\n", string(text))
	})

	t.Run("Canonical Conflict", func(t *testing.T) {
		cur, args := setup(t, clean(t, base), clean(t, ours), clean(t, theirs))
		err := NewMergeDriver(pipeline(), opts).Run(context.Background(), args)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Contains(t, read(t, cur), "<<<<<<< HEAD\n", "conflicts are written as text")
	})

	t.Run("Abort", func(t *testing.T) {
		cur, args := setup(t, base, ours, theirs)
		abort := opts
		abort.OnConflict = OnConflictAbort
		err := NewMergeDriver(pipeline(), abort).Run(context.Background(), args)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, ours, read(t, cur))
	})

	t.Run("Marker Size", func(t *testing.T) {
		cur, args := setup(t, base, ours, theirs)
		args[3] = "3"
		assert.ErrorIs(t, NewMergeDriver(pipeline(), opts).Run(context.Background(), args), ErrConflict)
		assert.True(t, strings.HasPrefix(read(t, cur), "<<< HEAD\n"))

		cur, args = setup(t, base, ours, theirs)
		args[3] = "bogus"
		assert.ErrorIs(t, NewMergeDriver(pipeline(), opts).Run(context.Background(), args), ErrConflict)
		assert.True(t, strings.HasPrefix(read(t, cur), "<<<<<<< HEAD\n"))
	})

	t.Run("Fallback", func(t *testing.T) {
		cur, args := setup(t, base, "def f(:\n", theirs)
		d := NewMergeDriver(pipeline(), opts)
		var calls int
		d.fallback = func(_ context.Context, current, b, other string, size int) (bool, error) {
			calls++
			assert.Equal(t, 7, size)
			got, err := os.ReadFile(b)
			require.NoError(t, err)
			assert.Equal(t, base, string(got))
			return true, os.WriteFile(current, []byte("merged by text\n"), 0o600)
		}
		assert.ErrorIs(t, d.Run(context.Background(), args), ErrConflict)
		assert.Equal(t, 1, calls)
		assert.Equal(t, "merged by text\n", read(t, cur))
	})

	t.Run("Missing Input", func(t *testing.T) {
		_, args := setup(t, base, ours, theirs)
		args[0] = filepath.Join(t.TempDir(), "missing")
		err := NewMergeDriver(pipeline(), opts).Run(context.Background(), args)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrConflict)
	})

	t.Run("Usage", func(t *testing.T) {
		assert.ErrorIs(t, NewMergeDriver(pipeline(), opts).Run(context.Background(), []string{"a"}), ErrUsage)
	})
}
