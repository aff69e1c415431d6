package syntax

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitast/internal/tree"
)

func printed(t *testing.T, s *tree.Snapshot) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, LayoutPrinter{}.Print(&buf, s, s.Root(), PrintOptions{}))
	return buf.String()
}

func TestRegistry_Parse(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "sample.go"))
	require.NoError(t, err)

	reg := NewRegistry()
	snap, err := reg.Parse(context.Background(), "testdata/sample.go", src)
	require.NoError(t, err)

	t.Run("Root", func(t *testing.T) {
		assert.Equal(t, "go", snap.Lang)
		assert.Equal(t, "source_file", snap.Kind(snap.Root()))
		assert.Greater(t, snap.Len(), 100)
	})

	t.Run("Round Trip", func(t *testing.T) {
		assert.Equal(t, string(src), printed(t, snap))
	})

	t.Run("Layout Is Whitespace", func(t *testing.T) {
		for id := tree.NodeID(0); int(id) < snap.Len(); id++ {
			assert.Empty(t, bytes.TrimSpace([]byte(snap.Layout(id))), "layout of %s", snap.Path(id))
		}
	})

	t.Run("String Literals Are Tokens", func(t *testing.T) {
		var found bool
		for id := tree.NodeID(0); int(id) < snap.Len(); id++ {
			if snap.Content(id) == `"1.0.0"` {
				found = true
				assert.True(t, snap.IsLeaf(id))
			}
		}
		assert.True(t, found)
	})
}

func TestRegistry_Languages(t *testing.T) {
	cases := []struct {
		path string
		lang string
		src  string
	}{
		{"a.py", "python", "def add(a, b):\n    return a + b\n\n\nclass C:\n    x = 'hi  there'\n"},
		{"lib.rs", "rust", "fn add(a: i32, b: i32) -> i32 {\n    a + b\n}\n"},
		{"app.js", "javascript", "const f = (a, b) => {\n  return `${a} and ${b}`;\n};\n"},
		{"mod.ts", "typescript", "export function id<T>(x: T): T {\n  return x;\n}\n"},
		{"main.go", "go", "package main\n\nfunc main() {\n\tprintln(\"hi\") // greet\n}\n\n\n"},
	}

	reg := NewRegistry()
	for _, tc := range cases {
		t.Run(tc.lang, func(t *testing.T) {
			snap, err := reg.Parse(context.Background(), tc.path, []byte(tc.src))
			require.NoError(t, err)
			assert.Equal(t, tc.lang, snap.Lang)
			assert.Equal(t, tc.src, printed(t, snap))
		})
	}
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry()

	t.Run("Unsupported", func(t *testing.T) {
		_, err := reg.Parse(context.Background(), "notes.txt", []byte("hello"))
		assert.ErrorIs(t, err, ErrUnsupportedLanguage)
		assert.False(t, reg.Supports("notes.txt"))
		assert.True(t, reg.Supports("dir/Main.GO"))
	})

	t.Run("Syntax Error", func(t *testing.T) {
		_, err := reg.Parse(context.Background(), "bad.go", []byte("package p\n\nfunc f( {\n"))
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "bad.go", perr.Path)
		assert.GreaterOrEqual(t, perr.Line, 1)
		assert.GreaterOrEqual(t, perr.Column, 1)
		assert.Contains(t, perr.Error(), "bad.go:")
	})
}

func TestParse_WhitespaceInStringsIsContent(t *testing.T) {
	reg := NewRegistry()
	a, err := reg.Parse(context.Background(), "a.go", []byte("package p\n\nvar s = \"a b\"\n"))
	require.NoError(t, err)
	b, err := reg.Parse(context.Background(), "a.go", []byte("package p\n\nvar s = \"a  b\"\n"))
	require.NoError(t, err)
	c, err := reg.Parse(context.Background(), "a.go", []byte("package p\n\nvar   s = \"a b\"\n"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash(a.Root()), b.Hash(b.Root()))
	assert.Equal(t, a.Hash(a.Root()), c.Hash(c.Root()))
}

func TestLayoutPrinter_Holes(t *testing.T) {
	reg := NewRegistry()
	snap, err := reg.Parse(context.Background(), "a.py", []byte("x = 1\ny = 2\n"))
	require.NoError(t, err)

	var hole tree.NodeID = tree.NoNode
	for id := tree.NodeID(0); int(id) < snap.Len(); id++ {
		if snap.Content(id) == "2" {
			hole = id
		}
	}
	require.NotEqual(t, tree.NoNode, hole)

	var buf bytes.Buffer
	err = LayoutPrinter{}.Print(&buf, snap, snap.Root(), PrintOptions{
		Hole: func(id tree.NodeID) bool { return id == hole },
		Fill: func(w io.Writer, _ tree.NodeID) error {
			_, err := w.Write([]byte("<two>"))
			return err
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "x = 1\ny = <two>\n", buf.String())

	buf.Reset()
	stmt := snap.Children(snap.Root())[1]
	require.NoError(t, LayoutPrinter{}.Print(&buf, snap, stmt, PrintOptions{SkipLeading: true}))
	assert.Equal(t, "y = 2", buf.String())
}
