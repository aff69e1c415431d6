package crawler

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitast/internal/codec"
	"gitast/internal/filter"
	"gitast/internal/syntax"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// lossy loses the final newline on smudge.
type lossy struct{ *filter.Pipeline }

func (l lossy) Smudge(ctx context.Context, pathname string, blob []byte) ([]byte, error) {
	out, err := l.Pipeline.Smudge(ctx, pathname, blob)
	return bytes.TrimRight(out, "\n"), err
}

func TestCrawler_Check(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n")
	write(t, dir, "pkg/util.py", "def f(a):\n    return a  # done\n")
	write(t, dir, "README.md", "# not code\n")
	write(t, dir, "node_modules/dep/index.js", "module.exports = 1;\n")
	broken := write(t, dir, "broken.rs", "fn main( {\n")

	reg := syntax.NewRegistry()
	pipe := filter.New(reg, codec.Codec{}, syntax.LayoutPrinter{}, filter.Options{OnParseError: filter.OnParseErrorFail})

	t.Run("Scan", func(t *testing.T) {
		var seen []string
		require.NoError(t, NewCrawler(pipe, reg).Scan(dir, func(path string) error {
			seen = append(seen, filepath.Base(path))
			return nil
		}))
		assert.ElementsMatch(t, []string{"main.go", "util.py", "broken.rs"}, seen)
	})

	t.Run("Check", func(t *testing.T) {
		results, err := NewCrawler(pipe, reg).Check(context.Background(), dir, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for _, r := range results {
			if r.Path == broken {
				var perr *syntax.ParseError
				assert.ErrorAs(t, r.Err, &perr)
				continue
			}
			assert.NoError(t, r.Err, r.Path)
		}
		assert.True(t, results[0].Path < results[1].Path, "sorted by path")
	})

	t.Run("Only", func(t *testing.T) {
		only := []string{filepath.Join(dir, "main.go")}
		results, err := NewCrawler(pipe, reg).Check(context.Background(), dir, only)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.NoError(t, results[0].Err)
	})

	t.Run("Not Fixed Point", func(t *testing.T) {
		err := Verify(context.Background(), lossy{pipe}, "m.py", []byte("x = 1\n"))
		assert.ErrorIs(t, err, ErrNotFixedPoint)
	})
}
