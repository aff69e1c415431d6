package filter

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/protobuf/encoding/protowire"

	"gitast/internal/codec"
	"gitast/internal/logging"
	"gitast/internal/syntax"
	"gitast/internal/tree"
)

const goSource = `package sample

// Add returns the sum.
func Add(a, b int) int {
	return a + b
}
`

type countingParser struct {
	Parser
	calls atomic.Int32
}

func (c *countingParser) Parse(ctx context.Context, pathname string, src []byte) (*tree.Snapshot, error) {
	c.calls.Add(1)
	return c.Parser.Parse(ctx, pathname, src)
}

func newPipeline(opts Options) (*Pipeline, *countingParser) {
	parser := &countingParser{Parser: syntax.NewRegistry()}
	return New(parser, codec.Codec{}, syntax.LayoutPrinter{}, opts), parser
}

func TestPipeline_RoundTrip(t *testing.T) {
	ctx := logging.With(context.Background(), zaptest.NewLogger(t))
	p, _ := newPipeline(Options{OnParseError: OnParseErrorFail})

	clean, err := p.Clean(ctx, "sample.go", []byte(goSource))
	require.NoError(t, err)
	assert.True(t, codec.HasHeader(clean))

	text, err := p.Smudge(ctx, "sample.go", clean)
	require.NoError(t, err)
	assert.Equal(t, goSource, string(text))

	t.Run("Idempotent", func(t *testing.T) {
		again, err := p.Clean(ctx, "sample.go", text)
		require.NoError(t, err)
		assert.Equal(t, clean, again)
	})

	t.Run("Canonical Input Unchanged", func(t *testing.T) {
		again, err := p.Clean(ctx, "sample.go", clean)
		require.NoError(t, err)
		assert.Equal(t, clean, again)
	})

	t.Run("Other Encoding Of The Same Tree", func(t *testing.T) {
		// A leading lang field is valid but overridden by the real one.
		head := len("GAST") + 1
		alt := append([]byte{}, clean[:head]...)
		alt = protowire.AppendTag(alt, 1, protowire.BytesType)
		alt = protowire.AppendString(alt, "python")
		alt = append(alt, clean[head:]...)
		require.NotEqual(t, clean, alt)

		again, err := p.Clean(ctx, "sample.go", alt)
		require.NoError(t, err)
		assert.Equal(t, clean, again)

		text, err := p.Smudge(ctx, "sample.go", again)
		require.NoError(t, err)
		assert.Equal(t, goSource, string(text))
	})
}

func TestPipeline_Smudge_Passthrough(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(Options{})

	legacy := []byte("package old\n")
	out, err := p.Smudge(ctx, "old.go", legacy)
	require.NoError(t, err)
	assert.Equal(t, legacy, out)

	markers := []byte("<<<<<<< HEAD\nx\n=======\ny\n>>>>>>> BRANCH\n")
	out, err = p.Smudge(ctx, "conflicted.go", markers)
	require.NoError(t, err)
	assert.Equal(t, markers, out)
}

func TestPipeline_ParseErrors(t *testing.T) {
	ctx := context.Background()
	bad := []byte("package p\n\nfunc f( {\n")

	t.Run("Fail", func(t *testing.T) {
		p, _ := newPipeline(Options{OnParseError: OnParseErrorFail})
		_, err := p.Clean(ctx, "bad.go", bad)
		var perr *syntax.ParseError
		assert.ErrorAs(t, err, &perr)
		assert.NotErrorIs(t, err, ErrAbort)
	})

	t.Run("Passthrough", func(t *testing.T) {
		p, _ := newPipeline(Options{OnParseError: OnParseErrorPassthrough})
		out, err := p.Clean(ctx, "bad.go", bad)
		require.NoError(t, err)
		assert.Equal(t, bad, out)

		out, err = p.Clean(ctx, "notes.txt", []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, "hello", string(out))
	})

	t.Run("Corrupt Canonical", func(t *testing.T) {
		p, _ := newPipeline(Options{})
		corrupt := append([]byte("GAST"), codec.Version, 0xff)
		_, err := p.Smudge(ctx, "a.go", corrupt)
		var cerr *codec.Error
		assert.ErrorAs(t, err, &cerr)
	})
}

func TestPipeline_TooLarge(t *testing.T) {
	p, _ := newPipeline(Options{MaxFileSize: 8})
	_, err := p.Clean(context.Background(), "sample.go", []byte(goSource))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, ErrAbort)
}

func TestPipeline_Load(t *testing.T) {
	ctx := context.Background()
	p, parser := newPipeline(Options{})

	fromText, canonical, err := p.Load(ctx, "sample.go", []byte(goSource))
	require.NoError(t, err)
	assert.False(t, canonical)

	clean, err := p.Clean(ctx, "sample.go", []byte(goSource))
	require.NoError(t, err)
	assert.Equal(t, int32(1), parser.calls.Load(), "second parse is served from the cache")

	fromBlob, canonical, err := p.Load(ctx, "sample.go", clean)
	require.NoError(t, err)
	assert.True(t, canonical)
	assert.True(t, tree.Isomorphic(fromText, fromText.Root(), fromBlob, fromBlob.Root()))
}

func TestCache(t *testing.T) {
	s := &tree.Snapshot{}

	t.Run("Evicts", func(t *testing.T) {
		c := NewCache(2)
		k1 := c.Key(kindSource, "a.go", []byte("1"))
		k2 := c.Key(kindSource, "a.go", []byte("2"))
		k3 := c.Key(kindSource, "a.go", []byte("3"))
		assert.NotEqual(t, k1, c.Key(kindSource, "a.py", []byte("1")))
		assert.NotEqual(t, k1, c.Key(kindCanonical, "a.go", []byte("1")))

		c.Put(k1, []byte("1"), s)
		c.Put(k2, []byte("2"), s)
		c.Put(k3, []byte("3"), s)
		assert.Equal(t, 2, c.Len())
		_, ok := c.Get(k1, []byte("1"))
		assert.False(t, ok)
		_, ok = c.Get(k3, []byte("3"))
		assert.True(t, ok)
	})

	t.Run("Collision", func(t *testing.T) {
		c := NewCache(2)
		content := []byte("package a\n")
		k := c.Key(kindSource, "a.go", content)
		c.Put(k, content, s)

		_, ok := c.Get(k, []byte("package b\n"))
		assert.False(t, ok, "same key with other content is a miss")

		content[8] = 'z'
		got, ok := c.Get(k, []byte("package a\n"))
		assert.True(t, ok, "the cache keeps its own copy")
		assert.Same(t, s, got)
	})
}
