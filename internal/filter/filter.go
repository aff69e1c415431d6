// Package filter implements the clean and smudge transformations git applies
// when moving files between the working tree and the object database.
package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"gitast/internal/logging"
	"gitast/internal/syntax"
	"gitast/internal/tree"
)

var (
	// ErrAbort marks failures after which git should stop asking for this
	// filter for the rest of the session.
	ErrAbort = errors.New("filter aborted")

	// ErrTooLarge is returned for inputs above Options.MaxFileSize.
	ErrTooLarge = fmt.Errorf("file too large: %w", ErrAbort)
)

// Parser turns source text into a snapshot.
type Parser interface {
	Parse(ctx context.Context, pathname string, src []byte) (*tree.Snapshot, error)
}

// Serializer converts snapshots to and from their canonical bytes.
type Serializer interface {
	Encode(s *tree.Snapshot) ([]byte, error)
	Decode(b []byte) (*tree.Snapshot, error)
	Detect(b []byte) bool
}

// Printer renders a snapshot back to source text.
type Printer interface {
	Print(w io.Writer, s *tree.Snapshot, id tree.NodeID, opts syntax.PrintOptions) error
}

const (
	OnParseErrorFail        = "fail"
	OnParseErrorPassthrough = "passthrough"
)

type Options struct {
	OnParseError string
	MaxFileSize  int64 // 0 disables the limit
}

type Pipeline struct {
	parser     Parser
	serializer Serializer
	printer    Printer
	opts       Options
	cache      *Cache
}

func New(parser Parser, serializer Serializer, printer Printer, opts Options) *Pipeline {
	return &Pipeline{
		parser:     parser,
		serializer: serializer,
		printer:    printer,
		opts:       opts,
		cache:      NewCache(DefaultCacheSize),
	}
}

// Clean converts working tree text into canonical bytes. Input that is
// already canonical is decoded and encoded again, so any valid encoding of
// a tree is stored in its one canonical form.
func (p *Pipeline) Clean(ctx context.Context, pathname string, src []byte) ([]byte, error) {
	if err := p.checkSize(pathname, src); err != nil {
		return nil, err
	}
	var (
		snap *tree.Snapshot
		err  error
	)
	if p.serializer.Detect(src) {
		if snap, err = p.decode(src); err != nil {
			return nil, fmt.Errorf("failed to validate canonical input %s: %w", pathname, err)
		}
		return p.encode(pathname, snap)
	}

	snap, err = p.parse(ctx, pathname, src)
	if err != nil {
		var perr *syntax.ParseError
		if p.opts.OnParseError == OnParseErrorPassthrough && (errors.As(err, &perr) || errors.Is(err, syntax.ErrUnsupportedLanguage)) {
			logging.From(ctx).Warn("storing file as text", zap.String("pathname", pathname), zap.Error(err))
			return src, nil
		}
		return nil, err
	}
	return p.encode(pathname, snap)
}

func (p *Pipeline) encode(pathname string, snap *tree.Snapshot) ([]byte, error) {
	out, err := p.serializer.Encode(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", pathname, err)
	}
	return out, nil
}

// Smudge converts canonical bytes into working tree text. Anything that is
// not canonical, such as blobs committed before the filter was configured,
// is returned unchanged.
func (p *Pipeline) Smudge(ctx context.Context, pathname string, blob []byte) ([]byte, error) {
	if err := p.checkSize(pathname, blob); err != nil {
		return nil, err
	}
	if !p.serializer.Detect(blob) {
		logging.From(ctx).Warn("blob is not canonical, passing through", zap.String("pathname", pathname))
		return blob, nil
	}
	snap, err := p.decode(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", pathname, err)
	}
	return p.Text(snap)
}

// Load returns the snapshot for content in either form and whether it was
// canonical.
func (p *Pipeline) Load(ctx context.Context, pathname string, content []byte) (*tree.Snapshot, bool, error) {
	if p.serializer.Detect(content) {
		snap, err := p.decode(content)
		if err != nil {
			return nil, true, fmt.Errorf("failed to decode %s: %w", pathname, err)
		}
		return snap, true, nil
	}
	snap, err := p.parse(ctx, pathname, content)
	return snap, false, err
}

// Text prints the whole snapshot.
func (p *Pipeline) Text(snap *tree.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.printer.Print(&buf, snap, snap.Root(), syntax.PrintOptions{}); err != nil {
		return nil, fmt.Errorf("failed to print tree: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode returns the canonical bytes of snap.
func (p *Pipeline) Encode(snap *tree.Snapshot) ([]byte, error) {
	return p.serializer.Encode(snap)
}

// Printer returns the printer used for smudge.
func (p *Pipeline) Printer() Printer { return p.printer }

func (p *Pipeline) checkSize(pathname string, b []byte) error {
	if p.opts.MaxFileSize > 0 && int64(len(b)) > p.opts.MaxFileSize {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, pathname, len(b), p.opts.MaxFileSize)
	}
	return nil
}

func (p *Pipeline) parse(ctx context.Context, pathname string, src []byte) (*tree.Snapshot, error) {
	key := p.cache.Key(kindSource, pathname, src)
	if snap, ok := p.cache.Get(key, src); ok {
		return snap, nil
	}
	snap, err := p.parser.Parse(ctx, pathname, src)
	if err != nil {
		return nil, err
	}
	p.cache.Put(key, src, snap)
	return snap, nil
}

func (p *Pipeline) decode(blob []byte) (*tree.Snapshot, error) {
	key := p.cache.Key(kindCanonical, "", blob)
	if snap, ok := p.cache.Get(key, blob); ok {
		return snap, nil
	}
	snap, err := p.serializer.Decode(blob)
	if err != nil {
		return nil, err
	}
	p.cache.Put(key, blob, snap)
	return snap, nil
}
