// Package codec is the canonical binary form of a snapshot, the bytes git
// stores in its object database.
//
// The layout is the 4-byte magic "GAST", a format version byte, then one
// message in protobuf wire format:
//
//	1: lang     string
//	2: trailer  string
//	3: kinds    repeated string, in order of first use
//	4: nodes    repeated message, in pre-order
//	     1: kind index   varint
//	     2: content      string
//	     3: layout       string
//	     4: child count  varint
//
// Fields are written in number order and zero values are omitted, so equal
// snapshots always encode to equal bytes.
package codec

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"gitast/internal/tree"
)

// Version is the format version written after the magic.
const Version byte = 1

var magic = []byte("GAST")

const (
	fieldLang    protowire.Number = 1
	fieldTrailer protowire.Number = 2
	fieldKind    protowire.Number = 3
	fieldNode    protowire.Number = 4

	nodeKind     protowire.Number = 1
	nodeContent  protowire.Number = 2
	nodeLayout   protowire.Number = 3
	nodeChildren protowire.Number = 4
)

// Error reports bytes that are not a valid canonical tree.
type Error struct {
	Offset int
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid canonical tree at byte %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid canonical tree at byte %d: %s", e.Offset, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// HasHeader reports whether b starts with the canonical magic and version.
func HasHeader(b []byte) bool {
	return len(b) > len(magic) && bytes.Equal(b[:len(magic)], magic) && b[len(magic)] == Version
}

// Codec implements the serializer used by the filter pipeline.
type Codec struct{}

// Encode returns the canonical bytes of s.
func (Codec) Encode(s *tree.Snapshot) ([]byte, error) {
	if s.Len() == 0 {
		return nil, fmt.Errorf("failed to encode tree: %w", tree.ErrNoRoot)
	}
	out := append([]byte{}, magic...)
	out = append(out, Version)
	if s.Lang != "" {
		out = protowire.AppendTag(out, fieldLang, protowire.BytesType)
		out = protowire.AppendString(out, s.Lang)
	}
	if s.Trailer != "" {
		out = protowire.AppendTag(out, fieldTrailer, protowire.BytesType)
		out = protowire.AppendString(out, s.Trailer)
	}

	index := make(map[string]uint64)
	for id := tree.NodeID(0); int(id) < s.Len(); id++ {
		k := s.Kind(id)
		if _, ok := index[k]; ok {
			continue
		}
		index[k] = uint64(len(index))
		out = protowire.AppendTag(out, fieldKind, protowire.BytesType)
		out = protowire.AppendString(out, k)
	}

	var msg []byte
	for id := tree.NodeID(0); int(id) < s.Len(); id++ {
		msg = msg[:0]
		if k := index[s.Kind(id)]; k != 0 {
			msg = protowire.AppendTag(msg, nodeKind, protowire.VarintType)
			msg = protowire.AppendVarint(msg, k)
		}
		if c := s.Content(id); c != "" {
			msg = protowire.AppendTag(msg, nodeContent, protowire.BytesType)
			msg = protowire.AppendString(msg, c)
		}
		if l := s.Layout(id); l != "" {
			msg = protowire.AppendTag(msg, nodeLayout, protowire.BytesType)
			msg = protowire.AppendString(msg, l)
		}
		if n := len(s.Children(id)); n != 0 {
			msg = protowire.AppendTag(msg, nodeChildren, protowire.VarintType)
			msg = protowire.AppendVarint(msg, uint64(n))
		}
		out = protowire.AppendTag(out, fieldNode, protowire.BytesType)
		out = protowire.AppendBytes(out, msg)
	}
	return out, nil
}

// Detect reports whether b is in canonical form.
func (Codec) Detect(b []byte) bool { return HasHeader(b) }
