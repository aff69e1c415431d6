package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"gitast/internal/tree"
)

type record struct {
	kind     uint64
	content  string
	layout   string
	children uint64
}

// Decode validates b and rebuilds the snapshot it encodes.
func (Codec) Decode(b []byte) (*tree.Snapshot, error) {
	if !HasHeader(b) {
		return nil, &Error{Offset: 0, Reason: "missing GAST header"}
	}
	var (
		lang, trailer string
		kinds         []string
		records       []record
	)

	off := len(magic) + 1
	for off < len(b) {
		num, typ, n := protowire.ConsumeTag(b[off:])
		if n < 0 {
			return nil, &Error{Offset: off, Reason: "bad tag", Err: protowire.ParseError(n)}
		}
		if typ != protowire.BytesType {
			return nil, &Error{Offset: off, Reason: "unexpected wire type"}
		}
		field := off
		off += n
		v, n := protowire.ConsumeBytes(b[off:])
		if n < 0 {
			return nil, &Error{Offset: off, Reason: "bad length", Err: protowire.ParseError(n)}
		}
		off += n

		switch num {
		case fieldLang:
			lang = string(v)
		case fieldTrailer:
			trailer = string(v)
		case fieldKind:
			kinds = append(kinds, string(v))
		case fieldNode:
			r, err := decodeRecord(v, off-len(v))
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		default:
			return nil, &Error{Offset: field, Reason: "unknown field"}
		}
	}
	if len(records) == 0 {
		return nil, &Error{Offset: off, Reason: "no nodes"}
	}

	bl := tree.NewBuilder(lang)
	bl.SetTrailer(trailer)
	next := 0
	var place func(parent tree.NodeID) error
	place = func(parent tree.NodeID) error {
		if next >= len(records) {
			return &Error{Offset: len(b), Reason: "child count exceeds node list"}
		}
		r := records[next]
		next++
		if r.kind >= uint64(len(kinds)) {
			return &Error{Offset: len(b), Reason: "kind index out of range"}
		}
		id := bl.Add(parent, kinds[r.kind], r.content, r.layout)
		for i := uint64(0); i < r.children; i++ {
			if err := place(id); err != nil {
				return err
			}
		}
		return nil
	}
	if err := place(tree.NoNode); err != nil {
		return nil, err
	}
	if next != len(records) {
		return nil, &Error{Offset: len(b), Reason: "nodes after the root subtree"}
	}
	s, err := bl.Build()
	if err != nil {
		return nil, &Error{Offset: len(b), Reason: "inconsistent tree", Err: err}
	}
	return s, nil
}

func decodeRecord(b []byte, base int) (record, error) {
	var r record
	off := 0
	for off < len(b) {
		num, typ, n := protowire.ConsumeTag(b[off:])
		if n < 0 {
			return r, &Error{Offset: base + off, Reason: "bad node tag", Err: protowire.ParseError(n)}
		}
		off += n
		switch {
		case num == nodeKind && typ == protowire.VarintType:
			r.kind, n = protowire.ConsumeVarint(b[off:])
		case num == nodeChildren && typ == protowire.VarintType:
			r.children, n = protowire.ConsumeVarint(b[off:])
		case num == nodeContent && typ == protowire.BytesType:
			r.content, n = protowire.ConsumeString(b[off:])
		case num == nodeLayout && typ == protowire.BytesType:
			r.layout, n = protowire.ConsumeString(b[off:])
		default:
			return r, &Error{Offset: base + off, Reason: "unknown node field"}
		}
		if n < 0 {
			return r, &Error{Offset: base + off, Reason: "bad node value", Err: protowire.ParseError(n)}
		}
		off += n
	}
	return r, nil
}
