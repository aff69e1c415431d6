package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// MaxPacketLen is the largest packet, length prefix included.
const MaxPacketLen = 65520

// Reader decodes pkt-line framed input. The payload returned by ReadPacket
// is only valid until the next call.
type Reader struct {
	r   *bufio.Reader
	hdr [4]byte
	buf []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), buf: make([]byte, MaxPacketLen-4)}
}

// ReadPacket returns the next packet. flush is set for a flush packet. io.EOF
// is returned only when the input ends exactly between two packets.
func (r *Reader) ReadPacket() (payload []byte, flush bool, err error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, io.EOF
		}
		return nil, false, &Error{Fatal: true, Reason: "truncated packet length", Err: err}
	}
	n, err := strconv.ParseUint(string(r.hdr[:]), 16, 16)
	if err != nil {
		return nil, false, &Error{Fatal: true, Reason: fmt.Sprintf("invalid packet length %q", r.hdr[:])}
	}
	switch {
	case n == 0:
		return nil, true, nil
	case n < 4 || n > MaxPacketLen:
		return nil, false, &Error{Fatal: true, Reason: fmt.Sprintf("invalid packet length %d", n)}
	}
	payload = r.buf[:n-4]
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, false, &Error{Fatal: true, Reason: "truncated packet", Err: err}
	}
	return payload, false, nil
}
