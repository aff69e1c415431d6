// Package protocol serves git's long-running filter process protocol
// (version 2) on a single input/output stream pair.
package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/pktline"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"gitast/internal/filter"
	"gitast/internal/logging"
)

type State int

const (
	AwaitHandshake State = iota
	Ready
	AwaitCommand
	AwaitContent
	Responding
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitHandshake:
		return "await-handshake"
	case Ready:
		return "ready"
	case AwaitCommand:
		return "await-command"
	case AwaitContent:
		return "await-content"
	case Responding:
		return "responding"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

const (
	CommandClean  = "clean"
	CommandSmudge = "smudge"
)

// Supported lists the capabilities this engine can serve.
var Supported = []string{CommandClean, CommandSmudge}

// Handler runs the clean and smudge transformations. *filter.Pipeline
// implements it. Errors wrapping filter.ErrAbort are reported as
// status=abort, every other error as status=error.
type Handler interface {
	Clean(ctx context.Context, pathname string, src []byte) ([]byte, error)
	Smudge(ctx context.Context, pathname string, blob []byte) ([]byte, error)
}

type Options struct {
	// Required capabilities must be offered by git, otherwise the session
	// ends during the handshake.
	Required []string
}

type Engine struct {
	in      *Reader
	out     *bufio.Writer
	enc     *pktline.Encoder
	handler Handler
	opts    Options

	state      State
	negotiated []string
}

type request struct {
	command  string
	pathname string
	meta     map[string]string
	content  []byte
}

func NewEngine(r io.Reader, w io.Writer, h Handler, opts Options) *Engine {
	out := bufio.NewWriter(w)
	return &Engine{
		in:      NewReader(r),
		out:     out,
		enc:     pktline.NewEncoder(out),
		handler: h,
		opts:    opts,
		state:   AwaitHandshake,
	}
}

// State returns the current protocol state.
func (e *Engine) State() State { return e.state }

// Capabilities returns the capabilities agreed during the handshake.
func (e *Engine) Capabilities() []string { return e.negotiated }

// Run performs the handshake and serves requests until git closes the input.
// It returns nil on a clean end of input and a fatal *Error otherwise.
func (e *Engine) Run(ctx context.Context) error {
	log := logging.From(ctx)
	defer func() { e.state = Terminated }()

	if err := e.handshake(); err != nil {
		log.Error("filter handshake failed", zap.Error(err))
		return err
	}
	e.state = Ready
	log.Debug("filter ready", zap.Strings("capabilities", e.negotiated))

	for {
		e.state = AwaitCommand
		req, err := e.readRequest()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *Error
			if !errors.As(err, &perr) || perr.Fatal {
				return err
			}
			log.Warn("rejecting filter request", zap.Error(err))
			e.state = Responding
			if err := e.respondStatus("error"); err != nil {
				return err
			}
			continue
		}

		e.state = Responding
		if err := e.serve(ctx, req); err != nil {
			return err
		}
	}
}

func (e *Engine) handshake() error {
	welcome, err := e.readSection()
	if err != nil {
		return err
	}
	if len(welcome) == 0 || welcome[0] != "git-filter-client" {
		return handshakeError("unexpected welcome %q", welcome)
	}
	if !lo.Contains(welcome[1:], "version=2") {
		return handshakeError("peer does not speak version 2: %q", welcome[1:])
	}
	if err := e.writeSection("git-filter-server", "version=2"); err != nil {
		return err
	}

	offered, err := e.readSection()
	if err != nil {
		return err
	}
	peer := lo.FilterMap(offered, func(line string, _ int) (string, bool) {
		return strings.CutPrefix(line, "capability=")
	})
	for _, c := range e.opts.Required {
		if !lo.Contains(peer, c) || !lo.Contains(Supported, c) {
			return handshakeError("required capability %q is not available", c)
		}
	}

	e.negotiated = lo.Filter(peer, func(c string, _ int) bool { return lo.Contains(Supported, c) })
	lines := lo.Map(e.negotiated, func(c string, _ int) string { return "capability=" + c })
	return e.writeSection(lines...)
}

func (e *Engine) readRequest() (*request, error) {
	first, flush, err := e.in.ReadPacket()
	if err != nil {
		return nil, err
	}
	if flush {
		return nil, &Error{Reason: "empty request"}
	}
	line := textLine(first)
	command, ok := strings.CutPrefix(line, "command=")
	if !ok {
		if err := e.drain(); err != nil {
			return nil, err
		}
		return nil, &Error{Reason: "packet without a preceding command"}
	}

	req := &request{command: command, meta: make(map[string]string)}
	var malformed string
	for {
		p, flush, err := e.in.ReadPacket()
		if err != nil {
			return nil, truncated(err)
		}
		if flush {
			break
		}
		k, v, ok := strings.Cut(textLine(p), "=")
		if !ok {
			malformed = textLine(p)
			continue
		}
		req.meta[k] = v
	}
	req.pathname = req.meta["pathname"]

	e.state = AwaitContent
	var content bytes.Buffer
	for {
		p, flush, err := e.in.ReadPacket()
		if err != nil {
			return nil, truncated(err)
		}
		if flush {
			break
		}
		content.Write(p)
	}
	req.content = content.Bytes()

	switch {
	case malformed != "":
		return nil, &Error{Reason: "malformed metadata " + malformed}
	case !lo.Contains(Supported, command):
		return nil, &Error{Reason: "unknown command " + command}
	case !lo.Contains(e.negotiated, command):
		return nil, &Error{Reason: "command not negotiated: " + command}
	case req.pathname == "":
		return nil, &Error{Reason: "missing pathname"}
	}
	return req, nil
}

func (e *Engine) serve(ctx context.Context, req *request) error {
	log := logging.From(ctx).With(zap.String("command", req.command), zap.String("pathname", req.pathname))
	if ref, ok := req.meta["ref"]; ok {
		log = log.With(zap.String("ref", ref))
	}

	var (
		out []byte
		err error
	)
	switch req.command {
	case CommandClean:
		out, err = e.handler.Clean(ctx, req.pathname, req.content)
	case CommandSmudge:
		out, err = e.handler.Smudge(ctx, req.pathname, req.content)
	}
	if err != nil {
		status := "error"
		if errors.Is(err, filter.ErrAbort) {
			status = "abort"
		}
		log.Error("failed to filter file", zap.String("status", status), zap.Error(err))
		return e.respondStatus(status)
	}

	log.Debug("filtered file", zap.Int("in", len(req.content)), zap.Int("out", len(out)))
	return e.respondContent(out)
}

func (e *Engine) respondStatus(status string) error {
	return e.writeSection("status=" + status)
}

func (e *Engine) respondContent(content []byte) error {
	if err := e.enc.EncodeString("status=success\n"); err != nil {
		return writeError(err)
	}
	if err := e.enc.Flush(); err != nil {
		return writeError(err)
	}
	for len(content) > 0 {
		n := min(len(content), pktline.MaxPayloadSize)
		if err := e.enc.Encode(content[:n]); err != nil {
			return writeError(err)
		}
		content = content[n:]
	}
	if err := e.enc.Flush(); err != nil {
		return writeError(err)
	}
	// An empty list keeps status=success.
	if err := e.enc.Flush(); err != nil {
		return writeError(err)
	}
	return e.commit()
}

func (e *Engine) readSection() ([]string, error) {
	var lines []string
	for {
		p, flush, err := e.in.ReadPacket()
		if err != nil {
			return nil, truncated(err)
		}
		if flush {
			return lines, nil
		}
		lines = append(lines, textLine(p))
	}
}

// drain skips packets up to and including the next flush.
func (e *Engine) drain() error {
	for {
		_, flush, err := e.in.ReadPacket()
		if err != nil {
			return truncated(err)
		}
		if flush {
			return nil
		}
	}
}

func (e *Engine) writeSection(lines ...string) error {
	for _, l := range lines {
		if err := e.enc.EncodeString(l + "\n"); err != nil {
			return writeError(err)
		}
	}
	if err := e.enc.Flush(); err != nil {
		return writeError(err)
	}
	return e.commit()
}

func (e *Engine) commit() error {
	if err := e.out.Flush(); err != nil {
		return writeError(err)
	}
	return nil
}

func textLine(p []byte) string {
	return strings.TrimSuffix(string(p), "\n")
}

// truncated turns an end of input inside a message into a fatal error.
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return &Error{Fatal: true, Reason: "unexpected end of input", Err: io.ErrUnexpectedEOF}
	}
	return err
}

func writeError(err error) error {
	return &Error{Fatal: true, Reason: "failed to write response", Err: err}
}
