package mcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/spyglass-browser/spyglass/pkg/log"
)

// ErrTransportClosed is returned by reads and writes against a
// connection whose process has exited or whose Close has run.
var ErrTransportClosed = errors.New("transport closed")

// StdioTransport adapts an already-spawned supervised process to the
// protocol client. The manager decides whether to supervise; this type
// is policy-agnostic and only owns framing: one JSON value per
// newline-terminated line over the child's standard input and output.
type StdioTransport struct {
	proc         *ServerProcess
	onParseError func(error)
	onClose      func(error)
}

// NewStdioTransport wraps proc. The process must already be running;
// connecting performs no spawn.
func NewStdioTransport(proc *ServerProcess) *StdioTransport {
	return &StdioTransport{proc: proc}
}

// OnParseError registers a handler for unparseable lines from the
// peer. A bad line never terminates the connection; subsequent valid
// lines keep flowing.
func (t *StdioTransport) OnParseError(fn func(error)) { t.onParseError = fn }

// OnClose registers a handler invoked once the connection stops
// reading, with the error that ended it (nil on clean EOF).
func (t *StdioTransport) OnClose(fn func(error)) { t.onClose = fn }

// Connect returns the message-level connection over the supervised
// process's streams. The process is assumed already running, so this
// never blocks.
func (t *StdioTransport) Connect(ctx context.Context) (sdk.Connection, error) {
	conn := newStdioConnection(t.proc.Stdin(), t.proc.Stdout(), t.onParseError, t.onClose)
	conn.proc = t.proc
	return conn, nil
}

// stdioConnection implements the protocol client's connection contract
// over a pair of raw streams. Reading happens on a dedicated goroutine
// that reassembles newline-delimited frames regardless of how the OS
// chunks the bytes; writes are serialized by a mutex so send order is
// preserved.
type stdioConnection struct {
	sessionID string
	stdin     io.WriteCloser
	proc      *ServerProcess

	incoming chan jsonrpc.Message
	readErr  error
	readDone chan struct{}

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	onParseError func(error)
	onClose      func(error)

	logger *slog.Logger
}

func newStdioConnection(stdin io.WriteCloser, stdout io.Reader, onParseError func(error), onClose func(error)) *stdioConnection {
	c := &stdioConnection{
		sessionID:    uuid.New().String(),
		stdin:        stdin,
		incoming:     make(chan jsonrpc.Message, 16),
		readDone:     make(chan struct{}),
		closed:       make(chan struct{}),
		onParseError: onParseError,
		onClose:      onClose,
		logger:       log.WithComponent("mcp.transport"),
	}
	go c.readLoop(stdout)
	return c
}

func (c *stdioConnection) SessionID() string { return c.sessionID }

// readLoop accumulates stdout bytes and splits them on newline
// boundaries. The buffered reader joins partial lines across OS-level
// reads, so a frame arriving in several chunks is reassembled before
// decoding. Splitting happens on raw bytes before JSON parsing: valid
// JSON escapes literal newlines inside string values, so only
// structural newlines delimit frames.
func (c *stdioConnection) readLoop(stdout io.Reader) {
	defer close(c.readDone)

	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if line == "" || err != io.EOF {
				c.finishRead(err)
				return
			}
			// Trailing data without a newline: decode it, then stop.
			c.decodeLine(line)
			c.finishRead(io.EOF)
			return
		}

		c.decodeLine(line)
	}
}

// decodeLine strips the frame delimiter (tolerating a carriage return
// before the newline) and decodes one message. A decode failure is
// reported to the parse-error handler and the loop continues.
func (c *stdioConnection) decodeLine(line string) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return
	}

	msg, err := jsonrpc.DecodeMessage([]byte(line))
	if err != nil {
		c.logger.Warn("dropping unparseable line from server", "error", err)
		if c.onParseError != nil {
			c.onParseError(err)
		}
		return
	}

	select {
	case c.incoming <- msg:
	case <-c.closed:
	}
}

func (c *stdioConnection) finishRead(err error) {
	if err == io.EOF {
		err = nil
	}
	c.readErr = err
	if c.onClose != nil {
		c.onClose(err)
	}
}

// Read delivers the next decoded message. It returns ErrTransportClosed
// once the stream has ended and all buffered messages were consumed.
func (c *stdioConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrTransportClosed
	case <-c.readDone:
		// Drain messages decoded before the stream ended.
		select {
		case msg := <-c.incoming:
			return msg, nil
		default:
		}
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, ErrTransportClosed
	}
}

// Write serializes msg to a single newline-terminated line on the
// child's standard input. The pipe write blocks until the OS accepts
// the bytes, so completion means "accepted by the pipe", not
// acknowledged by the peer. Writes against an exited process fail.
func (c *stdioConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case <-c.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.stdin.Write(append(data, '\n'))
	return err
}

// Close tears the connection down and kills the supervised process if
// it is still alive. Idempotent; a process that already exited is not
// an error.
func (c *stdioConnection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.stdin.Close()
		if c.proc != nil {
			c.proc.Kill()
		}
	})
	return nil
}
