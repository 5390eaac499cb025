package mcp

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newTestConnection(t *testing.T, onParseError func(error), onClose func(error)) (*stdioConnection, *io.PipeWriter) {
	t.Helper()
	stdoutReader, stdoutWriter := io.Pipe()
	conn := newStdioConnection(nopWriteCloser{io.Discard}, stdoutReader, onParseError, onClose)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = stdoutWriter.Close()
	})
	return conn, stdoutWriter
}

func readMessage(t *testing.T, conn *stdioConnection) jsonrpc.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := conn.Read(ctx)
	require.NoError(t, err)
	return msg
}

func encodeToString(t *testing.T, msg jsonrpc.Message) string {
	t.Helper()
	data, err := jsonrpc.EncodeMessage(msg)
	require.NoError(t, err)
	return string(data)
}

func TestFramingJoinsPartialLinesAcrossChunks(t *testing.T) {
	var parseErrors atomic.Int32
	conn, stdout := newTestConnection(t, func(error) { parseErrors.Add(1) }, nil)

	// One frame split across two OS-level writes, the split landing in
	// the middle of the second frame.
	go func() {
		_, _ = stdout.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"first"}` + "\n" + `{"jsonrpc":"2.0",`))
		_, _ = stdout.Write([]byte(`"id":2,"method":"second"}` + "\n"))
	}()

	first := readMessage(t, conn)
	second := readMessage(t, conn)

	assert.Contains(t, encodeToString(t, first), `"method":"first"`)
	assert.Contains(t, encodeToString(t, second), `"method":"second"`)
	assert.Equal(t, int32(0), parseErrors.Load())
}

func TestFramingStripsCarriageReturn(t *testing.T) {
	conn, stdout := newTestConnection(t, nil, nil)

	go func() {
		_, _ = stdout.Write([]byte(`{"jsonrpc":"2.0","id":7,"method":"crlf"}` + "\r\n"))
	}()

	msg := readMessage(t, conn)
	assert.Contains(t, encodeToString(t, msg), `"method":"crlf"`)
}

func TestBadLineDoesNotDropSubsequentMessages(t *testing.T) {
	var parseErrors atomic.Int32
	conn, stdout := newTestConnection(t, func(error) { parseErrors.Add(1) }, nil)

	go func() {
		_, _ = stdout.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"good"}` + "\n"))
		_, _ = stdout.Write([]byte("this is not json\n"))
		_, _ = stdout.Write([]byte(`{"jsonrpc":"2.0","id":2,"method":"also_good"}` + "\n"))
	}()

	first := readMessage(t, conn)
	second := readMessage(t, conn)

	assert.Contains(t, encodeToString(t, first), `"method":"good"`)
	assert.Contains(t, encodeToString(t, second), `"method":"also_good"`)
	assert.Eventually(t, func() bool { return parseErrors.Load() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestEmptyLinesAreSkipped(t *testing.T) {
	var parseErrors atomic.Int32
	conn, stdout := newTestConnection(t, func(error) { parseErrors.Add(1) }, nil)

	go func() {
		_, _ = stdout.Write([]byte("\n\r\n" + `{"jsonrpc":"2.0","id":3,"method":"after_blanks"}` + "\n"))
	}()

	msg := readMessage(t, conn)
	assert.Contains(t, encodeToString(t, msg), `"method":"after_blanks"`)
	assert.Equal(t, int32(0), parseErrors.Load())
}

func TestWriteFramesOneLinePerMessage(t *testing.T) {
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	defer stdoutWriter.Close()

	conn := newStdioConnection(stdinWriter, stdoutReader, nil, nil)
	defer conn.Close()

	msg, err := jsonrpc.DecodeMessage([]byte(`{"jsonrpc":"2.0","id":9,"method":"ping"}`))
	require.NoError(t, err)

	go func() {
		_ = conn.Write(context.Background(), msg)
	}()

	buf := make([]byte, 256)
	n, err := stdinReader.Read(buf)
	require.NoError(t, err)
	line := string(buf[:n])
	assert.Contains(t, line, `"method":"ping"`)
	assert.Equal(t, uint8('\n'), line[len(line)-1])
}

func TestReadAfterStreamEndReturnsError(t *testing.T) {
	closed := make(chan error, 1)
	conn, stdout := newTestConnection(t, nil, func(err error) { closed <- err })

	go func() {
		_, _ = stdout.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"last"}` + "\n"))
		_ = stdout.Close()
	}()

	readMessage(t, conn)

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close handler never invoked")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := conn.Read(ctx)
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestWriteAfterCloseFails(t *testing.T) {
	conn, _ := newTestConnection(t, nil, nil)
	require.NoError(t, conn.Close())

	msg, err := jsonrpc.DecodeMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"late"}`))
	require.NoError(t, err)

	err = conn.Write(context.Background(), msg)
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	conn, _ := newTestConnection(t, nil, nil)
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}

func TestReadHonorsContextCancellation(t *testing.T) {
	conn, _ := newTestConnection(t, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := conn.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
