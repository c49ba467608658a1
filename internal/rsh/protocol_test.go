package rsh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/dsh-project/dsh/internal/pipeline"
)

// chunkReader returns one chunk per Read call, like a stream socket
// delivering separate segments.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n == len(c.chunks[0]) {
		c.chunks = c.chunks[1:]
	} else {
		c.chunks[0] = c.chunks[0][n:]
	}
	return n, nil
}

func chunks(parts ...string) *chunkReader {
	c := &chunkReader{}
	for _, p := range parts {
		c.chunks = append(c.chunks, []byte(p))
	}
	return c
}

func TestWriteRequest(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, "ls -l"); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "ls -l\x00" {
		t.Errorf("got %q", got)
	}

	if err := WriteRequest(&buf, strings.Repeat("x", BufferSize)); !errors.Is(err, ErrRequestTooLarge) {
		t.Errorf("expected ErrRequestTooLarge, got %v", err)
	}
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, MsgExiting); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "Exiting...\n\x04" {
		t.Errorf("got %q", got)
	}
}

func TestRequestReader(t *testing.T) {
	tests := []struct {
		name string
		in   *chunkReader
		want []string
	}{
		{"one per read", chunks("ls\x00", "pwd\x00"), []string{"ls", "pwd"}},
		{"coalesced", chunks("ls\x00pwd\x00"), []string{"ls", "pwd"}},
		{"trailing newline", chunks("ls\r\n\x00"), []string{"ls"}},
		{"missing terminator", chunks("ls"), []string{"ls"}},
		{"leftover joins next read", chunks("ls\x00pw", "d\x00"), []string{"ls", "pwd"}},
		{"empty request", chunks("\x00", "rc\x00"), []string{"", "rc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := NewRequestReader(tt.in)
			for _, want := range tt.want {
				got, err := rr.Next()
				if err != nil {
					t.Fatalf("Next: %v", err)
				}
				if got != want {
					t.Errorf("got %q, want %q", got, want)
				}
			}
			if _, err := rr.Next(); err != io.EOF {
				t.Errorf("expected io.EOF after last request, got %v", err)
			}
		})
	}
}

func TestResponseReaderSpansReads(t *testing.T) {
	rr := NewResponseReader(chunks("hel", "lo\n", "world\n\x04"))
	var out bytes.Buffer
	n, err := rr.Copy(&out)
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello\nworld\n" || n != int64(out.Len()) {
		t.Errorf("got %q (%d bytes)", out.String(), n)
	}
}

func TestResponseReaderSequential(t *testing.T) {
	rr := NewResponseReader(chunks("one\n\x04", "\x04", "two\n\x04"))
	for _, want := range []string{"one\n", "", "two\n"} {
		var out bytes.Buffer
		if _, err := rr.Copy(&out); err != nil {
			t.Fatal(err)
		}
		if out.String() != want {
			t.Errorf("got %q, want %q", out.String(), want)
		}
	}
}

func TestResponseReaderCollision(t *testing.T) {
	rr := NewResponseReader(chunks("a\x04b\n", "\x04"))
	var out bytes.Buffer
	if _, err := rr.Copy(&out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "a\x04b\n" {
		t.Errorf("got %q", out.String())
	}
	if rr.Collisions() != 1 {
		t.Errorf("expected 1 collision, got %d", rr.Collisions())
	}
}

func TestResponseReaderClosed(t *testing.T) {
	rr := NewResponseReader(chunks("partial"))
	var out bytes.Buffer
	_, err := rr.Copy(&out)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	if out.String() != "partial" {
		t.Errorf("partial output lost: %q", out.String())
	}
}

func TestResponseReaderReadError(t *testing.T) {
	boom := errors.New("boom")
	rr := NewResponseReader(iotest.ErrReader(boom))
	_, err := rr.Copy(io.Discard)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{pipeline.ErrNoCommands, StatusNoCommands},
		{pipeline.ErrTooManyStages, StatusTooManyStages},
		{fmt.Errorf("%w: unterminated quote", pipeline.ErrMalformed), StatusMalformed},
		{&pipeline.ResourceError{Op: "pipe", Err: errors.New("too many open files")}, StatusResource},
		{fmt.Errorf("receive: %w", ErrConnectionClosed), StatusCommunication},
		{errors.New("other"), StatusExecFailed},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{pipeline.ErrNoCommands, "warning: no commands provided\n"},
		{pipeline.ErrTooManyStages, "error: piping limited to 8 commands\n"},
		{&pipeline.ResourceError{Op: "pipe", Err: errors.New("x")}, "error: command execution failed\n"},
	}
	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}

	_, err := pipeline.Parse(`echo "open`)
	if got := Message(err); !strings.HasPrefix(got, "error: malformed command") {
		t.Errorf("unexpected malformed message %q", got)
	}
}
