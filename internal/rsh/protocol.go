// Package rsh implements the remote shell wire protocol.
//
// A request is one command line followed by a NUL byte. A response is the
// raw output of the command followed by a single Sentinel byte. There is
// no other framing: the receiver copies bytes until it sees the sentinel
// as the last byte of a read.
package rsh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	Sentinel   byte = 0x04 // end of response
	BufferSize      = 4096 // one request, one receive chunk

	DefaultPort            = 1234
	DefaultServerInterface = "0.0.0.0"
	DefaultClientAddress   = "127.0.0.1"
)

// Replies that end a session.
const (
	MsgExiting  = "Exiting...\n"
	MsgStopping = "Stopping server...\n"
)

var (
	// ErrConnectionClosed is returned when the peer closes the connection
	// before the end of a response.
	ErrConnectionClosed = errors.New("connection closed by server")
	// ErrRequestTooLarge is returned for a line that does not fit in one
	// request buffer.
	ErrRequestTooLarge = fmt.Errorf("request longer than %d bytes", BufferSize-1)
)

// WriteRequest sends line as one NUL-terminated request.
func WriteRequest(w io.Writer, line string) error {
	if len(line) >= BufferSize {
		return ErrRequestTooLarge
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, 0)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	return nil
}

// WriteEOF ends the current response.
func WriteEOF(w io.Writer) error {
	if _, err := w.Write([]byte{Sentinel}); err != nil {
		return fmt.Errorf("send end of response: %w", err)
	}
	return nil
}

// WriteMessage sends msg as a complete response.
func WriteMessage(w io.Writer, msg string) error {
	if _, err := io.WriteString(w, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return WriteEOF(w)
}

// RequestReader reads NUL-terminated requests.
//
// Each Read is treated as holding at most one request, as a line typed at
// the client arrives in one segment. When a read does hold more than one,
// the bytes after the first NUL are kept for the next call.
type RequestReader struct {
	r       io.Reader
	buf     []byte
	pending []byte
}

func NewRequestReader(r io.Reader) *RequestReader {
	return &RequestReader{r: r, buf: make([]byte, BufferSize)}
}

// Next returns the next request with surrounding whitespace trimmed. It
// returns io.EOF when the peer closes the connection.
func (rr *RequestReader) Next() (string, error) {
	if req, ok := rr.cut(); ok {
		return req, nil
	}
	for {
		n, err := rr.r.Read(rr.buf)
		if n > 0 {
			rr.pending = append(rr.pending, rr.buf[:n]...)
			if req, ok := rr.cut(); ok {
				return req, nil
			}
			req := trimRequest(rr.pending)
			rr.pending = rr.pending[:0]
			return req, nil
		}
		if err != nil {
			if len(rr.pending) > 0 {
				req := trimRequest(rr.pending)
				rr.pending = rr.pending[:0]
				return req, nil
			}
			return "", err
		}
	}
}

func (rr *RequestReader) cut() (string, bool) {
	i := bytes.IndexByte(rr.pending, 0)
	if i < 0 {
		return "", false
	}
	req := trimRequest(rr.pending[:i])
	rr.pending = append(rr.pending[:0], rr.pending[i+1:]...)
	return req, true
}

func trimRequest(b []byte) string {
	return strings.TrimSpace(string(b))
}

// ResponseReader reads sentinel-terminated responses.
type ResponseReader struct {
	r          io.Reader
	buf        []byte
	collisions int
}

func NewResponseReader(r io.Reader) *ResponseReader {
	return &ResponseReader{r: r, buf: make([]byte, BufferSize)}
}

// Copy writes the payload of one response to dst and returns the number of
// payload bytes. A response may span many reads; it ends when a read's
// last byte is the sentinel. A sentinel anywhere else is payload and is
// counted in Collisions.
func (rr *ResponseReader) Copy(dst io.Writer) (int64, error) {
	var total int64
	for {
		n, err := rr.r.Read(rr.buf)
		if n > 0 {
			chunk := rr.buf[:n]
			done := chunk[n-1] == Sentinel
			if done {
				chunk = chunk[:n-1]
			}
			rr.collisions += bytes.Count(chunk, []byte{Sentinel})
			if len(chunk) > 0 {
				m, werr := dst.Write(chunk)
				total += int64(m)
				if werr != nil {
					return total, fmt.Errorf("write response: %w", werr)
				}
			}
			if done {
				return total, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, ErrConnectionClosed
			}
			return total, fmt.Errorf("receive response: %w", err)
		}
	}
}

// Collisions reports how many sentinel bytes were seen inside payloads.
func (rr *ResponseReader) Collisions() int {
	return rr.collisions
}
