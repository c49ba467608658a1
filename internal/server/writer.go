package server

import (
	"bytes"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/dsh-project/dsh/internal/rsh"
)

// responseWriter is the stdout and stderr of everything run for one
// connection. The same value is handed out for both streams so the
// executor multiplexes them onto one pipe, and the mutex keeps builtin
// output and the end-of-response byte from interleaving with it.
//
// A sentinel byte inside command output ends the client's read early. It
// is logged, not escaped.
type responseWriter struct {
	mu         sync.Mutex
	w          io.Writer
	log        *zap.Logger
	collisions int
}

func newResponseWriter(w io.Writer, log *zap.Logger) *responseWriter {
	return &responseWriter{w: w, log: log}
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if n := bytes.Count(p, []byte{rsh.Sentinel}); n > 0 {
		rw.collisions += n
		rw.log.Warn("command output contains the end-of-response byte",
			zap.Int("count", n),
			zap.Int("total", rw.collisions),
		)
	}
	return rw.w.Write(p)
}

// End terminates the current response.
func (rw *responseWriter) End() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rsh.WriteEOF(rw.w)
}

// Message sends msg as a complete response.
func (rw *responseWriter) Message(msg string) error {
	if _, err := io.WriteString(rw, msg); err != nil {
		return err
	}
	return rw.End()
}

func (rw *responseWriter) Collisions() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.collisions
}
