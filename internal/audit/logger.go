// Package audit keeps an append-only record of executed pipelines. Each
// line is a JSON Entry whose hash covers the previous entry's hash, so
// edits, deletions and reordering are detectable with Verify.
package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const genesisInput = "dsh-genesis"

// Logger appends entries to one log file. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	path     string
	seq      uint64
	prevHash string
}

// NewLogger opens or creates the log at path and continues its chain.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	l := &Logger{path: path, prevHash: genesisHash()}

	last, err := lastEntry(path)
	if err != nil {
		return nil, err
	}
	if last != nil {
		l.seq = last.Seq
		l.prevHash = last.Hash
	}
	return l, nil
}

// lastEntry returns the final well-formed entry of the log, or nil.
func lastEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var last *Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if json.Unmarshal(sc.Bytes(), &e) == nil {
			last = &e
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return last, nil
}

// Log appends r to the log. A nil Logger discards it.
func (l *Logger) Log(r Record) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Seq:      l.seq + 1,
		Time:     time.Now().UTC(),
		PrevHash: l.prevHash,
		Session:  r.Session,
		Remote:   r.Remote,
		Line:     r.Line,
		Stages:   r.Stages,
		ExitCode: r.ExitCode,
		Error:    r.Error,
		Duration: float64(r.Duration.Microseconds()) / 1000.0,
		Cwd:      r.Cwd,
	}
	entry.Hash = computeHash(entry)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}

	l.seq = entry.Seq
	l.prevHash = entry.Hash
	return nil
}

func (l *Logger) Path() string {
	return l.path
}

func genesisHash() string {
	sum := sha256.Sum256([]byte(genesisInput))
	return hex.EncodeToString(sum[:])
}

// computeHash hashes e with its Hash field cleared.
func computeHash(e Entry) string {
	e.Hash = ""
	data, _ := json.Marshal(e)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}
