package audit

import (
	"encoding/json"
	"fmt"
	"os"
)

// ChainError reports the first line at which the log stops being a valid
// chain.
type ChainError struct {
	Line   int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func short(hash string) string {
	if len(hash) > 16 {
		return hash[:16] + "..."
	}
	return hash
}

// Verify checks the sequence numbers and hash chain of the log at path.
// An empty log is valid.
func Verify(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	prevHash := genesisHash()
	var prevSeq uint64
	for i, line := range splitLines(data) {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return &ChainError{Line: i + 1, Reason: "invalid JSON: " + err.Error()}
		}
		switch {
		case e.Seq != prevSeq+1:
			return &ChainError{Line: i + 1, Reason: fmt.Sprintf("sequence gap: expected %d, got %d", prevSeq+1, e.Seq)}
		case e.PrevHash != prevHash:
			return &ChainError{Line: i + 1, Reason: fmt.Sprintf("prev_hash mismatch: expected %s, got %s", short(prevHash), short(e.PrevHash))}
		}
		if sum := computeHash(e); sum != e.Hash {
			return &ChainError{Line: i + 1, Reason: fmt.Sprintf("hash mismatch: expected %s, got %s", short(sum), short(e.Hash))}
		}
		prevHash, prevSeq = e.Hash, e.Seq
	}
	return nil
}

// Tail returns up to n of the last entries of the log, oldest first.
// Malformed lines are skipped.
func Tail(path string, n int) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	lines := splitLines(data)
	if n < 0 {
		n = 0
	}
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		var e Entry
		if json.Unmarshal(line, &e) == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
