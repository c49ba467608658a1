package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(line string) Record {
	return Record{
		Session:  "test-session",
		Line:     line,
		Stages:   []string{"grep", "head"},
		Duration: time.Millisecond,
		Cwd:      "/tmp",
	}
}

// writeLog creates a log holding n entries named cmd-0 .. cmd-(n-1).
func writeLog(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		r := record(fmt.Sprintf("cmd-%d", i))
		r.ExitCode = i
		require.NoError(t, logger.Log(r))
	}
	return path
}

// rewrite replaces the log's lines with edit(lines).
func rewrite(t *testing.T, path string, edit func([]string) []string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	out := strings.Join(edit(lines), "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))
}

func TestLogAndVerify(t *testing.T) {
	path := writeLog(t, 5)
	require.NoError(t, Verify(path))

	entries, err := Tail(path, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(4), entries[0].Seq)
	assert.Equal(t, 4, entries[1].ExitCode)
	assert.Equal(t, "test-session", entries[1].Session)
	assert.Equal(t, 1.0, entries[1].Duration)
	assert.Equal(t, []string{"grep", "head"}, entries[1].Stages)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	assert.NoError(t, l.Log(record("ls")))
}

func TestVerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name string
		edit func([]string) []string
		line int
	}{
		{
			name: "truncated entry",
			edit: func(l []string) []string {
				l[1] = l[1][:len(l[1])-2]
				return l
			},
			line: 2,
		},
		{
			name: "edited field",
			edit: func(l []string) []string {
				l[1] = strings.Replace(l[1], "cmd-1", "cmd-X", 1)
				return l
			},
			line: 2,
		},
		{
			name: "dropped entry",
			edit: func(l []string) []string {
				return append(l[:2:2], l[3:]...)
			},
			line: 3,
		},
		{
			name: "swapped entries",
			edit: func(l []string) []string {
				l[1], l[2] = l[2], l[1]
				return l
			},
			line: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLog(t, 4)
			rewrite(t, path, tt.edit)

			err := Verify(path)
			var chainErr *ChainError
			require.True(t, errors.As(err, &chainErr), "got %v", err)
			assert.Equal(t, tt.line, chainErr.Line)
		})
	}
}

func TestVerifyEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	assert.NoError(t, Verify(path))
}

func TestVerifyMissingLog(t *testing.T) {
	assert.Error(t, Verify(filepath.Join(t.TempDir(), "absent.jsonl")))
}

func TestTailSkipsMalformedLines(t *testing.T) {
	path := writeLog(t, 3)
	rewrite(t, path, func(l []string) []string {
		return append(l, "{not json")
	})

	entries, err := Tail(path, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cmd-2", entries[0].Line)

	entries, err = Tail(path, -1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoggerResumesChain(t *testing.T) {
	path := writeLog(t, 2)

	// A second logger on the same file, as after a restart.
	again, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, again.Log(record("after restart")))
	assert.Equal(t, path, again.Path())

	require.NoError(t, Verify(path))
	entries, err := Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(3), entries[2].Seq)
	assert.Equal(t, "after restart", entries[2].Line)
}
