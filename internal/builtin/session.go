package builtin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Session is the state carried from one command line to the next: the
// working directory every stage runs in and the status of the last
// external pipeline. The local shell has one; the server creates one per
// connection.
type Session struct {
	ID       string
	Remote   string // peer address, empty for the local shell
	Dir      string
	LastExit int
}

// NewSession returns a session rooted at dir, or at the process working
// directory when dir is empty.
func NewSession(dir string) *Session {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return &Session{
		ID:  uuid.NewString(),
		Dir: filepath.Clean(dir),
	}
}

// Resolve interprets path relative to the session directory.
func (s *Session) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.Dir, path)
}

// Chdir changes the session directory. The process working directory is
// left alone.
func (s *Session) Chdir(path string) error {
	target := s.Resolve(path)
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: no such file or directory", path)
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", path)
	}
	s.Dir = target
	return nil
}
