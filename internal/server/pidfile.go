package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// writePIDFile records the server's pid at path. It refuses when the file
// names a process that is still alive.
func writePIDFile(path string) error {
	if pid, ok := readPID(path); ok && processAlive(pid) {
		return fmt.Errorf("server already running (pid %d)", pid)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	if pid == os.Getpid() {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// cleanStaleSocket removes a socket file if no process is listening on it.
// Returns an error if a live server is detected.
func cleanStaleSocket(sockPath string) error {
	if _, err := os.Stat(sockPath); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	conn, err := net.Dial("unix", sockPath)
	if err == nil {
		conn.Close()
		return fmt.Errorf("server already running (socket %s is active)", sockPath)
	}

	return os.Remove(sockPath)
}
