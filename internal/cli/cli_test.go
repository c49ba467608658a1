package cli

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsh-project/dsh/internal/audit"
	"github.com/dsh-project/dsh/internal/rsh"
	"github.com/dsh-project/dsh/internal/server"
)

type testApp struct {
	*App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// newTestApp returns an App with an in-memory config filesystem and input
// taken from a file holding input.
func newTestApp(t *testing.T, input string) *testApp {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stdin")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o600))
	stdin, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { stdin.Close() })

	ta := &testApp{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	ta.App = &App{
		Version: "1.2.3",
		Fs:      afero.NewMemMapFs(),
		Stdin:   stdin,
		Stdout:  ta.stdout,
		Stderr:  ta.stderr,
	}
	return ta
}

func (ta *testApp) run(args ...string) int {
	return ta.Run(append([]string{"--config", "/etc/dsh.yaml"}, args...))
}

func TestVersion(t *testing.T) {
	ta := newTestApp(t, "")
	assert.Equal(t, 0, ta.run("version"))
	assert.Equal(t, "dsh 1.2.3\n", ta.stdout.String())
}

func TestBuiltinsList(t *testing.T) {
	ta := newTestApp(t, "")
	require.Equal(t, 0, ta.run("builtins", "--remote"))

	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
	)
	g.Assert(t, "builtins_remote", ta.stdout.Bytes())

	ta = newTestApp(t, "")
	require.Equal(t, 0, ta.run("builtins"))
	assert.NotContains(t, ta.stdout.String(), "stop-server")
}

func TestLocalShell(t *testing.T) {
	ta := newTestApp(t, "echo hi | tr a-z A-Z\nexit\n")
	assert.Equal(t, 0, ta.run())
	assert.Equal(t, "dsh4> HI\ndsh4> exiting...\n", ta.stdout.String())
	assert.Empty(t, ta.stderr.String())
}

func TestLocalShellUsesConfig(t *testing.T) {
	ta := newTestApp(t, "rc\n")
	require.NoError(t, afero.WriteFile(ta.Fs, "/etc/dsh.yaml", []byte("shell:\n  prompt: \"% \"\n"), 0o644))

	assert.Equal(t, 0, ta.run())
	assert.Equal(t, "% 0\n% \n", ta.stdout.String())
}

func TestLocalShellDefaultConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	ta := newTestApp(t, "exit\n")
	path := filepath.Join(home, ".config", "dsh", "config.yaml")
	require.NoError(t, afero.WriteFile(ta.Fs, path, []byte("shell:\n  prompt: \"$ \"\n"), 0o644))

	assert.Equal(t, 0, ta.Run([]string{}))
	assert.Equal(t, "$ exiting...\n", ta.stdout.String())
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"exclusive modes", []string{"-c", "-s"}, "exclusive"},
		{"bad port", []string{"-p", "70000"}, "port"},
		{"bad log level", []string{"--log-level", "chatty"}, "level"},
		{"unknown flag", []string{"--frobnicate"}, "unknown flag"},
		{"stray argument", []string{"ls"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, "")
			assert.Equal(t, exitUsage, ta.run(tt.args...))
			assert.Contains(t, ta.stderr.String(), tt.want)
		})
	}
}

func TestConfigInitAndShow(t *testing.T) {
	ta := newTestApp(t, "")
	require.Equal(t, 0, ta.run("config", "init"))
	assert.Equal(t, "wrote /etc/dsh.yaml\n", ta.stdout.String())

	ok, err := afero.Exists(ta.Fs, "/etc/dsh.yaml")
	require.NoError(t, err)
	assert.True(t, ok)

	ta.stdout.Reset()
	require.Equal(t, 0, ta.run("config", "show", "--log-level", "debug"))
	assert.Contains(t, ta.stdout.String(), "port: 1234")
	assert.Contains(t, ta.stdout.String(), "level: debug")

	assert.Equal(t, exitUsage, ta.run("config", "init"), "existing config is kept")
}

func startServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.New(server.Options{Dir: t.TempDir()}).Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func TestClientMode(t *testing.T) {
	host, port, err := net.SplitHostPort(startServer(t))
	require.NoError(t, err)

	ta := newTestApp(t, "echo remote\n\nexit\n")
	assert.Equal(t, 0, ta.run("-c", "-i", host, "-p", port))
	assert.Equal(t, "dsh4> remote\ndsh4> dsh4> "+rsh.MsgExiting, ta.stdout.String())
}

func TestClientConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()

	ta := newTestApp(t, "echo never\n")
	assert.Equal(t, exitUsage, ta.run("-c", "-p", port))
	assert.Contains(t, ta.stderr.String(), "connect to 127.0.0.1:"+port)
}

func TestServerMode(t *testing.T) {
	dir, err := os.MkdirTemp("", "dsh-cli-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "dsh.sock")

	srv := newTestApp(t, "")
	code := make(chan int, 1)
	go func() { code <- srv.run("-s", "--socket", sock) }()

	var conn net.Conn
	require.Eventually(t, func() bool {
		conn, err = net.Dial("unix", sock)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	defer conn.Close()

	resp := rsh.NewResponseReader(conn)
	var out bytes.Buffer
	require.NoError(t, rsh.WriteRequest(conn, "stop-server"))
	_, err = resp.Copy(&out)
	require.NoError(t, err)
	assert.Equal(t, rsh.MsgStopping, out.String())

	select {
	case c := <-code:
		assert.Equal(t, 0, c)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestAuditCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := audit.NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, logger.Log(audit.Record{Line: "echo one", Stages: []string{"echo"}}))
	require.NoError(t, logger.Log(audit.Record{Line: "echo two", Stages: []string{"echo"}}))

	ta := newTestApp(t, "")
	require.Equal(t, 0, ta.run("audit", "verify", "--file", path))
	assert.Equal(t, "audit log integrity verified\n", ta.stdout.String())

	ta.stdout.Reset()
	require.Equal(t, 0, ta.run("audit", "show", "-n", "1", "--file", path))
	assert.Contains(t, ta.stdout.String(), `"line": "echo two"`)
	assert.NotContains(t, ta.stdout.String(), "echo one")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, bytes.Replace(data, []byte("echo one"), []byte("echo 0ne"), 1), 0o600))
	assert.Equal(t, exitFailure, ta.run("audit", "verify", "--file", path))
	assert.Contains(t, ta.stderr.String(), "audit verification failed")
}

func TestAuditNotConfigured(t *testing.T) {
	ta := newTestApp(t, "")
	assert.Equal(t, exitUsage, ta.run("audit", "verify"))
	assert.Contains(t, ta.stderr.String(), "no audit log configured")
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		status rsh.Status
		want   int
	}{
		{rsh.StatusOK, exitOK},
		{rsh.StatusExit, exitOK},
		{rsh.StatusStopServer, exitOK},
		{rsh.StatusClient, exitUsage},
		{rsh.StatusCommunication, exitCommunication},
		{rsh.StatusServer, exitServer},
		{rsh.StatusExecFailed, exitFailure},
		{rsh.StatusResource, exitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.status), tt.status.String())
	}
}
