package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Statuses for stages whose program never ran.
const (
	StatusRedirectFailed = 1
	StatusCannotExec     = 126
	StatusNotFound       = 127
)

// Streams are the pipeline's external endpoints. A nil field is bound to
// the null device.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Executor runs pipelines as operating-system processes connected by pipes.
type Executor struct {
	// Dir is the working directory of every stage and the base for relative
	// redirect paths. Empty means the process working directory.
	Dir string
	// Env is the stage environment. Nil means the current environment.
	Env []string
	// Stderr is inherited by every stage except the last. Nil means os.Stderr.
	Stderr io.Writer
	Logger *zap.Logger

	// pipe allocates one pipe. Nil means os.Pipe.
	pipe func() (r, w *os.File, err error)
}

type pipeEnds struct {
	r, w *os.File
}

func closePipes(pipes []pipeEnds) {
	for _, p := range pipes {
		p.r.Close()
		p.w.Close()
	}
}

// Run executes p and returns the exit status of its last stage.
//
// All N-1 pipes are allocated before any stage starts; failing that, Run
// returns a *ResourceError and nothing is spawned. A stage that cannot start
// gets a status of its own (127 not found, 126 not executable, 1 for a bad
// redirect file) and a message on its stderr, and the other stages run as
// usual. The parent's copies of the pipe ends are closed once every stage
// has been started, so readers see EOF when their writer exits.
//
// ctx is only checked before anything is started. Running stages are
// never killed.
func (e *Executor) Run(ctx context.Context, p *Pipeline, streams Streams) (int, error) {
	if p == nil || len(p.Stages) == 0 {
		return 0, ErrNoCommands
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	log := e.logger()
	plan := Plan(p)
	n := len(plan)

	newPipe := e.pipe
	if newPipe == nil {
		newPipe = os.Pipe
	}
	pipes := make([]pipeEnds, 0, n-1)
	for i := 0; i < n-1; i++ {
		r, w, err := newPipe()
		if err != nil {
			closePipes(pipes)
			return 0, &ResourceError{Op: "pipe", Err: err}
		}
		pipes = append(pipes, pipeEnds{r: r, w: w})
	}

	inherited := e.Stderr
	if inherited == nil {
		inherited = os.Stderr
	}
	var mu sync.Mutex
	streams.Stdout = guard(&mu, streams.Stdout)
	streams.Stderr = guard(&mu, streams.Stderr)
	inherited = guard(&mu, inherited)

	stages := make([]*stage, n)
	for i, b := range plan {
		stages[i] = e.start(i, p.Stages[i], b, pipes, streams, inherited, log)
	}
	closePipes(pipes)

	statuses := make([]int, n)
	for i, st := range stages {
		statuses[i] = st.wait(log)
	}
	log.Debug("pipeline finished",
		zap.Stringer("pipeline", p),
		zap.Ints("statuses", statuses),
	)
	return statuses[n-1], nil
}

// lockedWriter shares one mutex with the other writers of a run, so the
// copy goroutines os/exec starts for non-file streams and the executor's own
// messages never write at the same time.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// guard wraps w in a lockedWriter. Files are passed to the child as
// descriptors and are returned unchanged, as is nil.
func guard(mu *sync.Mutex, w io.Writer) io.Writer {
	switch w.(type) {
	case nil, *os.File:
		return w
	}
	return &lockedWriter{mu: mu, w: w}
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) resolve(path string) string {
	if e.Dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.Dir, path)
}

type stage struct {
	index  int
	name   string
	cmd    *exec.Cmd
	status int
	files  []*os.File // redirect files opened by the parent
}

func (st *stage) closeFiles() {
	for _, f := range st.files {
		f.Close()
	}
	st.files = nil
}

func (st *stage) wait(log *zap.Logger) int {
	if st.cmd == nil {
		return st.status
	}
	err := st.cmd.Wait()
	st.status = exitStatus(st.cmd.ProcessState)
	if err != nil && !isExitError(err) {
		log.Debug("stage i/o failed", zap.Int("stage", st.index), zap.String("program", st.name), zap.Error(err))
	}
	return st.status
}

func isExitError(err error) bool {
	var ee *exec.ExitError
	return errors.As(err, &ee)
}

// exitStatus follows the shell convention of 128+signal for a stage killed
// by a signal.
func exitStatus(ps *os.ProcessState) int {
	if ps == nil {
		return StatusCannotExec
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}

func spawnStatus(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return StatusNotFound
	}
	return StatusCannotExec
}

func (e *Executor) start(i int, spec CommandSpec, b Binding, pipes []pipeEnds, streams Streams, inherited io.Writer, log *zap.Logger) *stage {
	st := &stage{index: i, name: spec.Name()}
	for _, r := range b.Ignored {
		log.Debug("redirect overridden by pipe", zap.Int("stage", i), zap.String("redirect", r))
	}

	var stderr io.Writer
	switch b.Stderr.Kind {
	case ToInherited:
		stderr = inherited
	default:
		stderr = streams.Stderr
	}
	report := stderr
	if report == nil {
		report = io.Discard
	}

	stdin, err := e.source(b.Stdin, streams, pipes, st)
	var stdout io.Writer
	if err == nil {
		stdout, err = e.sink(b.Stdout, streams, pipes, st)
	}
	if err != nil {
		fmt.Fprintf(report, "%s: %v\n", spec.Name(), err)
		st.status = StatusRedirectFailed
		st.closeFiles()
		log.Debug("stage redirect failed", zap.Int("stage", i), zap.Error(err))
		return st
	}

	cmd := exec.Command(spec.Name(), spec.Args()...)
	cmd.Dir = e.Dir
	cmd.Env = e.Env
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		serr := &SpawnError{Stage: i, Name: spec.Name(), Err: err}
		st.status = spawnStatus(err)
		if st.status == StatusNotFound {
			fmt.Fprintf(report, "%s: command not found\n", spec.Name())
		} else {
			fmt.Fprintf(report, "%s: %v\n", spec.Name(), err)
		}
		st.closeFiles()
		log.Debug("stage failed to start", zap.Error(serr), zap.Int("status", st.status))
		return st
	}
	st.cmd = cmd
	st.closeFiles()

	log.Debug("stage started",
		zap.Int("stage", i),
		zap.String("program", spec.Name()),
		zap.Int("pid", cmd.Process.Pid),
		zap.Stringer("stdin", b.Stdin),
		zap.Stringer("stdout", b.Stdout),
		zap.Stringer("stderr", b.Stderr),
	)
	return st
}

// source returns the reader for a stage's stdin. The result is a nil
// interface, never a nil *os.File, when the stage has no input.
func (e *Executor) source(src Source, streams Streams, pipes []pipeEnds, st *stage) (io.Reader, error) {
	switch src.Kind {
	case FromPipe:
		return pipes[src.Pipe].r, nil
	case FromFile:
		f, err := os.Open(e.resolve(src.Path))
		if err != nil {
			return nil, err
		}
		st.files = append(st.files, f)
		return f, nil
	default:
		return streams.Stdin, nil
	}
}

func (e *Executor) sink(dst Sink, streams Streams, pipes []pipeEnds, st *stage) (io.Writer, error) {
	switch dst.Kind {
	case ToPipe:
		return pipes[dst.Pipe].w, nil
	case ToFile:
		f, err := OpenOutput(e.resolve(dst.Path), dst.Append)
		if err != nil {
			return nil, err
		}
		st.files = append(st.files, f)
		return f, nil
	default:
		return streams.Stdout, nil
	}
}

// OpenOutput opens an output redirect target: truncated, or appended to
// when appendMode is set. Files are created with mode 0644.
func OpenOutput(path string, appendMode bool) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return os.OpenFile(path, flags, 0o644)
}
