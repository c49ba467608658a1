// Package shell is the local interactive driver: it reads lines, runs
// builtins in-process and everything else as a pipeline of processes
// attached to the terminal.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/dsh-project/dsh/internal/audit"
	"github.com/dsh-project/dsh/internal/builtin"
	"github.com/dsh-project/dsh/internal/pipeline"
	"github.com/dsh-project/dsh/internal/rsh"
)

// Prompt is the default interactive prompt.
const Prompt = "dsh4> "

// MsgExiting is printed when the user types exit.
const MsgExiting = "exiting...\n"

// Options configures a Shell. Zero fields take the process defaults.
type Options struct {
	Prompt   string
	Reader   LineReader
	Stdin    *os.File
	Stdout   io.Writer
	Stderr   io.Writer
	Session  *builtin.Session
	Builtins *builtin.Registry
	Logger   *zap.Logger
	Audit    *audit.Logger
	Color    bool
}

// Shell runs command lines against the local machine.
type Shell struct {
	opts Options
	log  *zap.Logger
	warn *color.Color
	fail *color.Color
}

func New(opts Options) *Shell {
	if opts.Prompt == "" {
		opts.Prompt = Prompt
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Builtins == nil {
		opts.Builtins = builtin.Local()
	}
	if opts.Session == nil {
		opts.Session = builtin.NewSession("")
	}
	if opts.Reader == nil {
		opts.Reader = NewScanReader(opts.Stdin, opts.Stdout)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Shell{
		opts: opts,
		log:  log.With(zap.String("session", opts.Session.ID)),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed),
	}
	for _, c := range []*color.Color{s.warn, s.fail} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// Session returns the shell's session state.
func (s *Shell) Session() *builtin.Session {
	return s.opts.Session
}

// Run reads and executes lines until exit or end of input. It returns
// rsh.StatusExit after exit and rsh.StatusOK at end of input.
func (s *Shell) Run(ctx context.Context) (rsh.Status, error) {
	for {
		if err := ctx.Err(); err != nil {
			return rsh.StatusOK, err
		}
		line, err := s.opts.Reader.ReadLine(s.opts.Prompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.opts.Stdout)
			return rsh.StatusOK, nil
		}
		if err != nil {
			return rsh.StatusClient, fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if st := s.Execute(ctx, line); st == rsh.StatusExit {
			return st, nil
		}
	}
}

// Execute runs one command line and reports its outcome category.
func (s *Shell) Execute(ctx context.Context, line string) rsh.Status {
	sess := s.opts.Session
	if strings.TrimSpace(line) == builtin.CmdExit {
		fmt.Fprint(s.opts.Stdout, MsgExiting)
		return rsh.StatusExit
	}

	p, err := pipeline.Parse(line)
	if err != nil {
		s.report(err)
		return rsh.StatusOf(err)
	}

	env := builtin.Env{
		Session: sess,
		Stdout:  s.opts.Stdout,
		Stderr:  s.opts.Stderr,
		Color:   s.opts.Color,
	}
	switch s.opts.Builtins.Dispatch(ctx, env, p) {
	case builtin.Executed:
		return rsh.StatusOK
	case builtin.RequestExit:
		fmt.Fprint(s.opts.Stdout, MsgExiting)
		return rsh.StatusExit
	case builtin.RequestServerStop:
		return rsh.StatusStopServer
	}

	exec := &pipeline.Executor{
		Dir:    sess.Dir,
		Stderr: s.opts.Stderr,
		Logger: s.log,
	}
	streams := pipeline.Streams{
		Stdin:  s.opts.Stdin,
		Stdout: s.opts.Stdout,
		Stderr: s.opts.Stderr,
	}

	stop := ignoreInterrupts()
	start := time.Now()
	code, err := exec.Run(ctx, p, streams)
	elapsed := time.Since(start)
	stop()

	if err == nil {
		sess.LastExit = code
	}
	s.record(p, code, err, elapsed)
	if err != nil {
		s.log.Warn("pipeline failed", zap.String("line", line), zap.Error(err))
		s.report(err)
		return rsh.StatusOf(err)
	}
	return rsh.StatusOK
}

func (s *Shell) report(err error) {
	msg := rsh.Message(err)
	if rsh.StatusOf(err) == rsh.StatusNoCommands {
		s.warn.Fprint(s.opts.Stdout, msg)
		return
	}
	s.fail.Fprint(s.opts.Stdout, msg)
}

func (s *Shell) record(p *pipeline.Pipeline, code int, runErr error, elapsed time.Duration) {
	if s.opts.Audit == nil {
		return
	}
	rec := audit.Record{
		Session:  s.opts.Session.ID,
		Line:     p.String(),
		Stages:   p.Names(),
		ExitCode: code,
		Duration: elapsed,
		Cwd:      s.opts.Session.Dir,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := s.opts.Audit.Log(rec); err != nil {
		s.log.Warn("audit log failed", zap.Error(err))
	}
}
