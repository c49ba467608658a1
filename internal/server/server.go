package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dsh-project/dsh/internal/audit"
	"github.com/dsh-project/dsh/internal/builtin"
	"github.com/dsh-project/dsh/internal/pipeline"
	"github.com/dsh-project/dsh/internal/rsh"
)

// Options configures a Server.
type Options struct {
	// Addr is the TCP address to listen on, host:port.
	Addr string
	// Socket, when set, is a unix socket path used instead of Addr.
	Socket string
	// Threaded serves each connection in its own goroutine. Otherwise the
	// next connection is accepted only after the current one ends.
	Threaded bool
	// PIDFile, when set, is written at start and removed at exit.
	PIDFile string
	// Dir is the initial working directory of every session.
	Dir string

	Logger *zap.Logger
	Audit  *audit.Logger
}

// Server runs command lines sent by remote clients.
type Server struct {
	opts     Options
	log      *zap.Logger
	builtins *builtin.Registry
	active   sync.WaitGroup
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		opts:     opts,
		log:      log,
		builtins: builtin.Remote(),
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.opts.PIDFile != "" {
		if err := writePIDFile(s.opts.PIDFile); err != nil {
			return err
		}
		defer os.Remove(s.opts.PIDFile)
	}

	ln, err := s.listen()
	if err != nil {
		return err
	}
	if s.opts.Socket != "" {
		defer os.Remove(s.opts.Socket)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) listen() (net.Listener, error) {
	if s.opts.Socket == "" {
		ln, err := net.Listen("tcp", s.opts.Addr)
		if err != nil {
			return nil, fmt.Errorf("listen: %w", err)
		}
		return ln, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.opts.Socket), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if err := cleanStaleSocket(s.opts.Socket); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", s.opts.Socket)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(s.opts.Socket, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is cancelled or a client sends
// stop-server. The listener is closed on return. Serve returns nil on
// either kind of shutdown and an error if Accept fails otherwise.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("threaded", s.opts.Threaded),
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.active.Wait()
				s.log.Info("server stopped")
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		if !s.opts.Threaded {
			if s.serveConn(ctx, conn) == rsh.StatusStopServer {
				cancel()
			}
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			if s.serveConn(ctx, conn) == rsh.StatusStopServer {
				cancel()
			}
		}()
	}
}

// serveConn runs one client's request/response cycle to completion.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) rsh.Status {
	defer conn.Close()

	sess := builtin.NewSession(s.opts.Dir)
	sess.Remote = remoteAddr(conn)
	log := s.log.With(zap.String("session", sess.ID), zap.String("remote", sess.Remote))
	log.Info("client connected")

	// Stages read the socket directly, so a program that reads stdin sees
	// whatever the client sends next.
	stdin, err := socketFile(conn)
	if err != nil {
		log.Warn("socket not available as stdin", zap.Error(err))
	}
	if stdin != nil {
		defer stdin.Close()
	}

	out := newResponseWriter(conn, log)
	defer func() {
		log.Info("session ended", zap.Int("sentinel_collisions", out.Collisions()))
	}()
	reqs := rsh.NewRequestReader(conn)
	for {
		line, err := reqs.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("client disconnected")
				return rsh.StatusOK
			}
			log.Warn("receive failed", zap.Error(err))
			return rsh.StatusCommunication
		}
		log.Debug("request", zap.String("line", line))

		status, err := s.handle(ctx, sess, line, stdin, out)
		if err != nil {
			log.Warn("send failed", zap.Error(err))
			return rsh.StatusCommunication
		}
		switch status {
		case rsh.StatusExit:
			log.Info("client exited")
			return status
		case rsh.StatusStopServer:
			log.Info("client requested server stop")
			return status
		}
	}
}

// handle executes one request and sends its complete response.
func (s *Server) handle(ctx context.Context, sess *builtin.Session, line string, stdin *os.File, out *responseWriter) (rsh.Status, error) {
	switch line {
	case builtin.CmdExit:
		return rsh.StatusExit, out.Message(rsh.MsgExiting)
	case builtin.CmdStopServer:
		return rsh.StatusStopServer, out.Message(rsh.MsgStopping)
	}

	p, err := pipeline.Parse(line)
	if err != nil {
		return rsh.StatusOf(err), out.Message(rsh.Message(err))
	}

	switch s.builtins.Dispatch(ctx, builtin.Env{Session: sess, Stdout: out, Stderr: out}, p) {
	case builtin.Executed:
		return rsh.StatusOK, out.End()
	case builtin.RequestExit:
		return rsh.StatusExit, out.Message(rsh.MsgExiting)
	case builtin.RequestServerStop:
		return rsh.StatusStopServer, out.Message(rsh.MsgStopping)
	}

	streams := pipeline.Streams{Stdout: out, Stderr: out}
	if stdin != nil {
		streams.Stdin = stdin
	}
	ex := &pipeline.Executor{Dir: sess.Dir, Logger: out.log}

	start := time.Now()
	code, err := ex.Run(ctx, p, streams)
	if err == nil {
		sess.LastExit = code
	}
	s.record(sess, p, code, err, time.Since(start))

	status := rsh.StatusOK
	if err != nil {
		status = rsh.StatusOf(err)
		if _, werr := io.WriteString(out, rsh.Message(err)); werr != nil {
			return status, werr
		}
	}
	return status, out.End()
}

func (s *Server) record(sess *builtin.Session, p *pipeline.Pipeline, code int, runErr error, elapsed time.Duration) {
	if s.opts.Audit == nil {
		return
	}
	rec := audit.Record{
		Session:  sess.ID,
		Remote:   sess.Remote,
		Line:     p.String(),
		Stages:   p.Names(),
		ExitCode: code,
		Duration: elapsed,
		Cwd:      sess.Dir,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := s.opts.Audit.Log(rec); err != nil {
		s.log.Warn("audit log failed", zap.Error(err))
	}
}

func remoteAddr(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil || addr.String() == "" {
		return "unix"
	}
	return addr.String()
}

type filer interface {
	File() (*os.File, error)
}

// socketFile returns a duplicate of the connection's descriptor that can
// be handed to child processes.
func socketFile(conn net.Conn) (*os.File, error) {
	fc, ok := conn.(filer)
	if !ok {
		return nil, fmt.Errorf("%T has no file descriptor", conn)
	}
	return fc.File()
}
