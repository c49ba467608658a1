package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dsh-project/dsh/internal/audit"
	"github.com/dsh-project/dsh/internal/builtin"
	"github.com/dsh-project/dsh/internal/client"
	"github.com/dsh-project/dsh/internal/config"
	"github.com/dsh-project/dsh/internal/rsh"
	"github.com/dsh-project/dsh/internal/server"
	"github.com/dsh-project/dsh/internal/shell"
)

// result turns a mode's outcome into the error cobra returns.
func result(st rsh.Status, err error) error {
	if err == nil && statusCode(st) == exitOK {
		return nil
	}
	return &exitError{status: st, err: err}
}

// openAudit opens the configured audit log. Failure disables auditing.
func openAudit(cfg *config.Config, log *zap.Logger) *audit.Logger {
	if cfg.Audit.Path == "" {
		return nil
	}
	logger, err := audit.NewLogger(cfg.Audit.Path)
	if err != nil {
		log.Warn("audit disabled", zap.Error(err))
		return nil
	}
	return logger
}

func (a *App) useColor(cfg *config.Config) bool {
	switch cfg.Shell.Color {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := a.Stdout.(*os.File)
	return ok && shell.IsTerminal(f)
}

func (a *App) runLocal(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reader, err := shell.NewLineReader(a.Stdin, a.Stdout, a.Stderr)
	if err != nil {
		return result(rsh.StatusClient, err)
	}
	defer reader.Close()

	sh := shell.New(shell.Options{
		Prompt:   cfg.Shell.Prompt,
		Reader:   reader,
		Stdin:    a.Stdin,
		Stdout:   a.Stdout,
		Stderr:   a.Stderr,
		Session:  builtin.NewSession(""),
		Builtins: builtin.Local(),
		Logger:   log,
		Audit:    openAudit(cfg, log),
		Color:    a.useColor(cfg),
	})
	return result(sh.Run(ctx))
}

func (a *App) runClient(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	network, addr := "tcp", cfg.Client.Addr()
	if cfg.Client.Socket != "" {
		network, addr = "unix", cfg.Client.Socket
	}
	c, err := client.Dial(ctx, network, addr, log)
	if err != nil {
		return result(rsh.StatusClient, err)
	}
	defer c.Close()
	c.Prompt = cfg.Shell.Prompt

	reader, err := shell.NewLineReader(a.Stdin, a.Stdout, a.Stderr)
	if err != nil {
		return result(rsh.StatusClient, err)
	}
	defer reader.Close()

	return result(c.Run(reader, a.Stdout))
}

func (a *App) runServer(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Addr:     cfg.Server.Addr(),
		Socket:   cfg.Server.Socket,
		Threaded: cfg.Server.Threaded,
		PIDFile:  cfg.Server.PIDFile,
		Logger:   log,
		Audit:    openAudit(cfg, log),
	})
	if err := srv.ListenAndServe(ctx); err != nil {
		return result(rsh.StatusServer, err)
	}
	return nil
}
