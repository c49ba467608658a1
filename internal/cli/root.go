// Package cli wires configuration, logging and the three dsh modes (local
// shell, remote client and server) into a cobra command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dsh-project/dsh/internal/config"
	"github.com/dsh-project/dsh/internal/logging"
	"github.com/dsh-project/dsh/internal/rsh"
)

// App holds the process streams and parsed flags of one invocation.
type App struct {
	Version string
	Fs      afero.Fs
	Stdin   *os.File
	Stdout  io.Writer
	Stderr  io.Writer

	cfgPath  string
	logLevel string
	client   bool
	server   bool
	threaded bool
	iface    string
	port     int
	socket   string
}

// Run executes dsh with args and returns the process exit status.
func Run(version string, args []string) int {
	app := &App{
		Version: version,
		Fs:      afero.NewOsFs(),
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	return app.Run(args)
}

func (a *App) Run(args []string) int {
	root := a.Command()
	root.SetArgs(args)
	root.SetIn(a.Stdin)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)

	err := root.Execute()
	var ee *exitError
	if err != nil && !(errors.As(err, &ee) && ee.err == nil) {
		fmt.Fprintf(a.Stderr, "dsh: %v\n", err)
	}
	return exitCode(err)
}

// Command builds the command tree.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "dsh",
		Short: "Drexel shell: a pipeline shell with a remote mode",
		Long: `dsh runs command pipelines such as "ls | grep go > out.txt".

With no mode flag it is an interactive local shell. With -s it serves
remote clients over TCP; with -c it connects to such a server.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runRoot,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default ~/.config/dsh/config.yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "diagnostic log level: debug, info, warn or error")

	f := root.Flags()
	f.BoolVarP(&a.client, "client", "c", false, "run as a remote shell client")
	f.BoolVarP(&a.server, "server", "s", false, "run as a remote shell server")
	f.StringVarP(&a.iface, "interface", "i", "", "server interface to bind, or server address to connect to")
	f.IntVarP(&a.port, "port", "p", 0, "server port")
	f.BoolVarP(&a.threaded, "threaded", "x", false, "serve each client concurrently")
	f.StringVar(&a.socket, "socket", "", "use a unix socket instead of TCP")

	root.AddCommand(
		a.auditCommand(),
		a.builtinsCommand(),
		a.configCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *App) runRoot(cmd *cobra.Command, _ []string) error {
	if a.client && a.server {
		return &exitError{status: rsh.StatusClient, err: errors.New("--client and --server are exclusive")}
	}
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return &exitError{status: rsh.StatusClient, err: err}
	}
	log, err := a.logger(cfg)
	if err != nil {
		return &exitError{status: rsh.StatusClient, err: err}
	}
	defer log.Sync()

	switch {
	case a.server:
		return a.runServer(cmd.Context(), cfg, log)
	case a.client:
		return a.runClient(cmd.Context(), cfg, log)
	default:
		return a.runLocal(cmd.Context(), cfg, log)
	}
}

// loadConfig reads the config file and applies the flags the user set.
func (a *App) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.cfgPath == "" {
		cfg, err = config.Load(a.Fs)
	} else {
		cfg, err = config.LoadFrom(a.Fs, config.ExpandHome(a.cfgPath))
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("interface") {
		cfg.Server.Interface = a.iface
		cfg.Client.Address = a.iface
	}
	if flags.Changed("port") {
		cfg.Server.Port = a.port
		cfg.Client.Port = a.port
	}
	if flags.Changed("threaded") {
		cfg.Server.Threaded = a.threaded
	}
	if flags.Changed("socket") {
		cfg.Server.Socket = config.ExpandHome(a.socket)
		cfg.Client.Socket = cfg.Server.Socket
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid option: %w", err)
	}
	return cfg, nil
}

func (a *App) logger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: a.Stderr,
	})
}
