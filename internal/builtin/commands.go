package builtin

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Command words that callers may need to match before parsing.
const (
	CmdExit       = "exit"
	CmdStopServer = "stop-server"
)

type Exit struct{}

var _ Builtin = (*Exit)(nil)

func (e *Exit) Name() string        { return CmdExit }
func (e *Exit) Description() string { return "end the session" }

func (e *Exit) Run(context.Context, *Env, []string) Result {
	return RequestExit
}

type StopServer struct{}

var _ Builtin = (*StopServer)(nil)

func (s *StopServer) Name() string        { return CmdStopServer }
func (s *StopServer) Description() string { return "end the session and stop the server" }

func (s *StopServer) Run(context.Context, *Env, []string) Result {
	return RequestServerStop
}

// Cd changes the session directory. With no argument it goes to $HOME, and
// stays put if HOME is unset. A failure is reported and the session goes on.
type Cd struct{}

var _ Builtin = (*Cd)(nil)

func (c *Cd) Name() string        { return "cd" }
func (c *Cd) Description() string { return "change the working directory" }

func (c *Cd) Run(_ context.Context, env *Env, args []string) Result {
	var target string
	switch len(args) {
	case 0:
		target = os.Getenv("HOME")
		if target == "" {
			return Executed
		}
	case 1:
		target = args[0]
	default:
		fmt.Fprintln(env.Stderr, "cd: too many arguments")
		return Executed
	}
	if err := env.Session.Chdir(target); err != nil {
		fmt.Fprintf(env.Stderr, "cd: %v\n", err)
	}
	return Executed
}

// Rc prints the exit status of the session's last external pipeline.
// Builtins never change it.
type Rc struct{}

var _ Builtin = (*Rc)(nil)

func (r *Rc) Name() string        { return "rc" }
func (r *Rc) Description() string { return "print the last exit status" }

func (r *Rc) Run(_ context.Context, env *Env, _ []string) Result {
	fmt.Fprintln(env.Stdout, env.Session.LastExit)
	return Executed
}

//go:embed dragon.txt
var dragonArt string

type Dragon struct{}

var _ Builtin = (*Dragon)(nil)

func (d *Dragon) Name() string        { return "dragon" }
func (d *Dragon) Description() string { return "print a dragon" }

func (d *Dragon) Run(_ context.Context, env *Env, _ []string) Result {
	c := color.New(color.FgGreen)
	if env.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	c.Fprint(env.Stdout, dragonArt)
	return Executed
}
