package builtin

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dsh-project/dsh/internal/pipeline"
)

// Result tells the caller what to do after Dispatch.
type Result int

const (
	NotBuiltin        Result = iota // run the pipeline as processes
	Executed                        // handled in-process, nothing left to run
	RequestExit                     // end the session
	RequestServerStop               // end the session and stop the server
)

func (r Result) String() string {
	switch r {
	case NotBuiltin:
		return "not-builtin"
	case Executed:
		return "executed"
	case RequestExit:
		return "exit"
	case RequestServerStop:
		return "stop-server"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Env is what a builtin sees while it runs.
type Env struct {
	Session *Session
	Stdout  io.Writer
	Stderr  io.Writer
	Color   bool
}

// Builtin is a command that runs inside the calling process.
type Builtin interface {
	// Name is the command word that selects the builtin.
	Name() string

	// Description is a one-line summary for help output.
	Description() string

	// Run applies the builtin. args excludes the command word.
	Run(ctx context.Context, env *Env, args []string) Result
}

// Registry maps command words to builtins.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Builtin
}

func NewRegistry() *Registry {
	return &Registry{builtins: make(map[string]Builtin)}
}

// Local returns the builtins of the interactive shell.
func Local() *Registry {
	r := NewRegistry()
	r.Register(&Exit{})
	r.Register(&Cd{})
	r.Register(&Dragon{})
	r.Register(&Rc{})
	return r
}

// Remote returns the builtins served to remote clients.
func Remote() *Registry {
	r := Local()
	r.Register(&StopServer{})
	return r
}

func (r *Registry) Register(b Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[b.Name()] = b
}

func (r *Registry) Lookup(name string) (Builtin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builtins[name]
	return b, ok
}

// All returns all registered builtins sorted by name.
func (r *Registry) All() []Builtin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Builtin, 0, len(r.builtins))
	for _, b := range r.builtins {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name() < all[j].Name()
	})
	return all
}

// Dispatch runs p in-process when it is a single stage naming a builtin.
// A multi-stage pipeline is never a builtin. The builtin's stdout follows
// the stage's own output redirect; its input redirect is ignored.
func (r *Registry) Dispatch(ctx context.Context, env Env, p *pipeline.Pipeline) Result {
	if p == nil || len(p.Stages) != 1 {
		return NotBuiltin
	}
	spec := p.Stages[0]
	b, ok := r.Lookup(spec.Name())
	if !ok {
		return NotBuiltin
	}
	if env.Stderr == nil {
		env.Stderr = io.Discard
	}
	if env.Stdout == nil {
		env.Stdout = io.Discard
	}

	if spec.Output != "" {
		f, err := pipeline.OpenOutput(env.Session.Resolve(spec.Output), spec.Append)
		if err != nil {
			fmt.Fprintf(env.Stderr, "%s: %v\n", spec.Name(), err)
			return Executed
		}
		defer f.Close()
		env.Stdout = f
	}
	return b.Run(ctx, &env, spec.Args())
}
