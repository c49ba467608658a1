package pipeline

import "fmt"

// SourceKind says where a stage reads stdin from.
type SourceKind int

const (
	FromExternal SourceKind = iota // the pipeline's own stdin
	FromPipe                       // read end of pipe Source.Pipe
	FromFile                       // input redirect file
)

// Source is a stage's stdin binding.
type Source struct {
	Kind SourceKind
	Pipe int
	Path string
}

func (s Source) String() string {
	switch s.Kind {
	case FromPipe:
		return fmt.Sprintf("pipe[%d].r", s.Pipe)
	case FromFile:
		return "file(" + s.Path + ")"
	default:
		return "external"
	}
}

// SinkKind says where a stage writes stdout or stderr.
type SinkKind int

const (
	ToExternal  SinkKind = iota // the pipeline's own stdout or stderr
	ToPipe                      // write end of pipe Sink.Pipe
	ToFile                      // output redirect file
	ToInherited                 // the executor's inherited stderr
)

// Sink is a stage's stdout or stderr binding.
type Sink struct {
	Kind   SinkKind
	Pipe   int
	Path   string
	Append bool
}

func (s Sink) String() string {
	switch s.Kind {
	case ToPipe:
		return fmt.Sprintf("pipe[%d].w", s.Pipe)
	case ToFile:
		if s.Append {
			return "file(" + s.Path + ", append)"
		}
		return "file(" + s.Path + ")"
	case ToInherited:
		return "inherited"
	default:
		return "external"
	}
}

// Binding is the stream wiring of one stage.
type Binding struct {
	Stdin  Source
	Stdout Sink
	Stderr Sink
	// Ignored lists redirections on this stage that a pipe overrides.
	Ignored []string
}

// Plan computes the stream wiring for every stage of p. Pipe i connects
// stage i's stdout to stage i+1's stdin. Only the first stage's input
// redirect and the last stage's output redirect take effect. Only the last
// stage's stderr goes to the pipeline's stderr; the others inherit.
func Plan(p *Pipeline) []Binding {
	n := len(p.Stages)
	plan := make([]Binding, n)
	for i, spec := range p.Stages {
		b := &plan[i]

		switch {
		case i > 0:
			b.Stdin = Source{Kind: FromPipe, Pipe: i - 1}
			if spec.Input != "" {
				b.Ignored = append(b.Ignored, OpRedirectIn+" "+spec.Input)
			}
		case spec.Input != "":
			b.Stdin = Source{Kind: FromFile, Path: spec.Input}
		default:
			b.Stdin = Source{Kind: FromExternal}
		}

		switch {
		case i < n-1:
			b.Stdout = Sink{Kind: ToPipe, Pipe: i}
			if spec.Output != "" {
				op := OpRedirectOut
				if spec.Append {
					op = OpRedirectAppend
				}
				b.Ignored = append(b.Ignored, op+" "+spec.Output)
			}
		case spec.Output != "":
			b.Stdout = Sink{Kind: ToFile, Path: spec.Output, Append: spec.Append}
		default:
			b.Stdout = Sink{Kind: ToExternal}
		}

		if i == n-1 {
			b.Stderr = Sink{Kind: ToExternal}
		} else {
			b.Stderr = Sink{Kind: ToInherited}
		}
	}
	return plan
}
