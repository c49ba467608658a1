package pipeline

import (
	"strconv"
	"strings"
)

// Limits applied at parse time.
const (
	MaxStages = 8  // maximum number of commands in one pipeline
	MaxExeLen = 64 // executable names this long or longer are rejected
)

// Operators recognised by the parser. Redirections are only operators when
// they appear as whole, unquoted tokens.
const (
	OpPipe           = "|"
	OpRedirectIn     = "<"
	OpRedirectOut    = ">"
	OpRedirectAppend = ">>"
)

// CommandSpec is a single stage of a pipeline.
type CommandSpec struct {
	Argv   []string // Argv[0] is the program name
	Input  string   // stdin redirect path, empty if none
	Output string   // stdout redirect path, empty if none
	Append bool     // Output is opened for append rather than truncated
}

// Name returns the program name.
func (c CommandSpec) Name() string {
	if len(c.Argv) == 0 {
		return ""
	}
	return c.Argv[0]
}

// Args returns the arguments after the program name.
func (c CommandSpec) Args() []string {
	if len(c.Argv) < 2 {
		return nil
	}
	return c.Argv[1:]
}

func (c CommandSpec) String() string {
	var b strings.Builder
	for i, a := range c.Argv {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quote(a))
	}
	if c.Input != "" {
		b.WriteString(" " + OpRedirectIn + " " + quote(c.Input))
	}
	if c.Output != "" {
		op := OpRedirectOut
		if c.Append {
			op = OpRedirectAppend
		}
		b.WriteString(" " + op + " " + quote(c.Output))
	}
	return b.String()
}

// Pipeline is an ordered sequence of stages, each one's stdout feeding the
// next one's stdin.
type Pipeline struct {
	Stages []CommandSpec
}

// String renders the pipeline in a form Parse accepts.
func (p *Pipeline) String() string {
	parts := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		parts[i] = s.String()
	}
	return strings.Join(parts, " "+OpPipe+" ")
}

// Names returns the program name of every stage.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name()
	}
	return names
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n|<>") {
		return `"` + s + `"`
	}
	return s
}

// stageLabel is used in log fields and error messages.
func stageLabel(i int, name string) string {
	return strconv.Itoa(i) + ":" + name
}
