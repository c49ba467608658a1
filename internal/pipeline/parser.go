package pipeline

import (
	"strings"
)

// Parse turns one input line into a Pipeline.
//
// The line is split on | outside double quotes. Empty segments are skipped,
// so leading, trailing and doubled pipes are harmless. Each remaining
// segment is tokenized on whitespace with "..." runs kept together, and the
// redirections <, > and >> each consume the following token as a path.
// Parse touches no files and starts no processes.
func Parse(line string) (*Pipeline, error) {
	var segments []string
	for _, seg := range splitPipes(line) {
		if strings.TrimSpace(seg) != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return nil, ErrNoCommands
	}
	if len(segments) > MaxStages {
		return nil, ErrTooManyStages
	}

	p := &Pipeline{Stages: make([]CommandSpec, 0, len(segments))}
	for _, seg := range segments {
		spec, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, spec)
	}
	return p, nil
}

// splitPipes splits on every | that is not inside a double-quoted run.
func splitPipes(line string) []string {
	var (
		parts   []string
		start   int
		inQuote bool
	)
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case '|':
			if !inQuote {
				parts = append(parts, line[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, line[start:])
}

type token struct {
	text   string
	quoted bool // some part of the token came from a "..." run
}

func (t token) isOperator() bool {
	if t.quoted {
		return false
	}
	switch t.text {
	case OpRedirectIn, OpRedirectOut, OpRedirectAppend:
		return true
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// tokenize splits a segment on whitespace. A double-quoted run joins the
// current token with its quotes removed; "" on its own yields an empty
// token.
func tokenize(seg string) ([]token, error) {
	var (
		toks    []token
		cur     strings.Builder
		inToken bool
		quoted  bool
		inQuote bool
	)
	flush := func() {
		if inToken {
			toks = append(toks, token{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		inToken, quoted = false, false
	}
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			inToken, quoted = true, true
		case inQuote:
			cur.WriteByte(c)
		case isSpace(c):
			flush()
		default:
			cur.WriteByte(c)
			inToken = true
		}
	}
	if inQuote {
		return nil, malformed("unterminated quote")
	}
	flush()
	return toks, nil
}

func parseSegment(seg string) (CommandSpec, error) {
	toks, err := tokenize(seg)
	if err != nil {
		return CommandSpec{}, err
	}

	var spec CommandSpec
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if !t.isOperator() {
			spec.Argv = append(spec.Argv, t.text)
			continue
		}
		if i+1 >= len(toks) || toks[i+1].isOperator() {
			return CommandSpec{}, malformed("%s requires a file path", t.text)
		}
		i++
		path := toks[i].text
		if path == "" {
			return CommandSpec{}, malformed("%s requires a file path", t.text)
		}
		switch t.text {
		case OpRedirectIn:
			if spec.Input != "" {
				return CommandSpec{}, malformed("multiple %s redirects", OpRedirectIn)
			}
			spec.Input = path
		default:
			if spec.Output != "" {
				return CommandSpec{}, malformed("multiple output redirects")
			}
			spec.Output = path
			spec.Append = t.text == OpRedirectAppend
		}
	}

	switch name := spec.Name(); {
	case len(spec.Argv) == 0:
		return CommandSpec{}, malformed("missing command before redirection")
	case name == "":
		return CommandSpec{}, malformed("empty command name")
	case len(name) >= MaxExeLen:
		return CommandSpec{}, malformed("command name longer than %d bytes", MaxExeLen-1)
	}
	return spec, nil
}
