package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/abiosoft/readline"
	"golang.org/x/term"
)

// LineReader yields one line of user input per call, without its trailing
// newline. It returns io.EOF when input ends.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

type scanReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

// NewScanReader reads lines from in and writes each prompt to out. It is
// used when input is not a terminal.
func NewScanReader(in io.Reader, out io.Writer) LineReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 4096), 1024*1024)
	return &scanReader{sc: sc, out: out}
}

func (r *scanReader) ReadLine(prompt string) (string, error) {
	if r.out != nil {
		fmt.Fprint(r.out, prompt)
	}
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

func (r *scanReader) Close() error { return nil }

type readlineReader struct {
	rl *readline.Instance
}

// NewReadline returns a line editor reading from in. Ctrl-C discards the
// current line instead of ending input.
func NewReadline(in io.Reader, out, errOut io.Writer) (LineReader, error) {
	cfg := &readline.Config{
		Stdin:           readline.NewCancelableStdin(in),
		Stdout:          out,
		Stderr:          errOut,
		HistoryLimit:    500,
		InterruptPrompt: "^C",
	}
	if err := cfg.Init(); err != nil {
		return nil, err
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}
	return &readlineReader{rl: rl}, nil
}

func (r *readlineReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", nil
	}
	return line, err
}

func (r *readlineReader) Close() error {
	return r.rl.Close()
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// NewLineReader picks a line editor when both in and out are terminals and
// a plain scanner otherwise.
func NewLineReader(in *os.File, out, errOut io.Writer) (LineReader, error) {
	if f, ok := out.(*os.File); ok && IsTerminal(in) && IsTerminal(f) {
		return NewReadline(in, out, errOut)
	}
	return NewScanReader(in, out), nil
}
