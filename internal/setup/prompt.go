package setup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

type line struct {
	text string
	err  error
}

// Prompter asks line-oriented questions on a terminal. Input is read by a
// single background goroutine so a pending question can be abandoned when
// the context is cancelled.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	once  sync.Once
	lines chan line
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) readLines() {
	defer close(p.lines)
	for {
		text, err := p.in.ReadString('\n')
		p.lines <- line{text: text, err: err}
		if err != nil {
			return
		}
	}
}

// Ask prints question and returns the trimmed answer. Running out of input
// before a newline is an error, unless a partial answer was read.
func (p *Prompter) Ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.once.Do(func() {
		p.lines = make(chan line)
		go p.readLines()
	})

	fmt.Fprint(p.out, question)
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case l, ok := <-p.lines:
		if !ok {
			return "", fmt.Errorf("reading answer: %w", io.EOF)
		}
		if l.err != nil {
			if errors.Is(l.err, io.EOF) && l.text != "" {
				return strings.TrimSpace(l.text), nil
			}
			return "", fmt.Errorf("reading answer: %w", l.err)
		}
		return strings.TrimSpace(l.text), nil
	}
}

// Println writes a line of output for the user.
func (p *Prompter) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}
