package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"flatstore/pkg/types"

	"github.com/charmbracelet/lipgloss"
)

const (
	Prompt     = "flatstore> "
	DataPrompt = "Enter data to write: "
)

var (
	ErrInvalidCommand = errors.New("invalid command or missing arguments")

	// errQuit ends a session.
	errQuit = errors.New("quit")
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
)

// Command is one parsed REPL line.
type Command struct {
	Verb types.Verb
	Path string
	Data string

	// NeedsData is set for a WRITE line without data.
	NeedsData bool
}

// ParseLine parses "VERB path [data]". Verbs are case-insensitive. A blank
// line yields a zero Command and no error.
func ParseLine(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, nil
	}

	verb := types.CanonicalVerb(fields[0])
	switch verb {
	case "EXIT", "QUIT":
		return Command{}, errQuit
	case types.VerbList:
		cmd := Command{Verb: verb}
		if len(fields) > 1 {
			cmd.Path = fields[1]
		}
		return cmd, nil
	case types.VerbRead:
		if len(fields) < 2 {
			return Command{}, ErrInvalidCommand
		}
		return Command{Verb: verb, Path: fields[1]}, nil
	case types.VerbWrite:
		if len(fields) < 2 {
			return Command{}, ErrInvalidCommand
		}
		cmd := Command{Verb: verb, Path: fields[1]}
		// Data is the rest of the line after the path, inner spacing kept.
		rest := strings.TrimSpace(line)
		rest = strings.TrimSpace(rest[len(fields[0]):])
		rest = strings.TrimSpace(rest[len(fields[1]):])
		if rest == "" {
			cmd.NeedsData = true
		} else {
			cmd.Data = rest
		}
		return cmd, nil
	}
	return Command{}, ErrInvalidCommand
}

// IsQuit reports whether err came from an EXIT or QUIT line.
func IsQuit(err error) bool {
	return errors.Is(err, errQuit)
}

// Session is an interactive loop reading commands from in and printing
// replies to out.
type Session struct {
	client *Client
	in     *bufio.Scanner
	out    io.Writer
}

func NewSession(c *Client, in io.Reader, out io.Writer) *Session {
	return &Session{client: c, in: bufio.NewScanner(in), out: out}
}

// Run loops until EOF, EXIT or QUIT, or ctx is cancelled. A failed command
// is reported and the loop continues.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(s.out, promptStyle.Render(Prompt))
		if !s.in.Scan() {
			return s.in.Err()
		}

		cmd, err := ParseLine(s.in.Text())
		if IsQuit(err) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(s.out, warningStyle.Render("Invalid command or missing arguments."))
			continue
		}
		if cmd.Verb == "" {
			continue
		}

		if cmd.NeedsData {
			fmt.Fprint(s.out, DataPrompt)
			if !s.in.Scan() {
				fmt.Fprintln(s.out, warningStyle.Render("Failed to read data."))
				return s.in.Err()
			}
			cmd.Data = s.in.Text()
		}

		s.execute(ctx, cmd)
	}
}

func (s *Session) execute(ctx context.Context, cmd Command) {
	res, err := s.client.Do(ctx, cmd.Verb, cmd.Path, cmd.Data)
	if err != nil {
		fmt.Fprintln(s.out, errorStyle.Render("Error: "+err.Error()))
		return
	}
	PrintResult(s.out, res)
}

// PrintResult writes a success payload verbatim and an error as
// "Error: <msg>".
func PrintResult(out io.Writer, res Result) {
	if res.OK() {
		fmt.Fprint(out, res.Text)
		return
	}
	fmt.Fprintln(out, errorStyle.Render("Error: "+res.Text))
}
