// Package cmdline parses raw interpreter input into runnable commands.
package cmdline

import (
	"strings"
)

const (
	// InputMarker binds a command's stdin to the file named after it.
	InputMarker = "<"
	// OutputMarker binds a command's stdout to the file named after it.
	OutputMarker = ">"
	// BackgroundMarker detaches the command from the interpreter loop.
	BackgroundMarker = "&"

	// MaxFields bounds the number of tokens collected from one line.
	MaxFields = 512
)

// Command is one parsed line ready for the launcher. Args never contains
// a redirection or background marker, those are stripped while parsing.
type Command struct {
	// Args holds the program name followed by its arguments.
	Args []string
	// HasInput reports that the line asked for stdin redirection.
	// Input names the target file and stays empty when the marker had
	// no following token, a degenerate form the launcher must still
	// treat as a requested redirect.
	HasInput bool
	Input    string
	// HasOutput and Output mirror HasInput for stdout redirection.
	HasOutput bool
	Output    string
	// Background reports whether the command runs detached from the prompt.
	Background bool
}

// Name returns the program name, or "" for a command with no arguments.
func (c *Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Empty reports whether the line held no runnable program.
func (c *Command) Empty() bool {
	return len(c.Args) == 0
}

// String renders the command roughly as it was typed, for diagnostics.
func (c *Command) String() string {
	out := strings.Join(c.Args, " ")
	if c.HasInput {
		out += " " + InputMarker
		if c.Input != "" {
			out += " " + c.Input
		}
	}
	if c.HasOutput {
		out += " " + OutputMarker
		if c.Output != "" {
			out += " " + c.Output
		}
	}
	if c.Background {
		out += " " + BackgroundMarker
	}
	return out
}

// Parse builds a Command from a raw line with the trailing newline already
// stripped. Each redirection direction independently re-scans the full line
// for its target, so a line naming both directions resolves both to the
// token after the last marker. The limit caps collected arguments.
func Parse(line string, limit int) *Command {
	out := &Command{Args: Fields(line, limit)}
	if hasToken(line, InputMarker) {
		out.HasInput = true
		out.Input = Target(line)
	}
	if hasToken(line, OutputMarker) {
		out.HasOutput = true
		out.Output = Target(line)
	}
	out.Background = hasToken(line, BackgroundMarker)
	return out
}

// Fields splits a line into its space separated tokens, stopping before the
// first redirection or background marker and capping collection at limit.
// A non-positive limit falls back to MaxFields. Only the space character
// delimits tokens and runs of spaces yield no empty tokens.
func Fields(line string, limit int) []string {
	if limit <= 0 {
		limit = MaxFields
	}

	var out []string
	for _, token := range split(line) {
		switch token {
		case InputMarker, OutputMarker, BackgroundMarker:
			return out
		}

		out = append(out, token)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Target returns the filename token following the last redirection marker
// of either kind, scanning the whole line regardless of where Fields
// stopped. It returns "" when no marker is present or when the marker is
// the final token.
func Target(line string) string {
	tokens := split(line)

	last := -1
	for i, token := range tokens {
		if token == InputMarker || token == OutputMarker {
			last = i
		}
	}

	if last < 0 || last+1 >= len(tokens) {
		return ""
	}
	return tokens[last+1]
}

// hasToken reports whether tok appears as a standalone token on the line.
func hasToken(line, tok string) bool {
	for _, token := range split(line) {
		if token == tok {
			return true
		}
	}
	return false
}

func split(line string) []string {
	var out []string
	for _, token := range strings.Split(line, " ") {
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}
