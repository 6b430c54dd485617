package core

import (
	"fmt"
)

// AllBuiltins holds every registered shell builtin, keyed by the
// leading token that invokes it.
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// Cd is the cd shell builtin. Without a path it goes home; extra
// arguments beyond the path are ignored.
func Cd(s *Shell, args []string) int {
	switch len(args) {
	case 1:
		args = append(args, s.Getenv(EnvHome))
		fallthrough
	default:
		if err := s.Chdir(args[1]); err != nil {
			fmt.Fprintf(s.io.Stderr(), "%s: %v\n", args[0], err)
			return 1
		}
	}
	return 0
}

// Exit ends the session.
func Exit(s *Shell, args []string) int {
	s.exit(0)
	return 0
}

// ShowStatus prints how the last foreground command ended, then
// forgets it.
func ShowStatus(s *Shell, args []string) int {
	fmt.Fprintf(s.io.Stdout(), "%s\n", s.status.Render())
	s.status.Clear()
	return 0
}

func init() {
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
	AllBuiltins["status"] = ShellBuiltinFunc(ShowStatus)
}
