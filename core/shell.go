package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"syscall"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/smallsh/core/cmdline"
	"github.com/josephlewis42/smallsh/core/config"
	"github.com/josephlewis42/smallsh/core/logger"
	"github.com/spf13/afero"
)

const (
	EnvHome = "HOME"
	EnvPWD  = "PWD"

	// DefaultPrompt is used when the configuration doesn't set one.
	DefaultPrompt = ": "

	// DefaultMaxLineLength bounds a single input line when the
	// configuration doesn't say otherwise.
	DefaultMaxLineLength = 2048
)

// Session describes one attached user of the interpreter: their
// streams, terminal, starting directory and environment.
type Session struct {
	// IO carries the user's byte streams. Nil gets a null device.
	IO IO
	// Dir is the starting working directory. Empty falls back to the
	// interpreter's own.
	Dir string
	// Env is the starting environment in "key=value" form. Nil falls
	// back to the interpreter's own.
	Env []string
	// Fs opens redirection targets and resolves directories. Nil gets
	// the host filesystem.
	Fs afero.Fs
	// Log receives the session's events. Nil discards them.
	Log *logger.SessionLogger

	// IsTerminal overrides terminal detection for the line editor.
	// Leave nil for local sessions where the input descriptor speaks
	// for itself.
	IsTerminal func() bool
	// Width reports the terminal width for prompt redraws.
	Width func() int
}

// Shell is one interpreter session: a prompt loop that turns lines
// into builtins or child processes.
type Shell struct {
	Readline *readline.Instance

	config   *config.Configuration
	io       IO
	fs       afero.Fs
	log      *logger.SessionLogger
	launcher *Launcher
	reaper   *Reaper
	status   *Status

	// The line editor only draws the prompt on terminals, so the shell
	// prints it itself when the input is a pipe or a script.
	prompt     string
	echoPrompt bool

	dir string
	env []string

	exiting    bool
	exitCode   int
	lastResult int

	toClose listCloser
}

// NewShell builds a Shell for the session. Close releases the line
// editor and anything else the shell opened.
func NewShell(sess Session, configuration *config.Configuration) (*Shell, error) {
	if sess.IO == nil {
		sess.IO = NewNullIO()
	}
	if sess.Fs == nil {
		sess.Fs = afero.NewOsFs()
	}
	if sess.Log == nil {
		sess.Log = logger.NewNopLogger().Sessionless()
	}
	if sess.Dir == "" {
		if wd, err := os.Getwd(); err == nil {
			sess.Dir = wd
		} else {
			sess.Dir = "/"
		}
	}
	if sess.Env == nil {
		sess.Env = os.Environ()
	}

	prompt := configuration.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	cfg := &readline.Config{
		Prompt: prompt,
		Stdin:  readline.NewCancelableStdin(sess.IO.Stdin()),
		Stdout: sess.IO.Stdout(),
		Stderr: sess.IO.Stderr(),
	}
	if sess.IsTerminal != nil {
		cfg.FuncIsTerminal = sess.IsTerminal
	}
	if sess.Width != nil {
		cfg.FuncGetWidth = sess.Width
	}

	if err := cfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}

	reaper := NewReaper(sess.IO.Stdout(), sess.Log)
	shell := &Shell{
		Readline: rl,
		config:   configuration,
		io:       sess.IO,
		fs:       sess.Fs,
		log:      sess.Log,
		launcher: NewLauncher(sess.Fs, sess.IO, reaper, sess.Log),
		reaper:   reaper,
		status:   &Status{},
		prompt:   prompt,
		dir:      sess.Dir,
		env:      sess.Env,
	}
	if sess.IsTerminal != nil {
		shell.echoPrompt = !sess.IsTerminal()
	}
	shell.toClose = append(shell.toClose, rl, reaper)

	return shell, nil
}

// Run reads and interprets lines until the input ends or a line asks
// the session to stop, and returns the session's exit code.
func (s *Shell) Run() int {
	for {
		if s.echoPrompt {
			fmt.Fprint(s.io.Stdout(), s.prompt)
		}
		line, err := s.Readline.Readline()

		switch {
		case err == io.EOF:
			return 0 // Input closed, quit.

		case err == readline.ErrInterrupt:
			continue // Abandon the typed line, show a fresh prompt.

		case err != nil:
			// The session's input is broken, same as it ending.
			return 0

		case len(line) == 0:
			continue

		default:
			done, err := s.RunLine(line)
			if err != nil {
				fmt.Fprintf(s.io.Stderr(), "smallsh: %v\n", err)
				return 1
			}
			if done {
				return s.exitCode
			}
		}
	}
}

// RunLine interprets a single line exactly as if it had been typed at
// the prompt. The done flag reports that the session asked to end; a
// non-nil error means the interpreter itself failed and the session
// must end with a failure.
func (s *Shell) RunLine(line string) (done bool, err error) {
	if max := s.maxLineLength(); len(line) > max {
		line = line[:max]
	}

	// Blank lines and full-line comments are skipped before the status
	// lifecycle starts, they leave the stored outcome alone.
	if len(line) == 0 || strings.HasPrefix(line, "#") {
		return false, nil
	}

	command := cmdline.Parse(line, s.config.MaxArgs)
	if command.Empty() {
		return false, nil
	}

	// Every new command forgets the previous foreground outcome unless
	// the line is asking to see it.
	if command.Name() != "status" {
		s.status.Clear()
	}

	s.log.Record(&logger.RunCommand{
		Command:    command.Args,
		Input:      command.Input,
		Output:     command.Output,
		Background: command.Background,
	})

	if builtin, ok := AllBuiltins[command.Name()]; ok {
		result := builtin.Main(s, command.Args)
		s.lastResult = result
		s.log.Record(&logger.CommandDone{
			Name:   command.Name(),
			Status: ExitOutcome(result).String(),
		})
		return s.exiting, nil
	}

	if command.Background {
		if _, err := s.launcher.RunBackground(command, s.attr()); err != nil {
			return true, err
		}
		return false, nil
	}

	outcome, err := s.launcher.RunForeground(command, s.attr())
	if err != nil {
		return true, err
	}
	s.status.Record(outcome)
	s.lastResult = outcome.ExitCode()
	s.log.Record(&logger.CommandDone{
		Name:   command.Name(),
		Status: outcome.String(),
	})
	return false, nil
}

// Interrupt forwards an interrupt to the foreground child, if any.
func (s *Shell) Interrupt() {
	s.launcher.Interrupt()
}

// LastResult returns the exit code of the most recently finished
// command, builtins included. Fresh sessions report zero.
func (s *Shell) LastResult() int {
	return s.lastResult
}

// Dir returns the session's current working directory.
func (s *Shell) Dir() string {
	return s.dir
}

// Chdir moves the session's working directory, which children inherit.
func (s *Shell) Chdir(dir string) error {
	resolved := resolvePath(s.dir, dir)
	info, err := s.fs.Stat(resolved)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return &fs.PathError{Op: "chdir", Path: dir, Err: pathErr.Err}
		}
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "chdir", Path: dir, Err: syscall.ENOTDIR}
	}

	s.dir = resolved
	s.Setenv(EnvPWD, s.dir)
	return nil
}

// Getenv looks up a variable in the session's environment.
func (s *Shell) Getenv(key string) string {
	prefix := key + "="
	for _, kv := range s.env {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix)
		}
	}
	return ""
}

// Setenv sets a variable in the session's environment.
func (s *Shell) Setenv(key, value string) {
	prefix := key + "="
	for i, kv := range s.env {
		if strings.HasPrefix(kv, prefix) {
			s.env[i] = prefix + value
			return
		}
	}
	s.env = append(s.env, prefix+value)
}

func (s *Shell) Close() error {
	return s.toClose.Close()
}

// exit asks the session to end once the current line finishes.
func (s *Shell) exit(code int) {
	s.exiting = true
	s.exitCode = code
}

func (s *Shell) attr() *ProcAttr {
	return &ProcAttr{Dir: s.dir, Env: s.env}
}

func (s *Shell) maxLineLength() int {
	if s.config.MaxLineLength > 0 {
		return s.config.MaxLineLength
	}
	return DefaultMaxLineLength
}

type listCloser []io.Closer

func (lc listCloser) Close() error {
	var lastErr error
	for _, v := range lc {
		if err := v.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}
