package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/josephlewis42/smallsh/core/cmdline"
	"github.com/josephlewis42/smallsh/core/logger"
	"github.com/spf13/afero"
)

// errRedirect marks a command whose redirection target couldn't be
// opened. The diagnostic has already been written by the time callers
// see it.
var errRedirect = errors.New("couldn't open redirection target")

// ProcAttr holds the parts of the session a child process inherits.
type ProcAttr struct {
	// Dir is the working directory of the child.
	Dir string
	// Env is the environment of the child in "key=value" form.
	Env []string
}

// Launcher turns parsed command lines into real child processes.
//
// Foreground children borrow the session's streams and block the caller
// until they finish. Background children are detached from the prompt
// and handed to the reaper, which is the only component that waits on
// them.
type Launcher struct {
	fs     afero.Fs
	io     IO
	reaper *Reaper
	log    *logger.SessionLogger

	mu sync.Mutex
	fg *os.Process
}

// NewLauncher creates a Launcher running commands against the given
// filesystem and session streams.
//
// Redirection targets are opened on fs, so real child processes need an
// OS backed filesystem to get inheritable descriptors.
func NewLauncher(fs afero.Fs, io IO, reaper *Reaper, log *logger.SessionLogger) *Launcher {
	return &Launcher{
		fs:     fs,
		io:     io,
		reaper: reaper,
		log:    log,
	}
}

// RunForeground runs the command and blocks until it terminates,
// reporting how it ended. A signaled child is announced on the session
// output before returning.
//
// A non-nil error means the interpreter itself could not carry on and
// the session should end.
func (l *Launcher) RunForeground(c *cmdline.Command, attr *ProcAttr) (Outcome, error) {
	cmd, cleanup, err := l.prepare(c, attr, false)
	if err != nil {
		return ExitOutcome(1), nil
	}
	defer cleanup()

	if err := cmd.Start(); err != nil {
		return l.startFailure(c, err)
	}

	l.setForeground(cmd.Process)
	defer l.setForeground(nil)

	outcome := waitOutcome(cmd.Wait())
	if outcome.Signaled {
		fmt.Fprintf(l.io.Stdout(), "%s\n", outcome)
	}
	return outcome, nil
}

// RunBackground starts the command without waiting for it, announces
// its pid on the session output, and registers it with the reaper. The
// returned pid is zero if the command never started.
func (l *Launcher) RunBackground(c *cmdline.Command, attr *ProcAttr) (int, error) {
	cmd, cleanup, err := l.prepare(c, attr, true)
	if err != nil {
		return 0, nil
	}
	defer cleanup()

	if err := cmd.Start(); err != nil {
		_, fatal := l.startFailure(c, err)
		return 0, fatal
	}

	pid := cmd.Process.Pid
	fmt.Fprintf(l.io.Stdout(), "background pid is %d\n", pid)
	l.log.Record(&logger.JobStarted{PID: pid, Name: c.Name()})
	l.reaper.Watch(pid, c.Name(), cmd)
	return pid, nil
}

// Interrupt delivers SIGINT to the foreground child, if one is running.
// The interpreter discards its own copy of the signal so only the child
// dies.
func (l *Launcher) Interrupt() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fg != nil {
		_ = l.fg.Signal(syscall.SIGINT)
	}
}

func (l *Launcher) setForeground(p *os.Process) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fg = p
}

// prepare builds the exec.Cmd for a parsed command, opening redirection
// targets relative to the session's working directory. The cleanup
// closes the interpreter's copies of any opened files and is safe to
// call whether or not the child started.
func (l *Launcher) prepare(c *cmdline.Command, attr *ProcAttr, background bool) (*exec.Cmd, func(), error) {
	cmd := exec.Command(c.Name(), c.Args[1:]...)
	cmd.Dir = attr.Dir
	cmd.Env = attr.Env
	cmd.Stdout = l.io.Stdout()
	cmd.Stderr = l.io.Stderr()

	var opened []io.Closer
	cleanup := func() {
		for _, fd := range opened {
			fd.Close()
		}
	}

	// A marker with no following token still counts as a requested
	// redirect; the open of "" fails and the command never spawns.
	if c.HasOutput {
		fd, err := l.fs.OpenFile(resolvePath(attr.Dir, c.Output), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			cleanup()
			return nil, nil, l.badRedirect(c, c.Output, "output", err)
		}
		opened = append(opened, fd)
		cmd.Stdout = fd
	}

	switch {
	case c.HasInput:
		fd, err := l.fs.Open(resolvePath(attr.Dir, c.Input))
		if err != nil {
			cleanup()
			return nil, nil, l.badRedirect(c, c.Input, "input", err)
		}
		opened = append(opened, fd)
		cmd.Stdin = fd
	case background:
		// Stdin stays nil so the child reads the null device and never
		// competes with the prompt for the session's input.
	default:
		cmd.Stdin = l.io.Stdin()
	}

	if background {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	return cmd, cleanup, nil
}

// badRedirect reports a redirection target that couldn't be opened.
// The command is abandoned rather than run with the wrong streams.
func (l *Launcher) badRedirect(c *cmdline.Command, target, direction string, err error) error {
	fmt.Fprintf(l.io.Stdout(), "smallsh: cannot open %s for %s\n", target, direction)
	l.log.Record(&logger.InvalidInvocation{
		Command: c.Args,
		Error:   err.Error(),
	})
	return errRedirect
}

// startFailure sorts a Start error into "the command was bad", which
// the session shrugs off with a failed status, or "the interpreter is
// broken", which ends the session.
func (l *Launcher) startFailure(c *cmdline.Command, err error) (Outcome, error) {
	if isExecFailure(err) {
		fmt.Fprintf(l.io.Stdout(), "%s: no such file or directory\n", c.Name())
		l.log.Record(&logger.InvalidInvocation{
			Command: c.Args,
			Error:   err.Error(),
		})
		return ExitOutcome(1), nil
	}
	return Outcome{}, fmt.Errorf("starting %q: %w", c.Name(), err)
}

// isExecFailure reports whether err means the command itself couldn't
// be executed, as opposed to process creation failing.
func isExecFailure(err error) bool {
	var execErr *exec.Error
	switch {
	case errors.As(err, &execErr):
		return true
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, syscall.ENOEXEC),
		errors.Is(err, syscall.EISDIR),
		errors.Is(err, syscall.ENOTDIR):
		return true
	}
	return false
}

// waitOutcome decodes a child's Wait result into an Outcome.
func waitOutcome(err error) Outcome {
	if err == nil {
		return ExitOutcome(0)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return SignalOutcome(ws.Signal())
		}
		return ExitOutcome(exitErr.ExitCode())
	}

	// Wait tripped on something other than the exit status, usually a
	// stream copy. Treat it like a failed command.
	return ExitOutcome(1)
}

// resolvePath anchors a relative redirection target at the session's
// working directory, which need not be the interpreter's own.
func resolvePath(dir, name string) string {
	if name == "" || dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
