package core

import (
	"fmt"
	"syscall"
)

// Outcome is the terminal result of a foreground command, either a normal
// exit code or the signal that killed the process.
type Outcome struct {
	Code     int
	Signal   syscall.Signal
	Signaled bool
}

// ExitOutcome builds an outcome for a normal exit.
func ExitOutcome(code int) Outcome {
	return Outcome{Code: code}
}

// SignalOutcome builds an outcome for a signal death.
func SignalOutcome(sig syscall.Signal) Outcome {
	return Outcome{Signal: sig, Signaled: true}
}

// String renders the outcome the way the status builtin reports it.
func (o Outcome) String() string {
	if o.Signaled {
		return fmt.Sprintf("terminated by signal %d", int(o.Signal))
	}
	return fmt.Sprintf("exit value %d", o.Code)
}

// ExitCode converts the outcome to a process exit code, using the
// conventional 128+N form for signal deaths.
func (o Outcome) ExitCode() int {
	if o.Signaled {
		return 128 + int(o.Signal)
	}
	return o.Code
}

// Status tracks the most recent foreground outcome for one interpreter
// session. The zero value renders as a clean exit. It is owned by the
// session loop and is never written from other goroutines.
type Status struct {
	last Outcome
}

// Record overwrites the stored outcome.
func (s *Status) Record(o Outcome) {
	s.last = o
}

// Clear resets the tracker to the no-error state.
func (s *Status) Clear() {
	s.last = Outcome{}
}

// Render produces the user facing status message.
func (s *Status) Render() string {
	return s.last.String()
}
