package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"
)

// LogEntry is one logged event. Exactly one payload field is set per entry.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`

	LoginAttempt      *LoginAttempt      `json:"login_attempt,omitempty"`
	SessionClosed     *SessionClosed     `json:"session_closed,omitempty"`
	RunCommand        *RunCommand        `json:"run_command,omitempty"`
	CommandDone       *CommandDone       `json:"command_done,omitempty"`
	JobStarted        *JobStarted        `json:"job_started,omitempty"`
	JobDone           *JobDone           `json:"job_done,omitempty"`
	InvalidInvocation *InvalidInvocation `json:"invalid_invocation,omitempty"`
	OpenSessionLog    *OpenSessionLog    `json:"open_session_log,omitempty"`
}

// Event is an entry payload that knows its slot on LogEntry.
type Event interface {
	attach(le *LogEntry)
}

// Event returns the single payload set on the entry, or nil.
func (le *LogEntry) Event() Event {
	switch {
	case le.LoginAttempt != nil:
		return le.LoginAttempt
	case le.SessionClosed != nil:
		return le.SessionClosed
	case le.RunCommand != nil:
		return le.RunCommand
	case le.CommandDone != nil:
		return le.CommandDone
	case le.JobStarted != nil:
		return le.JobStarted
	case le.JobDone != nil:
		return le.JobDone
	case le.InvalidInvocation != nil:
		return le.InvalidInvocation
	case le.OpenSessionLog != nil:
		return le.OpenSessionLog
	}
	return nil
}

// OperationResult reports whether an attempted operation worked.
type OperationResult string

const (
	ResultSuccess OperationResult = "SUCCESS"
	ResultFailure OperationResult = "FAILURE"
)

// LoginAttempt records one authentication attempt against the SSH front
// end, successful or not.
type LoginAttempt struct {
	Result               OperationResult `json:"result"`
	Username             string          `json:"username"`
	Password             string          `json:"password"`
	RemoteAddr           string          `json:"remote_addr"`
	EnvironmentVariables []string        `json:"environment_variables,omitempty"`
	RawCommand           string          `json:"raw_command,omitempty"`
	Subsystem            string          `json:"subsystem,omitempty"`
}

func (e *LoginAttempt) attach(le *LogEntry) { le.LoginAttempt = e }

// SessionClosed records the end of an interpreter session.
type SessionClosed struct {
	ExitCode int `json:"exit_code"`
}

func (e *SessionClosed) attach(le *LogEntry) { le.SessionClosed = e }

// RunCommand records a command line dispatched to the launcher.
type RunCommand struct {
	Command    []string `json:"command"`
	Input      string   `json:"input,omitempty"`
	Output     string   `json:"output,omitempty"`
	Background bool     `json:"background,omitempty"`
}

func (e *RunCommand) attach(le *LogEntry) { le.RunCommand = e }

// CommandDone records a foreground command's outcome.
type CommandDone struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (e *CommandDone) attach(le *LogEntry) { le.CommandDone = e }

// JobStarted records a background command leaving the prompt behind.
type JobStarted struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

func (e *JobStarted) attach(le *LogEntry) { le.JobStarted = e }

// JobDone records a reaped background command.
type JobDone struct {
	PID    int    `json:"pid"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (e *JobDone) attach(le *LogEntry) { le.JobDone = e }

// InvalidInvocation records a command line the interpreter could not run,
// for example a missing program or an unopenable redirect target.
type InvalidInvocation struct {
	Command []string `json:"command"`
	Error   string   `json:"error"`
}

func (e *InvalidInvocation) attach(le *LogEntry) { le.InvalidInvocation = e }

// OpenSessionLog records the transcript file opened for a session.
type OpenSessionLog struct {
	Name string `json:"name"`
}

func (e *OpenSessionLog) attach(le *LogEntry) { le.OpenSessionLog = e }

// LogRecorder is a callback that stores entries in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures interaction events to measure how the interpreter is
// being used.
type Logger struct {
	Record LogRecorder
}

// NewJsonLinesLogRecorder creates a Logger that exports entries in newline
// delimited JSON object format. Writes are serialized, sessions and the
// reaper may record concurrently.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	var mu sync.Mutex
	return &Logger{
		Record: func(le *LogEntry) error {
			entry, err := json.Marshal(le)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewNopLogger creates a Logger that drops every entry.
func NewNopLogger() *Logger {
	return &Logger{
		Record: func(le *LogEntry) error { return nil },
	}
}

func (l *Logger) recordEvent(sessionID string, event Event) error {
	le := &LogEntry{
		TimestampMicros: time.Now().UnixMicro(),
		SessionID:       sessionID,
	}
	event.attach(le)

	return l.Record(le)
}

// NewSession creates a logger with a fresh session ID attached.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// Sessionless creates a logger without a session ID.
func (l *Logger) Sessionless() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: ""}
}

// SessionLogger logs events with a shared session ID.
type SessionLogger struct {
	*Logger
	sessionID string
}

// SessionID returns the ID attached to every entry this logger records.
func (l *SessionLogger) SessionID() string {
	return l.sessionID
}

// Record logs one event under the session's ID.
func (l *SessionLogger) Record(event Event) error {
	return l.recordEvent(l.sessionID, event)
}
