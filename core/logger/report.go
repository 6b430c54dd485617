package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// NewReport creates an empty report ready to aggregate log entries.
func NewReport() *Report {
	return &Report{
		InvalidInvocations: NewPathCounter("command", "error"),
	}
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	LoginAttempt       LoginAttemptReport `json:"login_attempt_report"`
	RunCommand         RunCommandReport   `json:"run_command_report"`
	Foreground         ForegroundReport   `json:"foreground_report"`
	BackgroundJob      BackgroundReport   `json:"background_job_report"`
	InvalidInvocations *PathCounter       `json:"invalid_invocations"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++

	switch event := le.Event().(type) {
	case *LoginAttempt:
		r.LoginAttempt.update(event)
	case *RunCommand:
		r.RunCommand.update(event)
	case *CommandDone:
		r.Foreground.update(event)
	case *JobStarted:
		r.BackgroundJob.started(event)
	case *JobDone:
		r.BackgroundJob.done(event)
	case *InvalidInvocation:
		r.InvalidInvocations.Increment(strings.Join(event.Command, " "), event.Error)
	case *SessionClosed, *OpenSessionLog:
		// Ignore
	default:
		r.InvalidEntries.Increment(fmt.Sprintf("%T", event))
	}
}

type LoginAttemptReport struct {
	// List of passwords and their counts.
	Passwords StrCounter `json:"passwords"`
	// List of usernames and their counts.
	Usernames StrCounter `json:"usernames"`
	// List of login attempt results and their counts.
	Results StrCounter `json:"results"`
}

func (r *LoginAttemptReport) update(la *LoginAttempt) {
	r.Passwords.Increment(la.Password)
	r.Usernames.Increment(la.Username)
	r.Results.Increment(string(la.Result))
}

type RunCommandReport struct {
	// Name of the command
	CommandNames StrCounter `json:"command_names"`
	// Count of commands sent to the background.
	Backgrounded int `json:"backgrounded"`
	// Count of commands with at least one redirection.
	Redirected int `json:"redirected"`
}

func (r *RunCommandReport) update(rc *RunCommand) {
	if len(rc.Command) > 0 {
		r.CommandNames.Increment(rc.Command[0])
	}
	if rc.Background {
		r.Backgrounded++
	}
	if rc.Input != "" || rc.Output != "" {
		r.Redirected++
	}
}

type ForegroundReport struct {
	// Rendered outcomes and their counts, e.g. "exit value 0".
	Statuses StrCounter `json:"statuses"`
}

func (r *ForegroundReport) update(cd *CommandDone) {
	r.Statuses.Increment(cd.Status)
}

type BackgroundReport struct {
	Started int `json:"started"`
	Done    int `json:"done"`
	// Rendered outcomes and their counts.
	Statuses StrCounter `json:"statuses"`
}

func (r *BackgroundReport) started(*JobStarted) {
	r.Started++
}

func (r *BackgroundReport) done(jd *JobDone) {
	r.Done++
	r.Statuses.Increment(jd.Status)
}

// NewSessionsReport creates an empty per-session report.
func NewSessionsReport() *SessionsReport {
	return &SessionsReport{
		sessions: make(map[string]*SessionReport),
	}
}

// SessionsReport groups activity by session ID.
type SessionsReport struct {
	sessions map[string]*SessionReport
}

// SessionReport summarizes one interpreter session.
type SessionReport struct {
	Login struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		RemoteAddr string `json:"remote_addr,omitempty"`
	} `json:"login"`
	Transcript string   `json:"transcript,omitempty"`
	LogEntries int      `json:"log_entries"`
	Commands   []string `json:"commands"`
	ExitCode   *int     `json:"exit_code,omitempty"`
}

func (s *SessionReport) Update(le *LogEntry) {
	s.LogEntries++

	switch event := le.Event().(type) {
	case *LoginAttempt:
		s.Login.Username = event.Username
		s.Login.Password = event.Password
		s.Login.RemoteAddr = event.RemoteAddr
	case *RunCommand:
		s.Commands = append(s.Commands, strings.Join(event.Command, " "))
	case *OpenSessionLog:
		s.Transcript = event.Name
	case *SessionClosed:
		code := event.ExitCode
		s.ExitCode = &code
	}
}

// MarshalJSON implements a custom JSON marshaler.
func (r *SessionsReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.sessions)
}

func (r *SessionsReport) Update(le *LogEntry) {
	sessionID := le.SessionID
	if sessionID == "" {
		return
	}

	report, ok := r.sessions[sessionID]
	if !ok {
		report = &SessionReport{}
		r.sessions[sessionID] = report
	}

	report.Update(le)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Count returns the tally for the given key.
func (s *StrCounter) Count(key string) int {
	return s.internal[key]
}

// MarshalJSON implements a custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts tuples of strings seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implements a custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	var out []Count
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
