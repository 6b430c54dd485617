package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonLinesLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	log := NewJsonLinesLogRecorder(&buf)
	session := log.NewSession()
	require.NotEmpty(t, session.SessionID())

	require.NoError(t, session.Record(&RunCommand{Command: []string{"echo", "hi"}}))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, session.SessionID(), entry.SessionID)
	assert.NotZero(t, entry.TimestampMicros)

	event, ok := entry.Event().(*RunCommand)
	require.True(t, ok, "expected a RunCommand payload")
	assert.Equal(t, []string{"echo", "hi"}, event.Command)
}

func TestSessionlessRecord(t *testing.T) {
	var buf bytes.Buffer
	log := NewJsonLinesLogRecorder(&buf)

	require.NoError(t, log.Sessionless().Record(&SessionClosed{ExitCode: 1}))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Empty(t, entry.SessionID)
}

func TestLogEntryEvent(t *testing.T) {
	var empty LogEntry
	assert.Nil(t, empty.Event())

	cases := map[string]Event{
		"login":   &LoginAttempt{Username: "root"},
		"run":     &RunCommand{Command: []string{"ls"}},
		"done":    &CommandDone{Name: "ls", Status: "exit value 0"},
		"started": &JobStarted{PID: 1},
		"reaped":  &JobDone{PID: 1, Status: "exit value 0"},
		"invalid": &InvalidInvocation{Command: []string{"x"}, Error: "boom"},
		"closed":  &SessionClosed{},
		"openlog": &OpenSessionLog{Name: "a.log"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			var entry LogEntry
			tc.attach(&entry)
			assert.Equal(t, tc, entry.Event())
		})
	}
}

func TestReadJSONLinesLog(t *testing.T) {
	var buf bytes.Buffer
	log := NewJsonLinesLogRecorder(&buf)
	session := log.NewSession()

	require.NoError(t, session.Record(&JobStarted{PID: 99, Name: "sleep"}))
	require.NoError(t, session.Record(&JobDone{PID: 99, Name: "sleep", Status: "exit value 0"}))

	var got []Event
	err := ReadJSONLinesLog(&buf, func(le *LogEntry) {
		got = append(got, le.Event())
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.IsType(t, &JobStarted{}, got[0])
	assert.IsType(t, &JobDone{}, got[1])
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	assert.NoError(t, log.NewSession().Record(&RunCommand{Command: []string{"ls"}}))
}
