package core

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderRoundtrip(t *testing.T) {
	var transcript bytes.Buffer
	var sessionOut bytes.Buffer

	recorded := Record(NewIO(strings.NewReader("echo hi\n"), &sessionOut, &sessionOut), &transcript)

	// Drive the streams the way a session would.
	typed, err := io.ReadAll(recorded.Stdin())
	require.NoError(t, err)
	assert.Equal(t, "echo hi\n", string(typed))

	_, err = io.WriteString(recorded.Stdout(), "hi\n")
	require.NoError(t, err)
	_, err = io.WriteString(recorded.Stderr(), "oops\n")
	require.NoError(t, err)

	var records []*TranscriptRecord
	require.NoError(t, ReplayCallback(bytes.NewReader(transcript.Bytes()), func(r *TranscriptRecord) error {
		records = append(records, r)
		return nil
	}))

	require.Len(t, records, 3)
	assert.Equal(t, DirInput, records[0].Direction)
	assert.Equal(t, "echo hi\n", string(records[0].Data))
	assert.Equal(t, DirOutput, records[1].Direction)
	assert.Equal(t, "hi\n", string(records[1].Data))
	assert.Equal(t, DirOutput, records[2].Direction)
	assert.Equal(t, "oops\n", string(records[2].Data))
}

func TestReplayShowsOnlyOutput(t *testing.T) {
	var transcript bytes.Buffer

	recorded := Record(NewIO(strings.NewReader("secret input"), io.Discard, io.Discard), &transcript)
	_, err := io.ReadAll(recorded.Stdin())
	require.NoError(t, err)
	_, err = io.WriteString(recorded.Stdout(), ": hi\n")
	require.NoError(t, err)

	var replayed bytes.Buffer
	require.NoError(t, Replay(bytes.NewReader(transcript.Bytes()), &replayed))

	assert.Equal(t, ": hi\n", replayed.String())
}

func TestReplayCorruptTranscript(t *testing.T) {
	cases := map[string]string{
		"bad direction":     "\x00x\x02hi",
		"truncated payload": "\x00o\xffhi",
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			err := Replay(strings.NewReader(tc), io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestReplayEmptyTranscript(t *testing.T) {
	assert.NoError(t, Replay(strings.NewReader(""), io.Discard))
}
