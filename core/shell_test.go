package core

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/josephlewis42/smallsh/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shellFixture drives a Shell through scripted lines the way the prompt
// loop would.
type shellFixture struct {
	shell *Shell
	out   *syncBuffer
	dir   string
}

func newShellFixture(t *testing.T, configuration *config.Configuration) *shellFixture {
	t.Helper()

	dir := t.TempDir()
	out := &syncBuffer{}
	shell, err := NewShell(Session{
		IO:         NewIO(strings.NewReader(""), out, out),
		Dir:        dir,
		Env:        append(os.Environ(), EnvHome+"="+dir),
		IsTerminal: func() bool { return true },
	}, configuration)
	require.NoError(t, err)
	// Replace any inherited HOME entry; Getenv returns the first match,
	// so the appended duplicate alone would lose to the real $HOME.
	shell.Setenv(EnvHome, dir)
	t.Cleanup(func() { shell.Close() })

	return &shellFixture{shell: shell, out: out, dir: dir}
}

// runLine runs one line that must not end the session or fail the
// interpreter.
func (fix *shellFixture) runLine(t *testing.T, line string) {
	t.Helper()
	done, err := fix.shell.RunLine(line)
	require.NoError(t, err)
	require.False(t, done, "line %q ended the session", line)
}

// writeScript drops an executable shell script into the session's
// working directory. The parser has no quoting, so multi-word shell
// fragments go through scripts instead of sh -c.
func (fix *shellFixture) writeScript(t *testing.T, name, body string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(fix.dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0755)
	require.NoError(t, err)
}

func TestShellEchoStatusScenario(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	fix.runLine(t, "echo hi")
	assert.Equal(t, "hi\n", fix.out.String())

	fix.runLine(t, "status")
	assert.Equal(t, "hi\nexit value 0\n", fix.out.String())
}

func TestShellFreshStatus(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	fix.runLine(t, "status")
	assert.Equal(t, "exit value 0\n", fix.out.String())
}

func TestShellStatusLifecycle(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	fix.writeScript(t, "exit42", "exit 42")

	fix.runLine(t, "./exit42")
	fix.runLine(t, "status")
	assert.Contains(t, fix.out.String(), "exit value 42\n")

	// Any non-status line forgets the previous outcome, builtins
	// included.
	fix.runLine(t, "./exit42")
	fix.runLine(t, "cd")
	fix.runLine(t, "status")
	assert.Contains(t, fix.out.String(), "exit value 0\n")
}

func TestShellSkipsBlanksAndComments(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	fix.writeScript(t, "exit7", "exit 7")
	fix.runLine(t, "./exit7")

	// Skipped lines leave the stored outcome alone.
	fix.runLine(t, "")
	fix.runLine(t, "   ")
	fix.runLine(t, "# a full-line comment")

	fix.runLine(t, "status")
	assert.Equal(t, "exit value 7\n", fix.out.String())
}

func TestShellSignaledStatus(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	fix.writeScript(t, "die", "kill -TERM $$")
	fix.runLine(t, "./die")
	assert.Equal(t, "terminated by signal 15\n", fix.out.String())

	fix.runLine(t, "status")
	assert.Contains(t, fix.out.String(), "terminated by signal 15\nterminated by signal 15\n")
}

func TestShellNotFoundStatus(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	fix.runLine(t, "frobnicate9000")
	fix.runLine(t, "status")
	assert.Equal(t, "frobnicate9000: no such file or directory\nexit value 1\n", fix.out.String())
}

func TestShellBadInputRedirect(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	fix.runLine(t, "cat < nonexistent.txt")
	fix.runLine(t, "status")
	assert.Equal(t, "smallsh: cannot open nonexistent.txt for input\nexit value 1\n", fix.out.String())
}

func TestShellDanglingRedirect(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	// The command must not run when the marker names no file.
	fix.runLine(t, "echo hi >")
	fix.runLine(t, "status")
	assert.Equal(t, "smallsh: cannot open  for output\nexit value 1\n", fix.out.String())
}

func TestShellCd(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})
	sub := filepath.Join(fix.dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	fix.runLine(t, "cd sub")
	assert.Equal(t, sub, fix.shell.Dir())
	assert.Equal(t, sub, fix.shell.Getenv(EnvPWD))

	// Bare cd goes home.
	fix.runLine(t, "cd")
	assert.Equal(t, fix.dir, fix.shell.Dir())

	// A missing target complains and stays put.
	fix.runLine(t, "cd nowhere")
	assert.Contains(t, fix.out.String(), "cd: ")
	assert.Equal(t, fix.dir, fix.shell.Dir())
	assert.Equal(t, 1, fix.shell.LastResult())
}

func TestShellExit(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	done, err := fix.shell.RunLine("exit")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, fix.shell.exitCode)
}

func TestShellBackgroundListing(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	fix.runLine(t, "ls > out.txt &")
	assert.Regexp(t, regexp.MustCompile(`background pid is \d+\n`), fix.out.String())

	fix.shell.reaper.Drain()
	assert.Regexp(t, regexp.MustCompile(`background pid \d+ is done: exit value 0\n`), fix.out.String())

	body, err := os.ReadFile(filepath.Join(fix.dir, "out.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "out.txt")
}

func TestShellBackgroundNoticeExactlyOnce(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{})

	const jobs = 5
	for i := 0; i < jobs; i++ {
		fix.runLine(t, "true &")
	}
	fix.shell.reaper.Drain()

	notices := regexp.MustCompile(`background pid (\d+) is done: exit value 0`).
		FindAllStringSubmatch(fix.out.String(), -1)
	require.Len(t, notices, jobs)

	seen := make(map[string]bool)
	for _, notice := range notices {
		assert.False(t, seen[notice[1]], "pid %s announced twice", notice[1])
		seen[notice[1]] = true
	}
}

func TestShellLineTruncation(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{MaxLineLength: 7})

	// "echo hi there" truncates to "echo hi".
	fix.runLine(t, "echo hi there")
	assert.Equal(t, "hi\n", fix.out.String())
}

func TestShellMaxArgs(t *testing.T) {
	fix := newShellFixture(t, &config.Configuration{MaxArgs: 3})

	fix.runLine(t, "echo a b c d e")
	assert.Equal(t, "a b\n", fix.out.String())
}

func TestShellRunLoop(t *testing.T) {
	out := &syncBuffer{}
	shell, err := NewShell(Session{
		IO:         NewIO(strings.NewReader("echo hi\nstatus\nexit\n"), out, out),
		Dir:        t.TempDir(),
		IsTerminal: func() bool { return false },
	}, &config.Configuration{})
	require.NoError(t, err)
	defer shell.Close()

	assert.Equal(t, 0, shell.Run())

	// Off-terminal sessions get the prompt echoed by the shell itself.
	assert.Contains(t, out.String(), ": ")
	assert.Contains(t, out.String(), "hi\n")
	assert.Contains(t, out.String(), "exit value 0\n")
}

func TestShellRunEndsAtEOF(t *testing.T) {
	out := &syncBuffer{}
	shell, err := NewShell(Session{
		IO:         NewIO(strings.NewReader("echo before eof\n"), out, out),
		Dir:        t.TempDir(),
		IsTerminal: func() bool { return false },
	}, &config.Configuration{})
	require.NoError(t, err)
	defer shell.Close()

	assert.Equal(t, 0, shell.Run())
	assert.Contains(t, out.String(), "before eof\n")
}
