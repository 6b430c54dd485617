package core

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/josephlewis42/smallsh/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
)

// serverFixture runs a Server on a loopback listener.
type serverFixture struct {
	addr          string
	configuration *config.Configuration
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	configuration, err := config.Initialize(t.TempDir(), log.New(io.Discard, "", 0))
	require.NoError(t, err)

	server, err := NewServer(configuration, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go server.Serve(listener)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	return &serverFixture{
		addr:          listener.Addr().String(),
		configuration: configuration,
	}
}

func (fix *serverFixture) dial(user, password string) (*gossh.Client, error) {
	return gossh.Dial("tcp", fix.addr, &gossh.ClientConfig{
		User:            user,
		Auth:            []gossh.AuthMethod{gossh.Password(password)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func TestServerRejectsBadPassword(t *testing.T) {
	fix := newServerFixture(t)

	_, err := fix.dial("user", "wrong-password")
	assert.Error(t, err)
}

func TestServerExecRequest(t *testing.T) {
	fix := newServerFixture(t)

	// The default config's account.
	client, err := fix.dial("user", "password")
	require.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession()
	require.NoError(t, err)
	defer session.Close()

	out, err := session.Output("echo over-ssh")
	require.NoError(t, err)
	assert.Equal(t, "over-ssh\n", string(out))
}

func TestServerExecStatusCode(t *testing.T) {
	fix := newServerFixture(t)

	client, err := fix.dial("user", "password")
	require.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession()
	require.NoError(t, err)
	defer session.Close()

	err = session.Run("frobnicate9000")
	var exitErr *gossh.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitStatus())
}

func TestServerRecordsSession(t *testing.T) {
	fix := newServerFixture(t)

	client, err := fix.dial("user", "password")
	require.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession()
	require.NoError(t, err)

	var stdout bytes.Buffer
	session.Stdout = &stdout
	require.NoError(t, session.Run("echo recorded"))
	session.Close()

	infos, err := fix.configuration.SessionLogs()
	require.NoError(t, err)
	require.Len(t, infos, 1)

	fd, err := fix.configuration.OpenSessionLog(infos[0].Name())
	require.NoError(t, err)
	defer fd.Close()

	var replayed bytes.Buffer
	require.NoError(t, Replay(fd, &replayed))
	assert.Contains(t, replayed.String(), "recorded\n")
}
