package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/josephlewis42/smallsh/core/config"
	"github.com/josephlewis42/smallsh/core/logger"
	"github.com/juju/ratelimit"
	"github.com/spf13/afero"
	gossh "golang.org/x/crypto/ssh"
)

type sshContextKey struct {
	name string
}

// ContextAuthPassword holds the password the client sent to the server.
var ContextAuthPassword = sshContextKey{"auth-password"}

// Server serves the interpreter over SSH, one session per connection.
type Server struct {
	configuration *config.Configuration
	logger        *logger.Logger
	errlog        *log.Logger
	sshServer     *ssh.Server
	loginBucket   *ratelimit.Bucket
	toClose       listCloser
}

// NewServer builds the SSH front end from the configuration. Events go
// to the configuration directory's app log; operational messages go to
// errlog.
func NewServer(configuration *config.Configuration, errlog *log.Logger) (*Server, error) {
	var toClose listCloser

	appLog, err := configuration.OpenAppLog()
	if err != nil {
		return nil, err
	}
	toClose = append(toClose, appLog)

	server := &Server{
		configuration: configuration,
		logger:        logger.NewJsonLinesLogRecorder(appLog),
		errlog:        errlog,
		toClose:       toClose,
	}

	if perMinute := configuration.LoginsPerMinute; perMinute > 0 {
		server.loginBucket = ratelimit.NewBucketWithRate(float64(perMinute)/60, int64(perMinute))
	}

	server.sshServer = &ssh.Server{
		Addr: fmt.Sprintf("%s:%d", configuration.SSHAddr, configuration.SSHPort),
		Handler: func(s ssh.Session) {
			server.HandleConnection(s)
		},
		PasswordHandler: func(ctx ssh.Context, password string) bool {
			ctx.SetValue(ContextAuthPassword, password)
			return server.checkLogin(ctx, password)
		},
	}

	keyPem, err := configuration.PrivateKeyPem()
	if err != nil {
		toClose.Close()
		return nil, fmt.Errorf("reading host key: %w", err)
	}
	signer, err := gossh.ParsePrivateKey(keyPem)
	if err != nil {
		toClose.Close()
		return nil, fmt.Errorf("parsing host key: %w", err)
	}
	server.sshServer.AddHostKey(signer)

	return server, nil
}

func (s *Server) Close() error {
	return s.toClose.Close()
}

// checkLogin decides one authentication attempt and logs it either way.
func (s *Server) checkLogin(ctx ssh.Context, password string) bool {
	if s.loginBucket != nil && s.loginBucket.TakeAvailable(1) == 0 {
		// Over the attempt budget, don't even look at the password.
		s.recordLogin(ctx, password)
		return false
	}

	ok := s.configuration.AllowAnyPassword
	// Compare every candidate so timing doesn't reveal which ones exist.
	for _, candidate := range s.configuration.GetPasswords(ctx.User()) {
		if subtle.ConstantTimeCompare([]byte(password), []byte(candidate)) == 1 {
			ok = true
		}
	}

	if !ok {
		// Successes are recorded by the session handler, which sees
		// the client's environment and any exec request.
		s.recordLogin(ctx, password)
	}
	return ok
}

func (s *Server) recordLogin(ctx ssh.Context, password string) {
	s.logger.Sessionless().Record(&logger.LoginAttempt{
		Result:     logger.ResultFailure,
		Username:   ctx.User(),
		Password:   password,
		RemoteAddr: fmt.Sprintf("%s", ctx.RemoteAddr()),
	})
}

// HandleConnection runs one interpreter session for an authenticated
// connection.
func (s *Server) HandleConnection(sess ssh.Session) {
	sessionLogger := s.logger.NewSession()

	sessionLogger.Record(&logger.LoginAttempt{
		Result:               logger.ResultSuccess,
		Username:             sess.User(),
		Password:             fmt.Sprintf("%s", sess.Context().Value(ContextAuthPassword)),
		RemoteAddr:           fmt.Sprintf("%s", sess.RemoteAddr()),
		EnvironmentVariables: sess.Environ(),
		RawCommand:           sess.RawCommand(),
		Subsystem:            sess.Subsystem(),
	})

	if banner := s.configuration.SSHBanner; banner != "" {
		fmt.Fprintf(sess, "%s\n", banner)
	}

	exitCode := s.runShell(sess, sessionLogger)
	sessionLogger.Record(&logger.SessionClosed{ExitCode: exitCode})
	sess.Exit(exitCode)
}

func (s *Server) runShell(sess ssh.Session, sessionLogger *logger.SessionLogger) int {
	// Record the terminal interactions for later replay.
	sessionIO := IO(NewIO(sess, sess, sess.Stderr()))
	logFileName := fmt.Sprintf("%s.log", time.Now().Format(time.RFC3339Nano))
	if logFd, err := s.configuration.CreateSessionLog(logFileName); err != nil {
		s.errlog.Printf("couldn't record session: %v", err)
	} else {
		defer logFd.Close()
		sessionLogger.Record(&logger.OpenSessionLog{Name: logFileName})
		sessionIO = Record(sessionIO, logFd)
	}

	ptyInfo, winch, isPTY := sess.Pty()
	width := newWindowWidth(ptyInfo.Window.Width)
	if isPTY {
		go width.follow(winch)
	}

	shell, err := NewShell(Session{
		IO:         sessionIO,
		Dir:        s.sessionDir(sess.User()),
		Env:        s.sessionEnv(sess),
		Log:        sessionLogger,
		IsTerminal: func() bool { return isPTY },
		Width:      width.get,
	}, s.configuration)
	if err != nil {
		s.errlog.Printf("couldn't start session: %v", err)
		return 1
	}
	defer shell.Close()

	// An exec request runs one line and reports its status instead of
	// starting the prompt loop.
	if line := sess.RawCommand(); line != "" {
		if _, err := shell.RunLine(line); err != nil {
			fmt.Fprintf(sessionIO.Stderr(), "smallsh: %v\n", err)
			return 1
		}
		return shell.LastResult()
	}

	return shell.Run()
}

// sessionDir picks the starting directory for a user, falling back to
// the interpreter's own when the configured home doesn't exist.
func (s *Server) sessionDir(username string) string {
	user, ok := s.configuration.GetUser(username)
	if !ok {
		return ""
	}
	if info, err := afero.NewOsFs().Stat(user.Home); err != nil || !info.IsDir() {
		return ""
	}
	return user.Home
}

func (s *Server) sessionEnv(sess ssh.Session) []string {
	env := append([]string{}, sess.Environ()...)
	env = append(env, fmt.Sprintf("USER=%s", sess.User()))
	if user, ok := s.configuration.GetUser(sess.User()); ok {
		env = append(env, fmt.Sprintf("%s=%s", EnvHome, user.Home))
	}
	if ptyInfo, _, isPTY := sess.Pty(); isPTY {
		env = append(env, fmt.Sprintf("TERM=%s", ptyInfo.Term))
	}
	return env
}

func (s *Server) ListenAndServe() error {
	s.errlog.Printf("starting SSH server on %s", s.sshServer.Addr)
	return s.sshServer.ListenAndServe()
}

// Serve accepts connections on the listener until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	return s.sshServer.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.Close()
	return s.sshServer.Shutdown(ctx)
}

// windowWidth tracks the client's terminal width across resizes.
type windowWidth struct {
	mu    sync.Mutex
	width int
}

func newWindowWidth(width int) *windowWidth {
	return &windowWidth{width: width}
}

func (w *windowWidth) get() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.width <= 0 {
		return 80
	}
	return w.width
}

func (w *windowWidth) follow(winch <-chan ssh.Window) {
	for window := range winch {
		w.mu.Lock()
		w.width = window.Width
		w.mu.Unlock()
	}
}
