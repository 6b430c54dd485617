package core

import (
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/josephlewis42/smallsh/core/logger"
)

// Notice describes one finished background child.
type Notice struct {
	PID     int
	Name    string
	Outcome Outcome
}

// String renders the notice the way it appears on the session output.
func (n Notice) String() string {
	return fmt.Sprintf("background pid %d is done: %s", n.PID, n.Outcome)
}

// Reaper collects finished background children and announces each one
// exactly once on the session output.
//
// Every watched child gets a goroutine that waits on it and posts a
// Notice; a single printer goroutine serializes the announcements so
// they never interleave, no matter how many children finish at once.
type Reaper struct {
	out io.Writer
	log *logger.SessionLogger

	notices  chan Notice
	watchers sync.WaitGroup
	closing  sync.Once
	printed  chan struct{}
}

// NewReaper starts a reaper announcing finished children on out.
func NewReaper(out io.Writer, log *logger.SessionLogger) *Reaper {
	r := &Reaper{
		out:     out,
		log:     log,
		notices: make(chan Notice, 16),
		printed: make(chan struct{}),
	}
	go r.printAll()
	return r
}

// Watch takes ownership of a started background child. The reaper
// becomes the only component that waits on it. Watch must not be
// called after Close or Drain.
func (r *Reaper) Watch(pid int, name string, cmd *exec.Cmd) {
	r.watchers.Add(1)
	go func() {
		defer r.watchers.Done()
		r.notices <- Notice{PID: pid, Name: name, Outcome: waitOutcome(cmd.Wait())}
	}()
}

// Close releases the reaper without waiting: the session ends right
// away while stragglers are still collected, announced and logged as
// they finish. The printer goroutine exits once the last watched child
// has been reaped.
func (r *Reaper) Close() error {
	r.closing.Do(func() {
		go func() {
			r.watchers.Wait()
			close(r.notices)
		}()
	})
	return nil
}

// Drain blocks until every watched child has been reaped and announced,
// then stops the reaper.
func (r *Reaper) Drain() {
	r.watchers.Wait()
	r.Close()
	<-r.printed
}

func (r *Reaper) printAll() {
	defer close(r.printed)
	for notice := range r.notices {
		// The leading newline pushes the notice off whatever prompt or
		// typed input it lands in the middle of.
		fmt.Fprintf(r.out, "\n%s\n", notice)
		r.log.Record(&logger.JobDone{
			PID:    notice.PID,
			Name:   notice.Name,
			Status: notice.Outcome.String(),
		})
	}
}
