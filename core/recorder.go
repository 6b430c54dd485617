package core

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"
)

// Direction tags a transcript record with the stream it came from.
type Direction byte

const (
	// DirInput is data the user typed.
	DirInput Direction = 'i'
	// DirOutput is data the session showed the user.
	DirOutput Direction = 'o'
)

// Recorder wraps a session's IO and appends everything read or written
// to a transcript. Records are varint framed: microseconds since the
// previous record, a direction byte, then a length prefixed payload.
type Recorder struct {
	io IO

	mutex sync.Mutex
	out   io.Writer
	prev  time.Time
}

var _ IO = (*Recorder)(nil)

// Record wraps the session streams so every byte that passes through
// them lands in the transcript.
func Record(toWrap IO, output io.Writer) *Recorder {
	recorder := &Recorder{
		out:  output,
		prev: time.Now(),
	}

	recorder.io = NewIO(
		&recorderReader{r: recorder, wrapped: toWrap.Stdin()},
		&recorderWriter{r: recorder, wrapped: toWrap.Stdout()},
		// Stderr shares the stdout record stream, the transcript keeps
		// the interleaving the user saw.
		&recorderWriter{r: recorder, wrapped: toWrap.Stderr()},
	)

	return recorder
}

func (r *Recorder) Stdin() io.ReadCloser   { return r.io.Stdin() }
func (r *Recorder) Stdout() io.WriteCloser { return r.io.Stdout() }
func (r *Recorder) Stderr() io.WriteCloser { return r.io.Stderr() }

// record appends one framed record. Readers and writers share the
// transcript, so framing is done under the lock.
func (r *Recorder) record(dir Direction, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	now := time.Now()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	var header [2*binary.MaxVarintLen64 + 1]byte
	n := binary.PutUvarint(header[:], uint64(now.Sub(r.prev).Microseconds()))
	header[n] = byte(dir)
	n++
	n += binary.PutUvarint(header[n:], uint64(len(data)))
	r.prev = now

	if _, err := r.out.Write(header[:n]); err != nil {
		return err
	}
	_, err := r.out.Write(data)
	return err
}

type recorderReader struct {
	r       *Recorder
	wrapped io.ReadCloser
}

func (rc *recorderReader) Read(p []byte) (int, error) {
	amount, err := rc.wrapped.Read(p)
	if err == nil {
		// Transcript failures must not break the session.
		_ = rc.r.record(DirInput, p[:amount])
	}
	return amount, err
}

func (rc *recorderReader) Close() error {
	return rc.wrapped.Close()
}

type recorderWriter struct {
	r       *Recorder
	wrapped io.WriteCloser
}

func (wc *recorderWriter) Write(p []byte) (int, error) {
	amount, err := wc.wrapped.Write(p)
	_ = wc.r.record(DirOutput, p[:amount])
	return amount, err
}

func (wc *recorderWriter) Close() error {
	return wc.wrapped.Close()
}

// TranscriptRecord is one parsed transcript record.
type TranscriptRecord struct {
	// Delay since the previous record.
	Delay time.Duration
	// Direction of the data.
	Direction Direction
	// Data read or written.
	Data []byte
}

// ReplayCallback parses a transcript and hands each record to the
// callback in order.
func ReplayCallback(recording io.Reader, callback func(*TranscriptRecord) error) error {
	in := bufio.NewReader(recording)
	for {
		deltaMicros, err := binary.ReadUvarint(in)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading transcript frame: %w", err)
		}

		dir, err := in.ReadByte()
		if err != nil {
			return fmt.Errorf("reading transcript frame: %w", err)
		}
		switch Direction(dir) {
		case DirInput, DirOutput:
		default:
			return fmt.Errorf("corrupt transcript direction %q", dir)
		}

		size, err := binary.ReadUvarint(in)
		if err != nil {
			return fmt.Errorf("reading transcript frame: %w", err)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(in, data); err != nil {
			return fmt.Errorf("reading transcript payload: %w", err)
		}

		record := &TranscriptRecord{
			Delay:     time.Duration(deltaMicros) * time.Microsecond,
			Direction: Direction(dir),
			Data:      data,
		}
		if err := callback(record); err != nil {
			return err
		}
	}
}

// Replay dumps the output side of a transcript to destination,
// reproducing what the session's user saw.
func Replay(recording io.Reader, destination io.Writer) error {
	return ReplayCallback(recording, func(record *TranscriptRecord) error {
		if record.Direction != DirOutput {
			return nil
		}
		_, err := destination.Write(record.Data)
		return err
	})
}
