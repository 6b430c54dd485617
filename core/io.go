package core

import (
	"io"
)

// IO carries the byte streams of one interpreter session.
type IO interface {
	Stdin() io.ReadCloser
	Stdout() io.WriteCloser
	Stderr() io.WriteCloser
}

// IOAdapter bundles arbitrary readers and writers into an IO.
type IOAdapter struct {
	in  io.ReadCloser
	out io.WriteCloser
	err io.WriteCloser
}

var _ IO = (*IOAdapter)(nil)

// NewIO adapts the given streams into an IO. Nil streams become a null
// device, writers gain a no-op Close when they don't have one.
func NewIO(stdin io.Reader, stdout, stderr io.Writer) *IOAdapter {
	return &IOAdapter{
		in:  toReadCloserOrNull(stdin),
		out: toWriteCloserOrNull(stdout),
		err: toWriteCloserOrNull(stderr),
	}
}

// NewNullIO creates a /dev/null style IO, reads drain immediately and
// writes are discarded.
func NewNullIO() IO {
	return NewIO(nil, nil, nil)
}

func (a *IOAdapter) Stdin() io.ReadCloser {
	return a.in
}

func (a *IOAdapter) Stdout() io.WriteCloser {
	return a.out
}

func (a *IOAdapter) Stderr() io.WriteCloser {
	return a.err
}

func toWriteCloserOrNull(w io.Writer) io.WriteCloser {
	if w == nil {
		return &nullDevice{}
	}
	if wc, ok := w.(io.WriteCloser); ok {
		return wc
	}
	return nopWriteCloser{w}
}

func toReadCloserOrNull(r io.Reader) io.ReadCloser {
	if r == nil {
		return &nullDevice{}
	}
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// nullDevice drains reads and discards writes.
type nullDevice struct{}

var _ io.ReadCloser = (*nullDevice)(nil)
var _ io.WriteCloser = (*nullDevice)(nil)

func (*nullDevice) Read([]byte) (int, error) {
	return 0, io.EOF
}

func (*nullDevice) Write(b []byte) (int, error) {
	return len(b), nil
}

func (*nullDevice) Close() error {
	return nil
}
