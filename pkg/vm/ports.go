package vm

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/term"
)

// InputPort is the byte-granular blocking source that the Input
// operator (opcode 11) reads from. ReadByte blocks until one byte
// arrives or end-of-stream is observed; eof reports the latter, in
// which case the operator loads 0xFFFFFFFF into its target register.
type InputPort interface {
	ReadByte() (b byte, eof bool, err error)
}

// OutputPort is the byte-granular blocking sink that the Output
// operator (opcode 10) writes to.
type OutputPort interface {
	WriteByte(b byte) error
}

// readerInputPort adapts an io.Reader to InputPort, delivering one
// byte per ReadByte call in stream order. The reader is wrapped in a
// bufio.Reader, so more bytes than have been delivered may already
// have been read from it.
type readerInputPort struct {
	r *bufio.Reader
}

// NewInputPort wraps r as an InputPort.
func NewInputPort(r io.Reader) InputPort {
	return &readerInputPort{r: bufio.NewReader(r)}
}

func (p *readerInputPort) ReadByte() (byte, bool, error) {
	b, err := p.r.ReadByte()
	if err == io.EOF {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return b, false, nil
}

// writerOutputPort adapts an io.Writer to OutputPort, flushing after
// every byte so interactive guest programs are observed promptly.
type writerOutputPort struct {
	w *bufio.Writer
}

// NewOutputPort wraps w as an OutputPort.
func NewOutputPort(w io.Writer) OutputPort {
	return &writerOutputPort{w: bufio.NewWriter(w)}
}

func (p *writerOutputPort) WriteByte(b byte) error {
	if err := p.w.WriteByte(b); err != nil {
		return err
	}
	return p.w.Flush()
}

// StdioPorts binds the default Input/Output ports to the process's
// standard streams. When stdin is a real controlling terminal, it is
// switched into raw mode for the duration of run (the returned
// restore function undoes this) so that opcode 11 observes one byte
// at a time rather than a line-buffered read; piped or redirected
// stdin is left untouched.
func StdioPorts() (in InputPort, out OutputPort, restore func()) {
	restore = func() {}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		if state, err := term.MakeRaw(fd); err == nil {
			restore = func() { _ = term.Restore(fd, state) }
		}
	}
	return NewInputPort(os.Stdin), NewOutputPort(os.Stdout), restore
}
