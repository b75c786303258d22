package proc

import (
	"bytes"
	"errors"
	"os"

	"github.com/lambda-feedback/procpipe/internal/execution/poller"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// readChunkSize is the size of a single read from an output stream. It
// only affects the number of syscalls.
const readChunkSize = 4096

// stream is the parent side of one logical stream of the pipeline.
type stream struct {
	name string
	file *os.File
	fd   int
	done bool
}

func newStream(name string, f *os.File) *stream {
	return &stream{
		name: name,
		file: f,
		fd:   int(f.Fd()),
	}
}

// pump holds the state shared by the streams of one Communicate call.
type pump struct {
	poller  *poller.Poller
	files   *closeList
	streams []*stream
	open    int

	log *zap.Logger
}

func (p *pump) register(s *stream, events poller.Event, handler poller.Handler) error {
	if err := p.poller.Register(s.fd, events, handler); err != nil {
		return err
	}

	p.streams = append(p.streams, s)
	p.open++

	return nil
}

// retire unregisters and closes a stream once it is exhausted.
func (p *pump) retire(s *stream) error {
	if s.done {
		return nil
	}

	s.done = true
	p.open--

	p.log.Debug("closing stream", zap.String("stream", s.name), zap.Int("fd", s.fd))

	if err := p.poller.Unregister(s.fd); err != nil {
		return err
	}

	if err := p.files.release(s.file); err != nil {
		return &IOError{Stream: s.name, Op: "close", Err: err}
	}

	return nil
}

// inputStream feeds the pipeline's standard input from a byte buffer.
type inputStream struct {
	*stream
	pump    *pump
	pending []byte
	size    int
}

var _ poller.Handler = (*inputStream)(nil)

func (s *inputStream) HandleEvent(_ int, events poller.Event) error {
	if events&(poller.Err|poller.Hup) != 0 && len(s.pending) == 0 {
		return s.pump.retire(s.stream)
	}

	return s.write()
}

// write sends at most one atomic chunk of the pending input. A full
// pipe leaves the data queued for the next writable event.
func (s *inputStream) write() error {
	if s.done {
		return nil
	}

	if len(s.pending) > 0 {
		chunk := s.pending[:min(len(s.pending), pipeBufSize)]

		n, err := unix.Write(s.fd, chunk)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			return nil
		case errors.Is(err, unix.EPIPE):
			// the first stage stopped reading, e.g. `head`
			s.pump.log.Debug("stdin consumer exited, dropping input",
				zap.Int("dropped_bytes", len(s.pending)))
			s.pending = nil
		case err != nil:
			return &IOError{Stream: s.name, Op: "write", Err: err}
		default:
			s.pending = s.pending[n:]
			s.size += n
		}
	}

	if len(s.pending) == 0 {
		return s.pump.retire(s.stream)
	}

	return nil
}

// outputStream accumulates one of the pipeline's output streams.
type outputStream struct {
	*stream
	pump *pump
	buf  bytes.Buffer
}

var _ poller.Handler = (*outputStream)(nil)

func (s *outputStream) HandleEvent(_ int, events poller.Event) error {
	if events&poller.Nval != 0 {
		return &IOError{Stream: s.name, Op: "read", Err: unix.EBADF}
	}

	var chunk [readChunkSize]byte

	n, err := unix.Read(s.fd, chunk[:])
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return nil
	case err != nil:
		return &IOError{Stream: s.name, Op: "read", Err: err}
	case n == 0:
		return s.pump.retire(s.stream)
	}

	s.buf.Write(chunk[:n])

	return nil
}

func (s *outputStream) bytes() []byte {
	if s == nil {
		return nil
	}

	return s.buf.Bytes()
}
