// Package poller implements a small callback-based readiness dispatcher
// on top of poll(2). The poller never owns the descriptors registered with
// it: opening and closing them is the caller's job.
package poller

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	ErrNotRegistered     = errors.New("fd not registered")
	ErrAlreadyRegistered = errors.New("fd already registered")
	ErrInvalidTimeout    = errors.New("invalid timeout")
	ErrClosed            = errors.New("poller closed")
)

// Event is a bitmask of readiness conditions.
type Event int16

const (
	// In reports that the descriptor is readable.
	In Event = unix.POLLIN | unix.POLLPRI

	// Out reports that the descriptor is writable.
	Out Event = unix.POLLOUT

	// Err reports an error condition, e.g. the read end of a pipe
	// being closed while we still hold the write end.
	Err Event = unix.POLLERR

	// Hup reports that the peer hung up.
	Hup Event = unix.POLLHUP

	// Nval reports that the descriptor is not open.
	Nval Event = unix.POLLNVAL
)

func (e Event) String() string {
	if e == 0 {
		return "none"
	}

	names := []struct {
		bit  Event
		name string
	}{
		{unix.POLLIN, "in"},
		{unix.POLLPRI, "pri"},
		{Out, "out"},
		{Err, "err"},
		{Hup, "hup"},
		{Nval, "nval"},
	}

	var s string
	for _, n := range names {
		if e&n.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}

	return s
}

// Handler is invoked for a ready descriptor with the events observed.
type Handler interface {
	HandleEvent(fd int, events Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(fd int, events Event) error

func (f HandlerFunc) HandleEvent(fd int, events Event) error {
	return f(fd, events)
}

type registration struct {
	events  Event
	handler Handler
}

// Poller maps descriptors to handlers and services every ready
// descriptor once per call to Poll.
type Poller struct {
	handlers map[int]registration
	closed   bool

	log *zap.Logger
}

// New creates an empty poller.
func New(log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}

	return &Poller{
		handlers: make(map[int]registration),
		log:      log.Named("poller"),
	}
}

// Register puts fd in non-blocking mode and starts watching it for the
// given events.
func (p *Poller) Register(fd int, events Event, handler Handler) error {
	if p.closed {
		return ErrClosed
	}

	if handler == nil {
		return fmt.Errorf("register fd %d: nil handler", fd)
	}

	if _, ok := p.handlers[fd]; ok {
		return fmt.Errorf("register fd %d: %w", fd, ErrAlreadyRegistered)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("register fd %d: %w", fd, err)
	}

	p.handlers[fd] = registration{events: events, handler: handler}

	p.log.Debug("registered", zap.Int("fd", fd), zap.Stringer("events", events))

	return nil
}

// Unregister stops watching fd. The descriptor itself is left open.
func (p *Poller) Unregister(fd int) error {
	if _, ok := p.handlers[fd]; !ok {
		return fmt.Errorf("unregister fd %d: %w", fd, ErrNotRegistered)
	}

	delete(p.handlers, fd)

	p.log.Debug("unregistered", zap.Int("fd", fd))

	return nil
}

// Registered reports whether fd is currently watched.
func (p *Poller) Registered(fd int) bool {
	_, ok := p.handlers[fd]
	return ok
}

// Len returns the number of registered descriptors.
func (p *Poller) Len() int {
	return len(p.handlers)
}

// Poll waits at most timeout for any registered descriptor to become
// ready, then calls the handler of every ready descriptor exactly once.
// It reports whether any event fired. A zero timeout does not block.
func (p *Poller) Poll(timeout time.Duration) (bool, error) {
	if p.closed {
		return false, ErrClosed
	}

	if timeout < 0 {
		return false, ErrInvalidTimeout
	}

	fds := make([]unix.PollFd, 0, len(p.handlers))
	for fd, reg := range p.handlers {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: int16(reg.events)})
	}

	// deterministic dispatch order
	sort.Slice(fds, func(i, j int) bool { return fds[i].Fd < fds[j].Fd })

	n, err := unix.Poll(fds, pollMillis(timeout))
	if err == unix.EINTR {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}

	if n == 0 {
		return false, nil
	}

	fired := false
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}

		fd := int(pfd.Fd)

		// an earlier handler in this round may have retired the fd
		reg, ok := p.handlers[fd]
		if !ok {
			continue
		}

		fired = true
		events := Event(pfd.Revents)

		if err := reg.handler.HandleEvent(fd, events); err != nil {
			return fired, err
		}
	}

	return fired, nil
}

// pollMillis converts timeout to poll(2) milliseconds, rounding up so
// that a positive timeout never becomes a non-blocking poll.
func pollMillis(timeout time.Duration) int {
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}

// Close unregisters every descriptor without closing any of them. The
// poller cannot be used afterwards.
func (p *Poller) Close() error {
	if p.closed {
		return nil
	}

	for fd := range p.handlers {
		delete(p.handlers, fd)
	}

	p.closed = true

	return nil
}
