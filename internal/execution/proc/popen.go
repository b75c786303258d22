package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/lambda-feedback/procpipe/internal/execution/poller"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// defaultPollTimeout bounds a single readiness wait of the I/O pump, so
// that process exit is noticed even when no descriptor fires.
const defaultPollTimeout = time.Second

// PopenConfig configures the spawn of a running pipeline.
type PopenConfig struct {
	// Stdin is where the first stage reads from. Unset falls back to the
	// first stage's own option, then to Pipe.
	Stdin Redirect

	// Stdout is where the last stage writes to. Unset falls back to the
	// last stage's own option, then to Pipe.
	Stdout Redirect

	// Stderr is where the stages write their standard error to. With Pipe,
	// every stage shares one pipe, producing a single merged stream. A
	// stage that sets its own stderr redirect keeps it.
	Stderr Redirect

	// PollTimeout bounds a single readiness wait. Defaults to one second.
	PollTimeout time.Duration

	// Poller is an optional poller shared with the caller. The pipeline
	// registers its streams with it and unregisters them when done,
	// without closing it. The poller must not be used concurrently.
	Poller *poller.Poller

	// Log is the logger of the pipeline. Defaults to the global zap logger.
	Log *zap.Logger
}

// State is the lifecycle state of a running pipeline.
type State int

const (
	StateRunning State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stage is one spawned process of a running pipeline.
type stage struct {
	index int
	cmd   *Cmd
	proc  *exec.Cmd

	// done is closed once the process has been reaped and code is set
	done chan struct{}
	code int
}

func (s *stage) wait() {
	defer close(s.done)

	err := s.proc.Wait()

	s.code = exitCode(s.proc.ProcessState, err)
}

func (s *stage) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// exitCode returns the exit status of a reaped process, or the negated
// signal number if a signal killed it.
func exitCode(state *os.ProcessState, err error) int {
	if state == nil {
		return -1
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}

	if code := state.ExitCode(); code >= 0 {
		return code
	}

	if err != nil {
		return -1
	}

	return 0
}

// PopenPipeline is a running chain of processes whose standard streams
// are connected through anonymous pipes. It exposes one logical stdin
// (feeding the first stage), one logical stdout (draining the last stage)
// and one merged stderr.
//
// A PopenPipeline is not safe for concurrent use, with the exception of
// Signal and Kill.
type PopenPipeline struct {
	stages []*stage

	// parent ends of the logical streams, nil unless piped
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	files closeList

	state        State
	communicated bool
	closed       bool

	pollTimeout time.Duration
	poller      *poller.Poller

	log *zap.Logger
}

// Popen spawns one process per stage and connects them. Processes are
// started before Popen returns. If any stage fails to start, the stages
// started so far are killed and reaped, every pipe is closed and a
// *SpawnError is returned.
func Popen(stages []*Cmd, config PopenConfig) (*PopenPipeline, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: pipeline without commands", ErrInvalidArgument)
	}

	for i, c := range stages {
		if c == nil {
			return nil, fmt.Errorf("%w: nil command at stage %d", ErrInvalidArgument, i)
		}
	}

	log := config.Log
	if log == nil {
		log = zap.L()
	}

	pollTimeout := config.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	p := &PopenPipeline{
		stages:      make([]*stage, 0, len(stages)),
		state:       StateRunning,
		pollTimeout: pollTimeout,
		poller:      config.Poller,
		log:         log.Named("pipeline"),
	}

	if err := p.spawn(stages, config); err != nil {
		return nil, p.abort(err)
	}

	return p, nil
}

func (p *PopenPipeline) spawn(stages []*Cmd, config PopenConfig) error {
	last := len(stages) - 1

	stdinRedirect := config.Stdin.or(stages[0].opts.stdin).or(Pipe)
	stdoutRedirect := config.Stdout.or(stages[last].opts.stdout).or(Pipe)
	stderrRedirect := config.Stderr.or(Pipe)

	var stdinRead, stdoutWrite, stderrWrite *os.File

	if stdinRedirect.IsPipe() {
		r, w, err := os.Pipe()
		if err != nil {
			return &IOError{Stream: "stdin", Op: "pipe", Err: err}
		}
		p.files.add(r, w)
		p.stdin, stdinRead = w, r
	}

	if stdoutRedirect.IsPipe() {
		r, w, err := os.Pipe()
		if err != nil {
			return &IOError{Stream: "stdout", Op: "pipe", Err: err}
		}
		p.files.add(r, w)
		p.stdout, stdoutWrite = r, w
	}

	if stderrRedirect.IsPipe() {
		r, w, err := os.Pipe()
		if err != nil {
			return &IOError{Stream: "stderr", Op: "pipe", Err: err}
		}
		p.files.add(r, w)
		p.stderr, stderrWrite = r, w
	}

	// read end of the pipe feeding the next stage
	prevRead := stdinRead

	for i, c := range stages {
		cmd := c.execCmd()

		switch {
		case i > 0 || stdinRedirect.IsPipe():
			cmd.Stdin = prevRead
		default:
			if f := stdinRedirect.target(os.Stdin); f != nil {
				cmd.Stdin = f
			}
		}

		var nextRead, stageWrite *os.File

		switch {
		case i < last:
			r, w, err := os.Pipe()
			if err != nil {
				return &IOError{Stream: fmt.Sprintf("stage %d stdout", i), Op: "pipe", Err: err}
			}
			p.files.add(r, w)
			cmd.Stdout = w
			nextRead, stageWrite = r, w
		case stdoutRedirect.IsPipe():
			cmd.Stdout = stdoutWrite
		default:
			if f := stdoutRedirect.target(os.Stdout); f != nil {
				cmd.Stdout = f
			}
		}

		stderr := stderrRedirect
		if own := c.opts.stderr; own.IsSet() && !own.IsPipe() {
			stderr = own
		}

		if stderr.IsPipe() {
			cmd.Stderr = stderrWrite
		} else if f := stderr.target(os.Stderr); f != nil {
			cmd.Stderr = f
		}

		p.files.apply()

		if err := cmd.Start(); err != nil {
			return &SpawnError{Stage: i, Command: c.String(), Err: err}
		}

		s := &stage{index: i, cmd: c, proc: cmd, done: make(chan struct{})}
		p.stages = append(p.stages, s)

		go s.wait()

		p.log.Debug("spawned stage",
			zap.Int("stage", i),
			zap.Int("pid", cmd.Process.Pid),
			zap.Stringer("command", c))

		// the child owns these ends now
		if err := multierr.Append(
			p.files.release(prevRead),
			p.files.release(stageWrite),
		); err != nil {
			return &IOError{Stream: fmt.Sprintf("stage %d", i), Op: "close", Err: err}
		}

		prevRead = nextRead
	}

	if err := multierr.Append(
		p.files.release(stdoutWrite),
		p.files.release(stderrWrite),
	); err != nil {
		return &IOError{Stream: "pipeline", Op: "close", Err: err}
	}

	return nil
}

// abort tears down a partially spawned pipeline in reverse spawn order
// and returns err.
func (p *PopenPipeline) abort(err error) error {
	p.log.Debug("aborting pipeline", zap.Error(err))

	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]
		if killErr := s.signal(os.Kill); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			p.log.Warn("failed to kill stage", zap.Int("stage", i), zap.Error(killErr))
		}
		<-s.done
	}

	_ = p.Close(true)

	p.state = StateFailed

	return err
}

// Poll reports the exit codes of all stages without blocking. ok is
// false while any stage is still running.
func (p *PopenPipeline) Poll() (codes []int, ok bool) {
	for _, s := range p.stages {
		if !s.exited() {
			return nil, false
		}
	}

	return p.codes(), true
}

// Wait blocks until every stage has exited and returns their exit codes.
func (p *PopenPipeline) Wait() []int {
	for _, s := range p.stages {
		<-s.done
	}

	return p.codes()
}

// ReturnCodes returns the exit code of every stage, or nil while any
// stage is still running.
func (p *PopenPipeline) ReturnCodes() []int {
	codes, _ := p.Poll()
	return codes
}

// ReturnCode returns the exit code of the last stage, which is the
// pipeline's primary code as in a shell.
func (p *PopenPipeline) ReturnCode() (int, bool) {
	codes, ok := p.Poll()
	if !ok {
		return 0, false
	}

	return codes[len(codes)-1], true
}

func (p *PopenPipeline) codes() []int {
	codes := make([]int, len(p.stages))
	for i, s := range p.stages {
		codes[i] = s.code
	}

	return codes
}

// Processes returns the process handles of all stages.
func (p *PopenPipeline) Processes() []*os.Process {
	procs := make([]*os.Process, len(p.stages))
	for i, s := range p.stages {
		procs[i] = s.proc.Process
	}

	return procs
}

// State returns the lifecycle state of the pipeline.
func (p *PopenPipeline) State() State {
	return p.state
}

// Signal sends sig to every stage that is still running.
func (p *PopenPipeline) Signal(sig os.Signal) error {
	var err error
	for _, s := range p.stages {
		if s.exited() {
			continue
		}

		if sigErr := s.signal(sig); sigErr != nil && !errors.Is(sigErr, os.ErrProcessDone) {
			err = multierr.Append(err, fmt.Errorf("stage %d: %w", s.index, sigErr))
		}
	}

	return err
}

// Kill kills every stage that is still running. The I/O pump observes
// the pipes of the dead stages closing and completes.
func (p *PopenPipeline) Kill() error {
	return p.Signal(os.Kill)
}

// Terminate sends SIGTERM to every running stage and kills the stages
// that are still running after grace. A grace of zero or less kills
// right away.
func (p *PopenPipeline) Terminate(grace time.Duration) error {
	if grace <= 0 {
		return p.Kill()
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	if p.waitFor(grace) {
		return nil
	}

	p.log.Debug("stages still running after SIGTERM, killing", zap.Duration("grace", grace))

	return p.Kill()
}

// waitFor reports whether every stage exited within timeout.
func (p *PopenPipeline) waitFor(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, s := range p.stages {
		select {
		case <-s.done:
		case <-timer.C:
			return false
		}
	}

	return true
}

// Close closes every stream the parent still holds open. It is
// idempotent. With suppressErrors, close failures are logged instead of
// returned.
func (p *PopenPipeline) Close(suppressErrors bool) error {
	if p.closed {
		return nil
	}

	p.closed = true

	err := p.files.closeAll()
	if err != nil && suppressErrors {
		p.log.Warn("failed to close pipeline streams", zap.Error(err))
		return nil
	}

	return err
}
