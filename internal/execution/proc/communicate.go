package proc

import (
	"context"
	"fmt"
	"time"

	"github.com/lambda-feedback/procpipe/internal/execution/poller"
	"go.uber.org/zap"
)

// Communicate feeds stdin to the first stage, collects the output of the
// last stage and the merged standard error of all stages, and waits for
// every stage to exit. It may be called only once per pipeline. The
// pipeline is closed when Communicate returns.
//
// If ctx is done before the pipeline completes, every stage is killed,
// the output produced so far is drained and returned together with an
// error wrapping ctx.Err().
func (p *PopenPipeline) Communicate(ctx context.Context, stdin []byte) (stdout, stderr []byte, err error) {
	if p.communicated {
		return nil, nil, ErrAlreadyCommunicated
	}

	if p.closed {
		return nil, nil, ErrClosed
	}

	if len(stdin) > 0 && p.stdin == nil {
		return nil, nil, fmt.Errorf("%w: stdin data for a pipeline without stdin pipe", ErrInvalidArgument)
	}

	p.communicated = true

	defer func() {
		if err != nil {
			p.state = StateFailed
		} else {
			p.state = StateCompleted
		}

		if closeErr := p.Close(err != nil); err == nil {
			err = closeErr
		}
	}()

	pl := p.poller
	if pl == nil {
		pl = poller.New(p.log)
		defer pl.Close()
	}

	pump := &pump{poller: pl, files: &p.files, log: p.log}

	var out, errs *outputStream

	defer func() {
		// leave a shared poller as we found it
		for _, s := range pump.streams {
			if !s.done {
				_ = pl.Unregister(s.fd)
			}
		}
	}()

	if p.stdin != nil {
		if len(stdin) == 0 {
			// many programs wait for EOF before doing anything
			if err := p.files.release(p.stdin); err != nil {
				return nil, nil, &IOError{Stream: "stdin", Op: "close", Err: err}
			}
		} else {
			in := &inputStream{stream: newStream("stdin", p.stdin), pump: pump, pending: stdin}
			if err := pump.register(in.stream, poller.Out, in); err != nil {
				return nil, nil, err
			}
		}
	}

	if p.stdout != nil {
		out = &outputStream{stream: newStream("stdout", p.stdout), pump: pump}
		if err := pump.register(out.stream, poller.In, out); err != nil {
			return nil, nil, err
		}
	}

	if p.stderr != nil {
		errs = &outputStream{stream: newStream("stderr", p.stderr), pump: pump}
		if err := pump.register(errs.stream, poller.In, errs); err != nil {
			return nil, nil, err
		}
	}

	killed := false

	for pump.open > 0 || !p.exited() {
		if !killed && ctx.Err() != nil {
			p.log.Warn("context done, killing pipeline", zap.Error(ctx.Err()))
			if err := p.Kill(); err != nil {
				p.log.Warn("failed to kill pipeline", zap.Error(err))
			}
			killed = true
		}

		if pump.open == 0 {
			p.waitExit(ctx, killed)
			continue
		}

		fired, err := pl.Poll(p.timeout(ctx))
		if err != nil {
			return out.bytes(), errs.bytes(), err
		}

		// a killed stage may have left a grandchild holding a pipe open
		if killed && !fired && p.exited() {
			p.log.Debug("abandoning open streams of killed pipeline", zap.Int("open", pump.open))
			break
		}
	}

	if killed {
		return out.bytes(), errs.bytes(), fmt.Errorf("pipeline killed: %w", ctx.Err())
	}

	p.log.Debug("pipeline completed",
		zap.Ints("return_codes", p.codes()),
		zap.Int("stdout_bytes", len(out.bytes())),
		zap.Int("stderr_bytes", len(errs.bytes())))

	return out.bytes(), errs.bytes(), nil
}

func (p *PopenPipeline) exited() bool {
	_, ok := p.Poll()
	return ok
}

// waitExit blocks until every stage has exited or, unless the pipeline
// is already being killed, until ctx is done.
func (p *PopenPipeline) waitExit(ctx context.Context, killed bool) {
	done := ctx.Done()
	if killed {
		done = nil
	}

	for _, s := range p.stages {
		select {
		case <-s.done:
		case <-done:
			return
		}
	}
}

// timeout caps the poll timeout by the deadline of ctx.
func (p *PopenPipeline) timeout(ctx context.Context) time.Duration {
	timeout := p.pollTimeout

	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, max(time.Until(deadline), 0))
	}

	return timeout
}
