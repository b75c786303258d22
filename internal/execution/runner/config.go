package runner

import "time"

type Config struct {
	// Timeout is the maximum duration of a single pipeline run. When it
	// elapses, every stage of the pipeline is killed. Zero disables the
	// timeout.
	Timeout time.Duration `conf:"timeout"`

	// PollTimeout bounds a single readiness wait of the I/O pump.
	PollTimeout time.Duration `conf:"poll_timeout"`
}
