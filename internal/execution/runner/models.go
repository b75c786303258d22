package runner

import (
	"errors"
	"time"

	"github.com/lambda-feedback/procpipe/internal/execution/proc"
)

var (
	ErrNotStarted  = errors.New("runner not started")
	ErrNilPipeline = errors.New("request without pipeline")
)

// Request describes one pipeline run.
type Request struct {
	// Pipeline is the pipeline to run
	Pipeline *proc.Pipeline

	// Stdin is fed to the first stage of the pipeline
	Stdin []byte
}

// Result holds the outcome of a pipeline run that was started. A run in
// which a stage exits with a non-zero status still produces a Result.
type Result struct {
	Stdout      []byte
	Stderr      []byte
	ReturnCodes []int
	Duration    time.Duration
}

// Success reports whether every stage exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode() == 0
}

// ExitCode returns the first non-zero exit code in stage order, or 0.
func (r *Result) ExitCode() int {
	for _, code := range r.ReturnCodes {
		if code != 0 {
			return code
		}
	}

	return 0
}
