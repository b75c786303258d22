package proc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSpawn           = errors.New("spawn failed")
	ErrIO              = errors.New("pipe i/o failed")
	ErrState           = errors.New("invalid pipeline state")
	ErrCommandFailed   = errors.New("command failed")

	ErrAlreadyCommunicated = fmt.Errorf("%w: communicate already called", ErrState)
	ErrClosed              = fmt.Errorf("%w: pipeline closed", ErrState)
)

// errorOutputMaxLines bounds how much captured output ends up in error
// messages.
const errorOutputMaxLines = 20

// SpawnError reports that a stage of a pipeline could not be started.
type SpawnError struct {
	// Stage is the index of the stage that failed to start
	Stage int

	// Command is the printable form of the failed command
	Command string

	// Err is the underlying error
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn stage %d (%s): %v", e.Stage, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawn, e.Err}
}

// IOError reports a failed read or write on one of the pipeline's
// streams. Would-block conditions are never reported as IOError.
type IOError struct {
	// Stream is the logical stream, one of stdin, stdout or stderr
	Stream string

	// Op is the failed operation, read or write
	Op string

	// Err is the underlying error
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Stream, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// CommandError reports that one or more stages exited with a non-zero
// status. It carries the captured output so callers can print
// diagnostics without running the command again.
type CommandError struct {
	// Command is the printable form of the command or pipeline
	Command string

	// ExitCode is the first non-zero exit code in stage order
	ExitCode int

	// ReturnCodes holds the exit code of every stage
	ReturnCodes []int

	// Stdout is the captured standard output
	Stdout []byte

	// Stderr is the captured (merged) standard error
	Stderr []byte
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with %d", e.Command, e.ExitCode)

	if len(e.ReturnCodes) > 1 {
		msg += fmt.Sprintf(" (return codes %v)", e.ReturnCodes)
	}

	if stderr := truncateLines(string(e.Stderr), errorOutputMaxLines); stderr != "" {
		msg += ": " + stderr
	}

	return msg
}

func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

// AsCommandError returns the CommandError in err's chain, if any.
func AsCommandError(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}

	return nil, false
}

func newCommandError(command string, codes []int, stdout, stderr []byte) *CommandError {
	return &CommandError{
		Command:     command,
		ExitCode:    firstFailure(codes),
		ReturnCodes: codes,
		Stdout:      stdout,
		Stderr:      stderr,
	}
}

// firstFailure returns the first non-zero code, or 0.
func firstFailure(codes []int) int {
	for _, code := range codes {
		if code != 0 {
			return code
		}
	}

	return 0
}

// truncateLines keeps the last maxLines lines of s.
func truncateLines(s string, maxLines int) string {
	s = strings.TrimRight(s, "\n")

	lines := strings.Split(s, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}

	return strings.Join(lines, "\n")
}
