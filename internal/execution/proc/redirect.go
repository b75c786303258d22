package proc

import (
	"fmt"
	"os"
)

type redirectKind int

const (
	redirectUnset redirectKind = iota
	redirectPipe
	redirectInherit
	redirectDevNull
	redirectFile
)

// Redirect describes where a standard stream of a process is connected.
// The zero value means "not specified".
type Redirect struct {
	kind redirectKind
	file *os.File
}

var (
	// Pipe connects the stream to a pipe owned by the pipeline, so that
	// the parent can feed or capture it.
	Pipe = Redirect{kind: redirectPipe}

	// Inherit connects the stream to the parent's own stream.
	Inherit = Redirect{kind: redirectInherit}

	// DevNull connects the stream to the null device.
	DevNull = Redirect{kind: redirectDevNull}
)

// File connects the stream to an open file. The file stays owned by the
// caller and is never closed by the pipeline.
func File(f *os.File) Redirect {
	if f == nil {
		return DevNull
	}

	return Redirect{kind: redirectFile, file: f}
}

// IsSet reports whether the redirect was specified.
func (r Redirect) IsSet() bool {
	return r.kind != redirectUnset
}

// IsPipe reports whether the stream is connected to a pipeline pipe.
func (r Redirect) IsPipe() bool {
	return r.kind == redirectPipe
}

func (r Redirect) or(fallback Redirect) Redirect {
	if r.IsSet() {
		return r
	}

	return fallback
}

func (r Redirect) String() string {
	switch r.kind {
	case redirectUnset:
		return "unset"
	case redirectPipe:
		return "pipe"
	case redirectInherit:
		return "inherit"
	case redirectDevNull:
		return "devnull"
	case redirectFile:
		return fmt.Sprintf("file(%s)", r.file.Name())
	default:
		return "unknown"
	}
}

// target returns the file a child should be connected to for a
// non-pipe redirect. A nil file makes os/exec use the null device.
func (r Redirect) target(std *os.File) *os.File {
	switch r.kind {
	case redirectInherit:
		return std
	case redirectFile:
		return r.file
	default:
		return nil
	}
}
