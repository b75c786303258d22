//go:build !linux

package proc

// pipeBufSize is the POSIX minimum for PIPE_BUF.
const pipeBufSize = 512
