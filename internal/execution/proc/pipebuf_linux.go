package proc

// pipeBufSize is PIPE_BUF, the largest write to a pipe that is atomic.
const pipeBufSize = 4096
