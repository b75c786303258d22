package proc

import (
	"errors"
	"os"
	"syscall"
)

// ProcessGroup places a command in its own process group. Signals sent
// through the pipeline then reach the command's descendants too.
func ProcessGroup(attr *syscall.SysProcAttr) {
	attr.Setpgid = true
}

func (s *stage) signal(sig os.Signal) error {
	attr := s.proc.SysProcAttr

	if ssig, ok := sig.(syscall.Signal); ok && attr != nil && attr.Setpgid && attr.Pgid == 0 {
		// negative pid sends the signal to the whole process group
		err := syscall.Kill(-s.proc.Process.Pid, ssig)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}

	return s.proc.Process.Signal(sig)
}
