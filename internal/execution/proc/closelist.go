package proc

import (
	"os"
	"syscall"

	"go.uber.org/multierr"
)

// closeList tracks every pipe end the pipeline has created and still
// holds open in the parent. Before each spawn the whole set is marked
// close-on-exec, so that no child, and no grandchild, of this or any
// other pipeline inherits a pipe end it was not explicitly handed as a
// standard stream. A pipe that stays open through an inherited copy never
// delivers EOF and hangs the pipeline.
type closeList struct {
	files []*os.File
}

func (l *closeList) add(files ...*os.File) {
	l.files = append(l.files, files...)
}

// apply marks every tracked descriptor close-on-exec. Pipes created by
// os.Pipe already are, so this only has to catch descriptors that were
// handed to the pipeline some other way.
func (l *closeList) apply() {
	for _, f := range l.files {
		syscall.CloseOnExec(int(f.Fd()))
	}
}

// release closes f in the parent and stops tracking it.
func (l *closeList) release(f *os.File) error {
	for i, tracked := range l.files {
		if tracked == f {
			l.files = append(l.files[:i], l.files[i+1:]...)
			return f.Close()
		}
	}

	return nil
}

// closeAll closes every tracked descriptor, in reverse order of creation.
func (l *closeList) closeAll() error {
	var err error
	for i := len(l.files) - 1; i >= 0; i-- {
		err = multierr.Append(err, l.files[i].Close())
	}

	l.files = nil

	return err
}

func (l *closeList) len() int {
	return len(l.files)
}
