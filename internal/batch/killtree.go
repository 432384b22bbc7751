package batch

import (
	"errors"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// killTree kills p and every descendant, deepest first, so an ffmpeg
// child spawned by yt-dlp does not outlive it.
func killTree(p *os.Process) error {
	if p == nil {
		return nil
	}
	root, err := process.NewProcess(int32(p.Pid))
	if err != nil {
		// Already gone, or not visible to gopsutil. The direct kill still
		// covers the common case.
		if killErr := p.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			return killErr
		}
		return nil
	}
	killDescendants(root)
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func killDescendants(p *process.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, c := range children {
		killDescendants(c)
		_ = c.Kill()
	}
}
