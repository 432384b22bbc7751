package batch

import (
	"sync"
	"sync/atomic"
	"time"
)

// StopPollInterval is the documented upper bound on how long a running job
// takes to notice a stop request, excluding process kill and reap time.
// Runners are woken by channel close, so in practice they notice at once.
const StopPollInterval = 100 * time.Millisecond

// StopSignal is a one-shot, level-triggered stop flag shared by every runner
// of one batch. A nil *StopSignal is never stopped.
type StopSignal struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Stop sets the signal. It reports whether this call was the one that set it.
func (s *StopSignal) Stop() bool {
	if s == nil {
		return false
	}
	first := false
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.done)
		first = true
	})
	return first
}

func (s *StopSignal) Stopped() bool {
	return s != nil && s.stopped.Load()
}

// Done is closed once the signal is set.
func (s *StopSignal) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}
