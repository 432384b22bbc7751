package model

import "fmt"

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

var allowedTransitions = map[Status]map[Status]bool{
	"": {
		StatusPending:     true,
		StatusDownloading: true,
		StatusCancelled:   true,
		StatusError:       true,
	},
	StatusPending: {
		StatusPending:     true,
		StatusDownloading: true,
		StatusProcessing:  true, // tool may skip straight to post-processing
		StatusCompleted:   true,
		StatusError:       true,
		StatusCancelled:   true,
	},
	StatusDownloading: {
		StatusDownloading: true,
		StatusProcessing:  true,
		StatusCompleted:   true,
		StatusError:       true,
		StatusCancelled:   true,
	},
	StatusProcessing: {
		StatusProcessing:  true,
		StatusDownloading: true, // next stream (audio after video) restarts at 0%
		StatusCompleted:   true,
		StatusError:       true,
		StatusCancelled:   true,
	},
	StatusCompleted: {},
	StatusError:     {},
	StatusCancelled: {},
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further events may follow s for the same job.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

func IsKnownStatus(status Status) bool {
	_, ok := allowedTransitions[status]
	return ok && status != ""
}

func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ValidateSequence checks that a per-job event stream walks the status graph
// and ends in exactly one terminal event.
func ValidateSequence(events []ProgressEvent) error {
	if len(events) == 0 {
		return fmt.Errorf("empty event sequence")
	}
	var from Status
	for i, ev := range events {
		if !CanTransition(from, ev.Status) {
			return fmt.Errorf("invalid status transition at event %d: %q -> %q (job_id=%s)", i, from, ev.Status, ev.JobID)
		}
		from = ev.Status
	}
	if !from.IsTerminal() {
		return fmt.Errorf("last event for job %s is %q, want a terminal status", events[len(events)-1].JobID, from)
	}
	return nil
}
