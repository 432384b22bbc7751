// Package batch runs a list of download jobs with bounded parallelism and a
// shared, per-batch stop signal.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"ytbatch/internal/events"
	"ytbatch/internal/model"
)

const (
	MinConcurrency = 1
	MaxConcurrency = 10
)

// JobRunner executes one job. *Runner is the production implementation.
type JobRunner interface {
	Run(ctx context.Context, job model.Job, outputDir string, stop *StopSignal, emit func(model.ProgressEvent)) error
}

type Publisher interface {
	Publish(events.Message)
}

// Coordinator runs at most one batch at a time.
type Coordinator struct {
	runner JobRunner
	pub    Publisher
	logger *log.Logger

	// active is the in-flight batch's stop signal, nil when idle.
	mu     sync.Mutex
	active *StopSignal
}

func NewCoordinator(pub Publisher, runner JobRunner, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Coordinator{runner: runner, pub: pub, logger: logger}
}

func ValidateConcurrency(limit int) error {
	if limit < MinConcurrency || limit > MaxConcurrency {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, limit)
	}
	return nil
}

// Running reports whether a batch is in flight.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Batch is a started batch that holds the coordinator until Wait returns.
type Batch struct {
	c         *Coordinator
	ctx       context.Context
	jobs      []model.Job
	limit     int
	outputDir string
	stop      *StopSignal
	release   func()
	id        string
}

func (b *Batch) ID() string { return b.id }

// Start claims the coordinator and the output folder for a new batch. Every
// reason the batch cannot run is returned here; jobs only run in Wait.
func (c *Coordinator) Start(ctx context.Context, jobs []model.Job, limit int, outputDir string) (*Batch, error) {
	if err := ValidateConcurrency(limit); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, ErrBatchRunning
	}

	release := func() {}
	// An unusable folder is reported per job by the runner, so only a
	// folder that exists gets locked.
	if outputDir != "" && os.MkdirAll(outputDir, 0o755) == nil {
		lock, err := AcquireFolderLock(outputDir)
		if errors.Is(err, ErrFolderLocked) {
			return nil, err
		}
		if err == nil {
			release = func() {
				if err := lock.Release(); err != nil {
					c.logger.Printf("%v", err)
				}
			}
		}
	}

	stop := NewStopSignal()
	c.active = stop
	return &Batch{
		c:         c,
		ctx:       ctx,
		jobs:      jobs,
		limit:     limit,
		outputDir: outputDir,
		stop:      stop,
		release:   release,
		id:        uuid.NewString(),
	}, nil
}

// RunBatch is Start followed by Wait.
func (c *Coordinator) RunBatch(ctx context.Context, jobs []model.Job, limit int, outputDir string) (model.BatchSummary, error) {
	b, err := c.Start(ctx, jobs, limit, outputDir)
	if err != nil {
		return model.BatchSummary{}, err
	}
	return b.Wait(), nil
}

// Wait runs the jobs and blocks until every one has emitted its terminal
// event, then publishes the batch summary. Per-job failures are reported
// only as events. Wait must be called exactly once.
func (b *Batch) Wait() model.BatchSummary {
	c := b.c
	summary := model.BatchSummary{BatchID: b.id, Total: len(b.jobs)}
	c.logger.Printf("batch %s: %d jobs, limit %d, output %s", summary.BatchID, len(b.jobs), b.limit, b.outputDir)

	for _, job := range b.jobs {
		c.emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusPending, Progress: 0})
	}

	workers := b.limit
	if len(b.jobs) < workers {
		workers = len(b.jobs)
	}

	jobCh := make(chan model.Job)
	var mu sync.Mutex
	var wg sync.WaitGroup
	worker := func(workerID int) {
		defer wg.Done()
		for job := range jobCh {
			err := c.runner.Run(b.ctx, job, b.outputDir, b.stop, c.emit)

			mu.Lock()
			switch {
			case err == nil:
				summary.Completed++
			case errors.Is(err, ErrCancelled):
				summary.Cancelled++
			default:
				summary.Failed++
			}
			mu.Unlock()

			if err != nil && !errors.Is(err, ErrCancelled) {
				c.logger.Printf("batch %s [w%d]: job %s failed: %v", summary.BatchID, workerID, job.ID, err)
			}
		}
	}
	wg.Add(workers)
	for w := 1; w <= workers; w++ {
		go worker(w)
	}
	for _, job := range b.jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	b.release()
	c.mu.Lock()
	summary.Stopped = b.stop.Stopped()
	c.active = nil
	c.mu.Unlock()

	c.logger.Printf("batch %s: done completed=%d failed=%d cancelled=%d stopped=%t",
		summary.BatchID, summary.Completed, summary.Failed, summary.Cancelled, summary.Stopped)
	c.publish(events.Stopped(summary))
	return summary
}

// RequestStop sets the in-flight batch's stop signal and publishes
// downloads-stopping. It does not wait for jobs to wind down. Only the call
// that actually sets the signal publishes; the result reports that.
func (c *Coordinator) RequestStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || !c.active.Stop() {
		return false
	}
	c.logger.Printf("stop requested")
	c.publish(events.Stopping())
	return true
}

func (c *Coordinator) emit(ev model.ProgressEvent) {
	c.publish(events.Progress(ev))
}

func (c *Coordinator) publish(m events.Message) {
	if c.pub != nil {
		c.pub.Publish(m)
	}
}
