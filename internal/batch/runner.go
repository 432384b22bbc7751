package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"ytbatch/internal/model"
	"ytbatch/internal/progress"
	"ytbatch/internal/ytdlp"
)

const stderrTailBytes = 8192

// Runner executes one job as one yt-dlp subprocess.
type Runner struct {
	Tools       ytdlp.ResolveOptions
	AudioFormat string
	Logger      *log.Logger
}

// Run drives job to exactly one terminal event, passed to emit last. The
// returned error is nil for a completed job, wraps ErrCancelled for a
// cancelled one, and wraps one of the other sentinels otherwise.
//
// emit is called from the calling goroutine and from the stdout pump, never
// concurrently.
func (r *Runner) Run(ctx context.Context, job model.Job, outputDir string, stop *StopSignal, emit func(model.ProgressEvent)) error {
	if emit == nil {
		emit = func(model.ProgressEvent) {}
	}
	logger := r.logger()

	if stop.Stopped() || ctx.Err() != nil {
		return cancelJob(job, 0, emit)
	}

	tools, err := ytdlp.ResolveTools(r.Tools)
	if err != nil {
		return failJob(job, fmt.Errorf("%w: %v", ErrToolNotFound, err), emit)
	}
	if strings.TrimSpace(outputDir) == "" {
		return failJob(job, fmt.Errorf("%w: empty path", ErrInvalidOutputDir), emit)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return failJob(job, fmt.Errorf("%w: %v", ErrInvalidOutputDir, err), emit)
	}

	emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusDownloading, Progress: 0})

	// The process outlives ctx cancellation only until killTree below runs;
	// CommandContext would kill yt-dlp alone and leave ffmpeg behind.
	cmd, err := ytdlp.Command(context.WithoutCancel(ctx), tools, ytdlp.DownloadOptions{
		URL:         job.URL,
		OutputDir:   outputDir,
		AudioFormat: r.AudioFormat,
	})
	if err != nil {
		return failJob(job, fmt.Errorf("%w: %v", ErrSpawn, err), emit)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return failJob(job, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err), emit)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return failJob(job, fmt.Errorf("%w: stderr pipe: %v", ErrSpawn, err), emit)
	}
	if err := cmd.Start(); err != nil {
		return failJob(job, fmt.Errorf("%w: %v", ErrSpawn, err), emit)
	}
	logger.Printf("job %s: started yt-dlp pid=%d", job.ID, cmd.Process.Pid)

	// lastPct is written by the stdout pump only and read after it is joined.
	var lastPct float64
	tail := ytdlp.NewTailBuffer(stderrTailBytes)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := newLineScanner(stdoutPipe)
		for scanner.Scan() {
			ev, ok := progress.ParseLine(scanner.Text(), job.ID)
			if !ok {
				continue
			}
			lastPct = ev.Progress
			emit(ev)
		}
		_, _ = io.Copy(io.Discard, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		scanner := newLineScanner(stderrPipe)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				tail.AppendLine(line)
			}
		}
		_, _ = io.Copy(io.Discard, stderrPipe)
	}()

	exited := make(chan error, 1)
	go func() {
		wg.Wait()
		exited <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-exited:
	case <-stop.Done():
		logger.Printf("job %s: stop requested, killing pid=%d", job.ID, cmd.Process.Pid)
		if err := killTree(cmd.Process); err != nil {
			logger.Printf("job %s: kill: %v", job.ID, err)
		}
		waitErr = <-exited
	case <-ctx.Done():
		logger.Printf("job %s: context done, killing pid=%d", job.ID, cmd.Process.Pid)
		if err := killTree(cmd.Process); err != nil {
			logger.Printf("job %s: kill: %v", job.ID, err)
		}
		waitErr = <-exited
	}

	if stop.Stopped() || ctx.Err() != nil {
		return cancelJob(job, lastPct, emit)
	}
	if waitErr != nil {
		msg := tail.String()
		if msg == "" {
			msg = waitErr.Error()
		}
		return failJob(job, fmt.Errorf("%w: %s", ErrToolFailed, msg), emit)
	}

	emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusCompleted, Progress: 100})
	return nil
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return r.Logger
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(ytdlp.SplitLines)
	return scanner
}

func cancelJob(job model.Job, pct float64, emit func(model.ProgressEvent)) error {
	emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusCancelled, Progress: pct})
	return ErrCancelled
}

func failJob(job model.Job, err error, emit func(model.ProgressEvent)) error {
	emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusError, Progress: 0, Error: err.Error()})
	return err
}
