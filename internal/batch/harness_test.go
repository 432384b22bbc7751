package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"ytbatch/internal/events"
	"ytbatch/internal/model"
)

// writeFakeYTDLP installs a bash script standing in for yt-dlp and returns
// its path.
func writeFakeYTDLP(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yt-dlp")
	script := "#!/usr/bin/env bash\nset -u\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake yt-dlp: %v", err)
	}
	return path
}

// slowScript reports 10% and then blocks until killed. exec keeps the tree
// a single process so closing its pipes needs only one kill.
func slowScript(spawnLog string) string {
	return `echo spawned >> "` + spawnLog + `"
echo '[download]  10.0% of 5.00MiB at 1.00MiB/s ETA 00:04'
exec sleep 30`
}

// treeScript runs sleep as a child of the shell rather than replacing it,
// and records the child's pid.
func treeScript(pidFile string) string {
	return `sleep 30 &
echo $! > "` + pidFile + `"
echo '[download]  10.0% of 5.00MiB at 1.00MiB/s ETA 00:04'
wait
echo after`
}

// processLive treats a zombie as gone; only its parent can reap it.
func processLive(pid int32) bool {
	p, err := process.NewProcess(pid)
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return false
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

func lineCount(t *testing.T, path string) int {
	t.Helper()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return len(strings.Split(strings.TrimSpace(string(raw)), "\n"))
}

type recorder struct {
	mu   sync.Mutex
	msgs []events.Message
}

func (r *recorder) Publish(m events.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) messages() []events.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Message(nil), r.msgs...)
}

func (r *recorder) count(typ events.Type) int {
	n := 0
	for _, m := range r.messages() {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) byJob() map[string][]model.ProgressEvent {
	out := map[string][]model.ProgressEvent{}
	for _, m := range r.messages() {
		if m.Type == events.TypeProgress {
			out[m.Event.JobID] = append(out[m.Event.JobID], *m.Event)
		}
	}
	return out
}

func (r *recorder) has(jobID string, status model.Status, pct float64) bool {
	for _, ev := range r.byJob()[jobID] {
		if ev.Status == status && ev.Progress == pct {
			return true
		}
	}
	return false
}

// collector gathers events from a single Runner.Run call.
type collector struct {
	mu  sync.Mutex
	evs []model.ProgressEvent
}

func (c *collector) emit(ev model.ProgressEvent) {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
}

func (c *collector) events() []model.ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ProgressEvent(nil), c.evs...)
}

func (c *collector) statuses() []model.Status {
	var out []model.Status
	for _, ev := range c.events() {
		out = append(out, ev.Status)
	}
	return out
}

// fakeRunner stands in for the subprocess runner in coordinator tests.
type fakeRunner struct {
	delay time.Duration
	block chan struct{}
	fail  map[string]bool

	inflight    atomic.Int32
	maxInflight atomic.Int32

	mu    sync.Mutex
	trace []string
}

func (f *fakeRunner) Run(ctx context.Context, job model.Job, outputDir string, stop *StopSignal, emit func(model.ProgressEvent)) error {
	if stop.Stopped() {
		emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusCancelled})
		return ErrCancelled
	}

	n := f.inflight.Add(1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	f.record("start " + job.ID)
	emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusDownloading})

	timer := time.NewTimer(f.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-f.block:
	case <-stop.Done():
	case <-ctx.Done():
	}

	f.record("end " + job.ID)
	f.inflight.Add(-1)

	switch {
	case stop.Stopped() || ctx.Err() != nil:
		emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusCancelled, Progress: 50})
		return ErrCancelled
	case f.fail[job.ID]:
		emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusError, Error: "boom"})
		return ErrToolFailed
	}
	emit(model.ProgressEvent{JobID: job.ID, Status: model.StatusCompleted, Progress: 100})
	return nil
}

func (f *fakeRunner) record(s string) {
	f.mu.Lock()
	f.trace = append(f.trace, s)
	f.mu.Unlock()
}

func (f *fakeRunner) traceLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.trace...)
}

func makeJobs(ids ...string) []model.Job {
	jobs := make([]model.Job, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, model.Job{ID: id, URL: "https://www.youtube.com/watch?v=" + id})
	}
	return jobs
}
