package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"ytbatch/internal/batch"
	"ytbatch/internal/config"
	"ytbatch/internal/events"
	"ytbatch/internal/model"
	"ytbatch/internal/tui"
	"ytbatch/internal/ytdlp"
)

type downloadOptions struct {
	ConfigPath string
	Playlist   string
	URLs       []string
	Output     string
	Parallel   int
	Format     string
	JSON       bool
	NoTUI      bool
	LogFile    string
}

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	configPath := fs.String("config", "", "settings file (default: search ./ytbatch.yml, then user config dir)")
	playlist := fs.String("playlist", "", "playlist, mix or video URL to expand into jobs")
	output := fs.String("output", "", "output folder (default: settings output_folder)")
	parallel := fs.Int("parallel", 0, "concurrent downloads 1..10 (default: settings max_parallel)")
	format := fs.String("format", "", "audio format (default: settings audio_format)")
	jsonOut := fs.Bool("json", false, "print one JSON event per line")
	noTUI := fs.Bool("no-tui", false, "print plain progress lines instead of the dashboard")
	logFile := fs.String("log-file", "", "write diagnostic logs to this file")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	return downloadWithOptions(downloadOptions{
		ConfigPath: *configPath,
		Playlist:   strings.TrimSpace(*playlist),
		URLs:       fs.Args(),
		Output:     strings.TrimSpace(*output),
		Parallel:   *parallel,
		Format:     strings.TrimSpace(*format),
		JSON:       *jsonOut,
		NoTUI:      *noTUI,
		LogFile:    *logFile,
	})
}

func downloadWithOptions(opts downloadOptions) error {
	store, err := loadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}
	cfg := store.Get()
	if opts.Output != "" {
		cfg.OutputFolder = opts.Output
	}
	if opts.Parallel != 0 {
		cfg.MaxParallel = opts.Parallel
	}
	if opts.Format != "" {
		cfg.AudioFormat = strings.ToLower(opts.Format)
	}
	if err := batch.ValidateConcurrency(cfg.MaxParallel); err != nil {
		return err
	}

	useTUI := !opts.JSON && !opts.NoTUI && stdinIsTTY() && stdoutIsTTY()
	var logFallback io.Writer = os.Stderr
	if useTUI || opts.JSON {
		logFallback = io.Discard
	}
	logger, closeLog, err := openLogger(opts.LogFile, logFallback)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs, titles, err := collectJobs(ctx, cfg, opts.Playlist, opts.URLs)
	if err != nil {
		return err
	}
	if !opts.JSON && !useTUI {
		fmt.Printf("queued %d job(s), parallel=%d, output=%s\n", len(jobs), cfg.MaxParallel, cfg.OutputFolder)
	}

	hub := events.NewHub()
	defer hub.Close()
	sub := hub.Subscribe()
	runner := &batch.Runner{Tools: cfg.ResolveOptions(), AudioFormat: cfg.AudioFormat, Logger: logger}
	coord := batch.NewCoordinator(hub, runner, logger)

	type outcome struct {
		summary model.BatchSummary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, err := coord.RunBatch(ctx, jobs, cfg.MaxParallel, cfg.OutputFolder)
		if err != nil {
			sub.Close()
		}
		done <- outcome{summary: summary, err: err}
	}()

	if useTUI {
		if _, err := tui.Run(tui.New(jobs, titles, sub.C(), coord.RequestStop)); err != nil {
			coord.RequestStop()
			<-done
			return err
		}
	} else {
		stopSignals := handleInterrupts(coord, cancel, logger)
		defer stopSignals()
		if opts.JSON {
			streamJSON(os.Stdout, sub.C())
		} else {
			newPlainPrinter(os.Stdout, jobs, titles).consume(sub.C())
		}
	}

	res := <-done
	if res.err != nil {
		return res.err
	}
	if !opts.JSON {
		printSummary(res.summary)
	}
	if res.summary.Failed > 0 {
		return fmt.Errorf("%d of %d download(s) failed", res.summary.Failed, res.summary.Total)
	}
	return nil
}

// collectJobs expands the playlist URL (if any) and appends ad-hoc URLs with
// generated IDs. Ad-hoc URLs are titled by the URL itself.
func collectJobs(ctx context.Context, cfg config.Config, playlistURL string, urls []string) ([]model.Job, map[string]string, error) {
	titles := map[string]string{}
	var jobs []model.Job
	seen := map[string]bool{}

	if playlistURL != "" {
		tools, err := ytdlp.ResolveTools(cfg.ResolveOptions())
		if err != nil {
			return nil, nil, err
		}
		items, err := ytdlp.FetchPlaylist(ctx, tools.YTDLP, ytdlp.PlaylistOptions{URL: playlistURL, Limit: cfg.Playlist.Limit})
		if err != nil {
			return nil, nil, err
		}
		for _, it := range items {
			jobs = append(jobs, it.Job())
			titles[it.ID] = it.Title
			seen[it.URL] = true
		}
	}
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		jobs = append(jobs, model.Job{ID: uuid.NewString(), URL: u})
		titles[jobs[len(jobs)-1].ID] = u
	}
	if len(jobs) == 0 {
		return nil, nil, errors.New("nothing to download: pass --playlist <url> and/or one or more video URLs")
	}
	return jobs, titles, nil
}

// handleInterrupts maps the first SIGINT/SIGTERM to stop-all and a second
// one to context cancellation.
func handleInterrupts(coord *batch.Coordinator, cancel context.CancelFunc, logger *log.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	quit := make(chan struct{})
	go func() {
		stopped := false
		for {
			select {
			case <-sigCh:
				if !stopped {
					stopped = true
					fmt.Fprintln(os.Stderr, "stopping all downloads (interrupt again to abort)")
					coord.RequestStop()
					continue
				}
				logger.Printf("second interrupt: cancelling")
				cancel()
			case <-quit:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(quit)
	}
}

func streamJSON(w io.Writer, ch <-chan events.Message) {
	enc := json.NewEncoder(w)
	for m := range ch {
		_ = enc.Encode(m)
		if m.Type == events.TypeStopped {
			return
		}
	}
}

func printSummary(s model.BatchSummary) {
	state := "finished"
	if s.Stopped {
		state = "stopped"
	}
	fmt.Printf("%s: completed=%d failed=%d cancelled=%d total=%d\n", state, s.Completed, s.Failed, s.Cancelled, s.Total)
}

// plainPrinter writes one line per status change and per 10% of download
// progress, in the worker-log style used when no dashboard is shown.
type plainPrinter struct {
	w      io.Writer
	index  map[string]int
	total  int
	titles map[string]string
	last   map[string]string
}

func newPlainPrinter(w io.Writer, jobs []model.Job, titles map[string]string) *plainPrinter {
	p := &plainPrinter{
		w:      w,
		index:  make(map[string]int, len(jobs)),
		total:  len(jobs),
		titles: titles,
		last:   make(map[string]string, len(jobs)),
	}
	for i, j := range jobs {
		p.index[j.ID] = i + 1
	}
	return p
}

func (p *plainPrinter) consume(ch <-chan events.Message) {
	for m := range ch {
		p.print(m)
		if m.Type == events.TypeStopped {
			return
		}
	}
}

func (p *plainPrinter) print(m events.Message) {
	switch m.Type {
	case events.TypeStopping:
		fmt.Fprintln(p.w, "stop requested: cancelling running downloads")
		return
	case events.TypeStopped:
		return
	}
	if m.Event == nil {
		return
	}
	ev := *m.Event
	if ev.Status == model.StatusPending {
		return
	}
	key := string(ev.Status)
	if ev.Status == model.StatusDownloading {
		key += fmt.Sprintf(":%d", int(ev.Progress)/10)
	}
	if p.last[ev.JobID] == key {
		return
	}
	p.last[ev.JobID] = key

	title := truncate(p.titles[ev.JobID], 50)
	if title == "" {
		title = ev.JobID
	}
	prefix := fmt.Sprintf("[%d/%d]", p.index[ev.JobID], p.total)
	switch ev.Status {
	case model.StatusDownloading:
		line := fmt.Sprintf("%s downloading %s %.1f%%", prefix, title, ev.Progress)
		if ev.TotalSize != "" {
			line += " of " + ev.TotalSize
		}
		if ev.Speed != "" {
			line += " at " + ev.Speed
		}
		if ev.ETA != "" {
			line += " ETA " + ev.ETA
		}
		fmt.Fprintln(p.w, line)
	case model.StatusProcessing:
		fmt.Fprintf(p.w, "%s converting %s\n", prefix, title)
	case model.StatusCompleted:
		fmt.Fprintf(p.w, "%s done %s\n", prefix, title)
	case model.StatusError:
		fmt.Fprintf(p.w, "%s failed %s: %s\n", prefix, title, ev.Error)
	case model.StatusCancelled:
		fmt.Fprintf(p.w, "%s cancelled %s at %.1f%%\n", prefix, title, ev.Progress)
	}
}
