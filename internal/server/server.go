// Package server exposes batch control and the event stream over HTTP for
// a local UI shell.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"ytbatch/internal/batch"
	"ytbatch/internal/config"
	"ytbatch/internal/events"
	"ytbatch/internal/model"
	"ytbatch/internal/ytdlp"
)

const (
	apiTimeout      = 2 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// PlaylistFetcher resolves a URL into downloadable items.
type PlaylistFetcher func(ctx context.Context, url string) ([]model.Item, error)

type Options struct {
	Store       *config.Store
	Coordinator *batch.Coordinator
	Hub         *events.Hub
	Logger      *log.Logger
	// FetchPlaylist defaults to running yt-dlp with the current settings.
	FetchPlaylist PlaylistFetcher
}

type Server struct {
	store    *config.Store
	coord    *batch.Coordinator
	hub      *events.Hub
	logger   *log.Logger
	fetch    PlaylistFetcher
	upgrader websocket.Upgrader

	// batches started by POST /api/downloads
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:   opts.Store,
		coord:   opts.Coordinator,
		hub:     opts.Hub,
		logger:  logger,
		fetch:   opts.FetchPlaylist,
		baseCtx: ctx,
		cancel:  cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if s.fetch == nil {
		s.fetch = s.fetchWithSettings
	}
	return s
}

// RunnerFromStore builds a job runner that reads binaries and audio format
// from the live settings on every job, so edits apply to the next batch.
func RunnerFromStore(store *config.Store, logger *log.Logger) batch.JobRunner {
	return storeRunner{store: store, logger: logger}
}

type storeRunner struct {
	store  *config.Store
	logger *log.Logger
}

func (r storeRunner) Run(ctx context.Context, job model.Job, outputDir string, stop *batch.StopSignal, emit func(model.ProgressEvent)) error {
	cfg := r.store.Get()
	runner := batch.Runner{Tools: cfg.ResolveOptions(), AudioFormat: cfg.AudioFormat, Logger: r.logger}
	return runner.Run(ctx, job, outputDir, stop, emit)
}

func (s *Server) fetchWithSettings(ctx context.Context, url string) ([]model.Item, error) {
	cfg := s.store.Get()
	tools, err := ytdlp.ResolveTools(cfg.ResolveOptions())
	if err != nil {
		return nil, err
	}
	return ytdlp.FetchPlaylist(ctx, tools.YTDLP, ytdlp.PlaylistOptions{URL: url, Limit: cfg.Playlist.Limit})
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))

		r.Get("/health", s.handleHealth)
		r.Get("/settings", s.handleGetSettings)
		r.Get("/playlist", s.handleGetPlaylist)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Put("/settings", s.handleUpdateSettings)
			r.Post("/downloads", s.handleStartDownloads)
		})
		r.Post("/downloads/stop", s.handleStopDownloads)
	})

	r.Get("/ws", s.handleWebsocket)
	return r
}

// ListenAndServe serves until ctx is done, then stops any running batch
// and shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.coord.RequestStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close cancels batches started over HTTP and waits for them to finish.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every batch started over HTTP has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}
