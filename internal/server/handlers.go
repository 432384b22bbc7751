package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"ytbatch/internal/batch"
	"ytbatch/internal/config"
	"ytbatch/internal/model"
	"ytbatch/internal/ytdlp"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.coord.Running(),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.store.Get())
}

type settingsPatch struct {
	OutputFolder *string `json:"output_folder"`
	MaxParallel  *int    `json:"max_parallel"`
	AudioFormat  *string `json:"audio_format"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := s.store.Update(func(c *config.Config) {
		if patch.OutputFolder != nil {
			c.OutputFolder = *patch.OutputFolder
		}
		if patch.MaxParallel != nil {
			c.MaxParallel = *patch.MaxParallel
		}
		if patch.AudioFormat != nil {
			c.AudioFormat = *patch.AudioFormat
		}
	})
	if err != nil {
		if errors.Is(err, config.ErrInvalidSettings) {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Printf("save settings: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	RespondWithJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		RespondWithError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	items, err := s.fetch(r.Context(), url)
	switch {
	case err == nil:
		RespondWithJSON(w, http.StatusOK, map[string]any{"items": items})
	case errors.Is(err, ytdlp.ErrInvalidURL):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ytdlp.ErrNoItems):
		RespondWithError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Printf("fetch playlist %s: %v", url, err)
		RespondWithError(w, http.StatusBadGateway, err.Error())
	}
}

type startRequest struct {
	Jobs         []model.Job `json:"jobs"`
	OutputFolder string      `json:"output_folder"`
	Concurrency  int         `json:"concurrency"`
}

// handleStartDownloads validates the batch and runs it in the background.
// Progress is only observable through /ws.
func (s *Server) handleStartDownloads(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Jobs) == 0 {
		RespondWithError(w, http.StatusBadRequest, "jobs must not be empty")
		return
	}
	for _, j := range req.Jobs {
		if strings.TrimSpace(j.ID) == "" || strings.TrimSpace(j.URL) == "" {
			RespondWithError(w, http.StatusBadRequest, "every job needs an id and a url")
			return
		}
	}

	cfg := s.store.Get()
	if req.Concurrency == 0 {
		req.Concurrency = cfg.MaxParallel
	}
	if strings.TrimSpace(req.OutputFolder) == "" {
		req.OutputFolder = cfg.OutputFolder
	}
	if !filepath.IsAbs(req.OutputFolder) {
		RespondWithError(w, http.StatusBadRequest, "output_folder must be an absolute path")
		return
	}

	b, err := s.coord.Start(s.baseCtx, req.Jobs, req.Concurrency, req.OutputFolder)
	switch {
	case errors.Is(err, batch.ErrInvalidConcurrency):
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, batch.ErrBatchRunning):
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, batch.ErrFolderLocked):
		RespondWithError(w, http.StatusLocked, err.Error())
		return
	case err != nil:
		s.logger.Printf("start batch: %v", err)
		RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		b.Wait()
	}()

	RespondWithJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":      b.ID(),
		"accepted":      len(req.Jobs),
		"concurrency":   req.Concurrency,
		"output_folder": req.OutputFolder,
	})
}

func (s *Server) handleStopDownloads(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusAccepted, map[string]bool{"stopping": s.coord.RequestStop()})
}
