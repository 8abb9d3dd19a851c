package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/shiptrack/internal/core"
	"github.com/JonMunkholm/shiptrack/internal/logging"
)

// defaultRunHistory is how many runs are listed when no limit is given.
const defaultRunHistory = 20

// handleStartRun starts an asynchronous tracking run over the selected records.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	runID, err := s.service.StartRun(WithRequestMetadata(r.Context(), r), id)
	if err != nil {
		fail(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "manifest_id", id, "run_id", runID).Info("tracking run started")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"runId":    runID,
		"progress": fmt.Sprintf("/api/manifests/%s/track/progress", id),
	})
}

// handleRunProgress streams run progress via Server-Sent Events.
// Supports resumption via the lastEventId query parameter or Last-Event-ID
// header; the event id is the number of completed records.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	lastEventID := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		lastEventID, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("lastEventId"); v != "" {
		lastEventID, _ = strconv.Atoi(v)
	}

	progressCh, err := s.service.SubscribeProgress(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				rc.Flush()
				return
			}

			if progress.Completed <= lastEventID {
				continue
			}
			lastEventID = progress.Completed

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Completed, data)
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// handleCancelRun cancels the manifest's active run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.CancelRun(id); err != nil {
		fail(w, r, err)
		return
	}
	logging.WithFields(r.Context(), "manifest_id", id).Info("tracking run cancel requested")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// handleListRuns returns the run history of a manifest, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultRunHistory)

	runs, err := s.service.Runs(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRunResults returns the records saved with a finished run.
func (s *Server) handleRunResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.RunResults(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "runID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleExport downloads the selected records as csv or xlsx.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := core.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		fail(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	data, filename, err := s.service.Export(id, format)
	if err != nil {
		fail(w, r, err)
		return
	}
	logging.WithFields(r.Context(), "manifest_id", id, "format", format).Info("export served", "bytes", len(data))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
