package web

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/shiptrack/internal/core"
	"github.com/JonMunkholm/shiptrack/internal/logging"
)

// multipartOverhead is allowed on top of the file size limit for form fields
// and part headers.
const multipartOverhead = 1 << 20

// handleListManifests lists open manifests, newest first.
func (s *Server) handleListManifests(w http.ResponseWriter, r *http.Request) {
	list := s.service.ListManifests()
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, list)
}

// handleIngest accepts a multipart upload in the "file" field.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Ingest.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, r, &core.DecodeError{Err: fmt.Errorf("%w: exceeds %d bytes", core.ErrFileTooLarge, maxSize)})
			return
		}
		fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		fail(w, r, fmt.Errorf("%w: missing file field", errBadRequest))
		return
	}
	defer file.Close()

	data, err := core.ReadLimited(file, maxSize)
	if err != nil {
		fail(w, r, &core.DecodeError{Source: header.Filename, Err: err})
		return
	}

	view, err := s.service.Ingest(r.Context(), header.Filename, data, r.FormValue("mode"))
	if err != nil {
		fail(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "manifest_id", view.ID).Info("manifest ingested",
		"source", header.Filename,
		"admitted", view.Admitted,
		"dropped", view.Dropped,
	)
	writeJSON(w, http.StatusCreated, view)
}

// handlePaste accepts pasted manifest text as the request body.
func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	data, err := core.ReadLimited(http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxFileSize+1), s.cfg.Ingest.MaxFileSize)
	if err != nil {
		fail(w, r, &core.DecodeError{Source: "paste", Err: err})
		return
	}

	view, err := s.service.IngestText(r.Context(), string(data), r.URL.Query().Get("mode"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Manifest(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDiscard cancels any run and drops the manifest.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
