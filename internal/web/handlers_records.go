package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/shiptrack/internal/core"
)

// maxEditBody bounds JSON edit requests.
const maxEditBody = 64 << 10

type updateRecordRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type selectRequest struct {
	Selected *bool `json:"selected"`
}

// decodeJSON reads a small JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEditBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// recordParams extracts the manifest and record ids from the path.
func recordParams(r *http.Request) (string, int, error) {
	rid, err := core.ParseRecordID(chi.URLParam(r, "rid"))
	if err != nil {
		return "", 0, err
	}
	return chi.URLParam(r, "id"), rid, nil
}

// handleUpdateRecord edits one canonical field of a record.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, rid, err := recordParams(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req updateRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	rec, err := s.service.UpdateRecord(id, rid, core.CanonicalField(req.Field), req.Value)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleToggleRecord(w http.ResponseWriter, r *http.Request) {
	id, rid, err := recordParams(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	rec, err := s.service.ToggleRecord(id, rid)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleSelectAll sets the selection of every record.
func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Selected == nil {
		fail(w, r, fmt.Errorf("%w: selected is required", errBadRequest))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.service.SelectAll(id, *req.Selected); err != nil {
		fail(w, r, err)
		return
	}

	view, err := s.service.Manifest(id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"selected": view.Selected, "total": len(view.Records)})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, rid, err := recordParams(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	if err := s.service.DeleteRecord(id, rid); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
