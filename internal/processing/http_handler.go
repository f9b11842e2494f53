package processing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Handler exposes upload, delete, reprocess and cancel as HTTP endpoints.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHTTPHandler wraps the orchestrator.
func NewHTTPHandler(orchestrator *Orchestrator) http.Handler {
	return &Handler{orchestrator: orchestrator}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/reprocess"):
		h.handleReprocess(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
	case r.Method == http.MethodPost:
		h.handleUpload(w, r)
	case r.Method == http.MethodDelete:
		h.handleDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	fileID, err := h.orchestrator.IngestFile(r.Context(), payload, header.Filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"fileId": fileID.String(),
		"status": "PENDING",
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	fileID, err := tailID(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.orchestrator.DeleteFile(r.Context(), fileID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) handleReprocess(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/reprocess")
	fileID, err := tailID(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.orchestrator.Reprocess(r.Context(), fileID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reprocessed": true})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/cancel")
	fileID, err := tailID(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.orchestrator.Cancel(fileID) {
		http.Error(w, fmt.Sprintf("file %s has no processing in flight", fileID), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": true})
}

// tailID parses the trailing path segment as a UUID.
func tailID(path string) (uuid.UUID, error) {
	path = strings.TrimSuffix(path, "/")
	segment := path
	if idx := strings.LastIndex(path, "/"); idx != -1 {
		segment = path[idx+1:]
	}
	id, err := uuid.Parse(segment)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid file id %q: %w", segment, err)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
