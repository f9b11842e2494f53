package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Handler exposes the query surface as REST endpoints under /api.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the catalog service.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/kpis/missing"):
		h.handleMissingKpis(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/kpis"):
		h.handleListKpis(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/stats"):
		h.handleStats(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/compliance/history"):
		h.handleComplianceHistory(w, r)
	case r.Method == http.MethodGet && strings.Contains(path, "/files/"):
		h.handleFileDetails(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/files"):
		h.handleFileHistory(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/notifications/unread-count"):
		h.handleUnreadCount(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/notifications"):
		h.handleListNotifications(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/read"):
		h.handleMarkRead(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleListKpis(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListCumulativeKpis(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleMissingKpis(w http.ResponseWriter, r *http.Request) {
	missing, err := h.service.GetMissingKpis(r.Context(), r.URL.Query().Get("standard"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, missing)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetCumulativeStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleFileHistory(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	records, total, err := h.service.GetFileHistory(r.Context(), page, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files": records,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (h *Handler) handleFileDetails(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r.URL.Path, "/files/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	details, err := h.service.GetFileDetails(r.Context(), fileID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) handleComplianceHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.GetComplianceHistory(r.Context(), r.URL.Query().Get("standard"), queryInt(r, "limit", 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifications, err := h.service.ListNotifications(r.Context(), queryInt(r, "limit", 50), unreadOnly)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.UnreadNotificationCount(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, "/notifications/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.MarkNotificationRead(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

// pathID extracts the UUID segment that follows prefix in a request path.
func pathID(path string, prefix string) (uuid.UUID, error) {
	idx := strings.Index(path, prefix)
	if idx == -1 {
		return uuid.Nil, fmt.Errorf("missing id in path")
	}
	segment := path[idx+len(prefix):]
	if slash := strings.Index(segment, "/"); slash != -1 {
		segment = segment[:slash]
	}
	id, err := uuid.Parse(segment)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", segment, err)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
