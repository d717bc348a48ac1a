package export

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rpattn/fieldbook/internal/domain"
)

// Handler serves extract downloads.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Download streams an extract of the entityType query parameter in the
// requested format.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(strings.TrimSpace(r.URL.Query().Get("entityType")))
	if !entityType.Valid() {
		http.Error(w, "entityType is required", http.StatusBadRequest)
		return
	}

	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	extract, err := h.service.Build(r.Context(), entityType, format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", extract.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", extract.FileName))
	_, _ = w.Write(extract.Data)
}
