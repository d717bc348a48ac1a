package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/fieldbook/internal/auth"
	"github.com/rpattn/fieldbook/internal/domain"
)

// Handler exposes the import pipeline as thin HTTP endpoints: stage an
// upload, commit or discard the staged job. Page rendering and flash
// messaging live in the surrounding web stack.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Stage accepts a multipart workbook upload and stages it as the user's
// pending import job.
func (h *Handler) Stage(w http.ResponseWriter, r *http.Request) {
	user, err := auth.RequireImporter(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
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

	category := strings.TrimSpace(r.FormValue("category"))

	summary, err := h.service.Stage(r.Context(), user.ID, payload, category)
	if err != nil {
		writeStageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Commit applies the staged job identified by the jobId form value.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	user, jobID, ok := h.jobRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Commit(r.Context(), user.ID, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "could not save changes", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Audits returns the audit trail for the entry named by the fieldId and
// subjectKey query parameters. Any authenticated user may read history.
func (h *Handler) Audits(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		http.Error(w, "authentication required", http.StatusForbidden)
		return
	}

	fieldID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("fieldId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid field id: %v", err), http.StatusBadRequest)
		return
	}
	subjectKey := strings.TrimSpace(r.URL.Query().Get("subjectKey"))
	if subjectKey == "" {
		http.Error(w, "subjectKey is required", http.StatusBadRequest)
		return
	}

	history, err := h.service.History(r.Context(), fieldID, subjectKey)
	if err != nil {
		if errors.Is(err, domain.ErrFieldNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// Discard drops the staged job without applying it.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	user, jobID, ok := h.jobRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Discard(r.Context(), user.ID, jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) jobRequest(w http.ResponseWriter, r *http.Request) (auth.User, uuid.UUID, bool) {
	user, err := auth.RequireImporter(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return auth.User{}, uuid.Nil, false
	}

	jobID, err := uuid.Parse(strings.TrimSpace(r.FormValue("jobId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid job id: %v", err), http.StatusBadRequest)
		return auth.User{}, uuid.Nil, false
	}
	return user, jobID, true
}

func writeStageError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrActiveJobExists) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	// Header detection and workbook parse failures are user-correctable.
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
