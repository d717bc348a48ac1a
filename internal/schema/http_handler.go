package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/fieldbook/internal/auth"
	"github.com/rpattn/fieldbook/internal/domain"
)

// Handler exposes field definition administration as thin HTTP endpoints.
type Handler struct {
	registry *Registry
}

// NewHTTPHandler wraps the registry.
func NewHTTPHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// List returns the active definitions for the entityType query parameter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(strings.TrimSpace(r.URL.Query().Get("entityType")))
	if !entityType.Valid() {
		http.Error(w, "entityType is required", http.StatusBadRequest)
		return
	}

	defs, err := h.registry.Definitions(r.Context(), entityType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

// Upsert creates or updates a definition from a JSON body. Administrators
// only.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	var def domain.FieldDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	saved, err := h.registry.Upsert(r.Context(), def)
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			http.Error(w, validationErr.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// Deactivate retires the definition named by the id form value.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	id, err := uuid.Parse(strings.TrimSpace(r.FormValue("id")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid id: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.registry.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrFieldNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
