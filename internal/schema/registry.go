// Package schema holds the admin-managed field definitions that drive
// spreadsheet import and data entry. The registry is the single write path
// for definitions; reads observe upserts immediately.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/fieldbook/internal/domain"
	"github.com/rpattn/fieldbook/internal/repository"
)

// Registry exposes ordered field definitions per entity type and validated
// administration of them.
type Registry struct {
	repo repository.FieldDefinitionRepository
}

// NewRegistry creates a registry over the given repository.
func NewRegistry(repo repository.FieldDefinitionRepository) *Registry {
	return &Registry{repo: repo}
}

// Definitions returns the active definitions for an entity type in
// admin-assigned order, ties broken by insertion.
func (r *Registry) Definitions(ctx context.Context, entityType domain.EntityType) ([]domain.FieldDefinition, error) {
	all, err := r.repo.List(ctx, entityType)
	if err != nil {
		return nil, err
	}

	active := make([]domain.FieldDefinition, 0, len(all))
	for _, def := range all {
		if def.Active {
			active = append(active, def)
		}
	}

	// The repository orders by sort_order then insertion already; keep the
	// guarantee even for repositories that do not.
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Order < active[j].Order
	})
	return active, nil
}

// Get returns a definition by id, active or retired. Audit views need
// retired definitions too, since their history outlives them.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (domain.FieldDefinition, error) {
	return r.repo.GetByID(ctx, id)
}

// ByImportColumn resolves the active definition whose import column matches
// the given workbook header label.
func (r *Registry) ByImportColumn(ctx context.Context, entityType domain.EntityType, column string) (domain.FieldDefinition, error) {
	return r.repo.GetByImportColumn(ctx, entityType, strings.TrimSpace(column))
}

// Upsert validates and persists a definition. The machine name is derived
// from the display name when absent. A *domain.ValidationError is returned
// before any persistence call when required attributes are missing or the
// name or import column collides with a different active definition.
func (r *Registry) Upsert(ctx context.Context, def domain.FieldDefinition) (domain.FieldDefinition, error) {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	def.DisplayName = strings.TrimSpace(def.DisplayName)
	def.ImportColumn = strings.TrimSpace(def.ImportColumn)
	if def.Name == "" {
		def.Name = domain.DeriveName(def.DisplayName)
	}

	if err := def.Validate(); err != nil {
		return domain.FieldDefinition{}, err
	}

	existing, err := r.repo.List(ctx, def.EntityType)
	if err != nil {
		return domain.FieldDefinition{}, fmt.Errorf("failed to check for definition collisions: %w", err)
	}
	for _, other := range existing {
		if !other.Active || other.ID == def.ID {
			continue
		}
		if strings.EqualFold(other.Name, def.Name) {
			return domain.FieldDefinition{}, &domain.ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("%q is already used by field %q", def.Name, other.DisplayName),
			}
		}
		if strings.EqualFold(other.ImportColumn, def.ImportColumn) {
			return domain.FieldDefinition{}, &domain.ValidationError{
				Field:   "importColumn",
				Message: fmt.Sprintf("%q is already mapped to field %q", def.ImportColumn, other.DisplayName),
			}
		}
	}

	return r.repo.Upsert(ctx, def)
}

// Deactivate retires a definition without deleting it, since audit rows
// reference it by id.
func (r *Registry) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.repo.Deactivate(ctx, id)
}
