package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies which kind of subject record a field belongs to.
type EntityType string

const (
	EntityTypeProject   EntityType = "project"
	EntityTypeMilestone EntityType = "milestone"
	EntityTypeEntity    EntityType = "entity"
)

// Valid reports whether the entity type is one of the known kinds.
func (e EntityType) Valid() bool {
	switch e {
	case EntityTypeProject, EntityTypeMilestone, EntityTypeEntity:
		return true
	}
	return false
}

// FieldType represents the value type of an admin-configured field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeInteger FieldType = "integer"
	FieldTypeFloat   FieldType = "float"
	FieldTypeDate    FieldType = "date"
	// FieldTypeGroup is an enumerated field: the value must match one of the
	// definition's GroupOptions. Matching is case-insensitive and the stored
	// value is the canonical-cased option string.
	FieldTypeGroup FieldType = "group"
)

// Valid reports whether the field type is one of the supported kinds.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeBoolean, FieldTypeInteger, FieldTypeFloat, FieldTypeDate, FieldTypeGroup:
		return true
	}
	return false
}

// FieldDefinition describes one importable/editable attribute of a subject
// record. Definitions are admin-managed and never deleted, only deactivated,
// because audit rows reference them by id.
type FieldDefinition struct {
	ID           uuid.UUID  `json:"id"`
	EntityType   EntityType `json:"entityType"`
	Name         string     `json:"name"`
	DisplayName  string     `json:"displayName"`
	Type         FieldType  `json:"type"`
	ImportColumn string     `json:"importColumn"`
	Order        int        `json:"order"`
	GroupOptions []string   `json:"groupOptions,omitempty"`
	Required     bool       `json:"required"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewFieldDefinition creates an active definition, deriving the machine name
// from the display name when one is not supplied.
func NewFieldDefinition(entityType EntityType, displayName string, fieldType FieldType) FieldDefinition {
	now := time.Now()
	return FieldDefinition{
		ID:          uuid.New(),
		EntityType:  entityType,
		Name:        DeriveName(displayName),
		DisplayName: strings.TrimSpace(displayName),
		Type:        fieldType,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the attributes an administrator must supply before a
// definition can be persisted.
func (d FieldDefinition) Validate() error {
	if !d.EntityType.Valid() {
		return &ValidationError{Field: "entityType", Message: "unknown entity type"}
	}
	if strings.TrimSpace(d.DisplayName) == "" {
		return &ValidationError{Field: "displayName", Message: "display name is required"}
	}
	if strings.TrimSpace(d.ImportColumn) == "" {
		return &ValidationError{Field: "importColumn", Message: "import column is required"}
	}
	if !d.Type.Valid() {
		return &ValidationError{Field: "type", Message: "unknown field type"}
	}
	if d.Type == FieldTypeGroup && len(d.GroupOptions) == 0 {
		return &ValidationError{Field: "groupOptions", Message: "group fields require at least one option"}
	}
	return nil
}

// GroupOption returns the canonical-cased option matching value, ignoring
// case, and whether one was found.
func (d FieldDefinition) GroupOption(value string) (string, bool) {
	for _, option := range d.GroupOptions {
		if strings.EqualFold(option, value) {
			return option, true
		}
	}
	return "", false
}

var namePattern = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveName produces the machine name for a definition from its display
// name: lower-cased, non-alphanumeric runs collapsed to underscores.
func DeriveName(displayName string) string {
	name := strings.ToLower(strings.TrimSpace(displayName))
	name = namePattern.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// copyOptions creates a deep copy of the options slice to keep definitions
// value-semantic.
func copyOptions(options []string) []string {
	if options == nil {
		return nil
	}
	out := make([]string, len(options))
	copy(out, options)
	return out
}

// WithOptions returns a copy of the definition with replacement group options.
func (d FieldDefinition) WithOptions(options []string) FieldDefinition {
	d.GroupOptions = copyOptions(options)
	d.UpdatedAt = time.Now()
	return d
}

// Deactivated returns a copy of the definition marked inactive.
func (d FieldDefinition) Deactivated() FieldDefinition {
	d.Active = false
	d.UpdatedAt = time.Now()
	return d
}
