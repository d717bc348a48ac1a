package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/fieldbook/internal/db"
	"github.com/rpattn/fieldbook/internal/domain"
)

// fieldDefinitionRepository implements FieldDefinitionRepository over pgx.
type fieldDefinitionRepository struct {
	db db.DBTX
}

// NewFieldDefinitionRepository creates a new field definition repository.
func NewFieldDefinitionRepository(exec db.DBTX) FieldDefinitionRepository {
	return &fieldDefinitionRepository{db: exec}
}

const fieldDefinitionColumns = `id, entity_type, name, display_name, field_type, import_column, sort_order, group_options, required, active, created_at, updated_at`

func (r *fieldDefinitionRepository) List(ctx context.Context, entityType domain.EntityType) ([]domain.FieldDefinition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+fieldDefinitionColumns+`
		FROM field_definitions
		WHERE entity_type = $1
		ORDER BY sort_order, created_at, id`,
		string(entityType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list field definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.FieldDefinition
	for rows.Next() {
		def, err := scanFieldDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (r *fieldDefinitionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.FieldDefinition, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+fieldDefinitionColumns+`
		FROM field_definitions
		WHERE id = $1`,
		id,
	)
	def, err := scanFieldDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FieldDefinition{}, domain.ErrFieldNotFound
	}
	return def, err
}

func (r *fieldDefinitionRepository) GetByImportColumn(ctx context.Context, entityType domain.EntityType, column string) (domain.FieldDefinition, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+fieldDefinitionColumns+`
		FROM field_definitions
		WHERE entity_type = $1 AND import_column = $2 AND active`,
		string(entityType), column,
	)
	def, err := scanFieldDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FieldDefinition{}, domain.ErrFieldNotFound
	}
	return def, err
}

func (r *fieldDefinitionRepository) Upsert(ctx context.Context, def domain.FieldDefinition) (domain.FieldDefinition, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO field_definitions (`+fieldDefinitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			display_name = EXCLUDED.display_name,
			field_type = EXCLUDED.field_type,
			import_column = EXCLUDED.import_column,
			sort_order = EXCLUDED.sort_order,
			group_options = EXCLUDED.group_options,
			required = EXCLUDED.required,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING `+fieldDefinitionColumns,
		def.ID, string(def.EntityType), def.Name, def.DisplayName, string(def.Type),
		def.ImportColumn, def.Order, def.GroupOptions, def.Required, def.Active,
	)

	saved, err := scanFieldDefinition(row)
	if err != nil {
		return domain.FieldDefinition{}, fmt.Errorf("failed to upsert field definition: %w", err)
	}
	return saved, nil
}

func (r *fieldDefinitionRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE field_definitions SET active = false, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate field definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFieldNotFound
	}
	return nil
}

func scanFieldDefinition(row pgx.Row) (domain.FieldDefinition, error) {
	var (
		def        domain.FieldDefinition
		entityType string
		fieldType  string
	)
	err := row.Scan(
		&def.ID, &entityType, &def.Name, &def.DisplayName, &fieldType,
		&def.ImportColumn, &def.Order, &def.GroupOptions, &def.Required, &def.Active,
		&def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FieldDefinition{}, err
		}
		return domain.FieldDefinition{}, fmt.Errorf("failed to scan field definition: %w", err)
	}
	def.EntityType = domain.EntityType(entityType)
	def.Type = domain.FieldType(fieldType)
	return def, nil
}
