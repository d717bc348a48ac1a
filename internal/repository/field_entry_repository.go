package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/fieldbook/internal/db"
	"github.com/rpattn/fieldbook/internal/domain"
)

// fieldEntryRepository implements FieldEntryRepository over pgx.
type fieldEntryRepository struct {
	db db.DBTX
}

// NewFieldEntryRepository creates a new field entry repository.
func NewFieldEntryRepository(exec db.DBTX) FieldEntryRepository {
	return &fieldEntryRepository{db: exec}
}

func (r *fieldEntryRepository) ListBySubjects(ctx context.Context, subjectKeys []string) ([]domain.FieldEntry, error) {
	if len(subjectKeys) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT field_id, subject_key, value, updated_at
		FROM field_entries
		WHERE subject_key = ANY($1)`,
		subjectKeys,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list field entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.FieldEntry
	for rows.Next() {
		var entry domain.FieldEntry
		if err := rows.Scan(&entry.FieldID, &entry.SubjectKey, &entry.Value, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *fieldEntryRepository) ListByFields(ctx context.Context, fieldIDs []uuid.UUID) ([]domain.FieldEntry, error) {
	if len(fieldIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT field_id, subject_key, value, updated_at
		FROM field_entries
		WHERE field_id = ANY($1)
		ORDER BY subject_key`,
		fieldIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list field entries by field: %w", err)
	}
	defer rows.Close()

	var entries []domain.FieldEntry
	for rows.Next() {
		var entry domain.FieldEntry
		if err := rows.Scan(&entry.FieldID, &entry.SubjectKey, &entry.Value, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *fieldEntryRepository) UpsertTx(ctx context.Context, tx pgx.Tx, entry domain.FieldEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO field_entries (field_id, subject_key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (field_id, subject_key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()`,
		entry.FieldID, entry.SubjectKey, entry.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert field entry: %w", err)
	}
	return nil
}

func (r *fieldEntryRepository) InsertAuditTx(ctx context.Context, tx pgx.Tx, audit domain.FieldEntryAudit) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO field_entry_audit (field_id, subject_key, value, archived_at)
		VALUES ($1, $2, $3, $4)`,
		audit.FieldID, audit.SubjectKey, audit.Value, audit.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert field entry audit: %w", err)
	}
	return nil
}

func (r *fieldEntryRepository) ListAudits(ctx context.Context, key domain.EntryKey) ([]domain.FieldEntryAudit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT field_id, subject_key, value, archived_at
		FROM field_entry_audit
		WHERE field_id = $1 AND subject_key = $2
		ORDER BY archived_at`,
		key.FieldID, key.SubjectKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list field entry audits: %w", err)
	}
	defer rows.Close()

	var audits []domain.FieldEntryAudit
	for rows.Next() {
		var audit domain.FieldEntryAudit
		if err := rows.Scan(&audit.FieldID, &audit.SubjectKey, &audit.Value, &audit.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field entry audit: %w", err)
		}
		audits = append(audits, audit)
	}
	return audits, rows.Err()
}
