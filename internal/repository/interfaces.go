package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/fieldbook/internal/domain"
)

// FieldDefinitionRepository defines persistence for admin-configured field
// definitions. Definitions are never deleted, only deactivated.
type FieldDefinitionRepository interface {
	// List returns every definition for an entity type, active and inactive,
	// ordered by admin-assigned order with ties broken by insertion.
	List(ctx context.Context, entityType domain.EntityType) ([]domain.FieldDefinition, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.FieldDefinition, error)
	// GetByImportColumn resolves an active definition by its import column
	// label. Returns domain.ErrFieldNotFound when no match exists.
	GetByImportColumn(ctx context.Context, entityType domain.EntityType, column string) (domain.FieldDefinition, error)
	Upsert(ctx context.Context, def domain.FieldDefinition) (domain.FieldDefinition, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// FieldEntryRepository defines persistence for current field values and
// their append-only audit trail. Writes are transaction-scoped: the audit
// snapshot and the overwrite it precedes must land in the same transaction.
type FieldEntryRepository interface {
	ListBySubjects(ctx context.Context, subjectKeys []string) ([]domain.FieldEntry, error)
	ListByFields(ctx context.Context, fieldIDs []uuid.UUID) ([]domain.FieldEntry, error)
	UpsertTx(ctx context.Context, tx pgx.Tx, entry domain.FieldEntry) error
	InsertAuditTx(ctx context.Context, tx pgx.Tx, audit domain.FieldEntryAudit) error
	ListAudits(ctx context.Context, key domain.EntryKey) ([]domain.FieldEntryAudit, error)
}

// ImportJobRepository defines persistence for staged bulk-import jobs. The
// one-active-job-per-user invariant is enforced by a unique index on
// user_id; Create maps the violation to domain.ErrActiveJobExists.
type ImportJobRepository interface {
	Create(ctx context.Context, job domain.BulkImportJob) (domain.BulkImportJob, error)
	Get(ctx context.Context, id uuid.UUID) (domain.BulkImportJob, error)
	FindActiveByUser(ctx context.Context, userID string) (domain.BulkImportJob, bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}
