package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/fieldbook/internal/domain"
	"github.com/rpattn/fieldbook/internal/repository"
	"github.com/rpattn/fieldbook/internal/schema"
	"github.com/rpattn/fieldbook/internal/workbook"
)

// TxRunner runs a function inside a single database transaction. Satisfied
// by db.Connection.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Summary previews what a commit of the staged job would do, so the confirm
// page can show counts before anything is written.
type Summary struct {
	JobID     uuid.UUID         `json:"jobId"`
	TotalRows int               `json:"totalRows"`
	Creates   int               `json:"creates"`
	Updates   int               `json:"updates"`
	Errors    []domain.RowError `json:"errors,omitempty"`
}

// CommitResult reports an applied commit: how many entry changes landed and
// the recoverable row failures that were skipped.
type CommitResult struct {
	Applied int               `json:"applied"`
	Errors  []domain.RowError `json:"errors,omitempty"`
}

// Service stages uploaded workbooks as bulk import jobs and commits them
// transactionally with audit-before-overwrite semantics.
type Service struct {
	registry   *schema.Registry
	extractor  *workbook.Extractor
	reconciler *Reconciler
	entries    repository.FieldEntryRepository
	jobs       repository.ImportJobRepository
	tx         TxRunner
	sheetTypes map[string]domain.EntityType
}

// NewService wires the import pipeline together. The sheet map associates
// allow-listed sheet names with the entity type whose field definitions
// apply to them, and must use the same spellings the extractor's layout
// does. Wiring passes workbook.Layout.Sheets for both so they cannot
// drift.
func NewService(
	registry *schema.Registry,
	extractor *workbook.Extractor,
	reconciler *Reconciler,
	entries repository.FieldEntryRepository,
	jobs repository.ImportJobRepository,
	tx TxRunner,
	sheetTypes map[string]domain.EntityType,
) *Service {
	return &Service{
		registry:   registry,
		extractor:  extractor,
		reconciler: reconciler,
		entries:    entries,
		jobs:       jobs,
		tx:         tx,
		sheetTypes: sheetTypes,
	}
}

// Stage parses an uploaded workbook and stores it as the user's single
// pending import job, returning a preview of the commit. Parse failures and
// a pre-existing job are fatal; no job is created.
func (s *Service) Stage(ctx context.Context, userID string, payload []byte, category string) (Summary, error) {
	if strings.TrimSpace(userID) == "" {
		return Summary{}, errors.New("user id is required")
	}
	if len(payload) == 0 {
		return Summary{}, errors.New("file is empty")
	}

	if _, active, err := s.jobs.FindActiveByUser(ctx, userID); err != nil {
		return Summary{}, fmt.Errorf("failed to check for active job: %w", err)
	} else if active {
		return Summary{}, domain.ErrActiveJobExists
	}

	sheets, err := s.extractor.Extract(payload)
	if err != nil {
		return Summary{}, err
	}

	var rows []domain.ImportRow
	for _, sheet := range sheets {
		rows = append(rows, sheet.Rows...)
	}

	reconciliation, err := s.reconcileAll(ctx, rows)
	if err != nil {
		return Summary{}, err
	}

	job := domain.NewBulkImportJob(userID, category, rows)
	created, err := s.jobs.Create(ctx, job)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		JobID:     created.ID,
		TotalRows: len(rows),
		Errors:    reconciliation.Errors,
	}
	for _, change := range reconciliation.Changes {
		switch change.Op {
		case domain.ChangeOpCreate:
			summary.Creates++
		case domain.ChangeOpUpdate:
			summary.Updates++
		}
	}

	slog.Info("import staged",
		"job_id", created.ID,
		"user_id", userID,
		"rows", summary.TotalRows,
		"creates", summary.Creates,
		"updates", summary.Updates,
		"row_errors", len(summary.Errors),
	)
	return summary, nil
}

// Commit applies the staged job in one transaction: for every update the
// previous value is archived first, then the entry is overwritten, and the
// job is consumed. Any persistence failure rolls the whole commit back.
func (s *Service) Commit(ctx context.Context, userID string, jobID uuid.UUID) (CommitResult, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return CommitResult{}, err
	}
	if job.UserID != userID {
		return CommitResult{}, domain.ErrJobNotFound
	}

	// Reconcile against current state at commit time, not at stage time:
	// entries may have moved since the upload and equal values must not
	// grow the audit log.
	reconciliation, err := s.reconcileAll(ctx, job.Rows)
	if err != nil {
		return CommitResult{}, err
	}

	archivedAt := time.Now()
	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		for _, change := range reconciliation.Changes {
			if audit, ok := change.AuditRecord(archivedAt); ok {
				if err := s.entries.InsertAuditTx(ctx, tx, audit); err != nil {
					return err
				}
			}
			if err := s.entries.UpsertTx(ctx, tx, change.Entry); err != nil {
				return err
			}
		}
		return s.jobs.DeleteTx(ctx, tx, job.ID)
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("could not save changes: %w", err)
	}

	slog.Info("import committed",
		"job_id", job.ID,
		"user_id", userID,
		"applied", len(reconciliation.Changes),
		"row_errors", len(reconciliation.Errors),
	)
	return CommitResult{
		Applied: len(reconciliation.Changes),
		Errors:  reconciliation.Errors,
	}, nil
}

// EntryHistory is the audit trail for one field entry: every value the
// entry held before an import overwrote it, oldest first.
type EntryHistory struct {
	Field      domain.FieldDefinition   `json:"field"`
	SubjectKey string                   `json:"subjectKey"`
	Audits     []domain.FieldEntryAudit `json:"audits"`
}

// History returns the audit trail for the entry identified by field and
// subject. The field may be retired; an unknown field id returns
// domain.ErrFieldNotFound.
func (s *Service) History(ctx context.Context, fieldID uuid.UUID, subjectKey string) (EntryHistory, error) {
	subjectKey = strings.TrimSpace(subjectKey)
	if subjectKey == "" {
		return EntryHistory{}, errors.New("subject key is required")
	}

	def, err := s.registry.Get(ctx, fieldID)
	if err != nil {
		return EntryHistory{}, err
	}

	audits, err := s.entries.ListAudits(ctx, domain.EntryKey{FieldID: fieldID, SubjectKey: subjectKey})
	if err != nil {
		return EntryHistory{}, fmt.Errorf("failed to load audit trail: %w", err)
	}

	return EntryHistory{Field: def, SubjectKey: subjectKey, Audits: audits}, nil
}

// Discard drops the staged job without applying it.
func (s *Service) Discard(ctx context.Context, userID string, jobID uuid.UUID) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.UserID != userID {
		return domain.ErrJobNotFound
	}
	if err := s.jobs.Delete(ctx, jobID); err != nil {
		return err
	}
	slog.Info("import discarded", "job_id", jobID, "user_id", userID)
	return nil
}

// reconcileAll groups rows by sheet, resolves each sheet's definitions and
// current entries, and merges the per-sheet reconciliations.
func (s *Service) reconcileAll(ctx context.Context, rows []domain.ImportRow) (Reconciliation, error) {
	bySheet := make(map[string][]domain.ImportRow)
	var order []string
	for _, row := range rows {
		if _, seen := bySheet[row.Sheet]; !seen {
			order = append(order, row.Sheet)
		}
		bySheet[row.Sheet] = append(bySheet[row.Sheet], row)
	}

	var merged Reconciliation
	for _, sheet := range order {
		entityType, ok := s.sheetTypes[sheet]
		if !ok {
			continue
		}

		defs, err := s.registry.Definitions(ctx, entityType)
		if err != nil {
			return Reconciliation{}, fmt.Errorf("failed to load field definitions for %s: %w", entityType, err)
		}

		sheetRows := bySheet[sheet]
		subjects := make([]string, 0, len(sheetRows))
		seen := make(map[string]struct{}, len(sheetRows))
		for _, row := range sheetRows {
			key := s.reconciler.subjectKey(row)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			subjects = append(subjects, key)
		}

		entries, err := s.entries.ListBySubjects(ctx, subjects)
		if err != nil {
			return Reconciliation{}, fmt.Errorf("failed to load field entries: %w", err)
		}
		existing := make(map[domain.EntryKey]domain.FieldEntry, len(entries))
		for _, entry := range entries {
			existing[entry.Key()] = entry
		}

		result := s.reconciler.Reconcile(sheetRows, defs, existing)
		merged.Changes = append(merged.Changes, result.Changes...)
		merged.Errors = append(merged.Errors, result.Errors...)
	}

	return merged, nil
}
