package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/fieldbook/internal/domain"
	"github.com/rpattn/fieldbook/internal/schema"
	"github.com/rpattn/fieldbook/internal/workbook"
)

// stubDefinitionRepo serves a fixed set of project definitions.
type stubDefinitionRepo struct {
	defs []domain.FieldDefinition
}

func (s *stubDefinitionRepo) List(_ context.Context, entityType domain.EntityType) ([]domain.FieldDefinition, error) {
	var out []domain.FieldDefinition
	for _, def := range s.defs {
		if def.EntityType == entityType {
			out = append(out, def)
		}
	}
	return out, nil
}

func (s *stubDefinitionRepo) GetByID(_ context.Context, id uuid.UUID) (domain.FieldDefinition, error) {
	for _, def := range s.defs {
		if def.ID == id {
			return def, nil
		}
	}
	return domain.FieldDefinition{}, domain.ErrFieldNotFound
}

func (s *stubDefinitionRepo) GetByImportColumn(_ context.Context, entityType domain.EntityType, column string) (domain.FieldDefinition, error) {
	for _, def := range s.defs {
		if def.EntityType == entityType && def.ImportColumn == column && def.Active {
			return def, nil
		}
	}
	return domain.FieldDefinition{}, domain.ErrFieldNotFound
}

func (s *stubDefinitionRepo) Upsert(_ context.Context, def domain.FieldDefinition) (domain.FieldDefinition, error) {
	s.defs = append(s.defs, def)
	return def, nil
}

func (s *stubDefinitionRepo) Deactivate(_ context.Context, _ uuid.UUID) error { return nil }

// stubEntryRepo records writes in call order so tests can assert that the
// audit row lands before the overwrite.
type stubEntryRepo struct {
	entries   map[domain.EntryKey]domain.FieldEntry
	audits    []domain.FieldEntryAudit
	writeLog  []string
	upsertErr error
}

func newStubEntryRepo() *stubEntryRepo {
	return &stubEntryRepo{entries: make(map[domain.EntryKey]domain.FieldEntry)}
}

func (s *stubEntryRepo) ListBySubjects(_ context.Context, subjectKeys []string) ([]domain.FieldEntry, error) {
	var out []domain.FieldEntry
	for _, key := range subjectKeys {
		for _, entry := range s.entries {
			if entry.SubjectKey == key {
				out = append(out, entry)
			}
		}
	}
	return out, nil
}

func (s *stubEntryRepo) ListByFields(_ context.Context, fieldIDs []uuid.UUID) ([]domain.FieldEntry, error) {
	var out []domain.FieldEntry
	for _, id := range fieldIDs {
		for _, entry := range s.entries {
			if entry.FieldID == id {
				out = append(out, entry)
			}
		}
	}
	return out, nil
}

func (s *stubEntryRepo) UpsertTx(_ context.Context, _ pgx.Tx, entry domain.FieldEntry) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.entries[entry.Key()] = entry
	s.writeLog = append(s.writeLog, "upsert:"+entry.SubjectKey+":"+entry.Value)
	return nil
}

func (s *stubEntryRepo) InsertAuditTx(_ context.Context, _ pgx.Tx, audit domain.FieldEntryAudit) error {
	s.audits = append(s.audits, audit)
	s.writeLog = append(s.writeLog, "audit:"+audit.SubjectKey+":"+audit.Value)
	return nil
}

func (s *stubEntryRepo) ListAudits(_ context.Context, key domain.EntryKey) ([]domain.FieldEntryAudit, error) {
	var out []domain.FieldEntryAudit
	for _, audit := range s.audits {
		if audit.FieldID == key.FieldID && audit.SubjectKey == key.SubjectKey {
			out = append(out, audit)
		}
	}
	return out, nil
}

// stubJobRepo enforces the one-active-job-per-user invariant the way the
// database unique index does.
type stubJobRepo struct {
	jobs map[uuid.UUID]domain.BulkImportJob
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: make(map[uuid.UUID]domain.BulkImportJob)}
}

func (s *stubJobRepo) Create(_ context.Context, job domain.BulkImportJob) (domain.BulkImportJob, error) {
	for _, existing := range s.jobs {
		if existing.UserID == job.UserID {
			return domain.BulkImportJob{}, domain.ErrActiveJobExists
		}
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *stubJobRepo) Get(_ context.Context, id uuid.UUID) (domain.BulkImportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return domain.BulkImportJob{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *stubJobRepo) FindActiveByUser(_ context.Context, userID string) (domain.BulkImportJob, bool, error) {
	for _, job := range s.jobs {
		if job.UserID == userID {
			return job, true, nil
		}
	}
	return domain.BulkImportJob{}, false, nil
}

func (s *stubJobRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *stubJobRepo) DeleteTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) error {
	return s.Delete(ctx, id)
}

// stubTxRunner runs the function without a real transaction.
type stubTxRunner struct {
	err error
}

func (s *stubTxRunner) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	if err := fn(nil); err != nil {
		return err
	}
	return s.err
}

type serviceFixture struct {
	service *Service
	defs    *stubDefinitionRepo
	entries *stubEntryRepo
	jobs    *stubJobRepo
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	confidence := domain.NewFieldDefinition(domain.EntityTypeProject, "Delivery Confidence", domain.FieldTypeGroup)
	confidence.ImportColumn = "Delivery Confidence"
	confidence.GroupOptions = []string{"Red", "Amber", "Green"}

	budget := domain.NewFieldDefinition(domain.EntityTypeProject, "Budget (£m)", domain.FieldTypeFloat)
	budget.ImportColumn = "Budget"

	defs := &stubDefinitionRepo{defs: []domain.FieldDefinition{confidence, budget}}
	entries := newStubEntryRepo()
	jobs := newStubJobRepo()

	layout := workbook.DefaultLayout()
	service := NewService(
		schema.NewRegistry(defs),
		workbook.NewExtractor(layout),
		NewReconciler(layout.HeaderMarkers),
		entries,
		jobs,
		&stubTxRunner{},
		layout.Sheets,
	)

	return &serviceFixture{service: service, defs: defs, entries: entries, jobs: jobs}
}

// projectWorkbook builds an xlsx with a Projects sheet from the given rows.
func projectWorkbook(t *testing.T, rows [][]string) []byte {
	return workbookWithSheet(t, "Projects", rows)
}

func workbookWithSheet(t *testing.T, sheet string, rows [][]string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))

	all := append([][]string{{"UID", "Delivery Confidence", "Budget"}}, rows...)
	for r, row := range all {
		for c, cell := range row {
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, ref, cell))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestStageCreatesJobAndPreview(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	payload := projectWorkbook(t, [][]string{
		{"P1", "Amber", "120.5"},
		{"P2", "Green", "80"},
	})

	summary, err := fx.service.Stage(ctx, "user-1", payload, "projects")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalRows)
	assert.Equal(t, 4, summary.Creates)
	assert.Equal(t, 0, summary.Updates)
	assert.Empty(t, summary.Errors)

	job, err := fx.jobs.Get(ctx, summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", job.UserID)
	assert.Equal(t, "projects", job.Category)
	assert.Len(t, job.Rows, 2)

	// Nothing is written at stage time.
	assert.Empty(t, fx.entries.entries)
	assert.Empty(t, fx.entries.audits)
}

func TestStageAndCommitAcceptCaseVariantSheetName(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	// Template authors rename sheets; "projects" must land on the same
	// definitions as "Projects", not stage rows that silently commit to
	// nothing.
	payload := workbookWithSheet(t, "projects", [][]string{
		{"P1", "Amber", "120.5"},
	})

	summary, err := fx.service.Stage(ctx, "user-1", payload, "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Creates)
	assert.Empty(t, summary.Errors)

	result, err := fx.service.Commit(ctx, "user-1", summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)

	confidence := fx.defs.defs[0]
	entry := fx.entries.entries[domain.EntryKey{FieldID: confidence.ID, SubjectKey: "P1"}]
	assert.Equal(t, "Amber", entry.Value)
}

func TestStageSecondJobRejected(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	payload := projectWorkbook(t, [][]string{{"P1", "Amber", "10"}})

	_, err := fx.service.Stage(ctx, "user-1", payload, "")
	require.NoError(t, err)

	_, err = fx.service.Stage(ctx, "user-1", payload, "")
	require.ErrorIs(t, err, domain.ErrActiveJobExists)

	// A different user is unaffected.
	_, err = fx.service.Stage(ctx, "user-2", payload, "")
	require.NoError(t, err)
}

func TestStageHeaderNotFoundCreatesNoJob(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Projects"))
	require.NoError(t, f.SetCellValue("Projects", "A1", "no markers here"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fx.service.Stage(ctx, "user-1", buf.Bytes(), "")
	var headerErr *domain.HeaderNotFoundError
	require.ErrorAs(t, err, &headerErr)

	_, active, findErr := fx.jobs.FindActiveByUser(ctx, "user-1")
	require.NoError(t, findErr)
	assert.False(t, active, "no job staged on a fatal parse error")
	assert.Empty(t, fx.entries.audits)
}

func TestCommitAppliesChangesAndConsumesJob(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	// Existing value for P1 so the commit produces one update + one audit.
	confidence := fx.defs.defs[0]
	fx.entries.entries[domain.EntryKey{FieldID: confidence.ID, SubjectKey: "P1"}] = domain.FieldEntry{
		FieldID:    confidence.ID,
		SubjectKey: "P1",
		Value:      "Red",
	}

	payload := projectWorkbook(t, [][]string{
		{"P1", "Green", "120.5"},
		{"P2", "Amber", ""},
	})

	summary, err := fx.service.Stage(ctx, "user-1", payload, "")
	require.NoError(t, err)

	result, err := fx.service.Commit(ctx, "user-1", summary.JobID)
	require.NoError(t, err)

	// P1 confidence update, P1 budget create, P2 confidence create.
	assert.Equal(t, 3, result.Applied)
	assert.Empty(t, result.Errors)

	require.Len(t, fx.entries.audits, 1)
	assert.Equal(t, "Red", fx.entries.audits[0].Value)
	assert.Equal(t, "P1", fx.entries.audits[0].SubjectKey)
	assert.False(t, fx.entries.audits[0].ArchivedAt.IsZero())

	// The audit row is written before the value it archives is overwritten.
	require.NotEmpty(t, fx.entries.writeLog)
	assert.Equal(t, "audit:P1:Red", fx.entries.writeLog[0])
	assert.Equal(t, "upsert:P1:Green", fx.entries.writeLog[1])

	updated := fx.entries.entries[domain.EntryKey{FieldID: confidence.ID, SubjectKey: "P1"}]
	assert.Equal(t, "Green", updated.Value)

	_, err = fx.jobs.Get(ctx, summary.JobID)
	require.ErrorIs(t, err, domain.ErrJobNotFound, "commit consumes the staged job")
}

func TestCommitIdenticalReimportIsNoOp(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	payload := projectWorkbook(t, [][]string{{"P1", "Amber", "10"}})

	summary, err := fx.service.Stage(ctx, "user-1", payload, "")
	require.NoError(t, err)
	first, err := fx.service.Commit(ctx, "user-1", summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Applied)

	summary, err = fx.service.Stage(ctx, "user-1", payload, "")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Creates+summary.Updates)

	second, err := fx.service.Commit(ctx, "user-1", summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Applied)
	assert.Empty(t, fx.entries.audits, "re-importing identical data must not grow the audit log")
}

func TestHistoryReturnsAuditTrail(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	confidence := fx.defs.defs[0]

	// Two imports: the first creates, the second overwrites and archives.
	for _, value := range []string{"Red", "Green"} {
		payload := projectWorkbook(t, [][]string{{"P1", value, ""}})
		summary, err := fx.service.Stage(ctx, "user-1", payload, "")
		require.NoError(t, err)
		_, err = fx.service.Commit(ctx, "user-1", summary.JobID)
		require.NoError(t, err)
	}

	history, err := fx.service.History(ctx, confidence.ID, "P1")
	require.NoError(t, err)

	assert.Equal(t, confidence.DisplayName, history.Field.DisplayName)
	assert.Equal(t, "P1", history.SubjectKey)
	require.Len(t, history.Audits, 1)
	assert.Equal(t, "Red", history.Audits[0].Value)
}

func TestHistoryUnknownField(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	_, err := fx.service.History(ctx, uuid.New(), "P1")
	require.ErrorIs(t, err, domain.ErrFieldNotFound)

	_, err = fx.service.History(ctx, fx.defs.defs[0].ID, "  ")
	require.Error(t, err)
}

func TestCommitRequiresOwningUser(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	payload := projectWorkbook(t, [][]string{{"P1", "Amber", "10"}})
	summary, err := fx.service.Stage(ctx, "user-1", payload, "")
	require.NoError(t, err)

	_, err = fx.service.Commit(ctx, "someone-else", summary.JobID)
	require.ErrorIs(t, err, domain.ErrJobNotFound)

	_, stillThere, err := fx.jobs.FindActiveByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, stillThere)
}

func TestCommitPersistenceFailureLeavesJob(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	fx.entries.upsertErr = errors.New("connection reset")

	payload := projectWorkbook(t, [][]string{{"P1", "Amber", "10"}})
	summary, err := fx.service.Stage(ctx, "user-1", payload, "")
	require.NoError(t, err)

	_, err = fx.service.Commit(ctx, "user-1", summary.JobID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not save changes")

	_, err = fx.jobs.Get(ctx, summary.JobID)
	require.NoError(t, err, "a failed commit leaves the job staged")
}

func TestDiscardDropsJobWithoutApplying(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	payload := projectWorkbook(t, [][]string{{"P1", "Amber", "10"}})
	summary, err := fx.service.Stage(ctx, "user-1", payload, "")
	require.NoError(t, err)

	require.NoError(t, fx.service.Discard(ctx, "user-1", summary.JobID))

	assert.Empty(t, fx.entries.entries)
	_, err = fx.jobs.Get(ctx, summary.JobID)
	require.ErrorIs(t, err, domain.ErrJobNotFound)

	// And staging again is now allowed.
	_, err = fx.service.Stage(ctx, "user-1", payload, "")
	require.NoError(t, err)
}
