package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/fieldbook/internal/domain"
	"github.com/rpattn/fieldbook/internal/schema"
)

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

func (s *stubDefinitionRepo) GetByID(_ context.Context, _ uuid.UUID) (domain.FieldDefinition, error) {
	return domain.FieldDefinition{}, domain.ErrFieldNotFound
}

func (s *stubDefinitionRepo) GetByImportColumn(_ context.Context, _ domain.EntityType, _ string) (domain.FieldDefinition, error) {
	return domain.FieldDefinition{}, domain.ErrFieldNotFound
}

func (s *stubDefinitionRepo) Upsert(_ context.Context, def domain.FieldDefinition) (domain.FieldDefinition, error) {
	return def, nil
}

func (s *stubDefinitionRepo) Deactivate(_ context.Context, _ uuid.UUID) error { return nil }

type stubEntrySource struct {
	entries []domain.FieldEntry
}

func (s *stubEntrySource) ListByFields(_ context.Context, fieldIDs []uuid.UUID) ([]domain.FieldEntry, error) {
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

func exportFixture() (*Service, domain.FieldDefinition, domain.FieldDefinition, *stubEntrySource) {
	confidence := domain.NewFieldDefinition(domain.EntityTypeProject, "Delivery Confidence", domain.FieldTypeGroup)
	confidence.ImportColumn = "Delivery Confidence"
	confidence.GroupOptions = []string{"Red", "Amber", "Green"}
	confidence.Order = 1

	budget := domain.NewFieldDefinition(domain.EntityTypeProject, "Budget (£m)", domain.FieldTypeFloat)
	budget.ImportColumn = "Budget"
	budget.Order = 2

	entries := &stubEntrySource{entries: []domain.FieldEntry{
		{FieldID: confidence.ID, SubjectKey: "P2", Value: "Green"},
		{FieldID: confidence.ID, SubjectKey: "P1", Value: "Amber"},
		{FieldID: budget.ID, SubjectKey: "P1", Value: "120.5"},
	}}

	registry := schema.NewRegistry(&stubDefinitionRepo{defs: []domain.FieldDefinition{confidence, budget}})
	return NewService(registry, entries), confidence, budget, entries
}

func TestBuildXLSXExtract(t *testing.T) {
	service, _, _, _ := exportFixture()

	extract, err := service.Build(context.Background(), domain.EntityTypeProject, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "project_export.xlsx", extract.FileName)

	f, err := excelize.OpenReader(bytes.NewReader(extract.Data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("project")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"UID", "Delivery Confidence", "Budget (£m)"}, rows[0])
	assert.Equal(t, []string{"P1", "Amber", "120.5"}, rows[1])
	// P2 has no budget entry; the cell is blank.
	assert.Equal(t, "P2", rows[2][0])
	assert.Equal(t, "Green", rows[2][1])
}

func TestBuildCSVExtract(t *testing.T) {
	service, _, _, _ := exportFixture()

	extract, err := service.Build(context.Background(), domain.EntityTypeProject, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", extract.ContentType)

	records, err := csv.NewReader(bytes.NewReader(extract.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"UID", "Delivery Confidence", "Budget (£m)"}, records[0])
	assert.Equal(t, []string{"P2", "Green", ""}, records[2])
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, format)

	format, err = ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)

	_, err = ParseFormat("pdf")
	require.Error(t, err)
}
