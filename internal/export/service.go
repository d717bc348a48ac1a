// Package export produces downloadable extracts of the current field
// entries for the BI tool: one sheet per entity type, one column per active
// field definition, one row per subject. Embed-URL signing for the BI tool
// itself lives outside this core.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/fieldbook/internal/domain"
	"github.com/rpattn/fieldbook/internal/schema"
)

// Format selects the extract's file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat resolves a format query value, defaulting to xlsx.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(FormatXLSX):
		return FormatXLSX, nil
	case string(FormatCSV):
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", raw)
}

// EntrySource lists current entries for a set of field definitions.
type EntrySource interface {
	ListByFields(ctx context.Context, fieldIDs []uuid.UUID) ([]domain.FieldEntry, error)
}

// Extract is one generated download.
type Extract struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Service builds extracts from the registry's definitions and the current
// entries.
type Service struct {
	registry *schema.Registry
	entries  EntrySource
}

// NewService creates an export service.
func NewService(registry *schema.Registry, entries EntrySource) *Service {
	return &Service{registry: registry, entries: entries}
}

// Build generates an extract of every subject's current values for the
// entity type. Subjects appear in key order; columns follow the admin's
// field ordering after the leading subject key column.
func (s *Service) Build(ctx context.Context, entityType domain.EntityType, format Format) (Extract, error) {
	if !entityType.Valid() {
		return Extract{}, fmt.Errorf("unknown entity type %q", entityType)
	}

	defs, err := s.registry.Definitions(ctx, entityType)
	if err != nil {
		return Extract{}, fmt.Errorf("failed to load field definitions: %w", err)
	}

	table, err := s.buildTable(ctx, defs)
	if err != nil {
		return Extract{}, err
	}

	switch format {
	case FormatCSV:
		data, err := renderCSV(table)
		if err != nil {
			return Extract{}, err
		}
		return Extract{
			FileName:    fmt.Sprintf("%s_export.csv", entityType),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	default:
		data, err := renderXLSX(string(entityType), table)
		if err != nil {
			return Extract{}, err
		}
		return Extract{
			FileName:    fmt.Sprintf("%s_export.xlsx", entityType),
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	}
}

// buildTable pivots entries into rows of [subjectKey, field values...].
func (s *Service) buildTable(ctx context.Context, defs []domain.FieldDefinition) ([][]string, error) {
	fieldIDs := make([]uuid.UUID, len(defs))
	for i, def := range defs {
		fieldIDs[i] = def.ID
	}

	entries, err := s.entries.ListByFields(ctx, fieldIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load field entries: %w", err)
	}

	bySubject := make(map[string]map[uuid.UUID]string)
	var subjects []string
	for _, entry := range entries {
		values, ok := bySubject[entry.SubjectKey]
		if !ok {
			values = make(map[uuid.UUID]string)
			bySubject[entry.SubjectKey] = values
			subjects = append(subjects, entry.SubjectKey)
		}
		values[entry.FieldID] = entry.Value
	}
	sort.Strings(subjects)

	header := make([]string, 0, len(defs)+1)
	header = append(header, "UID")
	for _, def := range defs {
		header = append(header, def.DisplayName)
	}

	table := [][]string{header}
	for _, subject := range subjects {
		row := make([]string, 0, len(defs)+1)
		row = append(row, subject)
		for _, def := range defs {
			row = append(row, bySubject[subject][def.ID])
		}
		table = append(table, row)
	}
	return table, nil
}

func renderCSV(table [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	for _, row := range table {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderXLSX(sheet string, table [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	for r, row := range table {
		ref, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return nil, fmt.Errorf("failed to compute cell reference: %w", err)
		}
		if err := f.SetSheetRow(sheet, ref, &row); err != nil {
			return nil, fmt.Errorf("failed to write sheet row: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
