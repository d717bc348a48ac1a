// Package workbook locates and extracts the data region of an uploaded
// spreadsheet. The reporting templates place a known marker cell ("UID" or
// "Project UID") at the top-left of the data table, followed by template
// instruction rows tagged with sub-header markers that must be stripped.
package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/fieldbook/internal/domain"
)

// ErrUnreadableWorkbook is returned when the upload is not a readable xlsx
// file.
var ErrUnreadableWorkbook = errors.New("unreadable workbook")

// Layout describes the fixed workbook shapes the application accepts. The
// marker strings are configuration, not constants, so alternative templates
// (and tests) can supply their own.
type Layout struct {
	// Sheets maps each allow-listed sheet name to the entity type whose
	// field definitions apply to it. Sheets not listed are silently
	// skipped; listed sheets absent from the workbook yield no entry.
	// Matching is case-insensitive and extracted rows always carry the
	// map key's spelling, so downstream lookups stay exact.
	Sheets map[string]domain.EntityType
	// HeaderMarkers are the cell texts that identify the header row. The
	// first cell equal to a marker anchors the data region.
	HeaderMarkers []string
	// SubHeaderMarkers tag template instruction rows that sit inside the
	// data range and must be dropped.
	SubHeaderMarkers []string
}

// DefaultLayout returns the layout of the two documented reporting
// templates.
func DefaultLayout() Layout {
	return Layout{
		Sheets: map[string]domain.EntityType{
			"Projects":   domain.EntityTypeProject,
			"Milestones": domain.EntityTypeMilestone,
			"Entities":   domain.EntityTypeEntity,
		},
		HeaderMarkers:    []string{"UID", "Project UID"},
		SubHeaderMarkers: []string{"[Set by CO]", "[Free text]", "[Drop down]"},
	}
}

// SheetData is the extracted content of one allow-listed sheet.
type SheetData struct {
	Name string
	Rows []domain.ImportRow
}

// Extractor reads xlsx payloads against a fixed layout.
type Extractor struct {
	layout Layout
}

// NewExtractor creates an extractor for the given layout.
func NewExtractor(layout Layout) *Extractor {
	return &Extractor{layout: layout}
}

// Extract parses the workbook and returns row objects for every allow-listed
// sheet present in the file, in workbook sheet order. A sheet with no cell
// matching any header marker aborts the whole extraction with
// *domain.HeaderNotFoundError.
func (e *Extractor) Extract(payload []byte) ([]SheetData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	var sheets []SheetData
	for _, name := range f.GetSheetList() {
		canonical, ok := e.canonicalSheet(name)
		if !ok {
			continue
		}

		cells, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read rows from sheet %s: %w", name, err)
		}

		rows, err := e.extractSheet(canonical, cells)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, SheetData{Name: canonical, Rows: rows})
	}

	return sheets, nil
}

// canonicalSheet matches a workbook sheet name against the allow-list,
// ignoring case, and returns the layout's spelling of it.
func (e *Extractor) canonicalSheet(name string) (string, bool) {
	for expected := range e.layout.Sheets {
		if strings.EqualFold(expected, name) {
			return expected, true
		}
	}
	return "", false
}

// extractSheet finds the header anchor and converts the data range below it
// into rows keyed by header label.
func (e *Extractor) extractSheet(name string, cells [][]string) ([]domain.ImportRow, error) {
	headerRow, headerCol, found := e.findHeader(cells)
	if !found {
		return nil, &domain.HeaderNotFoundError{Sheet: name}
	}

	width := 0
	for _, row := range cells[headerRow:] {
		if len(row) > width {
			width = len(row)
		}
	}

	headers := padRow(cells[headerRow], width)[headerCol:]

	var rows []domain.ImportRow
	for idx := headerRow + 1; idx < len(cells); idx++ {
		data := padRow(cells[idx], width)[headerCol:]
		if blankRow(data) || e.subHeaderRow(data) {
			continue
		}

		record := make(map[string]string, len(headers))
		for col, header := range headers {
			label := strings.TrimSpace(header)
			if label == "" {
				// Column with no header text: a synthetic placeholder from
				// the range conversion, not real data.
				continue
			}
			record[label] = strings.TrimSpace(data[col])
		}

		rows = append(rows, domain.ImportRow{
			Sheet:  name,
			Number: idx + 1,
			Cells:  record,
		})
	}

	return rows, nil
}

// findHeader scans cells in ascending row then column order for the first
// cell whose trimmed text equals a header marker.
func (e *Extractor) findHeader(cells [][]string) (row, col int, found bool) {
	for r, rowCells := range cells {
		for c, cell := range rowCells {
			text := strings.TrimSpace(cell)
			for _, marker := range e.layout.HeaderMarkers {
				if text == marker {
					return r, c, true
				}
			}
		}
	}
	return 0, 0, false
}

func (e *Extractor) subHeaderRow(row []string) bool {
	for _, cell := range row {
		text := strings.TrimSpace(cell)
		for _, marker := range e.layout.SubHeaderMarkers {
			if strings.Contains(text, marker) {
				return true
			}
		}
	}
	return false
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
