// Package importer turns staged workbook rows into a minimal, audited
// change set against the current field entries, and commits it in a single
// transaction.
package importer

import (
	"strings"

	"github.com/rpattn/fieldbook/internal/domain"
)

// Reconciliation is the outcome of diffing extracted rows against persisted
// state: the changes to apply plus the recoverable per-row failures.
type Reconciliation struct {
	Changes []domain.FieldEntryChange
	Errors  []domain.RowError
}

// Reconciler maps extracted rows to field entry changes. It is a pure
// function of its inputs: replaying the same rows against unchanged entries
// yields an empty change set.
type Reconciler struct {
	// KeyColumns are the header labels that carry the subject's natural key,
	// tried in order. These are the same marker labels that anchor the
	// header row.
	KeyColumns []string
}

// NewReconciler creates a reconciler reading subject keys from the given
// columns.
func NewReconciler(keyColumns []string) *Reconciler {
	return &Reconciler{KeyColumns: keyColumns}
}

// Reconcile diffs rows against existing entries under the given field
// definitions. Unparsable cells become RowErrors and their field is left
// untouched; the rest of the row still produces changes. A coerced value
// equal to the persisted one produces nothing, so re-importing identical
// data never grows the audit log.
func (r *Reconciler) Reconcile(rows []domain.ImportRow, defs []domain.FieldDefinition, existing map[domain.EntryKey]domain.FieldEntry) Reconciliation {
	var result Reconciliation

	// Later rows for the same (field, subject) override earlier ones, so a
	// workbook that repeats a subject applies its last occurrence.
	pending := make(map[domain.EntryKey]int)

	for _, row := range rows {
		subjectKey := r.subjectKey(row)
		if subjectKey == "" {
			result.Errors = append(result.Errors, domain.RowError{
				Sheet:  row.Sheet,
				Row:    row.Number,
				Field:  strings.Join(r.KeyColumns, " / "),
				Reason: "missing subject identifier",
			})
			continue
		}

		for _, def := range defs {
			raw, ok := row.Cells[def.ImportColumn]
			if !ok || strings.TrimSpace(raw) == "" {
				// Partial rows are allowed; absent columns and blank cells
				// are not errors. Clearing a value takes an explicit "n/a".
				continue
			}

			value, err := domain.Coerce(raw, def)
			if err != nil {
				parseErr, _ := err.(*domain.ParseError)
				rowErr := domain.RowError{
					Sheet:    row.Sheet,
					Row:      row.Number,
					Field:    def.DisplayName,
					RawValue: raw,
				}
				if parseErr != nil {
					rowErr.Reason = parseErr.Reason
				} else {
					rowErr.Reason = err.Error()
				}
				result.Errors = append(result.Errors, rowErr)
				continue
			}

			key := domain.EntryKey{FieldID: def.ID, SubjectKey: subjectKey}
			change, ok := diffEntry(key, value, existing)
			if !ok {
				// Drop any earlier pending change for the same key: the last
				// occurrence now says the persisted value stands.
				if idx, seen := pending[key]; seen {
					result.Changes[idx].Op = ""
				}
				delete(pending, key)
				continue
			}

			if idx, seen := pending[key]; seen {
				result.Changes[idx] = change
				continue
			}
			pending[key] = len(result.Changes)
			result.Changes = append(result.Changes, change)
		}
	}

	result.Changes = compactChanges(result.Changes)
	return result
}

// subjectKey pulls the subject's natural key from the row.
func (r *Reconciler) subjectKey(row domain.ImportRow) string {
	for _, column := range r.KeyColumns {
		if key := strings.TrimSpace(row.Cells[column]); key != "" {
			return key
		}
	}
	return ""
}

// diffEntry decides whether a coerced value changes persisted state.
func diffEntry(key domain.EntryKey, value domain.Value, existing map[domain.EntryKey]domain.FieldEntry) (domain.FieldEntryChange, bool) {
	rendered := value.Render()
	current, found := existing[key]

	if !found {
		// Nothing persisted and nothing to record: an n/a cell on a new
		// subject stays unwritten.
		if value.IsAbsent() {
			return domain.FieldEntryChange{}, false
		}
		return domain.FieldEntryChange{
			Op: domain.ChangeOpCreate,
			Entry: domain.FieldEntry{
				FieldID:    key.FieldID,
				SubjectKey: key.SubjectKey,
				Value:      rendered,
			},
		}, true
	}

	if current.Value == rendered {
		return domain.FieldEntryChange{}, false
	}

	previous := current
	return domain.FieldEntryChange{
		Op: domain.ChangeOpUpdate,
		Entry: domain.FieldEntry{
			FieldID:    key.FieldID,
			SubjectKey: key.SubjectKey,
			Value:      rendered,
		},
		Previous: &previous,
	}, true
}

// compactChanges removes entries voided by later occurrences of the same
// key.
func compactChanges(changes []domain.FieldEntryChange) []domain.FieldEntryChange {
	out := changes[:0]
	for _, change := range changes {
		if change.Op != "" {
			out = append(out, change)
		}
	}
	return out
}
