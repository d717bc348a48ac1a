package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryKey is the composite primary key of a field entry: one field on one
// subject record.
type EntryKey struct {
	FieldID    uuid.UUID
	SubjectKey string
}

// FieldEntry is the current value of one field on one subject record,
// stored in the value's canonical text form. Entries are only mutated
// through import reconciliation or the direct edit forms.
type FieldEntry struct {
	FieldID    uuid.UUID `json:"fieldId"`
	SubjectKey string    `json:"subjectKey"`
	Value      string    `json:"value"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Key returns the entry's composite key.
func (e FieldEntry) Key() EntryKey {
	return EntryKey{FieldID: e.FieldID, SubjectKey: e.SubjectKey}
}

// FieldEntryAudit is an append-only snapshot of an entry's previous value,
// written in the same transaction immediately before the overwrite. Audit
// rows are never updated or deleted.
type FieldEntryAudit struct {
	FieldID    uuid.UUID `json:"fieldId"`
	SubjectKey string    `json:"subjectKey"`
	Value      string    `json:"value"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ChangeOp distinguishes a first write from an overwrite of an existing
// entry.
type ChangeOp string

const (
	ChangeOpCreate ChangeOp = "create"
	ChangeOpUpdate ChangeOp = "update"
)

// FieldEntryChange is one element of a reconciled change set. Updates carry
// the pre-update entry so the commit can archive it before overwriting.
type FieldEntryChange struct {
	Op       ChangeOp
	Entry    FieldEntry
	Previous *FieldEntry
}

// AuditRecord builds the audit snapshot for an update change. Create
// changes have nothing to archive.
func (c FieldEntryChange) AuditRecord(archivedAt time.Time) (FieldEntryAudit, bool) {
	if c.Op != ChangeOpUpdate || c.Previous == nil {
		return FieldEntryAudit{}, false
	}
	return FieldEntryAudit{
		FieldID:    c.Previous.FieldID,
		SubjectKey: c.Previous.SubjectKey,
		Value:      c.Previous.Value,
		ArchivedAt: archivedAt,
	}, true
}
