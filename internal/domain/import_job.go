package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportRow is one extracted workbook row: cell values keyed by the header
// row's label, with empty string for genuinely blank cells. Number is the
// 1-based row number within the sheet, for user-facing error reporting.
type ImportRow struct {
	Sheet  string            `json:"sheet"`
	Number int               `json:"number"`
	Cells  map[string]string `json:"cells"`
}

// BulkImportJob is an uploaded-and-parsed-but-not-yet-committed workbook.
// Exactly one job may be active per user; the job is consumed on commit or
// dropped on discard. There is no automatic expiry.
type BulkImportJob struct {
	ID        uuid.UUID   `json:"id"`
	UserID    string      `json:"userId"`
	Category  string      `json:"category,omitempty"`
	Rows      []ImportRow `json:"rows"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewBulkImportJob stages parsed rows for a user under a fresh opaque token.
func NewBulkImportJob(userID, category string, rows []ImportRow) BulkImportJob {
	return BulkImportJob{
		ID:        uuid.New(),
		UserID:    userID,
		Category:  category,
		Rows:      rows,
		CreatedAt: time.Now(),
	}
}
