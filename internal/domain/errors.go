package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFieldNotFound is returned when no definition matches a lookup.
	ErrFieldNotFound = errors.New("field definition not found")

	// ErrActiveJobExists is returned when a user stages a second workbook
	// without committing or discarding the first.
	ErrActiveJobExists = errors.New("an uncommitted import already exists for this user")

	// ErrJobNotFound is returned when a staged import job cannot be located.
	ErrJobNotFound = errors.New("import job not found")
)

// ValidationError reports a rejected field-definition attribute. It is raised
// synchronously before any persistence call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseError reports a single cell value that could not be coerced to its
// field's type. Parse errors are collected per row, never thrown past the
// reconciler: the offending field is omitted and the rest of the row still
// processes.
type ParseError struct {
	RawValue  string
	FieldName string
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse %q: %s", e.FieldName, e.RawValue, e.Reason)
}

// HeaderNotFoundError aborts a whole import: the sheet contained no cell
// matching any known header marker, so the data region cannot be located.
type HeaderNotFoundError struct {
	Sheet string
}

func (e *HeaderNotFoundError) Error() string {
	return fmt.Sprintf("no header row found in sheet %q", e.Sheet)
}

// RowError is the user-facing record of one recoverable import failure.
type RowError struct {
	Sheet    string `json:"sheet,omitempty"`
	Row      int    `json:"row"`
	Field    string `json:"field"`
	RawValue string `json:"rawValue"`
	Reason   string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d, %s: %s (%q)", e.Row, e.Field, e.Reason, e.RawValue)
}
