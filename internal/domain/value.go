package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the application's canonical date input and display format.
const DateLayout = "02/01/2006"

// notApplicablePrefix marks a cell the operator deliberately left blank.
// Matching is case-insensitive on the prefix, so "N/A", "n/a - tbc" and
// similar all qualify.
const notApplicablePrefix = "n/a"

// Value is the typed result of coercing a raw cell against a field
// definition. One concrete variant exists per FieldType; AbsentValue covers
// the "not applicable" sentinel. Two values are equal when their canonical
// renderings are equal, which is also the form persisted in field entries.
type Value interface {
	Kind() FieldType
	// Render returns the canonical text form of the value, the exact string
	// stored in a FieldEntry.
	Render() string
	IsAbsent() bool
}

// AbsentValue is the coerced form of a "n/a" cell on a non-required field.
type AbsentValue struct{}

func (AbsentValue) Kind() FieldType { return FieldTypeString }
func (AbsentValue) Render() string  { return "" }
func (AbsentValue) IsAbsent() bool  { return true }

// StringValue is free text, trimmed.
type StringValue string

func (StringValue) Kind() FieldType  { return FieldTypeString }
func (v StringValue) Render() string { return string(v) }
func (StringValue) IsAbsent() bool   { return false }

// BoolValue is a yes/no flag.
type BoolValue bool

func (BoolValue) Kind() FieldType { return FieldTypeBoolean }
func (v BoolValue) Render() string {
	return strconv.FormatBool(bool(v))
}
func (BoolValue) IsAbsent() bool { return false }

// IntValue is a whole number.
type IntValue int64

func (IntValue) Kind() FieldType  { return FieldTypeInteger }
func (v IntValue) Render() string { return strconv.FormatInt(int64(v), 10) }
func (IntValue) IsAbsent() bool   { return false }

// FloatValue is a decimal number.
type FloatValue float64

func (FloatValue) Kind() FieldType { return FieldTypeFloat }
func (v FloatValue) Render() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}
func (FloatValue) IsAbsent() bool { return false }

// DateValue is a calendar date; renders in the canonical DD/MM/YYYY layout.
type DateValue time.Time

func (DateValue) Kind() FieldType  { return FieldTypeDate }
func (v DateValue) Render() string { return time.Time(v).Format(DateLayout) }
func (DateValue) IsAbsent() bool   { return false }

// GroupValue is one of a group field's options, in the definition's
// canonical casing.
type GroupValue string

func (GroupValue) Kind() FieldType  { return FieldTypeGroup }
func (v GroupValue) Render() string { return string(v) }
func (GroupValue) IsAbsent() bool   { return false }

// Coerce converts a raw cell value into a typed value per the field
// definition. A failure is always a *ParseError carrying the raw value and
// the field's display name for user-facing reporting.
func Coerce(raw string, def FieldDefinition) (Value, error) {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(strings.ToLower(trimmed), notApplicablePrefix) && !def.Required {
		return AbsentValue{}, nil
	}

	switch def.Type {
	case FieldTypeString:
		return StringValue(trimmed), nil

	case FieldTypeBoolean:
		switch strings.ToLower(trimmed) {
		case "yes", "true", "1":
			return BoolValue(true), nil
		case "no", "false", "0":
			return BoolValue(false), nil
		}
		return nil, parseError(trimmed, def, "expected yes/no")

	case FieldTypeInteger:
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return IntValue(i), nil
		}
		// Spreadsheets frequently hand back whole numbers as "3.0".
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil && math.Mod(f, 1) == 0 {
			return IntValue(int64(f)), nil
		}
		return nil, parseError(trimmed, def, "expected a whole number")

	case FieldTypeFloat:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return FloatValue(f), nil
		}
		return nil, parseError(trimmed, def, "expected a number")

	case FieldTypeDate:
		ts, err := time.Parse(DateLayout, trimmed)
		if err != nil {
			return nil, parseError(trimmed, def, "expected a date in DD/MM/YYYY format")
		}
		return DateValue(ts), nil

	case FieldTypeGroup:
		if option, ok := def.GroupOption(trimmed); ok {
			return GroupValue(option), nil
		}
		return nil, parseError(trimmed, def, fmt.Sprintf("expected one of %s", strings.Join(def.GroupOptions, ", ")))

	default:
		return nil, parseError(trimmed, def, fmt.Sprintf("unsupported field type %s", def.Type))
	}
}

func parseError(raw string, def FieldDefinition, reason string) *ParseError {
	return &ParseError{RawValue: raw, FieldName: def.DisplayName, Reason: reason}
}
