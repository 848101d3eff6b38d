package payroll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSchema          = errors.New("schema error")
	ErrInvalidBands    = errors.New("invalid tax bands")
	ErrUnknownSchedule = errors.New("unknown tax schedule")
	ErrRunNotFound     = errors.New("payroll run not found")
	ErrRowNotFound     = errors.New("payroll row not found")
)

// FieldError names the line and column of a value that could not be used.
// Row is zero when the value did not come from a dataset.
type FieldError struct {
	Row    int
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	var b strings.Builder
	if e.Row > 0 {
		fmt.Fprintf(&b, "row %d: ", e.Row)
	}
	fmt.Fprintf(&b, "%s: %s", e.Field, e.Reason)
	if e.Value != "" {
		fmt.Fprintf(&b, " (got %q)", e.Value)
	}
	return b.String()
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

// SchemaError lists required columns absent from a dataset header.
type SchemaError struct {
	Columns []string
}

func (e *SchemaError) Error() string {
	return "missing required column(s): " + strings.Join(e.Columns, ", ")
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

func invalidAmount(field, value, reason string) *FieldError {
	return &FieldError{Field: field, Value: value, Reason: reason}
}
