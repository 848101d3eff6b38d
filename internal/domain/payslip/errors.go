package payslip

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTemplate        = errors.New("template error")
	ErrRender          = errors.New("render error")
	ErrPayslipNotFound = errors.New("payslip not found")
)

// TemplateError reports placeholders a template needs but lacks, and tokens
// it uses that no field can fill.
type TemplateError struct {
	Template string
	Missing  []string
	Unknown  []string
}

func (e *TemplateError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing placeholders: "+braced(e.Missing))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown placeholders: "+braced(e.Unknown))
	}
	return fmt.Sprintf("template %s: %s", e.Template, strings.Join(parts, "; "))
}

func (e *TemplateError) Unwrap() error {
	return ErrTemplate
}

// RenderError is the failure to produce one employee's documents.
type RenderError struct {
	Line int
	Name string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("payslip for %s (line %d): %v", e.Name, e.Line, e.Err)
}

func (e *RenderError) Unwrap() []error {
	return []error{ErrRender, e.Err}
}

func braced(names []string) string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = "{" + name + "}"
	}
	return strings.Join(out, ", ")
}
