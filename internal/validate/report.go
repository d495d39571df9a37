package validate

import (
	"fmt"
	"strings"
)

// FieldError annotates one failing field.
type FieldError struct {
	Field   string `json:"field"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

// Report is the form-level result: the AND of every field result, with every
// failing field listed in field order.
type Report struct {
	Errors []FieldError `json:"errors,omitempty"`
}

// Valid reports whether every field passed.
func (r Report) Valid() bool {
	return len(r.Errors) == 0
}

// Error returns the message for field name, if it failed.
func (r Report) Error(name string) (string, bool) {
	for _, e := range r.Errors {
		if e.Field == name {
			return e.Message, true
		}
	}
	return "", false
}

// SummaryHeading opens every error summary.
const SummaryHeading = "Please correct the following errors:"

// Summary renders the error list shown at the top of the active step.
// Returns "" for a valid report.
func (r Report) Summary() string {
	if r.Valid() {
		return ""
	}
	var b strings.Builder
	b.WriteString(SummaryHeading)
	b.WriteByte('\n')
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "- %s: %s\n", e.Label, e.Message)
	}
	return b.String()
}

// ValidateForm validates every field, never stopping at the first failure.
// Incremental (per-edit) validation uses ValidateField, the same function,
// so both paths always agree.
func (e *Engine) ValidateForm(fields []Field, values map[string]string) Report {
	var r Report
	for _, f := range fields {
		res := e.ValidateField(f, values[f.Name])
		if !res.Valid {
			r.Errors = append(r.Errors, FieldError{
				Field:   f.Name,
				Label:   f.label(),
				Message: res.Message,
			})
		}
	}
	return r
}
