// Package validate implements field-level validation and input masking for
// wizard forms.
//
// Each field has a semantic Kind that selects one rule from a fixed table.
// Rules take the raw string and return a structured Result; they never
// panic. ValidateForm runs every field and collects every failure so one
// summary can list all problems at once.
//
// Masks (Format) are a separate, idempotent transform applied to input before
// validation.
package validate
