package formdef

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/claimwiz/internal/validate"
)

func TestDefault(t *testing.T) {
	def := Default()

	assert.Equal(t, "tax-credit-claim", def.Name)
	require.Equal(t, 5, def.TotalSteps())

	first, ok := def.Step(1)
	require.True(t, ok)
	assert.Equal(t, "personal", first.ID)
	assert.Equal(t, "fullName", first.Fields[0].Name)
	assert.Equal(t, 2, first.Fields[0].MinLength)
	assert.Equal(t, validate.KindIdentifier, first.Fields[1].Kind)

	last, ok := def.Step(5)
	require.True(t, ok)
	assert.Equal(t, "certify", last.Fields[0].Name)
	assert.Equal(t, validate.KindCheckbox, last.Fields[0].Kind)
	assert.True(t, last.Fields[0].Required)

	_, ok = def.Step(0)
	assert.False(t, ok)
	_, ok = def.Step(6)
	assert.False(t, ok)

	income, _ := def.Step(3)
	assert.Equal(t, []string{"single", "joint", "separate", "head", "widow"}, income.Fields[0].Options)
}

func TestLoad_DefaultsLabelAndRequired(t *testing.T) {
	def, err := Load("testdata/minimal.cue")
	require.NoError(t, err)

	require.Equal(t, 2, def.TotalSteps())
	step, _ := def.Step(1)
	assert.Equal(t, "email", step.Fields[0].Label, "label defaults to name")
	assert.False(t, step.Fields[1].Required)
	assert.Len(t, def.Fields(), 3)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/does-not-exist.cue")
	require.Error(t, err)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing wizard", `other: 1`},
		{"no steps", `wizard: {name: "x", steps: []}`},
		{"unknown kind", `wizard: {name: "x", steps: [{id: "a", title: "A", fields: [{name: "f", kind: "colour"}]}]}`},
		{"duplicate step", `wizard: {name: "x", steps: [{id: "a", title: "A", fields: []}, {id: "a", title: "B", fields: []}]}`},
		{"duplicate field", `wizard: {name: "x", steps: [
			{id: "a", title: "A", fields: [{name: "f", kind: "text"}]},
			{id: "b", title: "B", fields: [{name: "f", kind: "zip"}]}]}`},
		{"options on text", `wizard: {name: "x", steps: [{id: "a", title: "A", fields: [{name: "f", kind: "text", options: ["x"]}]}]}`},
		{"min_length on email", `wizard: {name: "x", steps: [{id: "a", title: "A", fields: [{name: "f", kind: "email", min_length: 3}]}]}`},
		{"syntax", `wizard: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(tt.src), "test.cue")
			require.Error(t, err)
		})
	}
}

func TestCompile_DuplicateStepIsCompileError(t *testing.T) {
	_, err := Compile([]byte(`wizard: {name: "x", steps: [{id: "a", title: "A", fields: []}, {id: "a", title: "B", fields: []}]}`), "test.cue")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "steps.id", ce.Field)
	assert.Contains(t, ce.Error(), `duplicate step id "a"`)
}

func TestGate(t *testing.T) {
	def := Default()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	gate := def.Gate(validate.New(validate.WithNow(func() time.Time { return now })))

	report := gate.Check(1, map[string]string{
		"fullName":    "Ada Lovelace",
		"ssn":         "123456",
		"dateOfBirth": "1990-05-01",
		"email":       "ada@example.com",
	})
	require.False(t, report.Valid())
	msg, ok := report.Error("ssn")
	require.True(t, ok)
	assert.Equal(t, "SSN must be in format XXX-XX-XXXX", msg)
	assert.Len(t, report.Errors, 1)

	// Unmasked input is masked before validation.
	report = gate.Check(1, map[string]string{
		"fullName":    "Ada Lovelace",
		"ssn":         "123456789",
		"dateOfBirth": "1990-05-01",
		"email":       "ada@example.com",
		"phone":       "5551234567",
	})
	assert.True(t, report.Valid(), report.Summary())

	report = gate.Check(5, map[string]string{"certify": "on"})
	msg, ok = report.Error("termsAgreement")
	require.True(t, ok)
	assert.Equal(t, validate.MsgTermsRequired, msg)

	assert.True(t, gate.Check(9, nil).Valid())
}
