package validate

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFormat_Identifier(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"12":           "12",
		"1234":         "123-4",
		"123456":       "123-45-6",
		"123456789":    "123-45-6789",
		"123-45-6789":  "123-45-6789",
		"1234567890":   "123-45-6789",
		"abc123def456": "123-45-6",
	}
	for in, want := range tests {
		assert.Equal(t, want, Format(KindIdentifier, in), "input %q", in)
	}
}

func TestFormat_Phone(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"5":              "(5",
		"5551":           "(555) 1",
		"5551234567":     "(555) 123-4567",
		"(555) 123-4567": "(555) 123-4567",
		"555123456789":   "(555) 123-4567",
	}
	for in, want := range tests {
		assert.Equal(t, want, Format(KindPhone, in), "input %q", in)
	}
}

func TestFormat_Currency(t *testing.T) {
	tests := map[string]string{
		"":            "",
		"999":         "999",
		"1234":        "1,234",
		"1234567.891": "1,234,567.89",
		"$12,500.5":   "12,500.5",
		"1.2.3":       "1.23",
		"12.":         "12.",
	}
	for in, want := range tests {
		assert.Equal(t, want, Format(KindCurrency, in), "input %q", in)
	}
}

func TestFormat_ZipAndPassthrough(t *testing.T) {
	assert.Equal(t, "90210", Format(KindZip, "90210-1234"))
	assert.Equal(t, "a@b.co", Format(KindEmail, "a@b.co"))
}

func TestFormatAll(t *testing.T) {
	fields := []Field{
		{Name: "ssn", Kind: KindIdentifier},
		{Name: "phoneNumber", Kind: KindPhone},
	}
	in := map[string]string{"ssn": "123456789", "other": "x"}

	out := FormatAll(fields, in)
	assert.Equal(t, "123-45-6789", out["ssn"])
	assert.Equal(t, "x", out["other"])
	_, present := out["phoneNumber"]
	assert.False(t, present)
	assert.Equal(t, "123456789", in["ssn"], "input map is not mutated")
}

func TestFormat_Idempotent_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	for _, kind := range []Kind{KindIdentifier, KindPhone, KindCurrency, KindZip, KindText} {
		kind := kind
		properties.Property(kind.String()+" mask is idempotent on any input", prop.ForAll(
			func(s string) bool {
				once := Format(kind, s)
				return Format(kind, once) == once
			},
			gen.AnyString(),
		))
		properties.Property(kind.String()+" mask is idempotent on digit input", prop.ForAll(
			func(s string) bool {
				once := Format(kind, s)
				return Format(kind, once) == once
			},
			gen.NumString(),
		))
	}

	properties.TestingRun(t)
}
