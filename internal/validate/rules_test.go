package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return New(WithNow(func() time.Time { return testNow }))
}

func TestValidateField_Identifier(t *testing.T) {
	e := newTestEngine()
	f := Field{Name: "ssn", Label: "SSN", Kind: KindIdentifier, Required: true}

	formatted := Format(KindIdentifier, "123456789")
	assert.Equal(t, "123-45-6789", formatted)
	assert.True(t, e.ValidateField(f, formatted).Valid)

	res := e.ValidateField(f, Format(KindIdentifier, "123456"))
	assert.False(t, res.Valid)
	assert.Equal(t, "SSN must be in format XXX-XX-XXXX", res.Message)
}

func TestValidateField_RequiredIndependentOfKind(t *testing.T) {
	e := newTestEngine()

	kinds := []Kind{KindText, KindIdentifier, KindEmail, KindPhone, KindCurrency,
		KindWholeNumber, KindPastDate, KindSelection, KindZip}
	for _, k := range kinds {
		t.Run(k.String(), func(t *testing.T) {
			f := Field{Name: "f", Kind: k, Required: true}
			res := e.ValidateField(f, "   ")
			assert.False(t, res.Valid)
			assert.Equal(t, MsgRequired, res.Message)
		})
	}
}

func TestValidateField_OptionalEmptyIsValid(t *testing.T) {
	e := newTestEngine()
	assert.True(t, e.ValidateField(Field{Name: "email", Kind: KindEmail}, "").Valid)
}

func TestValidateField_Rules(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name    string
		field   Field
		value   string
		valid   bool
		message string
	}{
		{"name too short", Field{Name: "fullName", Label: "Name", Kind: KindText, MinLength: 2}, "A", false, "Name should be at least 2 characters"},
		{"name ok", Field{Name: "fullName", Label: "Name", Kind: KindText, MinLength: 2}, "Ada", true, ""},
		{"name counts runes", Field{Name: "fullName", Label: "Name", Kind: KindText, MinLength: 2}, "Zoë", true, ""},
		{"email ok", Field{Name: "email", Kind: KindEmail}, "a@b.co", true, ""},
		{"email bad", Field{Name: "email", Kind: KindEmail}, "a@b", false, "Please enter a valid email address"},
		{"phone ok", Field{Name: "phoneNumber", Kind: KindPhone}, "(555) 123-4567", true, ""},
		{"phone bad", Field{Name: "phoneNumber", Kind: KindPhone}, "555-123-4567", false, "Phone number must be in format (XXX) XXX-XXXX"},
		{"zip ok", Field{Name: "zipCode", Kind: KindZip}, "90210", true, ""},
		{"zip bad", Field{Name: "zipCode", Kind: KindZip}, "9021", false, "ZIP code must be 5 digits"},
		{"income formatted", Field{Name: "income", Label: "Income", Kind: KindCurrency}, "$12,500.00", true, ""},
		{"income negative", Field{Name: "income", Label: "Income", Kind: KindCurrency}, "-5", false, "Income cannot be negative"},
		{"income garbage", Field{Name: "income", Label: "Income", Kind: KindCurrency}, "abc", false, "Please enter a valid amount"},
		{"dependents ok", Field{Name: "dependents", Label: "Number of dependents", Kind: KindWholeNumber}, "3", true, ""},
		{"dependents negative", Field{Name: "dependents", Label: "Number of dependents", Kind: KindWholeNumber}, "-1", false, "Number of dependents cannot be negative"},
		{"dependents fraction", Field{Name: "dependents", Label: "Number of dependents", Kind: KindWholeNumber}, "1.5", false, "Number of dependents must be a whole number"},
		{"dependents nan", Field{Name: "dependents", Label: "Number of dependents", Kind: KindWholeNumber}, "NaN", false, "Please enter a number"},
		{"birth past", Field{Name: "dateOfBirth", Label: "Date of birth", Kind: KindPastDate}, "1980-05-17", true, ""},
		{"birth future", Field{Name: "dateOfBirth", Label: "Date of birth", Kind: KindPastDate}, "2030-01-01", false, "Date of birth cannot be in the future"},
		{"birth malformed", Field{Name: "dateOfBirth", Label: "Date of birth", Kind: KindPastDate}, "17/05/1980", false, "Please enter a valid date (YYYY-MM-DD)"},
		{"status option", Field{Name: "filingStatus", Label: "Filing status", Kind: KindSelection, Options: []string{"single", "joint"}}, "joint", true, ""},
		{"status unknown", Field{Name: "filingStatus", Label: "Filing status", Kind: KindSelection, Options: []string{"single", "joint"}}, "other", false, "Please select a valid filing status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.ValidateField(tt.field, tt.value)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.message, res.Message)
		})
	}
}

func TestValidateField_Checkbox(t *testing.T) {
	e := newTestEngine()

	certify := Field{Name: "certify", Kind: KindCheckbox, Required: true}
	terms := Field{Name: "termsAgreement", Kind: KindCheckbox, Required: true}
	optional := Field{Name: "newsletter", Kind: KindCheckbox}

	assert.True(t, e.ValidateField(certify, "on").Valid)
	assert.True(t, e.ValidateField(certify, "TRUE").Valid)
	assert.Equal(t, MsgCheckboxRequired, e.ValidateField(certify, "").Message)
	assert.Equal(t, MsgTermsRequired, e.ValidateField(terms, "off").Message)
	assert.True(t, e.ValidateField(optional, "").Valid)
}

func TestValidateField_UnknownKindAccepts(t *testing.T) {
	e := newTestEngine()
	assert.True(t, e.ValidateField(Field{Name: "x", Kind: Kind(99)}, "anything").Valid)
}

func TestParseKind(t *testing.T) {
	for k, name := range kindNames {
		got, err := ParseKind(name)
		assert.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("nope")
	assert.Error(t, err)
	assert.Equal(t, "unknown_kind", Kind(0).String())
}

func TestNormalize(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form.
	assert.Equal(t, "\u00e9", Normalize("  e\u0301 "))
}
