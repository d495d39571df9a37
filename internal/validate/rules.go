package validate

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of validating one field value.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// Rule validates a raw field value. Rules never panic.
type Rule func(raw string) Result

// Messages shared by every kind.
const (
	MsgRequired         = "This field is required"
	MsgCheckboxRequired = "This checkbox is required"
	MsgTermsRequired    = "You must agree to the terms and conditions"
)

// DateLayout is the accepted past-date format.
const DateLayout = "2006-01-02"

var (
	identifierRe = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	emailRe      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe      = regexp.MustCompile(`^\(\d{3}\) \d{3}-\d{4}$`)
	zipRe        = regexp.MustCompile(`^\d{5}$`)
)

var checkedValues = []string{"on", "true", "yes", "1", "checked"}

func ok() Result { return Result{Valid: true} }

func fail(format string, args ...any) Result {
	return Result{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// Engine validates fields against the per-kind rule table.
type Engine struct {
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow sets the clock used by past-date rules.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize trims surrounding space and applies Unicode NFC so that
// visually identical input compares equal.
func Normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Checked reports whether a checkbox value represents a ticked box.
func Checked(raw string) bool {
	return slices.Contains(checkedValues, strings.ToLower(strings.TrimSpace(raw)))
}

// ValidateField checks one value. The required check runs first and is
// independent of the kind rule; an empty optional field is valid.
func (e *Engine) ValidateField(f Field, raw string) Result {
	if f.Kind == KindCheckbox {
		if f.Required && !Checked(raw) {
			if f.Name == "termsAgreement" {
				return fail(MsgTermsRequired)
			}
			return fail(MsgCheckboxRequired)
		}
		return ok()
	}

	value := Normalize(raw)
	if value == "" {
		if f.Required {
			return fail(MsgRequired)
		}
		return ok()
	}

	return e.Rule(f)(value)
}

// Rule returns the kind rule for f. Unknown kinds accept any value.
func (e *Engine) Rule(f Field) Rule {
	label := f.label()

	switch f.Kind {
	case KindText:
		return func(raw string) Result {
			if f.MinLength > 0 && utf8.RuneCountInString(Normalize(raw)) < f.MinLength {
				return fail("%s should be at least %d characters", label, f.MinLength)
			}
			return ok()
		}
	case KindIdentifier:
		return regexRule(identifierRe, "SSN must be in format XXX-XX-XXXX")
	case KindEmail:
		return regexRule(emailRe, "Please enter a valid email address")
	case KindPhone:
		return regexRule(phoneRe, "Phone number must be in format (XXX) XXX-XXXX")
	case KindZip:
		return regexRule(zipRe, "ZIP code must be 5 digits")
	case KindCurrency:
		return func(raw string) Result {
			v, err := parseAmount(raw)
			if err != nil {
				return fail("Please enter a valid amount")
			}
			if v < 0 {
				return fail("%s cannot be negative", label)
			}
			return ok()
		}
	case KindWholeNumber:
		return func(raw string) Result {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return fail("Please enter a number")
			}
			if v < 0 {
				return fail("%s cannot be negative", label)
			}
			if v != math.Trunc(v) {
				return fail("%s must be a whole number", label)
			}
			return ok()
		}
	case KindPastDate:
		return func(raw string) Result {
			d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
			if err != nil {
				return fail("Please enter a valid date (YYYY-MM-DD)")
			}
			if d.After(e.now()) {
				return fail("%s cannot be in the future", label)
			}
			return ok()
		}
	case KindSelection:
		return func(raw string) Result {
			v := strings.TrimSpace(raw)
			if v == "" {
				return fail("Please select a %s", strings.ToLower(label))
			}
			if len(f.Options) > 0 && !slices.Contains(f.Options, v) {
				return fail("Please select a valid %s", strings.ToLower(label))
			}
			return ok()
		}
	default:
		return func(string) Result { return ok() }
	}
}

func regexRule(re *regexp.Regexp, message string) Rule {
	return func(raw string) Result {
		if !re.MatchString(raw) {
			return fail(message)
		}
		return ok()
	}
}

// parseAmount accepts plain or formatted currency ("$1,234.50").
func parseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount out of range")
	}
	return v, nil
}
