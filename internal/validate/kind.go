package validate

import "fmt"

// Kind is the semantic kind of a form field. It selects the validation rule
// and the input mask.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindIdentifier
	KindEmail
	KindPhone
	KindCurrency
	KindWholeNumber
	KindPastDate
	KindCheckbox
	KindSelection
	KindZip
)

var kindNames = map[Kind]string{
	KindText:        "text",
	KindIdentifier:  "identifier",
	KindEmail:       "email",
	KindPhone:       "phone",
	KindCurrency:    "currency",
	KindWholeNumber: "whole_number",
	KindPastDate:    "past_date",
	KindCheckbox:    "checkbox",
	KindSelection:   "selection",
	KindZip:         "zip",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown_kind"
}

// ParseKind resolves a kind by its name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown field kind %q", name)
}

// Field describes one input on a wizard step.
type Field struct {
	Name      string
	Label     string
	Kind      Kind
	Required  bool
	MinLength int      // text only
	Options   []string // selection only; empty means any non-empty value
}

func (f Field) label() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}
