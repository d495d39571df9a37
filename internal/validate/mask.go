package validate

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Format applies the input mask for kind. Every mask is idempotent:
// Format(k, Format(k, s)) == Format(k, s).
func Format(kind Kind, raw string) string {
	switch kind {
	case KindIdentifier:
		return formatIdentifier(raw)
	case KindPhone:
		return formatPhone(raw)
	case KindCurrency:
		return formatCurrency(raw)
	case KindZip:
		return limit(digits(raw), 5)
	case KindText:
		return norm.NFC.String(raw)
	default:
		return raw
	}
}

// FormatAll applies the mask of each field to its value and returns a new map.
// Values for unknown field names are copied unchanged.
func FormatAll(fields []Field, values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	for _, f := range fields {
		if v, ok := out[f.Name]; ok {
			out[f.Name] = Format(f.Kind, v)
		}
	}
	return out
}

// formatIdentifier renders up to nine digits as XXX-XX-XXXX.
func formatIdentifier(raw string) string {
	d := limit(digits(raw), 9)
	switch {
	case len(d) > 5:
		return d[:3] + "-" + d[3:5] + "-" + d[5:]
	case len(d) > 3:
		return d[:3] + "-" + d[3:]
	default:
		return d
	}
}

// formatPhone renders up to ten digits as (XXX) XXX-XXXX.
func formatPhone(raw string) string {
	d := limit(digits(raw), 10)
	switch {
	case len(d) > 6:
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	case len(d) > 3:
		return "(" + d[:3] + ") " + d[3:]
	case len(d) > 0:
		return "(" + d
	default:
		return ""
	}
}

// formatCurrency keeps digits and the first decimal point, truncates to two
// decimal places and groups thousands with commas.
func formatCurrency(raw string) string {
	var intPart, frac strings.Builder
	seenDot := false
	for _, r := range raw {
		switch {
		case r == '.':
			seenDot = true
		case r >= '0' && r <= '9':
			if seenDot {
				if frac.Len() < 2 {
					frac.WriteRune(r)
				}
			} else {
				intPart.WriteRune(r)
			}
		}
	}

	grouped := groupThousands(intPart.String())
	if seenDot {
		return grouped + "." + frac.String()
	}
	return grouped
}

func groupThousands(d string) string {
	if len(d) <= 3 {
		return d
	}
	var b strings.Builder
	lead := len(d) % 3
	if lead > 0 {
		b.WriteString(d[:lead])
	}
	for i := lead; i < len(d); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(d[i : i+3])
	}
	return b.String()
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func limit(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
