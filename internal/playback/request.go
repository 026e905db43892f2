package playback

import (
	"strings"
)

// AnyDigit is the interrupt keyword that accepts every DTMF digit.
const AnyDigit = "any"

// dtmfDigits is the full DTMF keypad, including the A-D column.
const dtmfDigits = "0123456789#*ABCD"

// Request is one playback request as it arrives from the dialplan.
type Request struct {
	Text      string
	Language  string
	Interrupt string
}

// StripQuotes removes one pair of enclosing double quotes and the surrounding
// whitespace. Unbalanced quotes are left alone.
func StripQuotes(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		return trimmed[1 : len(trimmed)-1]
	}

	return trimmed
}

// ParseArgs splits "text,language,interrupt" the way the dialplan splits
// application arguments: commas inside double quotes do not separate fields
// and a backslash escapes the next character. Missing fields are empty.
func ParseArgs(raw string) Request {
	fields := splitArgs(raw, 3)

	for len(fields) < 3 {
		fields = append(fields, "")
	}

	return Request{
		Text:      StripQuotes(fields[0]),
		Language:  StripQuotes(fields[1]),
		Interrupt: strings.TrimSpace(fields[2]),
	}
}

// splitArgs splits on unquoted commas into at most limit fields. The last
// field keeps any further commas. Quote characters are preserved so that
// StripQuotes can remove the enclosing pair.
func splitArgs(raw string, limit int) []string {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
		escaped bool
	)

	for _, r := range raw {
		switch {
		case escaped:
			current.WriteRune(r)

			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted

			current.WriteRune(r)
		case r == ',' && !quoted && len(fields) < limit-1:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}

	return append(fields, current.String())
}

// InterruptDigits expands an interrupt specification into the set of digits
// that stop playback. "any" matches the whole keypad; otherwise characters
// that are not DTMF digits are dropped and a-d count as A-D.
func InterruptDigits(spec string) string {
	spec = strings.TrimSpace(spec)
	if strings.EqualFold(spec, AnyDigit) {
		return dtmfDigits
	}

	var digits strings.Builder

	for _, r := range strings.ToUpper(spec) {
		if strings.ContainsRune(dtmfDigits, r) && !strings.ContainsRune(digits.String(), r) {
			digits.WriteRune(r)
		}
	}

	return digits.String()
}
