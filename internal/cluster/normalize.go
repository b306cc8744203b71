package cluster

import (
	"strings"
	"unicode"
)

// ordinalWords covers the spelled-out and numeric ordinals that show up in
// recurring event names ("Third China-Egypt Trade Forum", "10th session").
var ordinalWords = map[string]bool{
	"first": true, "second": true, "third": true, "fourth": true,
	"fifth": true, "sixth": true, "seventh": true, "eighth": true,
	"ninth": true, "tenth": true, "eleventh": true, "twelfth": true,
	"annual": true,
}

// NormalizeName canonicalizes a raw event name for embedding: lowercase,
// punctuation stripped, ordinal words and edition years removed, generic
// stoplist terms removed, whitespace collapsed.
func NormalizeName(name string, stoplist []string) string {
	stop := make(map[string]bool, len(stoplist))
	for _, w := range stoplist {
		stop[strings.ToLower(w)] = true
	}

	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	var kept []string
	for _, tok := range strings.Fields(b.String()) {
		if ordinalWords[tok] || stop[tok] {
			continue
		}
		if isNumericOrdinal(tok) || isEditionYear(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// isNumericOrdinal matches tokens like 3rd, 21st, 10th. Punctuation was
// already replaced by spaces, so the suffix is attached directly.
func isNumericOrdinal(tok string) bool {
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		if strings.HasSuffix(tok, suffix) && len(tok) > len(suffix) {
			digits := tok[:len(tok)-len(suffix)]
			if allDigits(digits) {
				return true
			}
		}
	}
	return false
}

// isEditionYear matches standalone years (2024) that distinguish editions of
// the same recurring event but never distinguish same-day mentions.
func isEditionYear(tok string) bool {
	return len(tok) == 4 && allDigits(tok) && (tok[0] == '1' || tok[0] == '2')
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
