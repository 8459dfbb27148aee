package vocab

import (
	"regexp"
	"strconv"
	"strings"
)

// specRe finds a number followed by a measurement unit, e.g. "128 GB",
// "1.5L", "5-star", "55 inches". Group 1 is the number, group 2 the unit.
var specRe = regexp.MustCompile(`(?:^|[^a-z0-9.])(\d+(?:\.\d+)?)[\s-]*(gb|tb|mah|inches|inch|star|litres|litre|liters|liter|ltrs|ltr|l|kg|ml|hz|mp|watts|watt|w|tons|ton|cm)\b`)

var canonicalSpecRe = regexp.MustCompile(`^\d+(?:\.\d+)?(?:gb|tb|mah|inch|star|l|kg|ml|hz|mp|w|ton|cm)$`)

var tokenRe = regexp.MustCompile(`[a-z0-9]+(?:\.[0-9]+)?[a-z0-9]*`)

var unitAliases = map[string]string{
	"inches": "inch",
	"litres": "l",
	"litre":  "l",
	"liters": "l",
	"liter":  "l",
	"ltrs":   "l",
	"ltr":    "l",
	"watts":  "w",
	"watt":   "w",
	"tons":   "ton",
}

func canonicalSpec(number, unit string) string {
	if u, ok := unitAliases[unit]; ok {
		unit = u
	}
	if f, err := strconv.ParseFloat(number, 64); err == nil {
		number = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return number + unit
}

// Canonicalize lower-cases text and rewrites every measurement into its
// joined canonical form, so "1.5 Litre" and "1.5L" both become "1.5l".
func Canonicalize(text string) string {
	lower := strings.ToLower(text)
	matches := specRe.FindAllStringSubmatchIndex(lower, -1)
	if len(matches) == 0 {
		return lower
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		numStart, numEnd, unitStart, unitEnd := m[2], m[3], m[4], m[5]
		b.WriteString(lower[last:numStart])
		b.WriteString(canonicalSpec(lower[numStart:numEnd], lower[unitStart:unitEnd]))
		last = unitEnd
	}
	b.WriteString(lower[last:])
	return b.String()
}

// Tokenize splits canonicalized text into alphanumeric tokens. Decimal
// numbers stay whole ("1.5l").
func Tokenize(text string) []string {
	return tokenRe.FindAllString(Canonicalize(text), -1)
}

// Specs returns the canonical measurement tokens of text in order of
// appearance, without duplicates.
func Specs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		if IsSpec(tok) && !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// IsSpec reports whether tok is a canonical measurement token.
func IsSpec(tok string) bool {
	return canonicalSpecRe.MatchString(tok)
}

// IsModelLike reports whether tok mixes letters and digits, e.g. "x200"
// or "s23". Measurements are not model-like.
func IsModelLike(tok string) bool {
	if IsSpec(tok) {
		return false
	}
	var letter, digit bool
	for _, r := range tok {
		switch {
		case r >= 'a' && r <= 'z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return letter && digit
}
