package importance

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// romanCanonical matches a canonical Roman numeral in the range 1..3999,
// case-insensitively.
var romanCanonical = regexp.MustCompile(`(?i)^M{0,3}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)

func isCanonicalRoman(s string) bool {
	if s == "" {
		return false
	}
	return romanCanonical.MatchString(s)
}

var bulletRunes = "-*+•‣∙·"

var dashVariants = "-－–—−"

// blockQuoteRe matches one or more leading '>' markers, each optionally
// followed by whitespace.
var blockQuoteRe = regexp.MustCompile(`^(>\s*)+`)

var checkboxRe = regexp.MustCompile(`^\[[ xX✓✔]\]\s*`)

// orderedListRe matches "1.", "1)", "(1)", "a.", "a)", "(a)", and Roman
// numeral variants "iv.", "(iv)" as a single leading token.
var orderedListRe = regexp.MustCompile(`^(\(([a-zA-Z]+|[0-9]+)\)|([a-zA-Z]+|[0-9]+)[.)])\s*`)

// stripLeadingWrappers repeatedly removes block quotes, list bullets,
// checkboxes, and ordered-list prefixes from the front of s, validating
// Roman-numeral tokens against the canonical 1-3999 form.
func stripLeadingWrappers(s string) string {
	for {
		trimmed := strings.TrimLeft(s, " \t")
		if m := blockQuoteRe.FindString(trimmed); m != "" {
			s = trimmed[len(m):]
			continue
		}
		if len(trimmed) > 0 && strings.ContainsRune(bulletRunes, rune(trimmed[0])) {
			rest := trimmed[1:]
			s = strings.TrimLeft(rest, " \t")
			continue
		}
		if m := checkboxRe.FindString(trimmed); m != "" {
			s = trimmed[len(m):]
			continue
		}
		if loc := orderedListRe.FindStringSubmatchIndex(trimmed); loc != nil {
			token := orderedListToken(trimmed[loc[0]:loc[1]])
			if token == "" || isCanonicalRoman(token) || isSingleLatinLetter(token) || isDigits(token) {
				s = trimmed[loc[1]:]
				continue
			}
		}
		s = trimmed
		break
	}
	return s
}

func orderedListToken(tok string) string {
	tok = strings.TrimPrefix(tok, "(")
	tok = strings.TrimSuffix(strings.TrimSpace(tok), ")")
	tok = strings.TrimSuffix(tok, ".")
	tok = strings.TrimSuffix(tok, ")")
	return strings.TrimSpace(tok)
}

func isSingleLatinLetter(s string) bool {
	return len(s) == 1 && ((s[0] >= 'a' && s[0] <= 'z') || (s[0] >= 'A' && s[0] <= 'Z'))
}

func isDigits(s string) bool {
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

var bracketPairs = map[rune]rune{
	'[': ']',
	'(': ')',
	'【': '】',
}

// unwrapMatchedBrackets removes a leading opening bracket together with the
// first matching closing bracket after it, so both "[TODO] text" and
// "[TODO: text]" expose the marker. Without a matching close, s is returned
// unchanged.
func unwrapMatchedBrackets(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	close, ok := bracketPairs[runes[0]]
	if !ok {
		return s
	}
	for i := 1; i < len(runes); i++ {
		if runes[i] == close {
			return string(runes[1:i]) + string(runes[i+1:])
		}
	}
	return s
}

var markers = []string{"TODO", "TASK", "REMINDER"}

// HasTaskMarker reports whether summary begins with a task marker per
// spec §4.2: after NFKC normalization and stripping leading wrappers
// (block quotes, list bullets, checkboxes, ordered-list prefixes), the
// remaining text -- possibly wrapped in one level of matched brackets --
// begins with TODO, TASK, or REMINDER (case-insensitive) followed by
// end-of-string, whitespace, a colon, or a dash variant.
func HasTaskMarker(summary string) bool {
	s := norm.NFKC.String(summary)
	s = stripLeadingWrappers(s)
	s = unwrapMatchedBrackets(s)
	s = strings.TrimLeft(s, " \t")
	upper := strings.ToUpper(s)
	for _, m := range markers {
		if !strings.HasPrefix(upper, m) {
			continue
		}
		rest := s[len(m):]
		if rest == "" {
			return true
		}
		r := []rune(rest)[0]
		if r == ' ' || r == '\t' || r == '\n' || r == ':' || r == '：' || strings.ContainsRune(dashVariants, r) {
			return true
		}
	}
	return false
}
