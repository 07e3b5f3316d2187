package codec

import (
	"regexp"
	"strconv"
	"strings"
)

// yearPattern finds a 1-4 digit year token in free-form text. Providers
// write dates as "1820", "15 March 1820", "about 1820", or "1820 BC";
// the last 4-digit-ish token is the year.
var yearPattern = regexp.MustCompile(`\b(\d{1,4})\b`)

// formalPattern matches a GedcomX formal date: a signed year with
// optional month and day, "+1820-03-15" or "-0044".
var formalPattern = regexp.MustCompile(`^([+-])(\d{1,4})(?:-\d{2}(?:-\d{2})?)?$`)

// ParseYear extracts a signed year from a date string. Formal GedcomX
// dates yield their leading signed year; free-form text yields its last
// numeric token. BC years are negative. Unparseable input ("?" and
// friends) yields nil.
func ParseYear(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" || s == "?" {
		return nil
	}
	if m := formalPattern.FindStringSubmatch(s); m != nil {
		year, err := strconv.Atoi(m[2])
		if err != nil || year == 0 {
			return nil
		}
		if m[1] == "-" {
			year = -year
		}
		return &year
	}
	bc := false
	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, " BC") || strings.HasSuffix(upper, " B.C.") ||
		strings.HasSuffix(upper, " BCE") {
		bc = true
	}

	matches := yearPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil
	}
	// The year is the last numeric token: "15 March 1820" -> 1820.
	year, err := strconv.Atoi(matches[len(matches)-1])
	if err != nil || year == 0 {
		return nil
	}
	if bc {
		year = -year
	}
	return &year
}
