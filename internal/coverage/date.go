package coverage

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// dateLayouts are tried in order. Go month names parse case-insensitively.
var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"1-2-2006",
	"2006/1/2",
	"1.2.2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"20060102",
}

var (
	twoDigitYear = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{2})$`)
	spaces       = regexp.MustCompile(`\s+`)
	monthDot     = regexp.MustCompile(`(?i)^([a-z]{3,9})\.`)
)

// yearPivot splits two-digit years: below it is 20xx, otherwise 19xx.
const yearPivot = 70

// ParseDate parses the date formats found on certificates into a UTC
// calendar date. Month/day order is US (month first).
func ParseDate(s string) (time.Time, error) {
	v := strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	if v == "" {
		return time.Time{}, eris.New("coverage: empty date")
	}

	if m := twoDigitYear.FindStringSubmatch(v); m != nil {
		return twoDigit(m[1], m[2], m[3], s)
	}

	v = monthDot.ReplaceAllString(v, "$1")
	if strings.HasPrefix(strings.ToLower(v), "sept ") {
		v = "Sep" + v[4:]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("coverage: unrecognized date %q", s)
}

func twoDigit(month, day, year, raw string) (time.Time, error) {
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	y, _ := strconv.Atoi(year)
	if y < yearPivot {
		y += 2000
	} else {
		y += 1900
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow; a round trip catches 02/30/24.
	if t.Month() != time.Month(mo) || t.Day() != d {
		return time.Time{}, eris.Errorf("coverage: invalid date %q", raw)
	}
	return t, nil
}

func format(t time.Time) string {
	return t.Format("2006-01-02")
}
