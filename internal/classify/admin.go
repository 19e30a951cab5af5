package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

type adminPattern struct {
	marker string
	re     *regexp.Regexp
}

// Built-in patterns match the whole trimmed name, case-insensitively.
var builtinAdminPatterns = []adminPattern{
	{"totals row", regexp.MustCompile(`(?i)^((sub|grand)[\s-]?)?totals?:?$`)},
	{"header row", regexp.MustCompile(`(?i)^header$`)},
	{"footer row", regexp.MustCompile(`(?i)^footer$`)},
	{"summary row", regexp.MustCompile(`(?i)^summary:?$`)},
	{"placeholder", regexp.MustCompile(`(?i)^(n/?a|tbd|pending)$`)},
	{"status marker", regexp.MustCompile(`(?i)^(inactive|terminated|cancel+ed|void)$`)},
	{"numeric only", regexp.MustCompile(`^[\d\s.,#-]*\d[\d\s.,#-]*$`)},
}

// AdminDetector recognizes roster rows that are not real subcontractors.
type AdminDetector struct {
	patterns []adminPattern
}

// NewAdminDetector compiles extra patterns on top of the built-in set.
// Extra patterns are matched case-insensitively against the trimmed name.
func NewAdminDetector(extra []string) (*AdminDetector, error) {
	d := builtinAdminDetector()
	for _, p := range extra {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, eris.Wrapf(err, "classify: compile administrative pattern %q", p)
		}
		d.patterns = append(d.patterns, adminPattern{marker: "custom pattern " + p, re: re})
	}
	return d, nil
}

func builtinAdminDetector() *AdminDetector {
	return &AdminDetector{patterns: append([]adminPattern(nil), builtinAdminPatterns...)}
}

// Markers returns every administrative marker the name carries.
func (d *AdminDetector) Markers(name string) []string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return []string{"blank name"}
	}

	var out []string
	for _, p := range d.patterns {
		if p.re.MatchString(trimmed) {
			out = append(out, p.marker)
		}
	}
	if utf8.RuneCountInString(trimmed) <= 2 {
		out = append(out, "name too short")
	}
	return out
}
