package normalize

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Stem holds the comparable forms of one file name.
type Stem struct {
	Raw       string `json:"raw"`       // file name without extension or date stamp
	Canonical string `json:"canonical"` // same rules as the original name variation
	Compact   string `json:"compact"`   // punctuation removed, words kept apart
	Spaced    string `json:"spaced"`    // punctuation replaced by spaces
}

// Forms returns the distinct non-empty forms, canonical first.
func (s Stem) Forms() []string {
	out := make([]string, 0, 3)
	for _, f := range []string{s.Canonical, s.Compact, s.Spaced} {
		if f == "" {
			continue
		}
		dup := false
		for _, o := range out {
			if o == f {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}

var (
	// Trailing date stamps: _2023-10-18, " 10-18-2023", _20231018, _10.18.23
	trailingDate = regexp.MustCompile(`[\s_\-]*(\d{4}[-_.]\d{1,2}[-_.]\d{1,2}|\d{1,2}[-_.]\d{1,2}[-_.]\d{2,4}|\d{8})$`)
	// Trailing document markers: "_COI", " - Certificate of Insurance"
	trailingMarker = regexp.MustCompile(`(?i)[\s_\-]+(coi|certificate(\s+of\s+insurance)?|cert)$`)
)

// Stem normalizes a file name for matching. Extensions, trailing date
// stamps and certificate markers are removed before the canonical forms
// are built.
func (n *Normalizer) Stem(filename string) Stem {
	base := filepath.Base(filename)
	raw := strings.TrimSuffix(base, filepath.Ext(base))
	for {
		next := trailingMarker.ReplaceAllString(trailingDate.ReplaceAllString(raw, ""), "")
		next = strings.TrimSpace(next)
		if next == raw || next == "" {
			break
		}
		raw = next
	}

	prepared := prepare(raw)
	return Stem{
		Raw:       raw,
		Canonical: strings.Join(n.canonicalTokens(prepared), ""),
		Compact:   removePunctuation(prepared),
		Spaced:    punctuationAsSpace(prepared),
	}
}
