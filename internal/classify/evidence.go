package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/coi-audit/internal/document"
	"github.com/sells-group/coi-audit/internal/match"
	"github.com/sells-group/coi-audit/internal/model"
)

// Contribution is one weighted signal inside an evidence category.
// Values are always within [0, 1].
type Contribution struct {
	Kind   string  `json:"kind"`
	Value  float64 `json:"value"`
	Detail string  `json:"detail"`
}

// Evidence kinds.
const (
	KindDocumentExists   = "document_exists"
	KindProcessed        = "processed"
	KindDatesExtracted   = "dates_extracted"
	KindProcessingError  = "processing_error"
	KindNearMiss         = "near_miss"
	KindPatternHit       = "directory_pattern"
	KindExhaustiveSearch = "exhaustive_search"
	KindNoReferences     = "no_references"
	KindAdministrative   = "administrative_marker"
)

// DocumentOutcome is what happened to one matched document.
type DocumentOutcome struct {
	Match      match.Candidate          `json:"match"`
	Processed  bool                     `json:"processed"`
	Candidates []model.RawDateCandidate `json:"candidates,omitempty"`
	Notes      []string                 `json:"notes,omitempty"`
	ErrorKind  document.Category        `json:"error_category,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// HasDates reports whether processing yielded at least one candidate with
// both an effective and an expiration date.
func (o DocumentOutcome) HasDates() bool {
	if !o.Processed {
		return false
	}
	for _, c := range o.Candidates {
		if c.Effective != "" && c.Expiration != "" {
			return true
		}
	}
	return false
}

// Direct is evidence from matched documents.
type Direct struct {
	Exact     bool              `json:"exact"`
	BestScore float64           `json:"best_score"`
	Documents []DocumentOutcome `json:"documents,omitempty"`
}

// Matched returns the number of matched documents.
func (d Direct) Matched() int { return len(d.Documents) }

// Processed returns the number of documents processed without error.
func (d Direct) Processed() int {
	n := 0
	for _, o := range d.Documents {
		if o.Processed {
			n++
		}
	}
	return n
}

// WithDates returns the number of processed documents that yielded dates.
func (d Direct) WithDates() int {
	n := 0
	for _, o := range d.Documents {
		if o.HasDates() {
			n++
		}
	}
	return n
}

// Errors returns the documents whose processing failed.
func (d Direct) Errors() []DocumentOutcome {
	var out []DocumentOutcome
	for _, o := range d.Documents {
		if !o.Processed {
			out = append(out, o)
		}
	}
	return out
}

// Contributions implements the direct category of the weight table.
// Existence scales with match quality: an exact match counts fully, a
// fuzzy match by its score.
func (d Direct) Contributions(w Weights) []Contribution {
	n := d.Matched()
	if n == 0 {
		return nil
	}

	quality := d.BestScore / 100
	if d.Exact {
		quality = 1
	}
	out := []Contribution{
		{
			Kind:   KindDocumentExists,
			Value:  w.Existence * clamp01(quality),
			Detail: fmt.Sprintf("%d matched document(s), best %s", n, describeMatch(d.Documents[0].Match)),
		},
		{
			Kind:   KindProcessed,
			Value:  w.Processing * float64(d.Processed()) / float64(n),
			Detail: fmt.Sprintf("%d of %d processed", d.Processed(), n),
		},
		{
			Kind:   KindDatesExtracted,
			Value:  w.Dates * float64(d.WithDates()) / float64(n),
			Detail: fmt.Sprintf("%d of %d yielded policy dates", d.WithDates(), n),
		},
	}
	if errs := d.Errors(); len(errs) > 0 {
		parts := make([]string, len(errs))
		for i, o := range errs {
			parts[i] = fmt.Sprintf("%s: %s", o.Match.Filename, o.ErrorKind)
		}
		out = append(out, Contribution{
			Kind:   KindProcessingError,
			Value:  w.ProcessingErrorOverride,
			Detail: strings.Join(parts, "; "),
		})
	}
	return out
}

// Circumstantial is supporting context gathered when no document cleared
// the matching threshold.
type Circumstantial struct {
	NearMisses  []match.Candidate `json:"near_misses,omitempty"`
	PatternHits []string          `json:"pattern_hits,omitempty"`
	Floor       float64           `json:"floor"`
	Threshold   float64           `json:"threshold"`
	Variations  []string          `json:"variations_tried,omitempty"`
}

// BestNearMiss returns the highest sub-threshold candidate, if any.
func (c Circumstantial) BestNearMiss() (match.Candidate, bool) {
	if len(c.NearMisses) == 0 {
		return match.Candidate{}, false
	}
	return c.NearMisses[0], true
}

// Contributions implements the circumstantial category. A near miss maps
// linearly from the floor (lowest weight) to just under the threshold
// (highest weight).
func (c Circumstantial) Contributions(w Weights) []Contribution {
	var out []Contribution
	if best, ok := c.BestNearMiss(); ok {
		span := c.Threshold - c.Floor
		frac := 1.0
		if span > 0 {
			frac = clamp01((best.Score - c.Floor) / span)
		}
		out = append(out, Contribution{
			Kind:   KindNearMiss,
			Value:  w.NearMissMin + (w.NearMissMax-w.NearMissMin)*frac,
			Detail: fmt.Sprintf("%d near miss(es), best %s", len(c.NearMisses), describeMatch(best)),
		})
	}
	if len(c.PatternHits) > 0 {
		out = append(out, Contribution{
			Kind:   KindPatternHit,
			Value:  w.PatternHit,
			Detail: "files sharing the leading name words: " + strings.Join(c.PatternHits, ", "),
		})
	}
	return out
}

// Negative records how thoroughly absence was confirmed.
type Negative struct {
	SearchCompleted   bool `json:"search_completed"`
	AlternatesChecked bool `json:"alternates_checked"`
	NoReferences      bool `json:"no_references"`
	EntriesSearched   int  `json:"entries_searched"`
}

// Contributions implements the negative category.
func (n Negative) Contributions(w Weights) []Contribution {
	if !n.SearchCompleted {
		return nil
	}
	search := Contribution{
		Kind:   KindExhaustiveSearch,
		Value:  w.ExhaustiveSearch,
		Detail: fmt.Sprintf("searched %d file(s) in the certificate folder", n.EntriesSearched),
	}
	if n.AlternatesChecked {
		search.Value = w.ExhaustiveSearchAlternates
		search.Detail += " and alternate folders"
	}
	out := []Contribution{search}
	if n.NoReferences {
		out = append(out, Contribution{
			Kind:   KindNoReferences,
			Value:  w.NoReferences,
			Detail: "no file references this name, even below the matching threshold",
		})
	}
	return out
}

// Meta holds administrative-entry markers.
type Meta struct {
	AdministrativeMarkers []string `json:"administrative_markers,omitempty"`
}

// Contributions implements the meta category.
func (m Meta) Contributions(w Weights) []Contribution {
	if len(m.AdministrativeMarkers) == 0 {
		return nil
	}
	return []Contribution{{
		Kind:   KindAdministrative,
		Value:  w.Administrative,
		Detail: strings.Join(m.AdministrativeMarkers, ", "),
	}}
}

// Evidence bundles the four categories for one subcontractor.
type Evidence struct {
	Direct         Direct         `json:"direct"`
	Circumstantial Circumstantial `json:"circumstantial"`
	Negative       Negative       `json:"negative"`
	Meta           Meta           `json:"meta"`
	Notes          []string       `json:"notes,omitempty"`
}

// Contributions lists every contribution keyed by category name, in a
// fixed category order.
func (e Evidence) Contributions(w Weights) map[string][]Contribution {
	return map[string][]Contribution{
		"direct":         e.Direct.Contributions(w),
		"circumstantial": e.Circumstantial.Contributions(w),
		"negative":       e.Negative.Contributions(w),
		"meta":           e.Meta.Contributions(w),
	}
}

// Categories is the fixed category order used in reports.
var Categories = []string{"direct", "circumstantial", "negative", "meta"}

func describeMatch(c match.Candidate) string {
	return fmt.Sprintf("%q at %.1f (%s)", c.Filename, c.Score, c.Algorithm)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func sortedUnique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
