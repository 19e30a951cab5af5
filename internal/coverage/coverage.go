// Package coverage turns policy date candidates into per-policy coverage
// spans and gap descriptors against an audit window.
package coverage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/coi-audit/internal/model"
)

// GapKind classifies how a policy's coverage relates to the audit window.
type GapKind string

const (
	GapNone         GapKind = "none"
	GapStartsLate   GapKind = "starts_late"
	GapEndsEarly    GapKind = "ends_early"
	GapBoth         GapKind = "both"
	GapMissingDates GapKind = "missing_dates"
	GapNoDocuments  GapKind = "no_documents"
)

// CoverageSpan is the union envelope of every valid candidate of one policy
// type. Renewals are treated as continuous coverage.
type CoverageSpan struct {
	PolicyType            model.PolicyType `json:"policy_type"`
	EarliestEffective     time.Time        `json:"earliest_effective"`
	LatestExpiration      time.Time        `json:"latest_expiration"`
	ContributingDocuments []string         `json:"contributing_documents"`
}

// DateRange is an inclusive interval of days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) String() string {
	return format(r.Start) + " to " + format(r.End)
}

// GapDescriptor is the verdict for one required policy type.
type GapDescriptor struct {
	PolicyType model.PolicyType `json:"policy_type"`
	Kind       GapKind          `json:"kind"`
	Detail     string           `json:"detail"`
	// Ranges are the uncovered parts of the window, if any.
	Ranges []DateRange `json:"ranges,omitempty"`
}

// Report is the aggregation result for one subcontractor.
type Report struct {
	Spans []CoverageSpan  `json:"spans"`
	Gaps  []GapDescriptor `json:"gaps"`
	Notes []string        `json:"notes,omitempty"`
}

// HasGaps reports whether any required policy is not fully covered.
func (r Report) HasGaps() bool {
	for _, g := range r.Gaps {
		if g.Kind != GapNone {
			return true
		}
	}
	return false
}

// Gap returns the descriptor for p.
func (r Report) Gap(p model.PolicyType) (GapDescriptor, bool) {
	for _, g := range r.Gaps {
		if g.PolicyType == p {
			return g, true
		}
	}
	return GapDescriptor{}, false
}

// Span returns the span for p.
func (r Report) Span(p model.PolicyType) (CoverageSpan, bool) {
	for _, s := range r.Spans {
		if s.PolicyType == p {
			return s, true
		}
	}
	return CoverageSpan{}, false
}

// Summary renders "GL: none; WC: no_documents".
func (r Report) Summary() string {
	parts := make([]string, len(r.Gaps))
	for i, g := range r.Gaps {
		parts[i] = g.PolicyType.Label() + ": " + string(g.Kind)
	}
	return strings.Join(parts, "; ")
}

// Aggregator computes coverage for a fixed set of required policy types.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	required []model.PolicyType
}

// NewAggregator returns an Aggregator for required, falling back to the
// default required policies when the list is empty.
func NewAggregator(required []model.PolicyType) *Aggregator {
	if len(required) == 0 {
		required = model.DefaultRequiredPolicies()
	}
	return &Aggregator{required: append([]model.PolicyType(nil), required...)}
}

// Required returns the policy types every report carries a gap for.
func (a *Aggregator) Required() []model.PolicyType {
	return append([]model.PolicyType(nil), a.required...)
}

// ParseCandidates converts raw candidates. Dates that cannot be parsed are
// left zero and noted; the candidate itself is kept so the policy still
// counts as documented.
func ParseCandidates(raws []model.RawDateCandidate) ([]model.PolicyDateCandidate, []string) {
	out := make([]model.PolicyDateCandidate, 0, len(raws))
	var notes []string
	for _, r := range raws {
		c := model.PolicyDateCandidate{PolicyType: r.PolicyType, SourceDocument: r.Source}
		if c.PolicyType == "" {
			c.PolicyType = model.PolicyOther
		}
		for _, f := range []struct {
			name string
			raw  string
			dst  *time.Time
		}{
			{"effective", r.Effective, &c.Effective},
			{"expiration", r.Expiration, &c.Expiration},
		} {
			if strings.TrimSpace(f.raw) == "" {
				continue
			}
			t, err := ParseDate(f.raw)
			if err != nil {
				notes = append(notes, fmt.Sprintf("%s candidate from %s: cannot parse %s date %q",
					c.PolicyType.Label(), r.Source, f.name, f.raw))
				continue
			}
			*f.dst = t
		}
		out = append(out, c)
	}
	return out, notes
}

// AggregateRaw parses raws and aggregates them in one step.
func (a *Aggregator) AggregateRaw(window model.DateWindow, raws []model.RawDateCandidate) Report {
	cands, notes := ParseCandidates(raws)
	r := a.Aggregate(window, cands)
	r.Notes = append(notes, r.Notes...)
	return r
}

// Aggregate computes one span per policy type with valid dates and one gap
// descriptor per required policy type. Candidates missing a date or with
// the effective date after the expiration date are excluded and noted.
func (a *Aggregator) Aggregate(window model.DateWindow, cands []model.PolicyDateCandidate) Report {
	var r Report
	seen := make(map[model.PolicyType]int)
	valid := make(map[model.PolicyType][]model.PolicyDateCandidate)

	for _, c := range cands {
		seen[c.PolicyType]++
		switch {
		case !c.Complete():
			r.Notes = append(r.Notes, fmt.Sprintf("%s candidate from %s excluded: %s",
				c.PolicyType.Label(), c.SourceDocument, missingWhich(c)))
		case c.Effective.After(c.Expiration):
			r.Notes = append(r.Notes, fmt.Sprintf("%s candidate from %s excluded: effective %s is after expiration %s",
				c.PolicyType.Label(), c.SourceDocument, format(c.Effective), format(c.Expiration)))
		default:
			valid[c.PolicyType] = append(valid[c.PolicyType], c)
		}
	}

	for _, p := range sortedPolicies(valid) {
		span := spanOf(p, valid[p])
		r.Spans = append(r.Spans, span)
		if hole, ok := interiorHole(valid[p]); ok {
			r.Notes = append(r.Notes, fmt.Sprintf("%s has no policy in force from %s; renewals are treated as continuous",
				p.Label(), hole))
		}
	}

	for _, p := range a.required {
		r.Gaps = append(r.Gaps, gapFor(p, window, r, seen[p]))
	}
	return r
}

func spanOf(p model.PolicyType, cands []model.PolicyDateCandidate) CoverageSpan {
	s := CoverageSpan{PolicyType: p, EarliestEffective: cands[0].Effective, LatestExpiration: cands[0].Expiration}
	var docs []string
	for _, c := range cands {
		if c.Effective.Before(s.EarliestEffective) {
			s.EarliestEffective = c.Effective
		}
		if c.Expiration.After(s.LatestExpiration) {
			s.LatestExpiration = c.Expiration
		}
		docs = append(docs, c.SourceDocument)
	}
	s.ContributingDocuments = uniqueSorted(docs)
	return s
}

func gapFor(p model.PolicyType, w model.DateWindow, r Report, candidates int) GapDescriptor {
	g := GapDescriptor{PolicyType: p}
	span, ok := r.Span(p)
	switch {
	case candidates == 0:
		g.Kind = GapNoDocuments
		g.Detail = fmt.Sprintf("no %s certificate found for audit window %s", p.Label(), w)
		g.Ranges = []DateRange{{Start: w.Start, End: w.End}}
		return g
	case !ok:
		g.Kind = GapMissingDates
		g.Detail = fmt.Sprintf("%d %s candidate(s) found but none has valid effective and expiration dates; audit window %s",
			candidates, p.Label(), w)
		return g
	}

	late := span.EarliestEffective.After(w.Start)
	early := span.LatestExpiration.Before(w.End)
	coverage := format(span.EarliestEffective) + " to " + format(span.LatestExpiration)
	var reasons []string
	if late {
		reasons = append(reasons, fmt.Sprintf("starts %s after audit start %s",
			format(span.EarliestEffective), format(w.Start)))
		g.Ranges = append(g.Ranges, clip(w, w.Start, span.EarliestEffective.AddDate(0, 0, -1)))
	}
	if early {
		reasons = append(reasons, fmt.Sprintf("ends %s before audit end %s",
			format(span.LatestExpiration), format(w.End)))
		g.Ranges = append(g.Ranges, clip(w, span.LatestExpiration.AddDate(0, 0, 1), w.End))
	}

	switch {
	case late && early:
		g.Kind = GapBoth
	case late:
		g.Kind = GapStartsLate
	case early:
		g.Kind = GapEndsEarly
	default:
		g.Kind = GapNone
		g.Detail = fmt.Sprintf("%s coverage %s spans audit window %s", p.Label(), coverage, w)
		return g
	}
	g.Detail = fmt.Sprintf("%s coverage %s %s; audit window %s", p.Label(), coverage, strings.Join(reasons, " and "), w)
	return g
}

// clip bounds [from, to] to the window.
func clip(w model.DateWindow, from, to time.Time) DateRange {
	if from.Before(w.Start) {
		from = w.Start
	}
	if to.After(w.End) {
		to = w.End
	}
	return DateRange{Start: from, End: to}
}

// interiorHole finds the first stretch between policies where none is in
// force. It does not affect the gap kind.
func interiorHole(cands []model.PolicyDateCandidate) (DateRange, bool) {
	sorted := append([]model.PolicyDateCandidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Effective.Before(sorted[j].Effective)
	})
	covered := sorted[0].Expiration
	for _, c := range sorted[1:] {
		if c.Effective.After(covered.AddDate(0, 0, 1)) {
			return DateRange{Start: covered.AddDate(0, 0, 1), End: c.Effective.AddDate(0, 0, -1)}, true
		}
		if c.Expiration.After(covered) {
			covered = c.Expiration
		}
	}
	return DateRange{}, false
}

func missingWhich(c model.PolicyDateCandidate) string {
	switch {
	case c.Effective.IsZero() && c.Expiration.IsZero():
		return "no dates"
	case c.Effective.IsZero():
		return "no effective date"
	default:
		return "no expiration date"
	}
}

var policyOrder = []model.PolicyType{
	model.PolicyGeneralLiability,
	model.PolicyWorkersCompensation,
	model.PolicyAutomobileLiability,
	model.PolicyUmbrellaLiability,
	model.PolicyOther,
}

func sortedPolicies(m map[model.PolicyType][]model.PolicyDateCandidate) []model.PolicyType {
	rank := func(p model.PolicyType) int {
		for i, o := range policyOrder {
			if o == p {
				return i
			}
		}
		return len(policyOrder)
	}
	out := make([]model.PolicyType, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
