package coverage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coi-audit/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func cand(p model.PolicyType, eff, exp, src string) model.PolicyDateCandidate {
	c := model.PolicyDateCandidate{PolicyType: p, SourceDocument: src}
	if eff != "" {
		c.Effective = day(eff)
	}
	if exp != "" {
		c.Expiration = day(exp)
	}
	return c
}

var auditWindow = model.DateWindow{Start: day("2024-05-01"), End: day("2025-05-01")}

func TestAggregate_RenewalsFormOneSpan(t *testing.T) {
	agg := NewAggregator([]model.PolicyType{model.PolicyGeneralLiability})
	r := agg.Aggregate(auditWindow, []model.PolicyDateCandidate{
		cand(model.PolicyGeneralLiability, "2024-01-01", "2024-06-30", "a.pdf"),
		cand(model.PolicyGeneralLiability, "2024-06-01", "2025-01-01", "b.pdf"),
	})

	span, ok := r.Span(model.PolicyGeneralLiability)
	require.True(t, ok)
	assert.Equal(t, day("2024-01-01"), span.EarliestEffective)
	assert.Equal(t, day("2025-01-01"), span.LatestExpiration)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, span.ContributingDocuments)
	assert.Empty(t, r.Notes)
}

func TestAggregate_GapKinds(t *testing.T) {
	tests := []struct {
		name   string
		cands  []model.PolicyDateCandidate
		kind   GapKind
		ranges []DateRange
	}{
		{
			name:   "starts late",
			cands:  []model.PolicyDateCandidate{cand(model.PolicyGeneralLiability, "2024-06-01", "2025-05-01", "a.pdf")},
			kind:   GapStartsLate,
			ranges: []DateRange{{day("2024-05-01"), day("2024-05-31")}},
		},
		{
			name:   "ends early",
			cands:  []model.PolicyDateCandidate{cand(model.PolicyGeneralLiability, "2024-01-01", "2025-01-01", "a.pdf")},
			kind:   GapEndsEarly,
			ranges: []DateRange{{day("2025-01-02"), day("2025-05-01")}},
		},
		{
			name:  "covered",
			cands: []model.PolicyDateCandidate{cand(model.PolicyGeneralLiability, "2024-01-01", "2025-06-01", "a.pdf")},
			kind:  GapNone,
		},
		{
			name:  "both",
			cands: []model.PolicyDateCandidate{cand(model.PolicyGeneralLiability, "2024-06-01", "2025-01-01", "a.pdf")},
			kind:  GapBoth,
			ranges: []DateRange{
				{day("2024-05-01"), day("2024-05-31")},
				{day("2025-01-02"), day("2025-05-01")},
			},
		},
		{
			name:   "no documents",
			kind:   GapNoDocuments,
			ranges: []DateRange{{day("2024-05-01"), day("2025-05-01")}},
		},
		{
			name:  "missing dates",
			cands: []model.PolicyDateCandidate{cand(model.PolicyGeneralLiability, "2024-06-01", "", "a.pdf")},
			kind:  GapMissingDates,
		},
	}
	agg := NewAggregator([]model.PolicyType{model.PolicyGeneralLiability})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := agg.Aggregate(auditWindow, tt.cands)
			require.Len(t, r.Gaps, 1)
			g := r.Gaps[0]
			assert.Equal(t, tt.kind, g.Kind)
			assert.Equal(t, tt.ranges, g.Ranges)
			assert.Contains(t, g.Detail, "2024-05-01")
			assert.Contains(t, g.Detail, "2025-05-01")
			assert.Equal(t, tt.kind != GapNone, r.HasGaps())
		})
	}
}

func TestAggregate_DetailEmbedsDates(t *testing.T) {
	agg := NewAggregator([]model.PolicyType{model.PolicyWorkersCompensation})
	r := agg.Aggregate(auditWindow, []model.PolicyDateCandidate{
		cand(model.PolicyWorkersCompensation, "2024-06-01", "2025-01-01", "a.pdf"),
	})
	assert.Equal(t,
		"WC coverage 2024-06-01 to 2025-01-01 starts 2024-06-01 after audit start 2024-05-01 and ends 2025-01-01 before audit end 2025-05-01; audit window 2024-05-01 to 2025-05-01",
		r.Gaps[0].Detail)
}

func TestAggregate_MalformedCandidateExcluded(t *testing.T) {
	agg := NewAggregator([]model.PolicyType{model.PolicyGeneralLiability})
	r := agg.Aggregate(auditWindow, []model.PolicyDateCandidate{
		cand(model.PolicyGeneralLiability, "2024-01-01", "2024-06-30", "a.pdf"),
		cand(model.PolicyGeneralLiability, "2025-01-01", "2024-01-01", "bad.pdf"),
		cand(model.PolicyGeneralLiability, "2024-06-01", "2025-01-01", "b.pdf"),
	})

	span, ok := r.Span(model.PolicyGeneralLiability)
	require.True(t, ok)
	assert.Equal(t, day("2024-01-01"), span.EarliestEffective)
	assert.Equal(t, day("2025-01-01"), span.LatestExpiration)
	assert.NotContains(t, span.ContributingDocuments, "bad.pdf")
	require.Len(t, r.Notes, 1)
	assert.Contains(t, r.Notes[0], "bad.pdf excluded: effective 2025-01-01 is after expiration 2024-01-01")
}

func TestAggregate_SpansOnlyForPresentPolicies(t *testing.T) {
	agg := NewAggregator(nil)
	r := agg.Aggregate(auditWindow, []model.PolicyDateCandidate{
		cand(model.PolicyAutomobileLiability, "2024-01-01", "2025-06-01", "auto.pdf"),
		cand(model.PolicyGeneralLiability, "2024-01-01", "2025-06-01", "gl.pdf"),
	})

	require.Len(t, r.Spans, 2)
	assert.Equal(t, model.PolicyGeneralLiability, r.Spans[0].PolicyType)
	assert.Equal(t, model.PolicyAutomobileLiability, r.Spans[1].PolicyType)

	require.Len(t, r.Gaps, 2)
	assert.Equal(t, GapNone, r.Gaps[0].Kind)
	assert.Equal(t, model.PolicyWorkersCompensation, r.Gaps[1].PolicyType)
	assert.Equal(t, GapNoDocuments, r.Gaps[1].Kind)
	assert.Equal(t, "GL: none; WC: no_documents", r.Summary())
}

func TestAggregate_InteriorHoleNoted(t *testing.T) {
	agg := NewAggregator([]model.PolicyType{model.PolicyGeneralLiability})
	r := agg.Aggregate(auditWindow, []model.PolicyDateCandidate{
		cand(model.PolicyGeneralLiability, "2024-01-01", "2024-08-31", "a.pdf"),
		cand(model.PolicyGeneralLiability, "2024-10-01", "2025-10-01", "b.pdf"),
	})

	assert.Equal(t, GapNone, r.Gaps[0].Kind)
	require.Len(t, r.Notes, 1)
	assert.Contains(t, r.Notes[0], "2024-09-01 to 2024-09-30")
}

func TestAggregate_CoverageOutsideWindow(t *testing.T) {
	agg := NewAggregator([]model.PolicyType{model.PolicyGeneralLiability})
	r := agg.Aggregate(auditWindow, []model.PolicyDateCandidate{
		cand(model.PolicyGeneralLiability, "2022-01-01", "2023-01-01", "old.pdf"),
	})
	g := r.Gaps[0]
	assert.Equal(t, GapEndsEarly, g.Kind)
	assert.Equal(t, []DateRange{{day("2024-05-01"), day("2025-05-01")}}, g.Ranges)
}

func TestAggregateRaw(t *testing.T) {
	agg := NewAggregator(nil)
	r := agg.AggregateRaw(auditWindow, []model.RawDateCandidate{
		{PolicyType: model.PolicyGeneralLiability, Effective: "10/18/2023", Expiration: "10/18/2024", Source: "a.pdf"},
		{PolicyType: model.PolicyGeneralLiability, Effective: "10/18/2024", Expiration: "Oct 18, 2025", Source: "b.pdf"},
		{PolicyType: model.PolicyWorkersCompensation, Effective: "Jan 5, 2024", Source: "a.pdf"},
		{PolicyType: model.PolicyWorkersCompensation, Effective: "someday", Expiration: "01/05/2025", Source: "c.pdf"},
	})

	gl, _ := r.Gap(model.PolicyGeneralLiability)
	assert.Equal(t, GapNone, gl.Kind)
	wc, _ := r.Gap(model.PolicyWorkersCompensation)
	assert.Equal(t, GapMissingDates, wc.Kind)
	assert.Contains(t, wc.Detail, "2 WC candidate(s)")

	require.Len(t, r.Notes, 3)
	assert.Contains(t, r.Notes[0], `cannot parse effective date "someday"`)
	assert.Contains(t, r.Notes[1], "no expiration date")
	assert.Contains(t, r.Notes[2], "no effective date")
}

func TestParseCandidates_DefaultsPolicy(t *testing.T) {
	got, notes := ParseCandidates([]model.RawDateCandidate{{Effective: "2024-01-01", Expiration: "2025-01-01"}})
	require.Len(t, got, 1)
	assert.Equal(t, model.PolicyOther, got[0].PolicyType)
	assert.Empty(t, notes)
}

func TestAggregate_Deterministic(t *testing.T) {
	agg := NewAggregator(nil)
	cands := []model.PolicyDateCandidate{
		cand(model.PolicyUmbrellaLiability, "2024-01-01", "2025-01-01", "u.pdf"),
		cand(model.PolicyGeneralLiability, "2024-01-01", "2025-01-01", "g.pdf"),
		cand(model.PolicyAutomobileLiability, "2024-01-01", "2025-01-01", "a.pdf"),
	}
	first := agg.Aggregate(auditWindow, cands)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, agg.Aggregate(auditWindow, cands))
	}
}
