package classify

import (
	"fmt"
	"strings"

	"github.com/sells-group/coi-audit/internal/model"
)

// Diagnostic is the manual-review record attached to every result that is
// not VERIFIED.
type Diagnostic struct {
	SubcontractorID   string   `json:"subcontractor_id"`
	SubcontractorName string   `json:"subcontractor_name"`
	State             State    `json:"state"`
	Confidence        float64  `json:"confidence"`
	Action            Action   `json:"recommended_action"`
	Rule              string   `json:"rule"`
	DocumentFound     bool     `json:"document_found"`
	DocumentProcessed bool     `json:"document_processed"`
	DatesExtracted    bool     `json:"dates_extracted"`
	NearMissCount     int      `json:"near_miss_count"`
	ExhaustiveSearch  bool     `json:"exhaustive_search"`
	ProcessingErrors  []string `json:"processing_errors,omitempty"`
	Hints             []string `json:"manual_review_hints"`
}

// Diagnose builds the review record for r. It returns false for VERIFIED
// results, which need no review.
func Diagnose(sub model.Subcontractor, r Result) (Diagnostic, bool) {
	if r.State == StateVerified {
		return Diagnostic{}, false
	}
	ev := r.Evidence
	d := Diagnostic{
		SubcontractorID:   sub.ID,
		SubcontractorName: sub.Name,
		State:             r.State,
		Confidence:        r.Confidence,
		Action:            r.Action,
		Rule:              r.Rule,
		DocumentFound:     ev.Direct.Matched() > 0,
		DocumentProcessed: ev.Direct.Processed() > 0,
		DatesExtracted:    ev.Direct.WithDates() > 0,
		NearMissCount:     len(ev.Circumstantial.NearMisses),
		ExhaustiveSearch:  ev.Negative.SearchCompleted,
	}
	for _, o := range ev.Direct.Errors() {
		d.ProcessingErrors = append(d.ProcessingErrors, o.Match.Filename+": "+o.Error)
	}
	d.Hints = hints(r)
	return d, true
}

func hints(r Result) []string {
	ev := r.Evidence
	var out []string
	switch r.State {
	case StateTechnicalFailure:
		if len(ev.Direct.Errors()) > 0 {
			out = append(out, "Certificate file exists but processing failed; check for corruption, encryption or an unsupported format")
		} else {
			out = append(out, "Certificate file was read but no policy dates were found; it may be a scan without a text layer")
		}
		if len(ev.Direct.Documents) > 0 && !ev.Direct.Exact {
			best := ev.Direct.Documents[0].Match
			out = append(out, fmt.Sprintf("Confirm that %q (similarity %.1f%%) belongs to this subcontractor", best.Filename, best.Score))
		}
	case StateUnverified:
		out = append(out, "No certificate found after exhaustive search; likely missing")
		if best, ok := ev.Circumstantial.BestNearMiss(); ok {
			out = append(out, fmt.Sprintf("Closest file %q scored %.1f%%, below the %.0f%% threshold; check for a misnamed file", best.Filename, best.Score, ev.Circumstantial.Threshold))
		}
		if len(ev.Circumstantial.PatternHits) > 0 {
			out = append(out, "Files sharing the leading name words: "+strings.Join(ev.Circumstantial.PatternHits, ", "))
		}
		if len(ev.Circumstantial.Variations) > 0 {
			out = append(out, "Searched for variations: "+strings.Join(ev.Circumstantial.Variations, ", "))
		}
	case StateAdministrative:
		out = append(out, "Entry appears to be administrative rather than a business; safe to skip")
		if len(ev.Meta.AdministrativeMarkers) > 0 {
			out = append(out, "Administrative markers: "+strings.Join(ev.Meta.AdministrativeMarkers, ", "))
		}
	default:
		out = append(out, "Classification uncertain; requires manual investigation")
		out = append(out, ev.Notes...)
	}
	if r.Confidence < 0.5 && r.State != StateAdministrative {
		out = append(out, "Low confidence; review the evidence carefully")
	}
	return out
}

// Summary renders a one-line description of r for logs and report cells.
func Summary(r Result) string {
	return fmt.Sprintf("%s (confidence %.2f): %s; action %s", r.State, r.Confidence, r.Rule, r.Action)
}
