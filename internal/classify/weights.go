package classify

import (
	"fmt"
	"math"
	"strings"
)

// Weights is the fixed table that turns evidence into confidence.
type Weights struct {
	Existence  float64
	Processing float64
	Dates      float64
	// ProcessingErrorOverride is the confidence of a technical failure when
	// a matched document errored: the error itself is unambiguous.
	ProcessingErrorOverride float64

	NearMissMin float64
	NearMissMax float64
	PatternHit  float64

	ExhaustiveSearch           float64
	ExhaustiveSearchAlternates float64
	NoReferences               float64

	Administrative float64
}

// DefaultWeights is the weight table used by every Classifier.
var DefaultWeights = Weights{
	Existence:                  0.5,
	Processing:                 0.3,
	Dates:                      0.2,
	ProcessingErrorOverride:    0.8,
	NearMissMin:                0.1,
	NearMissMax:                0.3,
	PatternHit:                 0.1,
	ExhaustiveSearch:           0.3,
	ExhaustiveSearchAlternates: 0.4,
	NoReferences:               0.4,
	Administrative:             1.0,
}

// Scores are the per-category totals of an Evidence value.
type Scores struct {
	Direct          float64 `json:"direct"`
	Circumstantial  float64 `json:"circumstantial"`
	Negative        float64 `json:"negative"`
	Meta            float64 `json:"meta"`
	ProcessingError bool    `json:"processing_error"`
}

// Score totals the evidence. Direct and negative contributions add up;
// circumstantial and meta signals overlap, so each keeps its strongest.
// The processing error override is flagged rather than summed.
func Score(ev Evidence, w Weights) Scores {
	var s Scores
	for _, c := range ev.Direct.Contributions(w) {
		if c.Kind == KindProcessingError {
			s.ProcessingError = true
			continue
		}
		s.Direct += c.Value
	}
	for _, c := range ev.Circumstantial.Contributions(w) {
		s.Circumstantial = math.Max(s.Circumstantial, c.Value)
	}
	for _, c := range ev.Negative.Contributions(w) {
		s.Negative += c.Value
	}
	for _, c := range ev.Meta.Contributions(w) {
		s.Meta = math.Max(s.Meta, c.Value)
	}
	s.Direct = round4(clamp01(s.Direct))
	s.Circumstantial = round4(s.Circumstantial)
	s.Negative = round4(clamp01(s.Negative))
	s.Meta = round4(s.Meta)
	return s
}

// Resolve applies the state rules to scored evidence and returns the state,
// its confidence and a description of the rule that fired.
func Resolve(ev Evidence, s Scores, w Weights) (State, float64, string) {
	switch {
	case s.Meta > 0:
		return StateAdministrative, 1.0, "administrative marker: " + strings.Join(ev.Meta.AdministrativeMarkers, ", ")

	case ev.Direct.WithDates() > 0:
		return StateVerified, s.Direct, fmt.Sprintf("%d of %d matched document(s) yielded policy dates",
			ev.Direct.WithDates(), ev.Direct.Matched())

	case ev.Direct.Matched() > 0:
		if s.ProcessingError {
			return StateTechnicalFailure, round4(math.Max(s.Direct, w.ProcessingErrorOverride)),
				fmt.Sprintf("%d of %d matched document(s) failed processing", len(ev.Direct.Errors()), ev.Direct.Matched())
		}
		return StateTechnicalFailure, s.Direct,
			fmt.Sprintf("%d matched document(s) processed without extractable dates", ev.Direct.Matched())

	case s.Negative > 0:
		conf := round4(s.Negative * (1 - s.Circumstantial))
		if s.Circumstantial > 0 {
			return StateUnverified, conf, fmt.Sprintf("no document cleared the threshold; near-miss evidence %.2f lowers confidence", s.Circumstantial)
		}
		return StateUnverified, conf, "exhaustive search found no reference to this name"

	default:
		return StateUnknown, 0, "evidence insufficient for any rule"
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
