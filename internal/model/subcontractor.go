package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Subcontractor is one roster entry under audit. It is read once from the
// record source and never mutated afterwards.
type Subcontractor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Row  int    `json:"row,omitempty"` // 1-based source row
}

// PolicyType identifies the line of insurance a date pair belongs to.
type PolicyType string

const (
	PolicyGeneralLiability    PolicyType = "general_liability"
	PolicyWorkersCompensation PolicyType = "workers_compensation"
	PolicyAutomobileLiability PolicyType = "automobile_liability"
	PolicyUmbrellaLiability   PolicyType = "umbrella_liability"
	PolicyOther               PolicyType = "other"
)

var policyAliases = map[string]PolicyType{
	"general_liability":    PolicyGeneralLiability,
	"gl":                   PolicyGeneralLiability,
	"cgl":                  PolicyGeneralLiability,
	"workers_compensation": PolicyWorkersCompensation,
	"wc":                   PolicyWorkersCompensation,
	"automobile_liability": PolicyAutomobileLiability,
	"auto":                 PolicyAutomobileLiability,
	"al":                   PolicyAutomobileLiability,
	"umbrella_liability":   PolicyUmbrellaLiability,
	"umb":                  PolicyUmbrellaLiability,
	"ul":                   PolicyUmbrellaLiability,
	"other":                PolicyOther,
}

// ParsePolicyType resolves a canonical policy name or short code.
func ParsePolicyType(s string) (PolicyType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if p, ok := policyAliases[key]; ok {
		return p, nil
	}
	return "", eris.Errorf("model: unknown policy type %q", s)
}

// Label returns the short report label (GL, WC, ...).
func (p PolicyType) Label() string {
	switch p {
	case PolicyGeneralLiability:
		return "GL"
	case PolicyWorkersCompensation:
		return "WC"
	case PolicyAutomobileLiability:
		return "AL"
	case PolicyUmbrellaLiability:
		return "UL"
	default:
		return "OTHER"
	}
}

// DefaultRequiredPolicies are the policy types every audit checks unless
// configured otherwise.
func DefaultRequiredPolicies() []PolicyType {
	return []PolicyType{PolicyGeneralLiability, PolicyWorkersCompensation}
}

// RawDateCandidate is an unparsed effective/expiration pair as handed over
// by a document processor.
type RawDateCandidate struct {
	PolicyType PolicyType `json:"policy_type"`
	Effective  string     `json:"effective"`
	Expiration string     `json:"expiration"`
	Source     string     `json:"source"`
	Note       string     `json:"note,omitempty"`
}

// PolicyDateCandidate is a parsed pair. A zero time means the date is absent.
type PolicyDateCandidate struct {
	PolicyType     PolicyType `json:"policy_type"`
	Effective      time.Time  `json:"effective_date"`
	Expiration     time.Time  `json:"expiration_date"`
	SourceDocument string     `json:"source_document"`
}

// Complete reports whether both dates are present.
func (c PolicyDateCandidate) Complete() bool {
	return !c.Effective.IsZero() && !c.Expiration.IsZero()
}

// DateLayout is the canonical calendar date layout used in reports and config.
const DateLayout = "2006-01-02"

// DateWindow is an inclusive audit period.
type DateWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateWindow parses two YYYY-MM-DD bounds.
func NewDateWindow(start, end string) (DateWindow, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return DateWindow{}, eris.Wrapf(err, "model: parse window start %q", start)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return DateWindow{}, eris.Wrapf(err, "model: parse window end %q", end)
	}
	w := DateWindow{Start: s, End: e}
	return w, w.Validate()
}

// Validate rejects inverted windows.
func (w DateWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return eris.New("model: audit window bounds are required")
	}
	if w.Start.After(w.End) {
		return eris.Errorf("model: audit window start %s is after end %s",
			w.Start.Format(DateLayout), w.End.Format(DateLayout))
	}
	return nil
}

// Contains reports whether d falls inside the window, bounds included.
func (w DateWindow) Contains(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w DateWindow) String() string {
	return w.Start.Format(DateLayout) + " to " + w.End.Format(DateLayout)
}
