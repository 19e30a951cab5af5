// Package match scores certificate file stems against subcontractor name
// variations and ranks the results.
package match

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coi-audit/internal/listing"
	"github.com/sells-group/coi-audit/internal/normalize"
)

// Algorithm names a similarity measure.
type Algorithm string

const (
	AlgorithmExact          Algorithm = "exact"
	AlgorithmRatio          Algorithm = "ratio"
	AlgorithmPartialRatio   Algorithm = "partial_ratio"
	AlgorithmTokenSortRatio Algorithm = "token_sort_ratio"
	AlgorithmTokenSetRatio  Algorithm = "token_set_ratio"
)

// Scorer returns a 0-100 similarity.
type Scorer func(a, b string) float64

var scorers = map[Algorithm]Scorer{
	AlgorithmRatio:          Ratio,
	AlgorithmPartialRatio:   PartialRatio,
	AlgorithmTokenSortRatio: TokenSortRatio,
	AlgorithmTokenSetRatio:  TokenSetRatio,
}

// DefaultAlgorithms are used when none are configured.
func DefaultAlgorithms() []Algorithm {
	return []Algorithm{AlgorithmRatio, AlgorithmPartialRatio, AlgorithmTokenSortRatio}
}

// ParseAlgorithms resolves configured algorithm names.
func ParseAlgorithms(names []string) ([]Algorithm, error) {
	if len(names) == 0 {
		return nil, eris.New("match: algorithm list is empty")
	}
	out := make([]Algorithm, 0, len(names))
	for _, n := range names {
		a := Algorithm(strings.ToLower(strings.TrimSpace(n)))
		if _, ok := scorers[a]; !ok {
			return nil, eris.Errorf("match: unknown algorithm %q", n)
		}
		out = append(out, a)
	}
	return out, nil
}

// Candidate is one scored pairing of a subcontractor with a file.
type Candidate struct {
	Filename  string              `json:"filename"`
	Path      string              `json:"path"`
	Stem      string              `json:"stem"`
	Score     float64             `json:"score"`
	Algorithm Algorithm           `json:"algorithm"`
	Variation normalize.Variation `json:"variation_used"`
}

// Exact reports whether the candidate came from an exact match.
func (c Candidate) Exact() bool {
	return c.Algorithm == AlgorithmExact
}

// Options configures an Engine.
type Options struct {
	Threshold  float64
	MaxResults int
	Algorithms []Algorithm
}

// Engine ranks file stems for a set of name variations. It holds only
// immutable configuration.
type Engine struct {
	threshold  float64
	maxResults int
	algorithms []Algorithm
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Threshold <= 0 || opts.Threshold > 100 {
		return nil, eris.Errorf("match: threshold %.2f outside (0, 100]", opts.Threshold)
	}
	if opts.MaxResults <= 0 {
		return nil, eris.Errorf("match: max results must be positive, got %d", opts.MaxResults)
	}
	if len(opts.Algorithms) == 0 {
		return nil, eris.New("match: algorithm list is empty")
	}
	for _, a := range opts.Algorithms {
		if _, ok := scorers[a]; !ok {
			return nil, eris.Errorf("match: unknown algorithm %q", a)
		}
	}
	return &Engine{
		threshold:  opts.Threshold,
		maxResults: opts.MaxResults,
		algorithms: append([]Algorithm(nil), opts.Algorithms...),
	}, nil
}

// Threshold returns the configured acceptance threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Match returns the ranked candidates for variations among entries. Exact
// matches short-circuit fuzzy scoring and are all returned with score 100.
// Otherwise only candidates scoring at least the threshold are returned,
// capped at the configured maximum.
func (e *Engine) Match(variations []normalize.Variation, entries []listing.Entry) []Candidate {
	vars := usable(variations)
	if len(vars) == 0 {
		return nil
	}

	if exact := exactMatches(vars, entries); len(exact) > 0 {
		return exact
	}

	var out []Candidate
	for _, entry := range entries {
		c := e.best(vars, entry)
		if c.Score >= e.threshold {
			out = append(out, c)
		}
	}
	rank(out)
	if len(out) > e.maxResults {
		out = out[:e.maxResults]
	}
	return out
}

// Scan scores every entry regardless of the threshold and returns those at
// or above floor, best first. A limit of zero or less means no limit.
func (e *Engine) Scan(variations []normalize.Variation, entries []listing.Entry, floor float64, limit int) []Candidate {
	vars := usable(variations)
	if len(vars) == 0 {
		return nil
	}

	var out []Candidate
	for _, entry := range entries {
		c, ok := exactFor(vars, entry)
		if !ok {
			c = e.best(vars, entry)
		}
		if c.Score >= floor {
			out = append(out, c)
		}
	}
	rank(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (e *Engine) best(vars []normalize.Variation, entry listing.Entry) Candidate {
	c := candidateFor(entry)
	c.Score = -1
	for _, v := range vars {
		for _, form := range entry.Stem.Forms() {
			for _, a := range e.algorithms {
				if s := scorers[a](v.Text, form); s > c.Score {
					c.Score = s
					c.Algorithm = a
					c.Variation = v
				}
			}
		}
	}
	if c.Score < 0 {
		c.Score = 0
	}
	return c
}

func exactMatches(vars []normalize.Variation, entries []listing.Entry) []Candidate {
	var out []Candidate
	for _, entry := range entries {
		if c, ok := exactFor(vars, entry); ok {
			out = append(out, c)
		}
	}
	rank(out)
	return out
}

func exactFor(vars []normalize.Variation, entry listing.Entry) (Candidate, bool) {
	forms := entry.Stem.Forms()
	for _, v := range vars {
		for _, form := range forms {
			if form == v.Text {
				c := candidateFor(entry)
				c.Score = 100
				c.Algorithm = AlgorithmExact
				c.Variation = v
				return c, true
			}
		}
	}
	return Candidate{}, false
}

func candidateFor(entry listing.Entry) Candidate {
	return Candidate{Filename: entry.Filename, Path: entry.Path, Stem: entry.Stem.Raw}
}

func usable(variations []normalize.Variation) []normalize.Variation {
	out := make([]normalize.Variation, 0, len(variations))
	for _, v := range variations {
		if v.Text != "" {
			out = append(out, v)
		}
	}
	return out
}

// rank orders by score, then shorter stem, then file name, then path.
func rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		li, lj := len([]rune(cs[i].Stem)), len([]rune(cs[j].Stem))
		if li != lj {
			return li < lj
		}
		if cs[i].Filename != cs[j].Filename {
			return cs[i].Filename < cs[j].Filename
		}
		return cs[i].Path < cs[j].Path
	})
}
