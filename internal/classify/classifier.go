// Package classify collects evidence about a subcontractor's certificates
// and resolves it into a documentation state, a confidence and a follow-up
// action.
package classify

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/document"
	"github.com/sells-group/coi-audit/internal/listing"
	"github.com/sells-group/coi-audit/internal/match"
	"github.com/sells-group/coi-audit/internal/model"
	"github.com/sells-group/coi-audit/internal/normalize"
)

// Result is the immutable classification of one subcontractor.
type Result struct {
	State       State       `json:"state"`
	Confidence  float64     `json:"confidence"`
	Evidence    Evidence    `json:"evidence"`
	Scores      Scores      `json:"scores"`
	Action      Action      `json:"action"`
	Destination Destination `json:"report_destination"`
	Rule        string      `json:"rule"`
}

// Options wires a Classifier.
type Options struct {
	Normalizer    *normalize.Normalizer
	Engine        *match.Engine
	Processor     document.Processor
	Admin         *AdminDetector
	NearMissFloor float64
	// NearMissLimit caps the sub-threshold candidates kept as evidence.
	NearMissLimit int
}

// Classifier is stateless apart from its immutable collaborators and is
// safe for concurrent use.
type Classifier struct {
	norm      *normalize.Normalizer
	engine    *match.Engine
	processor document.Processor
	admin     *AdminDetector
	floor     float64
	nearLimit int
	weights   Weights
}

// New validates opts and returns a Classifier.
func New(opts Options) (*Classifier, error) {
	if opts.Engine == nil {
		return nil, eris.New("classify: match engine is required")
	}
	if opts.Processor == nil {
		return nil, eris.New("classify: document processor is required")
	}
	if opts.NearMissFloor < 0 || opts.NearMissFloor >= opts.Engine.Threshold() {
		return nil, eris.Errorf("classify: near-miss floor %.1f must be in [0, %.1f)", opts.NearMissFloor, opts.Engine.Threshold())
	}
	c := &Classifier{
		norm:      opts.Normalizer,
		engine:    opts.Engine,
		processor: opts.Processor,
		admin:     opts.Admin,
		floor:     opts.NearMissFloor,
		nearLimit: opts.NearMissLimit,
		weights:   DefaultWeights,
	}
	if c.norm == nil {
		c.norm = normalize.New(normalize.Options{})
	}
	if c.admin == nil {
		c.admin = builtinAdminDetector()
	}
	if c.nearLimit <= 0 {
		c.nearLimit = 5
	}
	return c, nil
}

// Classify gathers evidence for sub against the run's snapshot and
// resolves it. A nil snapshot means the certificate directory could not be
// enumerated. The only error returned is cancellation of ctx, in which
// case the result must be discarded.
func (c *Classifier) Classify(ctx context.Context, sub model.Subcontractor, snap *listing.Snapshot) (Result, error) {
	var ev Evidence

	// Administrative rows are settled before any matching work.
	if markers := c.admin.Markers(sub.Name); len(markers) > 0 {
		ev.Meta.AdministrativeMarkers = markers
		return c.resolve(ev), nil
	}

	variations := c.norm.Variations(sub.Name)
	if variations[0].Text == "" {
		ev.Notes = append(ev.Notes, "name has no usable characters after normalization")
		return c.resolve(ev), nil
	}
	if snap == nil {
		ev.Notes = append(ev.Notes, "certificate directory could not be enumerated")
		return c.resolve(ev), nil
	}

	matches := c.engine.Match(variations, snap.Entries)
	if len(matches) > 0 {
		direct, err := c.collectDirect(ctx, matches)
		if err != nil {
			return Result{}, err
		}
		ev.Direct = direct
		return c.resolve(ev), nil
	}

	ev.Circumstantial = c.collectCircumstantial(variations, snap)
	ev.Negative = Negative{
		SearchCompleted:   snap.Complete,
		AlternatesChecked: snap.AlternatesChecked,
		NoReferences:      len(ev.Circumstantial.NearMisses) == 0 && len(ev.Circumstantial.PatternHits) == 0,
		EntriesSearched:   len(snap.Entries),
	}
	if !snap.Complete {
		ev.Notes = append(ev.Notes, "certificate directory was only partially enumerated: "+strings.Join(snap.Problems, "; "))
	}
	return c.resolve(ev), nil
}

func (c *Classifier) collectDirect(ctx context.Context, matches []match.Candidate) (Direct, error) {
	d := Direct{Exact: matches[0].Exact(), BestScore: matches[0].Score}
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return Direct{}, eris.Wrap(err, "classify: canceled")
		}

		outcome := DocumentOutcome{Match: m}
		ext, err := c.processor.Process(ctx, listing.Entry{Filename: m.Filename, Path: m.Path})
		switch {
		case err != nil && ctx.Err() != nil:
			return Direct{}, eris.Wrap(ctx.Err(), "classify: canceled")
		case err != nil:
			outcome.ErrorKind = document.Categorize(err)
			outcome.Error = err.Error()
		default:
			outcome.Processed = true
			if ext != nil {
				outcome.Candidates = ext.Candidates
				outcome.Notes = ext.Notes
			}
		}
		d.Documents = append(d.Documents, outcome)
	}
	return d, nil
}

func (c *Classifier) collectCircumstantial(variations []normalize.Variation, snap *listing.Snapshot) Circumstantial {
	circ := Circumstantial{
		NearMisses: c.engine.Scan(variations, snap.Entries, c.floor, c.nearLimit),
		Floor:      c.floor,
		Threshold:  c.engine.Threshold(),
	}
	for i, v := range variations {
		if i == 3 {
			break
		}
		circ.Variations = append(circ.Variations, v.Text)
	}

	near := make(map[string]bool, len(circ.NearMisses))
	for _, m := range circ.NearMisses {
		near[m.Path] = true
	}
	if prefix := leadingWords(variations); prefix != "" {
		var hits []string
		for _, e := range snap.Entries {
			if near[e.Path] {
				continue
			}
			if hasWordPrefix(e.Stem.Spaced, prefix) || hasWordPrefix(e.Stem.Compact, prefix) {
				hits = append(hits, e.Filename)
			}
		}
		circ.PatternHits = sortedUnique(hits)
	}
	return circ
}

func (c *Classifier) resolve(ev Evidence) Result {
	scores := Score(ev, c.weights)
	state, conf, rule := Resolve(ev, scores, c.weights)
	action, dest := Decide(state, conf)

	if state != StateVerified && state != StateAdministrative {
		zap.L().Debug("classify: resolved",
			zap.String("state", string(state)),
			zap.Float64("confidence", conf),
			zap.String("rule", rule),
		)
	}
	return Result{
		State:       state,
		Confidence:  conf,
		Evidence:    ev,
		Scores:      scores,
		Action:      action,
		Destination: dest,
		Rule:        rule,
	}
}

// leadingWords returns the first two words of the name, or a single word of
// at least four characters. Single-word names often have no separate
// punctuation-removed variation, so the canonical form stands in.
func leadingWords(variations []normalize.Variation) string {
	text := variations[0].Text
	for _, v := range variations {
		if v.Kind == normalize.KindPunctuationRemoved {
			text = v.Text
			break
		}
	}
	words := strings.Fields(text)
	switch {
	case len(words) >= 2:
		return words[0] + " " + words[1]
	case len(words) == 1 && len([]rune(words[0])) >= 4:
		return words[0]
	}
	return ""
}

func hasWordPrefix(s, prefix string) bool {
	return s == prefix || strings.HasPrefix(s, prefix+" ")
}
