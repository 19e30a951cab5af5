// Package audit runs the per-subcontractor pipeline (classification then
// coverage aggregation) over a roster with bounded parallelism.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/coi-audit/internal/classify"
	"github.com/sells-group/coi-audit/internal/coverage"
	"github.com/sells-group/coi-audit/internal/listing"
	"github.com/sells-group/coi-audit/internal/model"
)

// ErrAborted is returned by Run when the context ends before every
// subcontractor is resolved. No partial results accompany it.
var ErrAborted = eris.New("audit: run aborted")

// Classifier resolves one subcontractor against a directory snapshot.
type Classifier interface {
	Classify(ctx context.Context, sub model.Subcontractor, snap *listing.Snapshot) (classify.Result, error)
}

// Result is the complete outcome for one subcontractor.
type Result struct {
	Subcontractor  model.Subcontractor  `json:"subcontractor"`
	Classification classify.Result      `json:"classification"`
	Coverage       coverage.Report      `json:"coverage"`
	Diagnostic     *classify.Diagnostic `json:"diagnostic,omitempty"`
}

// LegacyStatus is the status column of older audit workbooks. Verified
// subcontractors with incomplete coverage are reported as a gap.
func (r Result) LegacyStatus() string {
	if r.Classification.State != classify.StateVerified {
		return classify.LegacyStatus(r.Classification.State)
	}
	for _, g := range r.Coverage.Gaps {
		if g.Kind == coverage.GapMissingDates {
			return "Dates Not Found"
		}
	}
	if r.Coverage.HasGaps() {
		return "Gap"
	}
	return classify.LegacyStatus(r.Classification.State)
}

// Record flattens r for persistence.
func (r Result) Record(runID string, position int) (model.AuditRecord, error) {
	detail, err := json.Marshal(struct {
		Classification classify.Result      `json:"classification"`
		Coverage       coverage.Report      `json:"coverage"`
		Diagnostic     *classify.Diagnostic `json:"diagnostic,omitempty"`
	}{r.Classification, r.Coverage, r.Diagnostic})
	if err != nil {
		return model.AuditRecord{}, eris.Wrapf(err, "audit: marshal detail for %q", r.Subcontractor.Name)
	}
	return model.AuditRecord{
		RunID:           runID,
		Position:        position,
		SubcontractorID: r.Subcontractor.ID,
		Name:            r.Subcontractor.Name,
		State:           string(r.Classification.State),
		Confidence:      r.Classification.Confidence,
		Action:          string(r.Classification.Action),
		Destination:     string(r.Classification.Destination),
		LegacyStatus:    r.LegacyStatus(),
		GapSummary:      r.Coverage.Summary(),
		Detail:          detail,
	}, nil
}

// Options configures an Auditor.
type Options struct {
	Window      model.DateWindow
	Concurrency int
	// Progress, when set, is called from worker goroutines after each
	// subcontractor is resolved. It must be safe for concurrent use.
	Progress func(done, total int, r Result)
}

// Auditor composes a Classifier and an Aggregator.
type Auditor struct {
	classifier  Classifier
	aggregator  *coverage.Aggregator
	window      model.DateWindow
	concurrency int
	progress    func(done, total int, r Result)
}

// New validates opts and returns an Auditor.
func New(c Classifier, agg *coverage.Aggregator, opts Options) (*Auditor, error) {
	if c == nil {
		return nil, eris.New("audit: classifier is required")
	}
	if agg == nil {
		return nil, eris.New("audit: aggregator is required")
	}
	if err := opts.Window.Validate(); err != nil {
		return nil, eris.Wrap(err, "audit: window")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Auditor{
		classifier:  c,
		aggregator:  agg,
		window:      opts.Window,
		concurrency: opts.Concurrency,
		progress:    opts.Progress,
	}, nil
}

// Audit resolves one subcontractor. A panic inside classification or
// aggregation is converted into an UNKNOWN result carrying the panic, so
// one bad record never aborts a batch. The only error returned is the
// context's.
func (a *Auditor) Audit(ctx context.Context, sub model.Subcontractor, snap *listing.Snapshot) (res Result, err error) {
	if err := ctx.Err(); err != nil {
		return Result{}, eris.Wrap(err, "audit: canceled")
	}

	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("audit: recovered panic",
				zap.String("subcontractor", sub.Name),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			res = a.failed(sub, fmt.Sprintf("internal error while auditing: %v", p))
			err = nil
		}
	}()

	cls, err := a.classifier.Classify(ctx, sub, snap)
	if err != nil {
		return Result{}, err
	}

	res = Result{Subcontractor: sub, Classification: cls}
	switch cls.State {
	case classify.StateAdministrative:
		// Administrative rows are not businesses and carry no coverage.
	case classify.StateVerified:
		res.Coverage = a.aggregator.AggregateRaw(a.window, verifiedCandidates(cls))
	default:
		res.Coverage = a.aggregator.Aggregate(a.window, nil)
	}
	if d, ok := classify.Diagnose(sub, cls); ok {
		res.Diagnostic = &d
	}
	return res, nil
}

// Run audits subs against one shared snapshot. Results are returned in
// roster order once every worker has finished. If ctx ends first, Run
// returns ErrAborted and no results.
func (a *Auditor) Run(ctx context.Context, subs []model.Subcontractor, snap *listing.Snapshot) ([]Result, error) {
	results := make([]Result, len(subs))
	var done atomic.Int64

	zap.L().Info("audit: starting run",
		zap.Int("subcontractors", len(subs)),
		zap.Int("concurrency", a.concurrency),
		zap.String("window", a.window.String()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, sub := range subs {
		g.Go(func() error {
			res, err := a.Audit(gctx, sub, snap)
			if err != nil {
				return err
			}
			results[i] = res

			n := int(done.Add(1))
			if a.progress != nil {
				a.progress(n, len(subs), res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil || ctx.Err() != nil {
		cause := err
		if cause == nil {
			cause = ctx.Err()
		}
		zap.L().Warn("audit: run aborted",
			zap.Int64("resolved", done.Load()),
			zap.Int("total", len(subs)),
			zap.Error(cause),
		)
		return nil, eris.Wrapf(ErrAborted, "%d of %d resolved: %v", done.Load(), len(subs), cause)
	}

	return results, nil
}

func (a *Auditor) failed(sub model.Subcontractor, note string) Result {
	cls := classify.Result{
		State:      classify.StateUnknown,
		Confidence: 0,
		Evidence:   classify.Evidence{Notes: []string{note}},
		Rule:       "audit failed before a rule could be applied",
	}
	cls.Action, cls.Destination = classify.Decide(cls.State, cls.Confidence)
	res := Result{Subcontractor: sub, Classification: cls}
	if d, ok := classify.Diagnose(sub, cls); ok {
		res.Diagnostic = &d
	}
	return res
}

// verifiedCandidates collects the raw dates of successfully processed
// documents only.
func verifiedCandidates(cls classify.Result) []model.RawDateCandidate {
	var out []model.RawDateCandidate
	for _, o := range cls.Evidence.Direct.Documents {
		if !o.Processed {
			continue
		}
		for _, c := range o.Candidates {
			if c.Source == "" {
				c.Source = o.Match.Filename
			}
			out = append(out, c)
		}
	}
	return out
}

// Tally counts results per state.
func Tally(results []Result) map[string]int {
	out := make(map[string]int)
	for _, r := range results {
		out[string(r.Classification.State)]++
	}
	return out
}
