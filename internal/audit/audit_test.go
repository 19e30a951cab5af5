package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coi-audit/internal/classify"
	"github.com/sells-group/coi-audit/internal/coverage"
	"github.com/sells-group/coi-audit/internal/document"
	"github.com/sells-group/coi-audit/internal/listing"
	"github.com/sells-group/coi-audit/internal/match"
	"github.com/sells-group/coi-audit/internal/model"
	"github.com/sells-group/coi-audit/internal/normalize"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, entry listing.Entry) (*document.Extraction, error) {
	args := m.Called(ctx, entry)
	if fn, ok := args.Get(0).(func(context.Context, listing.Entry) *document.Extraction); ok {
		return fn(ctx, entry), args.Error(1)
	}
	ext, _ := args.Get(0).(*document.Extraction)
	return ext, args.Error(1)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, sub model.Subcontractor, snap *listing.Snapshot) (classify.Result, error) {
	args := m.Called(ctx, sub, snap)
	return args.Get(0).(classify.Result), args.Error(1)
}

var norm = normalize.New(normalize.Options{})

func snapshot(files ...string) *listing.Snapshot {
	snap := &listing.Snapshot{Root: "/coi", Complete: true}
	for _, f := range files {
		snap.Entries = append(snap.Entries, listing.Entry{Filename: f, Path: "/coi/" + f, Stem: norm.Stem(f)})
	}
	return snap
}

func window(t *testing.T, start, end string) model.DateWindow {
	t.Helper()
	w, err := model.NewDateWindow(start, end)
	require.NoError(t, err)
	return w
}

func newAuditor(t *testing.T, proc document.Processor, w model.DateWindow, concurrency int) *Auditor {
	t.Helper()
	engine, err := match.NewEngine(match.Options{Threshold: 75, MaxResults: 5, Algorithms: match.DefaultAlgorithms()})
	require.NoError(t, err)
	cls, err := classify.New(classify.Options{Normalizer: norm, Engine: engine, Processor: proc, NearMissFloor: 60})
	require.NoError(t, err)
	a, err := New(cls, coverage.NewAggregator(nil), Options{Window: w, Concurrency: concurrency})
	require.NoError(t, err)
	return a
}

func TestAudit_EndToEndVerifiedWithMissingWC(t *testing.T) {
	const file = "S&G Siding and Gutters_2023-10-18.pdf"
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.MatchedBy(func(e listing.Entry) bool { return e.Filename == file })).
		Return(&document.Extraction{Candidates: []model.RawDateCandidate{{
			PolicyType: model.PolicyGeneralLiability,
			Effective:  "10/18/2023",
			Expiration: "10/18/2024",
		}}}, nil)

	a := newAuditor(t, proc, window(t, "2023-10-18", "2024-10-18"), 2)
	res, err := a.Audit(context.Background(), model.Subcontractor{ID: "1", Name: "S&G Siding and Gutters"},
		snapshot(file, "Acme Roofing_2024-01-01.pdf"))
	require.NoError(t, err)

	assert.Equal(t, classify.StateVerified, res.Classification.State)
	assert.GreaterOrEqual(t, res.Classification.Confidence, 0.8)
	assert.Nil(t, res.Diagnostic)

	gl, ok := res.Coverage.Gap(model.PolicyGeneralLiability)
	require.True(t, ok)
	assert.Equal(t, coverage.GapNone, gl.Kind)

	wc, ok := res.Coverage.Gap(model.PolicyWorkersCompensation)
	require.True(t, ok)
	assert.Equal(t, coverage.GapNoDocuments, wc.Kind)

	span, ok := res.Coverage.Span(model.PolicyGeneralLiability)
	require.True(t, ok)
	assert.Equal(t, []string{file}, span.ContributingDocuments)
	assert.Equal(t, "Gap", res.LegacyStatus())
	proc.AssertExpectations(t)
}

func TestAudit_FailedDocumentsContributeNoDates(t *testing.T) {
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(nil, errors.New("pdftotext: exit status 1"))

	a := newAuditor(t, proc, window(t, "2024-01-01", "2024-12-31"), 1)
	res, err := a.Audit(context.Background(), model.Subcontractor{Name: "Acme Roofing"}, snapshot("Acme Roofing.pdf"))
	require.NoError(t, err)

	assert.Equal(t, classify.StateTechnicalFailure, res.Classification.State)
	assert.Empty(t, res.Coverage.Spans)
	require.Len(t, res.Coverage.Gaps, 2)
	for _, g := range res.Coverage.Gaps {
		assert.Equal(t, coverage.GapNoDocuments, g.Kind)
	}
	require.NotNil(t, res.Diagnostic)
	assert.Equal(t, "PDF Error", res.LegacyStatus())
}

func TestAudit_AdministrativeHasNoGaps(t *testing.T) {
	a := newAuditor(t, new(mockProcessor), window(t, "2024-01-01", "2024-12-31"), 1)
	res, err := a.Audit(context.Background(), model.Subcontractor{Name: "Grand Total"}, snapshot("Grand Total.pdf"))
	require.NoError(t, err)

	assert.Equal(t, classify.StateAdministrative, res.Classification.State)
	assert.Empty(t, res.Coverage.Gaps)
	assert.Empty(t, res.Coverage.Spans)
	assert.Equal(t, "ADMINISTRATIVE", res.LegacyStatus())
}

func TestAudit_PanicBecomesUnknown(t *testing.T) {
	cls := new(mockClassifier)
	cls.On("Classify", mock.Anything, mock.Anything, mock.Anything).Panic("nil map")

	a, err := New(cls, coverage.NewAggregator(nil), Options{Window: window(t, "2024-01-01", "2024-12-31")})
	require.NoError(t, err)

	res, err := a.Audit(context.Background(), model.Subcontractor{ID: "x", Name: "Acme"}, snapshot())
	require.NoError(t, err)
	assert.Equal(t, classify.StateUnknown, res.Classification.State)
	assert.Equal(t, classify.ActionManualReview, res.Classification.Action)
	require.NotNil(t, res.Diagnostic)
	assert.Contains(t, res.Classification.Evidence.Notes[0], "nil map")
}

func TestRun_PreservesRosterOrder(t *testing.T) {
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(func(ctx context.Context, e listing.Entry) *document.Extraction {
		// Earlier vendors finish last.
		var n int
		_, _ = fmt.Sscanf(e.Filename, "Vendor Number %d.pdf", &n)
		time.Sleep(time.Duration(12-n) * time.Millisecond)
		return &document.Extraction{Candidates: []model.RawDateCandidate{{
			PolicyType: model.PolicyGeneralLiability, Effective: "2024-01-01", Expiration: "2025-01-01",
		}}}
	}, nil)

	var subs []model.Subcontractor
	var files []string
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("Vendor Number %02d", i)
		subs = append(subs, model.Subcontractor{ID: fmt.Sprint(i), Name: name})
		files = append(files, name+".pdf")
	}

	var mu sync.Mutex
	var seen []int
	a := newAuditor(t, proc, window(t, "2024-01-01", "2024-12-31"), 4)
	a.progress = func(done, total int, r Result) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, done)
		assert.Equal(t, 12, total)
	}

	results, err := a.Run(context.Background(), subs, snapshot(files...))
	require.NoError(t, err)
	require.Len(t, results, 12)
	for i, r := range results {
		assert.Equal(t, subs[i], r.Subcontractor)
		assert.Equal(t, classify.StateVerified, r.Classification.State)
	}
	assert.Len(t, seen, 12)
	assert.Equal(t, map[string]int{"VERIFIED": 12}, Tally(results))
}

func TestRun_Idempotent(t *testing.T) {
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(&document.Extraction{Candidates: []model.RawDateCandidate{{
		PolicyType: model.PolicyWorkersCompensation, Effective: "2024-03-01", Expiration: "2025-03-01",
	}}}, nil)

	subs := []model.Subcontractor{
		{ID: "1", Name: "Acme Roofing"},
		{ID: "2", Name: "Zephyr Electric"},
		{ID: "3", Name: "TOTAL"},
	}
	snap := snapshot("Acme Roofing.pdf", "Baker Plumbing.pdf")
	a := newAuditor(t, proc, window(t, "2024-01-01", "2024-12-31"), 3)

	first, err := a.Run(context.Background(), subs, snap)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := a.Run(context.Background(), subs, snap)
		require.NoError(t, err)
		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(againJSON))
	}
}

func TestRun_CanceledReturnsNoResults(t *testing.T) {
	a := newAuditor(t, new(mockProcessor), window(t, "2024-01-01", "2024-12-31"), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := a.Run(ctx, []model.Subcontractor{{Name: "Acme"}, {Name: "Baker"}}, snapshot())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Nil(t, results)
}

func TestRun_CanceledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(func(ctx context.Context, e listing.Entry) *document.Extraction {
		cancel()
		return &document.Extraction{}
	}, nil)

	subs := []model.Subcontractor{{Name: "Acme Roofing"}, {Name: "Baker Plumbing"}, {Name: "Cedar Fencing"}}
	a := newAuditor(t, proc, window(t, "2024-01-01", "2024-12-31"), 1)

	results, err := a.Run(ctx, subs, snapshot("Acme Roofing.pdf", "Baker Plumbing.pdf", "Cedar Fencing.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Nil(t, results)
}

func TestResult_Record(t *testing.T) {
	res := Result{
		Subcontractor: model.Subcontractor{ID: "42", Name: "Acme Roofing"},
		Classification: classify.Result{
			State:       classify.StateUnverified,
			Confidence:  0.8,
			Action:      classify.ActionRequestCertificate,
			Destination: classify.DestinationGapsReport,
		},
		Coverage: coverage.Report{Gaps: []coverage.GapDescriptor{
			{PolicyType: model.PolicyGeneralLiability, Kind: coverage.GapNoDocuments},
		}},
	}
	rec, err := res.Record("run-1", 3)
	require.NoError(t, err)

	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, 3, rec.Position)
	assert.Equal(t, "42", rec.SubcontractorID)
	assert.Equal(t, "UNVERIFIED", rec.State)
	assert.Equal(t, "request_certificate", rec.Action)
	assert.Equal(t, "gaps_report", rec.Destination)
	assert.Equal(t, "Missing PDF", rec.LegacyStatus)
	assert.Equal(t, "GL: no_documents", rec.GapSummary)

	var detail map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Detail, &detail))
	assert.Contains(t, detail, "classification")
	assert.Contains(t, detail, "coverage")
	assert.NotContains(t, detail, "diagnostic")
}

func TestNew_Validation(t *testing.T) {
	w := window(t, "2024-01-01", "2024-12-31")
	_, err := New(nil, coverage.NewAggregator(nil), Options{Window: w})
	assert.Error(t, err)

	_, err = New(new(mockClassifier), nil, Options{Window: w})
	assert.Error(t, err)

	_, err = New(new(mockClassifier), coverage.NewAggregator(nil), Options{})
	assert.Error(t, err)

	a, err := New(new(mockClassifier), coverage.NewAggregator(nil), Options{Window: w, Concurrency: -3})
	require.NoError(t, err)
	assert.Equal(t, 1, a.concurrency)
}
