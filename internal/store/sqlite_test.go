package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coi-audit/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(t *testing.T) model.Run {
	t.Helper()
	w, err := model.NewDateWindow("2024-01-01", "2024-12-31")
	require.NoError(t, err)
	return model.Run{Directory: "/jobs/site-a", Roster: "roster.xlsx", Window: w, Total: 2}
}

func TestSQLite_CreateAndGetRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, testRun(t))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "/jobs/site-a", got.Directory)
	assert.Equal(t, "roster.xlsx", got.Roster)
	assert.Equal(t, "2024-01-01 to 2024-12-31", got.Window.String())
	assert.Equal(t, 2, got.Total)
	assert.Nil(t, got.StateCounts)
}

func TestSQLite_CreateRunKeepsID(t *testing.T) {
	s := newTestSQLiteStore(t)
	r := testRun(t)
	r.ID = "fixed-id"

	run, err := s.CreateRun(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", run.ID)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_FinishRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, testRun(t))
	require.NoError(t, err)

	counts := map[string]int{"VERIFIED": 1, "UNVERIFIED": 1}
	require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusComplete, counts, ""))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, counts, got.StateCounts)
	assert.Empty(t, got.Error)
}

func TestSQLite_FinishRun_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	err := s.FinishRun(context.Background(), "missing", model.RunStatusAborted, nil, "canceled")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListRuns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx, testRun(t))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.CreateRun(ctx, testRun(t))
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, first.ID, model.RunStatusComplete, map[string]int{"VERIFIED": 2}, ""))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	done, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, first.ID, done[0].ID)

	page, err := s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)
}

func TestSQLite_SaveAndListResults(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, testRun(t))
	require.NoError(t, err)

	records := []model.AuditRecord{
		{Position: 1, SubcontractorID: "S2", Name: "Zephyr Electric", State: "UNVERIFIED", Confidence: 0.8,
			Action: "request certificate", Destination: "errors_report", LegacyStatus: "Missing"},
		{Position: 0, SubcontractorID: "S1", Name: "Acme Roofing", State: "VERIFIED", Confidence: 1,
			Action: "none", Destination: "qa_report", LegacyStatus: "OK", GapSummary: "GL: none; WC: none",
			Detail: json.RawMessage(`{"state":"VERIFIED"}`)},
	}
	require.NoError(t, s.SaveResults(ctx, run.ID, records))

	got, err := s.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "S1", got[0].SubcontractorID)
	assert.Equal(t, run.ID, got[0].RunID)
	assert.JSONEq(t, `{"state":"VERIFIED"}`, string(got[0].Detail))
	assert.Equal(t, "S2", got[1].SubcontractorID)
	assert.Nil(t, got[1].Detail)
	assert.InDelta(t, 0.8, got[1].Confidence, 1e-9)
}

func TestSQLite_SaveResults_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, testRun(t))
	require.NoError(t, err)

	rec := model.AuditRecord{Position: 0, SubcontractorID: "S1", Name: "Acme", State: "UNKNOWN",
		Action: "review", Destination: "review_queue", LegacyStatus: "Review"}
	require.NoError(t, s.SaveResults(ctx, run.ID, []model.AuditRecord{rec}))
	rec.State = "VERIFIED"
	require.NoError(t, s.SaveResults(ctx, run.ID, []model.AuditRecord{rec}))

	got, err := s.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "VERIFIED", got[0].State)
}

func TestSQLite_SaveResults_Empty(t *testing.T) {
	s := newTestSQLiteStore(t)
	assert.NoError(t, s.SaveResults(context.Background(), "any", nil))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, "none", "", nil)
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(ctx, "sqlite", filepath.Join(t.TempDir(), "x.db"), nil)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.NoError(t, st.Close())

	_, err = Open(ctx, "postgres", "", nil)
	assert.Error(t, err)

	_, err = Open(ctx, "mysql", "dsn", nil)
	assert.Error(t, err)
}
