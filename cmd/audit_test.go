package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coi-audit/internal/audit"
	"github.com/sells-group/coi-audit/internal/config"
	"github.com/sells-group/coi-audit/internal/model"
	"github.com/sells-group/coi-audit/internal/store"
)

type fakeExtractor struct {
	text string
}

func (f fakeExtractor) ExtractText(_ context.Context, _ string) (string, error) {
	return f.text, nil
}

const certText = `CERTIFICATE OF LIABILITY INSURANCE
COMMERCIAL GENERAL LIABILITY   GL-1   01/01/2024   01/01/2025
WORKERS COMPENSATION AND EMPLOYERS' LIABILITY   WC-2   01/01/2024   01/01/2025
`

// newAuditFixture writes a roster and certificate folder and returns a
// config pointing at them.
func newAuditFixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	c, err := config.Load()
	require.NoError(t, err)

	rosterPath := filepath.Join(dir, "roster.csv")
	require.NoError(t, os.WriteFile(rosterPath, []byte(
		"Subcontractor ID,Name\nS1,\"Acme Roofing, Inc.\"\nS2,Blue Ridge Plumbing\nS3,TOTAL\n"), 0o644))

	certs := filepath.Join(dir, "job", "Subcontractor COIs")
	require.NoError(t, os.MkdirAll(certs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(certs, "Acme Roofing_COI.pdf"), []byte("%PDF"), 0o644))

	c.Roster.Path = rosterPath
	c.Roster.HeaderRow = 1
	c.Documents.Dir = filepath.Join(dir, "job")
	c.Audit.StartDate = "2024-01-01"
	c.Audit.EndDate = "2024-12-31"
	c.Output.Dir = filepath.Join(dir, "out")
	c.Output.Format = "json"
	require.NoError(t, c.Validate("audit"))
	return c
}

func readCounts(t *testing.T, path string) map[string]int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc.Counts
}

func TestRunAudit_JSONReport(t *testing.T) {
	c := newAuditFixture(t)
	var out bytes.Buffer

	path, err := runAudit(context.Background(), c, fakeExtractor{text: certText}, &out)
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(path))
	assert.FileExists(t, filepath.Join(c.Output.Dir, "manifest.yaml"))

	counts := readCounts(t, path)
	assert.Equal(t, 1, counts["VERIFIED"])
	assert.Equal(t, 1, counts["UNVERIFIED"])
	assert.Equal(t, 1, counts["ADMINISTRATIVE"])

	assert.Contains(t, out.String(), "Audited 3 subcontractors")
	assert.Contains(t, out.String(), "Report: "+path)
}

func TestRunAudit_XLSXReport(t *testing.T) {
	c := newAuditFixture(t)
	c.Output.Format = "xlsx"

	path, err := runAudit(context.Background(), c, fakeExtractor{text: certText}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))
	assert.FileExists(t, path)
}

func TestRunAudit_InaccessibleDirectory(t *testing.T) {
	c := newAuditFixture(t)
	c.Documents.Dir = filepath.Join(c.Output.Dir, "missing")

	path, err := runAudit(context.Background(), c, fakeExtractor{text: certText}, &bytes.Buffer{})
	require.NoError(t, err)

	counts := readCounts(t, path)
	assert.Equal(t, 0, counts["VERIFIED"])
	assert.Equal(t, 2, counts["UNKNOWN"])
	assert.Equal(t, 1, counts["ADMINISTRATIVE"])
}

func TestRunAudit_PersistsRun(t *testing.T) {
	c := newAuditFixture(t)
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "runs.db")

	_, err := runAudit(context.Background(), c, fakeExtractor{text: certText}, &bytes.Buffer{})
	require.NoError(t, err)

	st, err := store.NewSQLite(c.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, 3, runs[0].Total)
	assert.Equal(t, 1, runs[0].StateCounts["VERIFIED"])

	results, err := st.ListResults(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "S1", results[0].SubcontractorID)
	assert.Equal(t, "VERIFIED", results[0].State)
	assert.NotEmpty(t, results[0].Detail)
}

// cancelingExtractor cancels the run while the first certificate is read.
type cancelingExtractor struct {
	cancel context.CancelFunc
}

func (c cancelingExtractor) ExtractText(_ context.Context, _ string) (string, error) {
	c.cancel()
	return certText, nil
}

func TestRunAudit_CanceledRecordsAbort(t *testing.T) {
	c := newAuditFixture(t)
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "runs.db")
	c.Batch.MaxConcurrent = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := runAudit(ctx, c, cancelingExtractor{cancel: cancel}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, audit.ErrAborted))

	st, err := store.NewSQLite(c.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusAborted, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
	assert.NoDirExists(t, c.Output.Dir)
}

func TestRunAudit_RequiresRoster(t *testing.T) {
	c := newAuditFixture(t)
	c.Roster.Path = ""

	_, err := runAudit(context.Background(), c, fakeExtractor{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roster path is required")
}

func TestApplyAuditFlags(t *testing.T) {
	c := &config.Config{}
	c.Batch.MaxConcurrent = 5
	require.NoError(t, auditCmd.Flags().Set("start", "2024-02-01"))
	require.NoError(t, auditCmd.Flags().Set("concurrency", "3"))
	t.Cleanup(func() {
		auditCmd.Flags().Set("start", "")        //nolint:errcheck
		auditCmd.Flags().Set("concurrency", "0") //nolint:errcheck
		auditCmd.Flags().Lookup("start").Changed = false
		auditCmd.Flags().Lookup("concurrency").Changed = false
	})

	applyAuditFlags(auditCmd, c)
	assert.Equal(t, "2024-02-01", c.Audit.StartDate)
	assert.Equal(t, 3, c.Batch.MaxConcurrent)
	assert.Empty(t, c.Roster.Path)
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, "out/r.xlsx", 3, map[string]int{"VERIFIED": 2, "UNKNOWN": 1})
	assert.Equal(t, "Audited 3 subcontractors\n  UNKNOWN            1\n  VERIFIED           2\nReport: out/r.xlsx\n", buf.String())
}
