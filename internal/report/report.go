// Package report writes audit results to their report destinations.
package report

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coi-audit/internal/audit"
	"github.com/sells-group/coi-audit/internal/classify"
	"github.com/sells-group/coi-audit/internal/listing"
	"github.com/sells-group/coi-audit/internal/model"
)

// Run is everything a sink needs to render one audit.
type Run struct {
	ID          string
	Window      model.DateWindow
	Required    []model.PolicyType
	Directory   string
	Roster      string
	Snapshot    SnapshotInfo
	Results     []audit.Result
	GeneratedAt time.Time
}

// SnapshotInfo summarizes the directory listing a run was evaluated against.
type SnapshotInfo struct {
	Root              string   `json:"root" yaml:"root"`
	Folders           []string `json:"folders" yaml:"folders"`
	Files             int      `json:"files" yaml:"files"`
	AlternatesChecked bool     `json:"alternates_checked" yaml:"alternates_checked"`
	Complete          bool     `json:"complete" yaml:"complete"`
	Problems          []string `json:"problems,omitempty" yaml:"problems,omitempty"`
}

// DescribeSnapshot summarizes snap. A nil snapshot means the directory
// could not be enumerated.
func DescribeSnapshot(snap *listing.Snapshot) SnapshotInfo {
	if snap == nil {
		return SnapshotInfo{Problems: []string{"directory could not be enumerated"}}
	}
	return SnapshotInfo{
		Root:              snap.Root,
		Folders:           snap.Folders,
		Files:             len(snap.Entries),
		AlternatesChecked: snap.AlternatesChecked,
		Complete:          snap.Complete,
		Problems:          snap.Problems,
	}
}

// Sink accepts a finished run. Sinks only ever see fully resolved results.
type Sink interface {
	Write(ctx context.Context, run Run) (string, error)
}

// Report names produced by result destinations.
const (
	reportQA       = "qa_report"
	reportErrors   = "errors_report"
	reportReview   = "review_queue"
	reportMetadata = "metadata_report"
)

// routedTo reports whether r's destination includes the named report.
func routedTo(r audit.Result, name string) bool {
	for _, d := range r.Classification.Destination.Reports() {
		if d == name {
			return true
		}
	}
	return false
}

// Counts tallies results per state, with every state present.
func Counts(results []audit.Result) map[string]int {
	out := map[string]int{
		string(classify.StateVerified):         0,
		string(classify.StateUnverified):       0,
		string(classify.StateTechnicalFailure): 0,
		string(classify.StateAdministrative):   0,
		string(classify.StateUnknown):          0,
	}
	for k, v := range audit.Tally(results) {
		out[k] = v
	}
	return out
}

func baseName(run Run) string {
	if run.ID != "" {
		return "coi-audit-" + run.ID
	}
	return "coi-audit-" + run.GeneratedAt.UTC().Format("20060102-150405")
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create output dir %s", dir)
	}
	return nil
}

func outputPath(dir string, run Run, ext string) string {
	return filepath.Join(dir, baseName(run)+ext)
}
