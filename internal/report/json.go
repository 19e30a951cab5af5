package report

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/audit"
	"github.com/sells-group/coi-audit/internal/model"
)

// JSONSink writes one indented JSON document per run plus a manifest.
type JSONSink struct {
	Dir string
}

type jsonRun struct {
	ID          string             `json:"id,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
	Window      model.DateWindow   `json:"window"`
	Required    []model.PolicyType `json:"required_policies"`
	Directory   string             `json:"directory"`
	Roster      string             `json:"roster"`
	Snapshot    SnapshotInfo       `json:"snapshot"`
	Counts      map[string]int     `json:"counts"`
	Results     []audit.Result     `json:"results"`
}

// Encode renders run as indented JSON. The output depends only on run.
func Encode(run Run) ([]byte, error) {
	results := run.Results
	if results == nil {
		results = []audit.Result{}
	}
	data, err := json.MarshalIndent(jsonRun{
		ID:          run.ID,
		GeneratedAt: run.GeneratedAt.UTC(),
		Window:      run.Window,
		Required:    run.Required,
		Directory:   run.Directory,
		Roster:      run.Roster,
		Snapshot:    run.Snapshot,
		Counts:      Counts(run.Results),
		Results:     results,
	}, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "report: encode json")
	}
	return append(data, '\n'), nil
}

// Write implements Sink and returns the JSON file path.
func (s *JSONSink) Write(ctx context.Context, run Run) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "report: json")
	}
	if err := ensureDir(s.Dir); err != nil {
		return "", err
	}
	data, err := Encode(run)
	if err != nil {
		return "", err
	}
	path := outputPath(s.Dir, run, ".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "report: write %s", path)
	}
	if _, err := WriteManifest(s.Dir, run, path); err != nil {
		return "", err
	}

	zap.L().Info("report: json written", zap.String("path", path), zap.Int("results", len(run.Results)))
	return path, nil
}
