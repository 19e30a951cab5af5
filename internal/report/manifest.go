package report

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/coi-audit/internal/model"
)

// ManifestFile is written next to every report.
const ManifestFile = "manifest.yaml"

// Manifest is the human-readable index of one run's outputs.
type Manifest struct {
	RunID       string         `yaml:"run_id,omitempty"`
	GeneratedAt string         `yaml:"generated_at"`
	Window      string         `yaml:"window"`
	Required    []string       `yaml:"required_policies"`
	Directory   string         `yaml:"directory"`
	Roster      string         `yaml:"roster"`
	Snapshot    SnapshotInfo   `yaml:"snapshot"`
	Total       int            `yaml:"total"`
	Counts      map[string]int `yaml:"counts"`
	Gaps        int            `yaml:"subcontractors_with_gaps"`
	Output      string         `yaml:"output"`
}

// BuildManifest summarizes run for the given output file.
func BuildManifest(run Run, output string) Manifest {
	m := Manifest{
		RunID:       run.ID,
		GeneratedAt: run.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Window:      run.Window.Start.Format(model.DateLayout) + " to " + run.Window.End.Format(model.DateLayout),
		Directory:   run.Directory,
		Roster:      run.Roster,
		Snapshot:    run.Snapshot,
		Total:       len(run.Results),
		Counts:      Counts(run.Results),
		Output:      filepath.Base(output),
	}
	for _, p := range run.Required {
		m.Required = append(m.Required, string(p))
	}
	for _, r := range run.Results {
		if r.Coverage.HasGaps() {
			m.Gaps++
		}
	}
	return m
}

// WriteManifest writes manifest.yaml into dir and returns its path.
func WriteManifest(dir string, run Run, output string) (string, error) {
	data, err := yaml.Marshal(BuildManifest(run, output))
	if err != nil {
		return "", eris.Wrap(err, "report: marshal manifest")
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "report: write %s", path)
	}
	return path, nil
}
