package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/coi-audit/internal/classify"
	"github.com/sells-group/coi-audit/internal/config"
	"github.com/sells-group/coi-audit/internal/match"
	"github.com/sells-group/coi-audit/internal/model"
	"github.com/sells-group/coi-audit/internal/normalize"
	"github.com/sells-group/coi-audit/internal/ocr"
)

// errNotVerified makes diagnose exit non-zero when the name does not resolve
// to a certificate with policy dates.
var errNotVerified = eris.New("diagnose: name is not verified")

// diagnoseReport is the JSON form of a diagnose run.
type diagnoseReport struct {
	Name        string                `json:"name"`
	GeneratedAt time.Time             `json:"generated_at"`
	Directory   string                `json:"directory"`
	Folders     []string              `json:"folders"`
	FileCount   int                   `json:"file_count"`
	Problems    []string              `json:"problems,omitempty"`
	Threshold   float64               `json:"threshold"`
	Variations  []normalize.Variation `json:"variations"`
	Matches     []match.Candidate     `json:"matches"`
	NearMisses  []match.Candidate     `json:"near_misses"`
	State       classify.State        `json:"state"`
	Confidence  float64               `json:"confidence"`
	Rule        string                `json:"rule"`
	Diagnostic  *classify.Diagnostic  `json:"diagnostic,omitempty"`
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Explain how one subcontractor name is matched and classified",
	// A name that does not verify is an expected outcome, not a usage error.
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		if strings.TrimSpace(name) == "" {
			return eris.New("diagnose: --name is required")
		}
		if cmd.Flags().Changed("dir") {
			cfg.Documents.Dir, _ = cmd.Flags().GetString("dir")
		}
		if err := cfg.Validate("diagnose"); err != nil {
			return err
		}

		ext, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		return runDiagnose(cmd.Context(), cfg, ext, name, output, os.Stdout)
	},
}

func init() {
	diagnoseCmd.Flags().String("name", "", "subcontractor name to diagnose")
	diagnoseCmd.Flags().String("dir", "", "certificate directory; overrides documents.dir")
	diagnoseCmd.Flags().String("output", "", "also write the full diagnostic as JSON to this file")
	rootCmd.AddCommand(diagnoseCmd)
}

// runDiagnose prints how name is matched and classified. When outputPath is
// set the same findings are written there as JSON. A result other than
// VERIFIED returns errNotVerified after everything has been printed.
func runDiagnose(ctx context.Context, c *config.Config, ext ocr.Extractor, name, outputPath string, out io.Writer) error {
	if c.Documents.Dir == "" {
		return eris.New("diagnose: certificate directory is required (--dir or documents.dir)")
	}
	comps, err := buildComponents(c, ext)
	if err != nil {
		return err
	}

	snap, err := comps.provider.List(ctx, c.Documents.Dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Directory: %s (%d files in %s)\n", snap.Root, len(snap.Entries), strings.Join(snap.Folders, ", "))
	for _, p := range snap.Problems {
		fmt.Fprintf(out, "  problem: %s\n", p)
	}

	vars := comps.normalizer.Variations(name)
	fmt.Fprintf(out, "\nVariations of %q:\n", name)
	for _, v := range vars {
		fmt.Fprintf(out, "  %-20s %s\n", v.Kind, v.Text)
	}

	fmt.Fprintf(out, "\nMatches at or above %.0f%%:\n", comps.engine.Threshold())
	matches := comps.engine.Match(vars, snap.Entries)
	if len(matches) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, m := range matches {
		fmt.Fprintf(out, "  %6.2f  %-16s %s (variation %q)\n", m.Score, m.Algorithm, m.Filename, m.Variation.Text)
	}

	fmt.Fprintf(out, "\nClosest files from %.0f%%:\n", c.Fuzzy.NearMissFloor)
	near := comps.engine.Scan(vars, snap.Entries, c.Fuzzy.NearMissFloor, c.Fuzzy.MaxResults)
	if len(near) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, m := range near {
		fmt.Fprintf(out, "  %6.2f  %-16s %s\n", m.Score, m.Algorithm, m.Filename)
	}

	sub := model.Subcontractor{ID: "diagnose", Name: name}
	res, err := comps.classifier.Classify(ctx, sub, snap)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nClassification: %s\n", classify.Summary(res))
	fmt.Fprintf(out, "Rule: %s\n", res.Rule)
	report := diagnoseReport{
		Name:        name,
		GeneratedAt: time.Now().UTC(),
		Directory:   snap.Root,
		Folders:     snap.Folders,
		FileCount:   len(snap.Entries),
		Problems:    snap.Problems,
		Threshold:   comps.engine.Threshold(),
		Variations:  vars,
		Matches:     matches,
		NearMisses:  near,
		State:       res.State,
		Confidence:  res.Confidence,
		Rule:        res.Rule,
	}
	if d, ok := classify.Diagnose(sub, res); ok {
		report.Diagnostic = &d
		for _, h := range d.Hints {
			fmt.Fprintf(out, "  hint: %s\n", h)
		}
		for _, e := range d.ProcessingErrors {
			fmt.Fprintf(out, "  error: %s\n", e)
		}
	}

	if outputPath != "" {
		if err := writeDiagnoseReport(outputPath, report); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nDiagnostic saved to: %s\n", outputPath)
	}

	if res.State != classify.StateVerified {
		return eris.Wrapf(errNotVerified, "%q classified %s", name, res.State)
	}
	return nil
}

func writeDiagnoseReport(path string, report diagnoseReport) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "diagnose: create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "diagnose: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return eris.Wrapf(err, "diagnose: write %s", path)
	}
	return nil
}
