package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/config"
	"github.com/sells-group/coi-audit/internal/document"
	"github.com/sells-group/coi-audit/internal/ocr"
)

var diagnosePDFCmd = &cobra.Command{
	Use:   "diagnose-pdf <file>",
	Short: "Print the extracted text and policy date candidates of one certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("diagnose-pdf"); err != nil {
			return err
		}
		ext, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}
		_, err = runDiagnosePDF(cmd.Context(), cfg, ext, args[0], os.Stdout)
		return err
	},
}

func init() {
	rootCmd.AddCommand(diagnosePDFCmd)
}

// runDiagnosePDF extracts the text of a single certificate, prints it with
// the date candidates found in it, and saves the text under output.dir.
// It returns the path of the saved text.
func runDiagnosePDF(ctx context.Context, c *config.Config, ext ocr.Extractor, path string, out io.Writer) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", eris.Wrapf(err, "diagnose-pdf: %s", path)
	}
	if info.IsDir() {
		return "", eris.Errorf("diagnose-pdf: %s is a directory", path)
	}

	text, err := ext.ExtractText(ctx, path)
	if err != nil {
		return "", eris.Wrapf(err, "diagnose-pdf: extract %s [%s]", path, document.Categorize(err))
	}

	base := filepath.Base(path)
	fmt.Fprintln(out, "--- EXTRACTED TEXT ---")
	fmt.Fprintln(out, strings.TrimRight(text, "\n"))
	fmt.Fprintln(out, "--- END EXTRACTED TEXT ---")

	candidates, notes := document.ExtractCandidates(text, base)
	if strings.TrimSpace(text) == "" {
		notes = append(notes, "empty text layer; the file may be a scan without OCR")
	}
	fmt.Fprintf(out, "\nDate candidates (%d):\n", len(candidates))
	if len(candidates) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, cand := range candidates {
		exp := cand.Expiration
		if exp == "" {
			exp = "-"
		}
		fmt.Fprintf(out, "  %-5s %-12s %-12s %s\n", cand.PolicyType.Label(), cand.Effective, exp, cand.Note)
	}
	for _, n := range notes {
		fmt.Fprintf(out, "  note: %s\n", n)
	}

	if err := os.MkdirAll(c.Output.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "diagnose-pdf: create %s", c.Output.Dir)
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	saved := filepath.Join(c.Output.Dir, "diagnostic_text_"+stem+".txt")
	body := "Extracted text for: " + base + "\n" + strings.Repeat("=", 30) + "\n" + text
	if err := os.WriteFile(saved, []byte(body), 0o644); err != nil {
		return "", eris.Wrapf(err, "diagnose-pdf: save %s", saved)
	}
	zap.L().Info("diagnose-pdf: text saved", zap.String("file", base), zap.String("path", saved))
	fmt.Fprintf(out, "\nText saved to: %s\n", saved)
	return saved, nil
}
