package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/audit"
	"github.com/sells-group/coi-audit/internal/config"
	"github.com/sells-group/coi-audit/internal/coverage"
	"github.com/sells-group/coi-audit/internal/listing"
	"github.com/sells-group/coi-audit/internal/model"
	"github.com/sells-group/coi-audit/internal/ocr"
	"github.com/sells-group/coi-audit/internal/report"
	"github.com/sells-group/coi-audit/internal/roster"
	"github.com/sells-group/coi-audit/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit a subcontractor roster against a certificate folder",
	Long:  "Reads the roster, lists the certificate folder once, classifies every subcontractor concurrently, and writes the report.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		applyAuditFlags(cmd, cfg)
		if err := cfg.Validate("audit"); err != nil {
			return err
		}

		ext, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}

		_, err = runAudit(ctx, cfg, ext, os.Stdout)
		return err
	},
}

func init() {
	auditCmd.Flags().String("roster", "", "roster spreadsheet (.xlsx or .csv); overrides roster.path")
	auditCmd.Flags().String("dir", "", "certificate directory; overrides documents.dir")
	auditCmd.Flags().String("start", "", "audit window start (YYYY-MM-DD)")
	auditCmd.Flags().String("end", "", "audit window end (YYYY-MM-DD)")
	auditCmd.Flags().String("format", "", "report format: xlsx or json")
	auditCmd.Flags().String("output", "", "report directory; overrides output.dir")
	auditCmd.Flags().Int("concurrency", 0, "max subcontractors processed at once; overrides batch.max_concurrent")
	rootCmd.AddCommand(auditCmd)
}

// applyAuditFlags copies explicitly set flags over the loaded config.
func applyAuditFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	set := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	set("roster", &c.Roster.Path)
	set("dir", &c.Documents.Dir)
	set("start", &c.Audit.StartDate)
	set("end", &c.Audit.EndDate)
	set("format", &c.Output.Format)
	set("output", &c.Output.Dir)
	if flags.Changed("concurrency") {
		c.Batch.MaxConcurrent, _ = flags.GetInt("concurrency")
	}
}

// runAudit executes one audit and returns the report path. The summary
// is written to out.
func runAudit(ctx context.Context, c *config.Config, ext ocr.Extractor, out io.Writer) (string, error) {
	log := zap.L().With(zap.String("component", "audit"))

	if c.Roster.Path == "" {
		return "", eris.New("audit: roster path is required (--roster or roster.path)")
	}
	if c.Documents.Dir == "" {
		return "", eris.New("audit: certificate directory is required (--dir or documents.dir)")
	}
	window, err := c.Audit.Window()
	if err != nil {
		return "", err
	}
	policies, err := c.Audit.Policies()
	if err != nil {
		return "", err
	}

	subs, err := roster.Read(c.Roster.Path, roster.Options{
		HeaderRow:  c.Roster.HeaderRow,
		NameColumn: c.Roster.NameColumn,
		IDColumn:   c.Roster.IDColumn,
		FlagColumn: c.Roster.FlagColumn,
		SheetName:  c.Roster.SheetName,
	})
	if err != nil {
		return "", err
	}

	comps, err := buildComponents(c, ext)
	if err != nil {
		return "", err
	}

	snap, err := comps.provider.List(ctx, c.Documents.Dir)
	switch {
	case errors.Is(err, listing.ErrInaccessible):
		// Every subcontractor resolves to UNKNOWN and lands in review.
		log.Warn("certificate directory inaccessible", zap.String("dir", c.Documents.Dir), zap.Error(err))
		snap = nil
	case err != nil:
		return "", err
	}

	auditor, err := audit.New(comps.classifier, coverage.NewAggregator(policies), audit.Options{
		Window:      window,
		Concurrency: c.Batch.MaxConcurrent,
		Progress: func(done, total int, r audit.Result) {
			log.Debug("subcontractor resolved",
				zap.Int("done", done),
				zap.Int("total", total),
				zap.String("name", r.Subcontractor.Name),
				zap.String("state", string(r.Classification.State)),
			)
		},
	})
	if err != nil {
		return "", err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return "", err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	runID := uuid.New().String()
	if st != nil {
		if _, err := st.CreateRun(ctx, model.Run{
			ID:        runID,
			Directory: c.Documents.Dir,
			Roster:    c.Roster.Path,
			Window:    window,
			Total:     len(subs),
		}); err != nil {
			return "", err
		}
	}

	start := time.Now()
	log.Info("audit started",
		zap.String("run_id", runID),
		zap.Int("subcontractors", len(subs)),
		zap.String("window", window.String()),
		zap.Int("concurrency", c.Batch.MaxConcurrent),
	)

	results, err := auditor.Run(ctx, subs, snap)
	if err != nil {
		if st != nil {
			// ctx may already be canceled; the abort is still recorded.
			if ferr := st.FinishRun(context.WithoutCancel(ctx), runID, model.RunStatusAborted, nil, err.Error()); ferr != nil {
				log.Error("record aborted run", zap.Error(ferr))
			}
		}
		return "", err
	}

	path, err := sinkFor(c.Output).Write(ctx, report.Run{
		ID:          runID,
		Window:      window,
		Required:    policies,
		Directory:   c.Documents.Dir,
		Roster:      c.Roster.Path,
		Snapshot:    report.DescribeSnapshot(snap),
		Results:     results,
		GeneratedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	counts := audit.Tally(results)
	if st != nil {
		if err := persistResults(ctx, st, runID, results, counts); err != nil {
			return "", err
		}
	}

	log.Info("audit complete",
		zap.String("run_id", runID),
		zap.String("report", path),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeSummary(out, path, len(results), counts)
	return path, nil
}

func sinkFor(o config.OutputConfig) report.Sink {
	if o.Format == "json" {
		return &report.JSONSink{Dir: o.Dir}
	}
	return &report.XLSXSink{Dir: o.Dir}
}

func persistResults(ctx context.Context, st store.Store, runID string, results []audit.Result, counts map[string]int) error {
	records := make([]model.AuditRecord, 0, len(results))
	for i, r := range results {
		rec, err := r.Record(runID, i)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := st.SaveResults(ctx, runID, records); err != nil {
		return err
	}
	return st.FinishRun(ctx, runID, model.RunStatusComplete, counts, "")
}

func writeSummary(out io.Writer, path string, total int, counts map[string]int) {
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)

	fmt.Fprintf(out, "Audited %d subcontractors\n", total)
	for _, s := range states {
		fmt.Fprintf(out, "  %-18s %d\n", s, counts[s])
	}
	fmt.Fprintf(out, "Report: %s\n", path)
}
