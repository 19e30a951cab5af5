package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/audit"
	"github.com/sells-group/coi-audit/internal/coverage"
	"github.com/sells-group/coi-audit/internal/model"
)

// Sheet names of the audit workbook.
const (
	SheetSummary     = "Summary"
	SheetGaps        = "Gaps"
	SheetReviewQueue = "Review Queue"
	SheetErrors      = "Errors"
	SheetMetadata    = "Metadata"
	SheetQA          = "QA"
	SheetDiagnostics = "Diagnostics"
)

// XLSXSink writes one workbook per run plus a manifest.
type XLSXSink struct {
	Dir string
}

// Write implements Sink and returns the workbook path.
func (s *XLSXSink) Write(ctx context.Context, run Run) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "report: xlsx")
	}
	if err := ensureDir(s.Dir); err != nil {
		return "", err
	}

	f, err := BuildWorkbook(run)
	if err != nil {
		return "", err
	}
	path := outputPath(s.Dir, run, ".xlsx")
	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "report: save %s", path)
	}
	if _, err := WriteManifest(s.Dir, run, path); err != nil {
		return "", err
	}

	zap.L().Info("report: workbook written",
		zap.String("path", path),
		zap.Int("results", len(run.Results)),
	)
	return path, nil
}

type sheetWriter struct {
	sheet  *xlsx.Sheet
	header *xlsx.Style
}

func (w sheetWriter) headers(cols ...string) {
	row := w.sheet.AddRow()
	for _, c := range cols {
		cell := row.AddCell()
		cell.SetString(c)
		cell.SetStyle(w.header)
	}
}

func (w sheetWriter) row(values ...any) {
	row := w.sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		switch x := v.(type) {
		case float64:
			cell.SetFloatWithFormat(x, "0.00")
		case int:
			cell.SetInt(x)
		case bool:
			cell.SetBool(x)
		case string:
			cell.SetString(x)
		default:
			cell.SetString(fmt.Sprint(x))
		}
	}
}

// BuildWorkbook renders run into an in-memory workbook. Every sheet is
// present even when empty so downstream consumers can rely on the layout.
func BuildWorkbook(run Run) (*xlsx.File, error) {
	f := xlsx.NewFile()
	header := xlsx.NewStyle()
	header.Font.Bold = true
	header.ApplyFont = true

	sheets := make(map[string]sheetWriter)
	for _, name := range []string{SheetSummary, SheetGaps, SheetReviewQueue, SheetErrors, SheetMetadata, SheetQA, SheetDiagnostics} {
		sh, err := f.AddSheet(name)
		if err != nil {
			return nil, eris.Wrapf(err, "report: add sheet %s", name)
		}
		sheets[name] = sheetWriter{sheet: sh, header: header}
	}

	writeSummary(sheets[SheetSummary], run)
	writeGaps(sheets[SheetGaps], run)
	writeReviewQueue(sheets[SheetReviewQueue], run)
	writeErrors(sheets[SheetErrors], run)
	writeMetadata(sheets[SheetMetadata], run)
	writeQA(sheets[SheetQA], run)
	writeDiagnostics(sheets[SheetDiagnostics], run)
	return f, nil
}

func writeSummary(w sheetWriter, run Run) {
	cols := []string{"Row", "Subcontractor ID", "Name", "State", "Confidence", "Action", "Status"}
	for _, p := range run.Required {
		cols = append(cols, p.Label()+" From", p.Label()+" To", p.Label()+" Gap")
	}
	cols = append(cols, "Audit Notes")
	w.headers(cols...)

	for _, r := range run.Results {
		vals := []any{
			r.Subcontractor.Row,
			r.Subcontractor.ID,
			r.Subcontractor.Name,
			string(r.Classification.State),
			r.Classification.Confidence,
			string(r.Classification.Action),
			r.LegacyStatus(),
		}
		for _, p := range run.Required {
			from, to := "", ""
			if span, ok := r.Coverage.Span(p); ok {
				from = span.EarliestEffective.Format(model.DateLayout)
				to = span.LatestExpiration.Format(model.DateLayout)
			}
			gap := ""
			if g, ok := r.Coverage.Gap(p); ok {
				gap = string(g.Kind)
			}
			vals = append(vals, from, to, gap)
		}
		vals = append(vals, notes(r))
		w.row(vals...)
	}
}

func writeGaps(w sheetWriter, run Run) {
	w.headers("Subcontractor ID", "Name", "State", "Policy", "Gap", "Uncovered", "Detail")
	for _, r := range run.Results {
		for _, g := range r.Coverage.Gaps {
			if g.Kind == coverage.GapNone {
				continue
			}
			w.row(r.Subcontractor.ID, r.Subcontractor.Name, string(r.Classification.State),
				g.PolicyType.Label(), string(g.Kind), ranges(g.Ranges), g.Detail)
		}
	}
}

func writeReviewQueue(w sheetWriter, run Run) {
	w.headers("Subcontractor ID", "Name", "State", "Confidence", "Action", "Rule", "Hints")
	for _, r := range run.Results {
		if !routedTo(r, reportReview) {
			continue
		}
		w.row(r.Subcontractor.ID, r.Subcontractor.Name, string(r.Classification.State),
			r.Classification.Confidence, string(r.Classification.Action), r.Classification.Rule, hints(r))
	}
}

func writeErrors(w sheetWriter, run Run) {
	w.headers("Subcontractor ID", "Name", "Confidence", "Action", "File", "Category", "Error")
	for _, r := range run.Results {
		if !routedTo(r, reportErrors) {
			continue
		}
		docs := r.Classification.Evidence.Direct.Errors()
		if len(docs) == 0 {
			file := ""
			if d := r.Classification.Evidence.Direct.Documents; len(d) > 0 {
				file = d[0].Match.Filename
			}
			w.row(r.Subcontractor.ID, r.Subcontractor.Name, r.Classification.Confidence,
				string(r.Classification.Action), file, "no_dates", r.Classification.Rule)
			continue
		}
		for _, o := range docs {
			w.row(r.Subcontractor.ID, r.Subcontractor.Name, r.Classification.Confidence,
				string(r.Classification.Action), o.Match.Filename, string(o.ErrorKind), o.Error)
		}
	}
}

func writeMetadata(w sheetWriter, run Run) {
	w.headers("Row", "Subcontractor ID", "Name", "Markers")
	for _, r := range run.Results {
		if !routedTo(r, reportMetadata) {
			continue
		}
		w.row(r.Subcontractor.Row, r.Subcontractor.ID, r.Subcontractor.Name,
			strings.Join(r.Classification.Evidence.Meta.AdministrativeMarkers, "; "))
	}
}

func writeQA(w sheetWriter, run Run) {
	w.headers("Subcontractor ID", "Name", "Confidence", "Best Match", "Rule")
	for _, r := range run.Results {
		if !routedTo(r, reportQA) {
			continue
		}
		best := ""
		if d := r.Classification.Evidence.Direct.Documents; len(d) > 0 {
			best = fmt.Sprintf("%s (%.1f)", d[0].Match.Filename, d[0].Match.Score)
		}
		w.row(r.Subcontractor.ID, r.Subcontractor.Name, r.Classification.Confidence, best, r.Classification.Rule)
	}
}

func writeDiagnostics(w sheetWriter, run Run) {
	w.headers("Subcontractor ID", "Name", "State", "Confidence", "Action", "Document Found",
		"Processed", "Dates Extracted", "Near Misses", "Exhaustive Search", "Hints")
	for _, r := range run.Results {
		d := r.Diagnostic
		if d == nil {
			continue
		}
		w.row(d.SubcontractorID, d.SubcontractorName, string(d.State), d.Confidence, string(d.Action),
			d.DocumentFound, d.DocumentProcessed, d.DatesExtracted, d.NearMissCount, d.ExhaustiveSearch,
			strings.Join(d.Hints, "\n"))
	}
}

func notes(r audit.Result) string {
	var parts []string
	parts = append(parts, r.Classification.Evidence.Notes...)
	for _, o := range r.Classification.Evidence.Direct.Documents {
		for _, n := range o.Notes {
			parts = append(parts, o.Match.Filename+": "+n)
		}
	}
	parts = append(parts, r.Coverage.Notes...)
	return strings.Join(parts, "; ")
}

func hints(r audit.Result) string {
	if r.Diagnostic == nil {
		return ""
	}
	return strings.Join(r.Diagnostic.Hints, "\n")
}

func ranges(rs []coverage.DateRange) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
