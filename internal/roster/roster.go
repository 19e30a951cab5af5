// Package roster reads the subcontractor list from a spreadsheet export.
package roster

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/model"
)

// Options describes the roster layout.
type Options struct {
	HeaderRow  int    // 1-based; default 1
	NameColumn string // required header
	IDColumn   string // optional header
	FlagColumn string // optional header; see RosterConfig.FlagColumn
	SheetName  string // XLSX only; default is the first sheet
}

// flagHeaders are recognized when no flag column is configured.
var flagHeaders = []string{"subcontractor", "subcontractor?", "is subcontractor", "sub?", "sub flag"}

// Read loads subcontractors from an .xlsx or .csv file.
func Read(path string, opts Options) ([]model.Subcontractor, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path, opts.SheetName)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, eris.Errorf("roster: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	subs, err := Parse(rows, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: %s", filepath.Base(path))
	}
	zap.L().Info("roster: loaded",
		zap.String("path", path),
		zap.Int("subcontractors", len(subs)),
	)
	return subs, nil
}

// Parse builds subcontractors from raw rows, where rows[0] is spreadsheet
// row 1. Rows after the last non-empty name are ignored, blank names inside
// the range are skipped, and missing IDs become "row-<n>".
func Parse(rows [][]string, opts Options) ([]model.Subcontractor, error) {
	headerRow := opts.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}
	if opts.NameColumn == "" {
		return nil, eris.New("name column is required")
	}
	if len(rows) < headerRow {
		return nil, eris.Errorf("header row %d is past the end of the sheet (%d rows)", headerRow, len(rows))
	}

	header := rows[headerRow-1]
	nameIdx := columnIndex(header, opts.NameColumn)
	if nameIdx < 0 {
		return nil, eris.Errorf("missing column %q in header row %d", opts.NameColumn, headerRow)
	}
	idIdx := -1
	if opts.IDColumn != "" {
		idIdx = columnIndex(header, opts.IDColumn)
	}
	flagIdx := -1
	if opts.FlagColumn != "" {
		flagIdx = columnIndex(header, opts.FlagColumn)
	} else {
		for _, h := range flagHeaders {
			if flagIdx = columnIndex(header, h); flagIdx >= 0 {
				break
			}
		}
	}

	last := len(rows)
	for last > headerRow && cell(rows[last-1], nameIdx) == "" {
		last--
	}

	var out []model.Subcontractor
	for i := headerRow; i < last; i++ {
		row := rows[i]
		rowNum := i + 1
		if flagIdx >= 0 && !truthy(cell(row, flagIdx)) {
			zap.L().Debug("roster: skipping unflagged row", zap.Int("row", rowNum))
			continue
		}
		name := cell(row, nameIdx)
		if name == "" {
			zap.L().Debug("roster: skipping blank row", zap.Int("row", rowNum))
			continue
		}
		id := cell(row, idIdx)
		if id == "" {
			id = "row-" + strconv.Itoa(rowNum)
		}
		out = append(out, model.Subcontractor{ID: id, Name: name, Row: rowNum})
	}
	return out, nil
}

func columnIndex(header []string, name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "yes", "y", "true", "1", "x":
		return true
	}
	return false
}
