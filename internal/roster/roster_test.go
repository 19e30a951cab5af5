package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/coi-audit/internal/model"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

// summarySheet mimics the usual export: a title block, the header on
// row 6, data rows, then trailing empty rows.
func summarySheet() [][]string {
	return [][]string{
		{"Project Subcontractor Summary"},
		{"Prepared by Accounting"},
		{},
		{},
		{},
		{"Subcontractor ID", "Name", "Trade"},
		{"S-001", "Acme Roofing LLC", "Roofing"},
		{"", "S&G Siding and Gutters", "Siding"},
		{"S-003", "   ", "Blank"},
		{"S-004", " Zephyr Electric ", "Electrical"},
		{"", "", ""},
		{"", "", ""},
	}
}

func TestRead_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"SUMMARY": summarySheet()})

	got, err := Read(path, Options{HeaderRow: 6, NameColumn: "Name", IDColumn: "Subcontractor ID"})
	require.NoError(t, err)
	assert.Equal(t, []model.Subcontractor{
		{ID: "S-001", Name: "Acme Roofing LLC", Row: 7},
		{ID: "row-8", Name: "S&G Siding and Gutters", Row: 8},
		{ID: "S-004", Name: "Zephyr Electric", Row: 10},
	}, got)
}

func TestRead_XLSXSheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Notes":   {{"nothing here"}},
		"SUMMARY": {{"Name"}, {"Acme Roofing"}},
	})

	got, err := Read(path, Options{HeaderRow: 1, NameColumn: "name", SheetName: "SUMMARY"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme Roofing", got[0].Name)

	_, err = Read(path, Options{HeaderRow: 1, NameColumn: "Name", SheetName: "Missing"})
	assert.Error(t, err)
}

func TestRead_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	content := "Name,Subcontractor ID,Sub?\nAcme Roofing,A1,yes\nBaker Plumbing,B2,no\n\"Cedar, Fencing & Co\",,Y\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := Read(path, Options{HeaderRow: 1, NameColumn: "Name", IDColumn: "Subcontractor ID"})
	require.NoError(t, err)
	assert.Equal(t, []model.Subcontractor{
		{ID: "A1", Name: "Acme Roofing", Row: 2},
		{ID: "row-4", Name: "Cedar, Fencing & Co", Row: 4},
	}, got)
}

func TestRead_UnsupportedExtension(t *testing.T) {
	_, err := Read("roster.txt", Options{NameColumn: "Name"})
	assert.Error(t, err)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.xlsx"), Options{NameColumn: "Name"})
	assert.Error(t, err)
}

func TestParse_Errors(t *testing.T) {
	rows := [][]string{{"Vendor"}, {"Acme"}}

	_, err := Parse(rows, Options{HeaderRow: 1, NameColumn: "Name"})
	assert.ErrorContains(t, err, `missing column "Name"`)

	_, err = Parse(rows, Options{HeaderRow: 5, NameColumn: "Vendor"})
	assert.ErrorContains(t, err, "past the end")

	_, err = Parse(rows, Options{HeaderRow: 1})
	assert.Error(t, err)
}

func TestParse_ExplicitFlagColumn(t *testing.T) {
	rows := [][]string{
		{"Name", "Active"},
		{"Acme", "x"},
		{"Baker", ""},
		{"Cedar", "TRUE"},
	}
	got, err := Parse(rows, Options{NameColumn: "Name", FlagColumn: "Active"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme", got[0].Name)
	assert.Equal(t, "Cedar", got[1].Name)
}

func TestParse_ShortRows(t *testing.T) {
	rows := [][]string{{"ID", "Name"}, {"1"}, {"2", "Baker"}}
	got, err := Parse(rows, Options{NameColumn: "Name", IDColumn: "ID"})
	require.NoError(t, err)
	assert.Equal(t, []model.Subcontractor{{ID: "2", Name: "Baker", Row: 3}}, got)
}
