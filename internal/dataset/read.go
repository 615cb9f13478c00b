package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
)

// ReadOptions configures tabular ingestion.
type ReadOptions struct {
	// Charset names a non-UTF-8 encoding for CSV input (e.g. "windows-1252").
	Charset string

	// SheetIndex selects the XLSX sheet; SheetName overrides it when set.
	SheetIndex int
	SheetName  string
}

// Read loads a CSV or XLSX file into a frame, dispatching on the extension.
func Read(path string, opts ReadOptions) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(path, opts)
	case ".xlsx":
		return ReadXLSX(path, opts)
	default:
		return nil, eris.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV loads a headered CSV of numeric columns.
func ReadCSV(path string, opts ReadOptions) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open csv")
	}
	defer f.Close() //nolint:errcheck

	var reader io.Reader = f
	if opts.Charset != "" {
		enc, encErr := htmlindex.Get(opts.Charset)
		if encErr != nil {
			return nil, eris.Wrapf(encErr, "dataset: unknown charset %q", opts.Charset)
		}
		reader = enc.NewDecoder().Reader(f)
	}

	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv header")
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv rows")
	}

	return buildFrame(header, records)
}

// ReadXLSX loads the selected sheet of an XLSX workbook, using the first
// row as the column header.
func ReadXLSX(path string, opts ReadOptions) (*Frame, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open xlsx")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("dataset: xlsx sheet is empty")
	}

	header := rowStrings(sheet.Rows[0])
	records := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		records = append(records, rowStrings(row))
	}

	return buildFrame(header, records)
}

func pickSheet(f *xlsx.File, opts ReadOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("dataset: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("dataset: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func buildFrame(header []string, records [][]string) (*Frame, error) {
	if len(header) == 0 {
		return nil, eris.New("dataset: empty header")
	}

	cols := make([][]float64, len(header))
	for j := range cols {
		cols[j] = make([]float64, 0, len(records))
	}

	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, eris.Errorf("dataset: row %d has %d fields, header has %d", i+1, len(rec), len(header))
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "dataset: row %d column %q is not numeric", i+1, header[j])
			}
			cols[j] = append(cols[j], v)
		}
	}

	frame := NewFrame()
	for j, name := range header {
		if err := frame.AddColumn(strings.TrimSpace(name), cols[j]); err != nil {
			return nil, err
		}
	}
	return frame, nil
}
