// Package dataset holds the tabular input to an exploration run: a frame of
// named float64 columns plus CSV/XLSX ingestion and remote retrieval. The
// frame is read-only once loaded and safely shared across fit workers.
package dataset

import (
	"github.com/rotisserie/eris"
)

// Frame is an ordered collection of equal-length named float64 columns.
type Frame struct {
	names []string
	cols  map[string][]float64
	rows  int
}

// NewFrame creates an empty frame.
func NewFrame() *Frame {
	return &Frame{cols: make(map[string][]float64)}
}

// AddColumn appends a named column. All columns must share one length, and
// names must be unique. The frame takes ownership of the slice.
func (f *Frame) AddColumn(name string, values []float64) error {
	if name == "" {
		return eris.New("dataset: column name is empty")
	}
	if _, exists := f.cols[name]; exists {
		return eris.Errorf("dataset: duplicate column %q", name)
	}
	if len(f.names) > 0 && len(values) != f.rows {
		return eris.Errorf("dataset: column %q has %d rows, frame has %d", name, len(values), f.rows)
	}

	f.names = append(f.names, name)
	f.cols[name] = values
	f.rows = len(values)
	return nil
}

// Rows returns the number of rows.
func (f *Frame) Rows() int { return f.rows }

// Names returns the column names in insertion order.
func (f *Frame) Names() []string {
	return append([]string(nil), f.names...)
}

// Has reports whether the named column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Column returns a copy of the named column restricted to the given rows.
// A nil row selection means all rows.
func (f *Frame) Column(name string, rows []int) ([]float64, error) {
	col, ok := f.cols[name]
	if !ok {
		return nil, eris.Errorf("dataset: column %q not found", name)
	}
	if rows == nil {
		out := make([]float64, len(col))
		copy(out, col)
		return out, nil
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		if r < 0 || r >= f.rows {
			return nil, eris.Errorf("dataset: row index %d out of range [0,%d)", r, f.rows)
		}
		out[i] = col[r]
	}
	return out, nil
}

// Matrix returns a row-major copy of the named columns restricted to the
// given rows, suitable for building a design matrix. The returned storage
// never aliases the frame's columns.
func (f *Frame) Matrix(names []string, rows []int) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		col, err := f.Column(name, rows)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}

	n := f.rows
	if rows != nil {
		n = len(rows)
	}
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		out[i] = row
	}
	return out, nil
}

// EnsureIntercept adds a constant column of ones under the given name if it
// is not already present.
func (f *Frame) EnsureIntercept(name string) error {
	if f.Has(name) {
		return nil
	}
	ones := make([]float64, f.rows)
	for i := range ones {
		ones[i] = 1
	}
	return f.AddColumn(name, ones)
}

// Require verifies all named columns exist.
func (f *Frame) Require(names ...string) error {
	for _, n := range names {
		if !f.Has(n) {
			return eris.Errorf("dataset: required column %q not found", n)
		}
	}
	return nil
}
