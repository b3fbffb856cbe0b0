// Package spreadsheet turns uploaded workbooks and CSV files into datasets.
//
// The first row is the header. Every later row becomes one record keyed by
// header; empty cells are left out of the record and fully blank rows are
// skipped. Numeric cells become json.Number in canonical decimal form and
// boolean cells become bool.
package spreadsheet

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/aixgo-dev/fincontext/pkg/dataset"
)

// DefaultMaxRows bounds the number of data rows accepted from one upload.
const DefaultMaxRows = 10000

var (
	// ErrUnsupportedFormat is returned for file types with no parser.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptySheet is returned when there is no header row.
	ErrEmptySheet = errors.New("sheet is empty")
	// ErrSheetNotFound is returned when Options.Sheet names no sheet.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrTooManyRows is returned when the data rows exceed Options.MaxRows.
	ErrTooManyRows = errors.New("too many rows")
)

// Format is a supported input format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Options tunes parsing.
type Options struct {
	// Sheet selects a workbook sheet by name. Empty means the first sheet.
	Sheet string
	// MaxRows caps data rows. Zero uses DefaultMaxRows.
	MaxRows int
	// Now stamps Dataset.UploadedAt. Nil uses time.Now.
	Now func() time.Time
}

// FormatOf picks the parser for a file name by extension.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Parse reads the file named name from r.
func Parse(name string, r io.Reader, opts Options) (*dataset.Dataset, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var (
		grid  [][]cell
		sheet string
	)
	switch format {
	case FormatXLSX:
		grid, sheet, err = readWorkbook(r, opts.Sheet)
	case FormatCSV:
		grid, err = readCSV(r)
	}
	if err != nil {
		return nil, err
	}

	ds, err := build(grid, opts.MaxRows)
	if err != nil {
		return nil, err
	}
	ds.Source = filepath.Base(name)
	ds.Sheet = sheet
	ds.UploadedAt = opts.Now().UTC()
	return ds, nil
}

// cell is one raw value with the type the source reported for it.
type cell struct {
	raw  string
	kind cellKind
}

type cellKind int

const (
	kindGuess cellKind = iota
	kindString
	kindBool
)

func readWorkbook(r io.Reader, want string) ([][]cell, string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, "", ErrEmptySheet
	}
	sheet := sheets[0]
	if want != "" {
		idx, err := f.GetSheetIndex(want)
		if err != nil || idx < 0 {
			return nil, "", fmt.Errorf("%w: %q", ErrSheetNotFound, want)
		}
		sheet = want
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, "", fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	grid := make([][]cell, len(rows))
	for i, row := range rows {
		grid[i] = make([]cell, len(row))
		for j, raw := range row {
			c := cell{raw: raw}
			if raw != "" {
				name, err := excelize.CoordinatesToCellName(j+1, i+1)
				if err != nil {
					return nil, "", err
				}
				typ, err := f.GetCellType(sheet, name)
				if err != nil {
					return nil, "", fmt.Errorf("read cell %s: %w", name, err)
				}
				switch typ {
				case excelize.CellTypeBool:
					c.kind = kindBool
				case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula, excelize.CellTypeError:
					c.kind = kindString
				}
			}
			grid[i][j] = c
		}
	}
	return grid, sheet, nil
}

func readCSV(r io.Reader) ([][]cell, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	grid := make([][]cell, len(records))
	for i, rec := range records {
		grid[i] = make([]cell, len(rec))
		for j, raw := range rec {
			grid[i][j] = cell{raw: raw}
		}
	}
	return grid, nil
}

func build(grid [][]cell, maxRows int) (*dataset.Dataset, error) {
	start := 0
	for start < len(grid) && blank(grid[start]) {
		start++
	}
	if start == len(grid) {
		return nil, ErrEmptySheet
	}

	width := 0
	for _, row := range grid[start:] {
		width = max(width, len(row))
	}
	columns := headers(grid[start], width)

	ds := &dataset.Dataset{Columns: columns, Records: []dataset.Record{}}
	for _, row := range grid[start+1:] {
		if blank(row) {
			continue
		}
		if len(ds.Records) == maxRows {
			return nil, fmt.Errorf("%w: more than %d data rows", ErrTooManyRows, maxRows)
		}
		rec := make(dataset.Record, len(row))
		for j, c := range row {
			if strings.TrimSpace(c.raw) == "" {
				continue
			}
			rec[columns[j]] = convert(c)
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

// headers names each column by its header cell. Blank headers become
// column_N (1-based) and repeats get a _N suffix.
func headers(row []cell, width int) []string {
	cols := make([]string, width)
	seen := make(map[string]int, width)
	for j := range cols {
		name := ""
		if j < len(row) {
			name = strings.TrimSpace(row[j].raw)
		}
		if name == "" {
			name = "column_" + strconv.Itoa(j+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			seen[name] = 1
		}
		cols[j] = name
	}
	return cols
}

func convert(c cell) any {
	raw := strings.TrimSpace(c.raw)
	switch c.kind {
	case kindBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case kindString:
		return c.raw
	}

	switch strings.ToUpper(raw) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	if d, err := decimal.NewFromString(raw); err == nil && normalizable(d) {
		return json.Number(d.String())
	}
	return c.raw
}

// maxExponent bounds the scale of numbers rewritten in plain notation.
// Beyond it the canonical form grows with the exponent, not the input.
const maxExponent = 30

func normalizable(d decimal.Decimal) bool {
	exp := d.Exponent()
	return exp >= -maxExponent && exp <= maxExponent
}

func blank(row []cell) bool {
	for _, c := range row {
		if strings.TrimSpace(c.raw) != "" {
			return false
		}
	}
	return true
}
