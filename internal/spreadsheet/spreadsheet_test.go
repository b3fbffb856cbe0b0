package spreadsheet

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func workbook(t *testing.T, sheets map[string][][]any, order ...string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			axis, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			row := row
			require.NoError(t, f.SetSheetRow(name, axis, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"budget.xlsx", FormatXLSX, false},
		{"BUDGET.XLSM", FormatXLSX, false},
		{"export.csv", FormatCSV, false},
		{"report.pdf", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.name)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedFormat, tt.name)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParse_Workbook(t *testing.T) {
	buf := workbook(t, map[string][][]any{
		"Budget": {
			{"Month", "Revenue", "Costs", "Paid"},
			{"Jan", 100, 40.5, true},
			{nil, nil, nil, nil},
			{"Feb", 120, nil, false},
		},
	}, "Budget")

	ds, err := Parse("uploads/budget.xlsx", buf, Options{Now: fixedNow})
	require.NoError(t, err)

	assert.Equal(t, "budget.xlsx", ds.Source)
	assert.Equal(t, "Budget", ds.Sheet)
	assert.Equal(t, fixedNow(), ds.UploadedAt)
	assert.Equal(t, []string{"Month", "Revenue", "Costs", "Paid"}, ds.Columns)
	require.Len(t, ds.Records, 2)

	assert.Equal(t, "Jan", ds.Records[0]["Month"])
	assert.Equal(t, json.Number("100"), ds.Records[0]["Revenue"])
	assert.Equal(t, json.Number("40.5"), ds.Records[0]["Costs"])
	assert.Equal(t, true, ds.Records[0]["Paid"])

	_, hasCosts := ds.Records[1]["Costs"]
	assert.False(t, hasCosts, "empty cells are omitted")
	assert.Equal(t, false, ds.Records[1]["Paid"])

	out, err := ds.OrderedJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`[{"Month":"Jan","Revenue":100,"Costs":40.5,"Paid":true},{"Month":"Feb","Revenue":120,"Paid":false}]`,
		string(out))
}

func TestParse_WorkbookSheetSelection(t *testing.T) {
	sheets := map[string][][]any{
		"Summary": {{"Total"}, {500}},
		"Detail":  {{"Item", "Amount"}, {"Rent", 400}, {"Food", 100}},
	}

	ds, err := Parse("book.xlsx", workbook(t, sheets, "Summary", "Detail"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "Summary", ds.Sheet)
	assert.Equal(t, 1, ds.Len())

	ds, err = Parse("book.xlsx", workbook(t, sheets, "Summary", "Detail"), Options{Sheet: "Detail"})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	_, err = Parse("book.xlsx", workbook(t, sheets, "Summary", "Detail"), Options{Sheet: "Missing"})
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestParse_NumericTextStaysText(t *testing.T) {
	buf := workbook(t, map[string][][]any{
		"Sheet": {{"Code", "Year"}, {"0012", "2024"}},
	}, "Sheet")

	ds, err := Parse("codes.xlsx", buf, Options{})
	require.NoError(t, err)
	assert.Equal(t, "0012", ds.Records[0]["Code"])
	assert.Equal(t, "2024", ds.Records[0]["Year"])
}

func TestParse_CSV(t *testing.T) {
	input := strings.Join([]string{
		"Category,Amount,,Recurring,Amount",
		"Rent,1200.00,x,TRUE,1",
		",,,,",
		"Food,300.5,,false,",
		"",
		"Notes,n/a",
	}, "\n")

	ds, err := Parse("spend.csv", strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Category", "Amount", "column_3", "Recurring", "Amount_1"}, ds.Columns)
	assert.Empty(t, ds.Sheet)
	require.Len(t, ds.Records, 3)

	assert.Equal(t, json.Number("1200"), ds.Records[0]["Amount"])
	assert.Equal(t, "x", ds.Records[0]["column_3"])
	assert.Equal(t, true, ds.Records[0]["Recurring"])
	assert.Equal(t, json.Number("1"), ds.Records[0]["Amount_1"])

	assert.Equal(t, json.Number("300.5"), ds.Records[1]["Amount"])
	assert.Equal(t, false, ds.Records[1]["Recurring"])

	assert.Equal(t, "n/a", ds.Records[2]["Amount"])
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("empty.csv", strings.NewReader(""), Options{})
	assert.ErrorIs(t, err, ErrEmptySheet)

	_, err = Parse("blank.csv", strings.NewReader(",,\n,,\n"), Options{})
	assert.ErrorIs(t, err, ErrEmptySheet)

	_, err = Parse("data.json", strings.NewReader("{}"), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Parse("broken.xlsx", strings.NewReader("not a zip"), Options{})
	require.Error(t, err)

	_, err = Parse("rows.csv", strings.NewReader("a\n1\n2\n3\n"), Options{MaxRows: 2})
	assert.ErrorIs(t, err, ErrTooManyRows)

	ds, err := Parse("rows.csv", strings.NewReader("a\n1\n2\n"), Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
}

func TestParse_HeaderOnly(t *testing.T) {
	ds, err := Parse("header.csv", strings.NewReader("Month,Revenue\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Month", "Revenue"}, ds.Columns)
	assert.Equal(t, 0, ds.Len())

	out, err := ds.OrderedJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestParse_ExtremeExponentKeepsText(t *testing.T) {
	input := "Amount\n1e5000000\n1e-5000000\n2.5e3\n1E30\n"

	start := time.Now()
	ds, err := Parse("amounts.csv", strings.NewReader(input), Options{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, ds.Records, 4)
	assert.Equal(t, "1e5000000", ds.Records[0]["Amount"])
	assert.Equal(t, "1e-5000000", ds.Records[1]["Amount"])
	assert.Equal(t, json.Number("2500"), ds.Records[2]["Amount"])
	assert.Equal(t, json.Number("1000000000000000000000000000000"), ds.Records[3]["Amount"])

	raw, err := ds.OrderedJSON()
	require.NoError(t, err)
	assert.Less(t, len(raw), 200)
}
