package grounding

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aixgo-dev/fincontext/pkg/dataset"
)

type columnStats struct {
	name          string
	count         int
	sum, min, max decimal.Decimal
}

// summarize renders a bounded description of ds: shape, per-column numeric
// totals computed exactly, and the leading rows verbatim.
func (i *Injector) summarize(ds *dataset.Dataset) (string, error) {
	preview := &dataset.Dataset{Columns: ds.Columns}
	if n := min(i.previewRows, ds.Len()); n > 0 {
		preview.Records = ds.Records[:n]
	}
	rows, err := preview.OrderedJSON()
	if err != nil {
		return "", fmt.Errorf("render preview: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The full dataset has %d rows and is too large to include; this is a summary. ", ds.Len())
	if len(ds.Columns) > 0 {
		fmt.Fprintf(&b, "Columns: %s. ", strings.Join(ds.Columns, ", "))
	}
	if stats := numericStats(ds); len(stats) > 0 {
		b.WriteString("Numeric column totals over all rows: ")
		for j, s := range stats {
			if j > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s (n=%d) sum=%s min=%s max=%s",
				s.name, s.count, s.sum.String(), s.min.String(), s.max.String())
		}
		b.WriteString(". ")
	}
	fmt.Fprintf(&b, "First %d rows: %s", len(preview.Records), rows)
	return b.String(), nil
}

// numericStats returns stats for every column, in header order, whose
// non-empty values are all numeric.
func numericStats(ds *dataset.Dataset) []columnStats {
	var out []columnStats
	for _, col := range ds.Columns {
		st := columnStats{name: col}
		numeric := true
		for _, rec := range ds.Records {
			v, ok := rec[col]
			if !ok || v == nil {
				continue
			}
			d, ok := toDecimal(v)
			if !ok {
				numeric = false
				break
			}
			if st.count == 0 {
				st.min, st.max = d, d
			} else {
				if d.LessThan(st.min) {
					st.min = d
				}
				if d.GreaterThan(st.max) {
					st.max = d
				}
			}
			st.sum = st.sum.Add(d)
			st.count++
		}
		if numeric && st.count > 0 {
			out = append(out, st)
		}
	}
	return out
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}
