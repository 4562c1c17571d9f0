// Package ingest turns tabular input (CSV files, decoded JSON rows) into a
// PeriodSeries. Headers are matched against the field vocabulary through a
// small alias table; blank cells mean "absent", never zero.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"finstory/pkg/models"
)

// ErrNoHeader is returned for input without a header row.
var ErrNoHeader = errors.New("input has no header row")

// labelColumns are the accepted period label headers, in order of preference.
var labelColumns = []string{"period_label", "period", "quarter", "date", "year", "fiscal_year"}

var aliases = map[string]models.Field{
	"sales":               models.Revenue,
	"total_revenue":       models.Revenue,
	"cogs":                models.COGS,
	"cost_of_revenue":     models.COGS,
	"cost_of_sales":       models.COGS,
	"ebit":                models.OperatingIncome,
	"net_profit":          models.NetIncome,
	"ocf":                 models.CashFromOperations,
	"operating_cash_flow": models.CashFromOperations,
	"capex":               models.CapitalExpenditure,
	"capital_expenditure": models.CapitalExpenditure,
	"cash":                models.CashAndEquivalents,
	"debt":                models.TotalDebt,
	"equity":              models.TotalEquity,
	"shareholders_equity": models.TotalEquity,
	"receivables":         models.AccountsReceivable,
	"payables":            models.AccountsPayable,
}

// Column describes how one input header was interpreted.
type Column struct {
	Header string
	Field  models.Field // empty for the label column and ignored columns
	Label  bool
}

// ResolveColumn maps a header to the vocabulary. ok is false for headers the
// pipeline does not use.
func ResolveColumn(header string) (Column, bool) {
	key := normalizeHeader(header)
	col := Column{Header: header}
	for _, l := range labelColumns {
		if key == l {
			col.Label = true
			return col, true
		}
	}
	f := models.Field(key)
	if models.IsNumericField(f) {
		col.Field = f
		return col, true
	}
	if f, ok := aliases[key]; ok {
		col.Field = f
		return col, true
	}
	return col, false
}

// Layout is the resolved header of one input.
type Layout struct {
	Label   int // index of the label column, -1 when absent
	Fields  map[int]models.Field
	Ignored []string
}

// ResolveHeader resolves every header cell. The first label column wins;
// two headers mapping to the same field are an error.
func ResolveHeader(header []string) (Layout, error) {
	layout := Layout{Label: -1, Fields: make(map[int]models.Field)}
	labelRank := len(labelColumns)
	seen := make(map[models.Field]string)

	for i, h := range header {
		col, ok := ResolveColumn(h)
		switch {
		case !ok:
			if strings.TrimSpace(h) != "" {
				layout.Ignored = append(layout.Ignored, h)
			}
		case col.Label:
			if r := labelIndex(normalizeHeader(h)); r < labelRank {
				labelRank = r
				layout.Label = i
			}
		default:
			if prev, dup := seen[col.Field]; dup {
				return Layout{}, fmt.Errorf("columns %q and %q both map to %s", prev, h, col.Field)
			}
			seen[col.Field] = h
			layout.Fields[i] = col.Field
		}
	}
	return layout, nil
}

// ReadCSV reads a header row followed by one row per period, oldest first.
func ReadCSV(r io.Reader) (models.PeriodSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return models.PeriodSeries{}, ErrNoHeader
	}
	if err != nil {
		return models.PeriodSeries{}, fmt.Errorf("read csv header: %w", err)
	}
	layout, err := ResolveHeader(header)
	if err != nil {
		return models.PeriodSeries{}, err
	}

	var periods []models.Period
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.PeriodSeries{}, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if blankRecord(record) {
			continue
		}

		p := models.Period{Values: make(map[models.Field]float64)}
		if layout.Label >= 0 && layout.Label < len(record) {
			p.Label = strings.TrimSpace(record[layout.Label])
		}
		for i, f := range layout.Fields {
			if i >= len(record) {
				continue
			}
			v, ok, err := ParseNumber(record[i])
			if err != nil {
				return models.PeriodSeries{}, fmt.Errorf("line %d, column %q: %w", line, header[i], err)
			}
			if ok {
				p.Values[f] = v
			}
		}
		periods = append(periods, p)
	}
	return models.NewPeriodSeries(periods)
}

// FromRows converts decoded JSON rows (one object per period, oldest first).
// Values may be numbers, json.Number, numeric strings or null.
func FromRows(rows []map[string]interface{}) (models.PeriodSeries, error) {
	periods := make([]models.Period, 0, len(rows))
	for n, row := range rows {
		header := make([]string, 0, len(row))
		for k := range row {
			header = append(header, k)
		}
		layout, err := ResolveHeader(header)
		if err != nil {
			return models.PeriodSeries{}, fmt.Errorf("row %d: %w", n+1, err)
		}

		p := models.Period{Values: make(map[models.Field]float64)}
		if layout.Label >= 0 {
			if raw := row[header[layout.Label]]; raw != nil {
				label, err := labelString(raw)
				if err != nil {
					return models.PeriodSeries{}, fmt.Errorf("row %d: period label: %w", n+1, err)
				}
				p.Label = label
			}
		}
		for i, f := range layout.Fields {
			v, ok, err := coerce(row[header[i]])
			if err != nil {
				return models.PeriodSeries{}, fmt.Errorf("row %d, field %q: %w", n+1, header[i], err)
			}
			if ok {
				p.Values[f] = v
			}
		}
		periods = append(periods, p)
	}
	return models.NewPeriodSeries(periods)
}

// ParseNumber parses a cell. Blank cells and "n/a"-style markers are absent.
// Thousands separators, currency signs and accounting negatives "(1,200)"
// are accepted.
func ParseNumber(cell string) (float64, bool, error) {
	s := strings.TrimSpace(cell)
	switch strings.ToLower(s) {
	case "", "-", "n/a", "na", "null", "none":
		return 0, false, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", " ", "").Replace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%q is not a number", cell)
	}
	if negative {
		v = -v
	}
	return v, true, nil
}

func coerce(raw interface{}) (float64, bool, error) {
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case string:
		return ParseNumber(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false, err
		}
		return f, true, nil
	case bool:
		return 0, false, fmt.Errorf("boolean is not a number")
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}

func labelString(raw interface{}) (string, error) {
	if n, ok := raw.(json.Number); ok {
		return n.String(), nil
	}
	return cast.ToStringE(raw)
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_", "&", "and", "/", "_").Replace(h)
	return strings.Trim(h, "_")
}

func labelIndex(key string) int {
	for i, l := range labelColumns {
		if l == key {
			return i
		}
	}
	return len(labelColumns)
}

func blankRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
