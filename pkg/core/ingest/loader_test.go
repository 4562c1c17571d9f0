package ingest

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finstory/pkg/models"
)

func TestReadCSV_AliasesAndBlanks(t *testing.T) {
	input := "Quarter,Revenue,COGS,Net Income,OCF,Capex,Notes\n" +
		"Q1,\"1,000,000\",600000,180000,250000,,first\n" +
		"Q2,1150000,690000,210000,,(40000),\n" +
		",,,,,,\n"

	s, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"Q1", "Q2"}, s.Labels())

	q1 := s.At(0)
	rev, ok := q1.Value(models.Revenue)
	require.True(t, ok)
	assert.Equal(t, 1_000_000.0, rev)
	_, ok = q1.Value(models.CapitalExpenditure)
	assert.False(t, ok, "blank capex is absent, not zero")

	q2 := s.At(1)
	capex, ok := q2.Value(models.CapitalExpenditure)
	require.True(t, ok)
	assert.Equal(t, -40_000.0, capex)
	assert.False(t, q2.Has(models.CashFromOperations))
	cogs, _ := q2.Value(models.COGS)
	assert.Equal(t, 690_000.0, cogs)
}

func TestReadCSV_CanonicalHeadersAndLabelPreference(t *testing.T) {
	input := "year,period,revenue,total_debt,total_equity\n2023,FY23,10,5,20\n2024,FY24,12,6,21\n"
	s, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"FY23", "FY24"}, s.Labels(), "period beats year")

	d, ok := s.Latest().Value(models.TotalDebt)
	require.True(t, ok)
	assert.Equal(t, 6.0, d)
}

func TestReadCSV_MissingLabelsAreNumbered(t *testing.T) {
	s, err := ReadCSV(strings.NewReader("revenue\n100\n110\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Period 1", "Period 2"}, s.Labels())
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = ReadCSV(strings.NewReader("period,revenue\nQ1,lots\n"))
	assert.ErrorContains(t, err, `line 2, column "revenue"`)

	_, err = ReadCSV(strings.NewReader("period,cogs,cost_of_goods_sold\nQ1,1,2\n"))
	assert.ErrorContains(t, err, "both map to cost_of_goods_sold")
}

func TestReadCSV_NoRowsIsEmptySeries(t *testing.T) {
	s, err := ReadCSV(strings.NewReader("period,revenue\n"))
	require.NoError(t, err)
	assert.Zero(t, s.Len())
	assert.Error(t, s.Validate())
}

func TestFromRows(t *testing.T) {
	var rows []map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(`[
		{"year": 2023, "revenue": 900, "net_income": null, "sales_region": "EU"},
		{"year": 2024, "Revenue": "1,100", "net_income": 120.5, "capex": -30}
	]`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&rows))

	s, err := FromRows(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"2023", "2024"}, s.Labels())

	assert.False(t, s.At(0).Has(models.NetIncome), "null is absent")
	rev, _ := s.Latest().Value(models.Revenue)
	assert.Equal(t, 1100.0, rev)
	ni, _ := s.Latest().Value(models.NetIncome)
	assert.Equal(t, 120.5, ni)
	capex, _ := s.Latest().Value(models.CapitalExpenditure)
	assert.Equal(t, -30.0, capex)
}

func TestFromRows_Errors(t *testing.T) {
	_, err := FromRows([]map[string]interface{}{{"revenue": true}})
	assert.ErrorContains(t, err, "row 1")

	_, err = FromRows([]map[string]interface{}{{"revenue": 1, "sales": 2}})
	assert.ErrorContains(t, err, "both map to revenue")
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		present bool
		wantErr bool
	}{
		{"", 0, false, false},
		{"  ", 0, false, false},
		{"N/A", 0, false, false},
		{"-", 0, false, false},
		{"0", 0, true, false},
		{"-12.5", -12.5, true, false},
		{"$1,234.50", 1234.5, true, false},
		{"(2,000)", -2000, true, false},
		{"1e3", 1000, true, false},
		{"abc", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok, err := ParseNumber(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveColumn(t *testing.T) {
	col, ok := ResolveColumn("Cost of Sales")
	require.True(t, ok)
	assert.Equal(t, models.COGS, col.Field)

	col, ok = ResolveColumn("\ufeffPeriod")
	require.True(t, ok)
	assert.True(t, col.Label)

	_, ok = ResolveColumn("free_cash_flow")
	assert.False(t, ok)
}
