package positions

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueCandidatesInOrder(t *testing.T) {
	row := Row{
		"Lev_Money_Positions_Long_All": nil,
		"lev_money_positions_long":     "1,234",
		"lev_money_positions_long_all": 99.0,
	}
	cands := []string{"Lev_Money_Positions_Long_All", "lev_money_positions_long", "lev_money_positions_long_all"}
	assert.Equal(t, int64(1234), Value(row, cands, 0))
}

func TestValueCoercion(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want int64
	}{
		{"int", 42, 42},
		{"int64", int64(-7), -7},
		{"float truncates", 12.9, 12},
		{"string", " 3000 ", 3000},
		{"decimal string", "17.0", 17},
		{"json number", json.Number("88"), 88},
		{"nan", math.NaN(), -1},
		{"inf", math.Inf(1), -1},
		{"empty string", "", -1},
		{"garbage", "n/a", -1},
		{"bool", true, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Value(Row{"x": tc.raw}, []string{"x"}, -1))
		})
	}
}

func TestValueMissing(t *testing.T) {
	assert.Equal(t, int64(0), Value(Row{}, []string{"a", "b"}, 0))
	assert.Equal(t, int64(5), Value(Row{"a": nil}, []string{"a"}, 5))
	assert.Equal(t, int64(0), Value(Row{"a": 1}, nil, 0))
}

func TestDateColumnPreference(t *testing.T) {
	col, ok := DateColumn([]string{"As_of_Date_In_Form_YYMMDD", "Report_Date_as_YYYY-MM-DD"}, nil)
	require.True(t, ok)
	assert.Equal(t, "Report_Date_as_YYYY-MM-DD", col)

	col, ok = DateColumn([]string{"as_of_date", "report_date_as_yyyy_mm_dd"}, []string{"as_of_date"})
	require.True(t, ok)
	assert.Equal(t, "as_of_date", col, "exact candidates win")

	_, ok = DateColumn([]string{"open_interest_all"}, nil)
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, time.February, 11, 0, 0, 0, 0, time.UTC)
	for _, raw := range []any{"2025-02-11", "2025-02-11T00:00:00.000", "2025-02-11T10:00:00Z", time.Date(2025, 2, 11, 18, 0, 0, 0, time.UTC)} {
		got, ok := ParseDate(raw)
		require.True(t, ok, "%v", raw)
		assert.Equal(t, want, got)
	}
	_, ok := ParseDate(20250211)
	assert.False(t, ok)
}

func TestFilterMarket(t *testing.T) {
	rows := []Row{
		{"market_and_exchange_names": "GOLD - COMMODITY EXCHANGE INC."},
		{"market_and_exchange_names": "MICRO GOLD - COMMODITY EXCHANGE INC."},
		{"market_and_exchange_names": "gold - commodity exchange inc."},
		{"market_and_exchange_names": nil},
	}
	re, err := CompileMarketPattern(`^GOLD - COMMODITY EXCHANGE`)
	require.NoError(t, err)

	got, err := FilterMarket(rows, marketColumns, re)
	require.NoError(t, err)
	assert.Len(t, got, 2, "anchored, case-insensitive match")

	_, err = FilterMarket([]Row{{"x": "y"}}, marketColumns, re)
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = CompileMarketPattern("(")
	assert.Error(t, err)
}

func TestDefaultSchema(t *testing.T) {
	for _, kind := range []ReportKind{Disaggregated, TFF, Legacy} {
		s, ok := DefaultSchema(kind)
		require.True(t, ok, kind)
		assert.NotEmpty(t, s.Columns.PrimaryLong)
		assert.NotEmpty(t, s.Columns.OpenInterest)
	}
	_, ok := DefaultSchema("supplemental")
	assert.False(t, ok)
}
