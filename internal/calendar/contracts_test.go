package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustConvention(t *testing.T, ex Exchange, root, suffix string) Convention {
	t.Helper()
	cv, err := NewConvention(ex, root, suffix)
	require.NoError(t, err)
	return cv
}

func TestContractTickers(t *testing.T) {
	comex := mustConvention(t, COMEX, "hg", ".CMX")
	shfe := mustConvention(t, SHFE, "CU", "")

	assert.Equal(t, "HGH26.CMX", comex.Contract(2026, time.March).Ticker)
	assert.Equal(t, "HGZ25.CMX", comex.Contract(2025, time.December).Ticker)
	assert.Equal(t, "HGF27.CMX", comex.Contract(2027, time.January).Ticker)
	assert.Equal(t, "CU2601", shfe.Contract(2026, time.January).Ticker)
	assert.Equal(t, "CU2512", shfe.Contract(2025, time.December).Ticker)

	assert.Equal(t, date(2026, time.March, 25), comex.Contract(2026, time.March).ExpiryEstimate)
	assert.Equal(t, date(2026, time.March, 15), shfe.Contract(2026, time.March).ExpiryEstimate)
}

func TestUnknownExchange(t *testing.T) {
	_, err := NewConvention("LME", "CA", "")
	require.Error(t, err)

	_, err = NewConvention(COMEX, " ", "")
	require.Error(t, err)
}

func TestExpiryBoundary(t *testing.T) {
	comex := mustConvention(t, COMEX, "HG", "")

	onThreshold := comex.Next(date(2025, time.March, 25), 0, AllMonths)
	assert.Equal(t, "HGH25", onThreshold.Ticker, "threshold day is still tradable")

	dayAfter := comex.Next(date(2025, time.March, 26), 0, AllMonths)
	assert.Equal(t, "HGJ25", dayAfter.Ticker)

	c := comex.Contract(2025, time.March)
	assert.False(t, c.ExpiredAt(date(2025, time.March, 25)))
	assert.True(t, c.ExpiredAt(date(2025, time.March, 26)))
	assert.False(t, c.ExpiredAt(time.Date(2025, time.March, 25, 23, 59, 0, 0, time.UTC)))
}

func TestEnumerateWrapsYear(t *testing.T) {
	shfe := mustConvention(t, SHFE, "CU", "")

	got := shfe.Enumerate(date(2025, time.November, 20), 4, AllMonths)
	tickers := make([]string, 0, len(got))
	for _, c := range got {
		tickers = append(tickers, c.Ticker)
	}
	assert.Equal(t, []string{"CU2512", "CU2601", "CU2602", "CU2603"}, tickers)
}

func TestNextNegativeOffset(t *testing.T) {
	comex := mustConvention(t, COMEX, "HG", ".CMX")
	ref := date(2026, time.March, 26)

	got := comex.Next(ref, -3, AllMonths)
	assert.Equal(t, comex.Next(ref, 0, AllMonths), got)
	assert.Equal(t, "HGJ26.CMX", got.Ticker)
}

func TestEnumerateQuarterly(t *testing.T) {
	comex := mustConvention(t, COMEX, "HG", "")

	got := comex.Enumerate(date(2025, time.September, 26), 5, QuarterlyMonths)
	labels := make([]string, 0, len(got))
	for _, c := range got {
		labels = append(labels, c.MonthLabel())
	}
	assert.Equal(t, []string{"2025-12", "2026-03", "2026-06", "2026-09", "2026-12"}, labels)
}

func TestEnumerateIsDeterministic(t *testing.T) {
	comex := mustConvention(t, COMEX, "HG", ".CMX")
	ref := date(2025, time.February, 10)

	first := comex.Enumerate(ref, 12, AllMonths)
	second := comex.Enumerate(ref, 12, AllMonths)
	assert.Equal(t, first, second)
	assert.Equal(t, comex.Next(ref, 3, AllMonths), first[3])
	assert.Empty(t, comex.Enumerate(ref, 0, AllMonths))
}

func TestBetween(t *testing.T) {
	shfe := mustConvention(t, SHFE, "CU", "")

	got := shfe.Between(date(2024, time.February, 1), date(2025, time.March, 31), QuarterlyMonths)
	labels := make([]string, 0, len(got))
	for _, c := range got {
		labels = append(labels, c.MonthLabel())
	}
	assert.Equal(t, []string{"2024-03", "2024-06", "2024-09", "2024-12", "2025-03"}, labels)
	assert.Nil(t, shfe.Between(date(2025, time.January, 1), date(2024, time.January, 1), AllMonths))
}
