package curve

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cotwatch/internal/calendar"
)

// ErrNoData marks a contract without a usable price in the requested window.
var ErrNoData = errors.New("curve: no price available")

// PricePoint is one daily observation of a ticker.
type PricePoint struct {
	Date   time.Time
	Close  decimal.Decimal
	Volume int64
}

// Series is a per-ticker price history, ascending by date, positive closes only.
type Series []PricePoint

// NewSeries drops non-positive closes, truncates dates to the day, sorts
// ascending and keeps the last observation for any repeated day.
func NewSeries(points []PricePoint) Series {
	clean := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if !p.Close.IsPositive() {
			continue
		}
		p.Date = calendar.Day(p.Date)
		clean = append(clean, p)
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Date.Before(clean[j].Date) })

	out := clean[:0]
	for _, p := range clean {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return Series(out)
}

// AtOrBefore returns the latest observation dated on or before t.
func (s Series) AtOrBefore(t time.Time) (PricePoint, bool) {
	t = calendar.Day(t)
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(t) })
	if i == 0 {
		return PricePoint{}, false
	}
	return s[i-1], true
}

// Within returns the latest observation in [t-lookback, t].
func (s Series) Within(t time.Time, lookback time.Duration) (PricePoint, bool) {
	p, ok := s.AtOrBefore(t)
	if !ok {
		return PricePoint{}, false
	}
	if p.Date.Before(calendar.Day(t).Add(-lookback)) {
		return PricePoint{}, false
	}
	return p, true
}

// PriceLookup is the outcome of resolving one contract's price; Err is ErrNoData
// when the contract has nothing usable.
type PriceLookup struct {
	Contract calendar.Contract
	Point    PricePoint
	Err      error
}

// Found reports whether the lookup produced a price.
func (l PriceLookup) Found() bool {
	return l.Err == nil
}
