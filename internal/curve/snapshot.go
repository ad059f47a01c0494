package curve

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cotwatch/internal/calendar"
)

// CurvePoint is one delivery month on a forward curve.
type CurvePoint struct {
	MonthLabel string          `json:"month"`
	Price      decimal.Decimal `json:"price"`
	Contract   string          `json:"contract"`
	Date       string          `json:"date"`
}

// Lookups resolves the latest price within lookback of ref for each contract.
func Lookups(contracts []calendar.Contract, series map[string]Series, ref time.Time, lookback time.Duration) []PriceLookup {
	out := make([]PriceLookup, 0, len(contracts))
	for _, c := range contracts {
		l := PriceLookup{Contract: c, Err: ErrNoData}
		if p, ok := series[c.Ticker].Within(ref, lookback); ok {
			l.Point = p
			l.Err = nil
		}
		out = append(out, l)
	}
	return out
}

// Snapshot assembles the forward curve from the found lookups, nearest delivery
// first. Contracts without a price are left out.
func Snapshot(lookups []PriceLookup, precision int32) []CurvePoint {
	found := make([]PriceLookup, 0, len(lookups))
	for _, l := range lookups {
		if l.Found() {
			found = append(found, l)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Contract.Delivery().Before(found[j].Contract.Delivery())
	})

	points := make([]CurvePoint, 0, len(found))
	for _, l := range found {
		points = append(points, CurvePoint{
			MonthLabel: l.Contract.MonthLabel(),
			Price:      l.Point.Close.Round(precision),
			Contract:   l.Contract.Ticker,
			Date:       calendar.Format(l.Point.Date),
		})
	}
	return points
}
