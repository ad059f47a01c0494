package curve

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cotwatch/internal/calendar"
)

// DefaultGrace is how stale a contract's last observation may be before the
// contract is treated as no longer quoted.
const DefaultGrace = 10 * 24 * time.Hour

// SpreadRecord is the M1-M3 spread at one weekly anchor.
type SpreadRecord struct {
	Date       string          `json:"date"`
	M1Price    decimal.Decimal `json:"m1_price"`
	M3Price    decimal.Decimal `json:"m3_price"`
	M1Contract string          `json:"m1_contract"`
	M3Contract string          `json:"m3_contract"`
	Spread     decimal.Decimal `json:"spread"`
}

// SpreadOptions tune reconstruction.
type SpreadOptions struct {
	Grace     time.Duration
	Precision int32
}

type quote struct {
	contract calendar.Contract
	price    decimal.Decimal
}

// activeAt returns the contracts quoted and unexpired at anchor, nearest delivery first.
func activeAt(contracts []calendar.Contract, series map[string]Series, anchor time.Time, grace time.Duration) []quote {
	var out []quote
	for _, c := range contracts {
		if !c.ExpiryEstimate.After(anchor) {
			continue
		}
		p, ok := series[c.Ticker].AtOrBefore(anchor)
		if !ok || p.Date.Before(anchor.Add(-grace)) {
			continue
		}
		out = append(out, quote{contract: c, price: p.Close})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].contract.Delivery().Before(out[j].contract.Delivery())
	})
	return out
}

// Spreads reconstructs the weekly M1-M3 spread history. Anchors with fewer than
// two live contracts are skipped; with exactly two, the far leg is the second.
// The result holds one record per date, ascending.
func Spreads(contracts []calendar.Contract, series map[string]Series, anchors []time.Time, opts SpreadOptions) []SpreadRecord {
	grace := opts.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	records := make([]SpreadRecord, 0, len(anchors))
	for _, a := range anchors {
		a = calendar.Day(a)
		active := activeAt(contracts, series, a, grace)
		if len(active) < 2 {
			continue
		}
		m1 := active[0]
		m3 := active[len(active)-1]
		if len(active) >= 3 {
			m3 = active[2]
		}
		m1Price := m1.price.Round(opts.Precision)
		m3Price := m3.price.Round(opts.Precision)
		records = append(records, SpreadRecord{
			Date:       calendar.Format(a),
			M1Price:    m1Price,
			M3Price:    m3Price,
			M1Contract: m1.contract.Ticker,
			M3Contract: m3.contract.Ticker,
			Spread:     m1.price.Sub(m3.price).Round(opts.Precision),
		})
	}
	return DedupSpreads(records)
}

// DedupSpreads sorts by date and keeps the first record seen for each date.
func DedupSpreads(records []SpreadRecord) []SpreadRecord {
	sorted := make([]SpreadRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	out := make([]SpreadRecord, 0, len(sorted))
	for _, r := range sorted {
		if n := len(out); n > 0 && out[n-1].Date == r.Date {
			continue
		}
		out = append(out, r)
	}
	return out
}
