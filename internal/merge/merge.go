// Package merge combines freshly computed append-only series with the series
// persisted by previous runs.
package merge

import (
	"time"

	"github.com/shopspring/decimal"

	"cotwatch/internal/calendar"
)

// InventoryRecord is one weekly warehouse stock observation.
type InventoryRecord struct {
	Date   string          `json:"date"`
	Total  decimal.Decimal `json:"total"`
	Change decimal.Decimal `json:"change"`
}

// VolatilityRecord is one weekly volatility index close with the companion ETF volume.
type VolatilityRecord struct {
	Date      string          `json:"date"`
	Close     decimal.Decimal `json:"close"`
	ETFVolume *int64          `json:"gld_volume"`
}

// ReplaceOrKeep returns fresh when it holds anything, otherwise prior.
// The returned slice never aliases either argument.
func ReplaceOrKeep[T any](fresh, prior []T) []T {
	src := fresh
	if len(fresh) == 0 {
		src = prior
	}
	out := make([]T, len(src))
	copy(out, src)
	return out
}

// InventoryAnchor is the Friday on or after now that labels this week's stock.
func InventoryAnchor(now time.Time) string {
	return calendar.Format(calendar.NextWeekday(now, time.Friday))
}

// AppendInventory appends fresh unless the last persisted entry already carries
// its anchor date. A nil fresh record means the upstream fetch failed and prior
// is returned as is. Existing entries are never modified.
func AppendInventory(prior []InventoryRecord, fresh *InventoryRecord) ([]InventoryRecord, bool) {
	out := make([]InventoryRecord, len(prior), len(prior)+1)
	copy(out, prior)
	if fresh == nil {
		return out, false
	}
	if n := len(prior); n > 0 && prior[n-1].Date == fresh.Date {
		return out, false
	}
	return append(out, *fresh), true
}
