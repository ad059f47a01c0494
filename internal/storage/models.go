package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"cotwatch/internal/curve"
	"cotwatch/internal/merge"
	"cotwatch/internal/positions"
)

func init() {
	// The presentation layer reads prices and ratios as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Snapshot is the persisted document produced by one refresh run. Its JSON
// form is written by MarshalJSON in document.go.
type Snapshot struct {
	UpdatedAt  time.Time
	Groups     map[string]Group
	Curves     map[string]ExchangeCurve
	Inventory  []merge.InventoryRecord
	Volatility []merge.VolatilityRecord
}

// Group holds the instruments of one report kind. In the document the
// instrument map sits at the top level under the group key and the ordered
// list under ListKey.
type Group struct {
	Kind        positions.ReportKind
	ListKey     string
	Instruments map[string]Instrument
	List        []InstrumentRef
}

// ListKeyFor returns the document key of the group's ordered list.
func (g Group) ListKeyFor(key string) string {
	if g.ListKey != "" {
		return g.ListKey
	}
	return key + "_list"
}

// InstrumentRef keeps display order and names for a group.
type InstrumentRef struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	NameEN string `json:"name_en"`
}

// Instrument is the weekly positioning history of one market.
type Instrument struct {
	Name    string                   `json:"name"`
	NameEN  string                   `json:"name_en"`
	Summary *positions.Summary       `json:"summary,omitempty"`
	Weekly  []positions.WeeklyRecord `json:"weekly_data"`
}

// ExchangeCurve is the current forward curve and spread history of one exchange.
type ExchangeCurve struct {
	Exchange      string               `json:"exchange"`
	Unit          string               `json:"unit"`
	Curve         []curve.CurvePoint   `json:"curve"`
	SpreadHistory []curve.SpreadRecord `json:"spread_history"`
}

// ArchivedSnapshot describes one row of the PostgreSQL archive.
type ArchivedSnapshot struct {
	GeneratedAt time.Time
	Instruments int
	SizeBytes   int64
	CreatedAt   time.Time
}

// InstrumentCount returns how many instruments carry weekly data.
func (s *Snapshot) InstrumentCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, g := range s.Groups {
		for _, inst := range g.Instruments {
			if len(inst.Weekly) > 0 {
				n++
			}
		}
	}
	return n
}

// AlertRecord captures an emitted positioning alert for de-duplication and auditing.
type AlertRecord struct {
	ID           int64
	ReportDate   time.Time
	Group        string
	Code         string
	NetChange    int64
	ChangePct    decimal.Decimal
	ThresholdPct decimal.Decimal
	Channels     []string
	CreatedAt    time.Time
}
