package positions

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// WeeklyRecord is one report week for one instrument.
type WeeklyRecord struct {
	Date           string `json:"date"`
	MMLong         int64  `json:"mm_long"`
	MMShort        int64  `json:"mm_short"`
	MMSpreading    int64  `json:"mm_spreading"`
	ProdLong       int64  `json:"prod_long"`
	ProdShort      int64  `json:"prod_short"`
	OtherLong      int64  `json:"other_long"`
	OtherShort     int64  `json:"other_short"`
	OpenInterest   int64  `json:"open_interest"`
	MMNet          int64  `json:"mm_net"`
	ProdNet        int64  `json:"prod_net"`
	OtherNet       int64  `json:"other_net"`
	MMNetChange    int64  `json:"mm_net_change"`
	ProdNetChange  int64  `json:"prod_net_change"`
	OtherNetChange int64  `json:"other_net_change"`
	OIChange       int64  `json:"oi_change"`
}

// Summary exposes the latest week of an instrument.
type Summary struct {
	LatestDate     string          `json:"latest_date"`
	MMNet          int64           `json:"mm_net"`
	ProdNet        int64           `json:"prod_net"`
	OpenInterest   int64           `json:"open_interest"`
	MMNetChange    int64           `json:"mm_net_change"`
	ProdNetChange  int64           `json:"prod_net_change"`
	OIChange       int64           `json:"oi_change"`
	LongShortRatio decimal.Decimal `json:"long_short_ratio"`
}

type datedRow struct {
	date time.Time
	row  Row
}

// Build turns the report rows of one instrument into its most recent weeks,
// oldest first. It returns ErrMissingColumn when no date column exists; callers
// skip the instrument in that case.
func Build(rows []Row, weeks int, schema Schema) ([]WeeklyRecord, error) {
	col, ok := DateColumn(Columns(rows), schema.Date)
	if !ok {
		return nil, ErrMissingColumn
	}

	dated := make([]datedRow, 0, len(rows))
	for _, r := range rows {
		d, ok := ParseDate(r[col])
		if !ok {
			continue
		}
		dated = append(dated, datedRow{date: d, row: r})
	}

	sort.SliceStable(dated, func(i, j int) bool { return dated[i].date.After(dated[j].date) })
	if weeks > 0 && len(dated) > weeks {
		dated = dated[:weeks]
	}
	sort.SliceStable(dated, func(i, j int) bool { return dated[i].date.Before(dated[j].date) })

	cols := schema.Columns
	records := make([]WeeklyRecord, 0, len(dated))
	for _, d := range dated {
		rec := WeeklyRecord{
			Date:         d.date.Format("2006-01-02"),
			MMLong:       Value(d.row, cols.PrimaryLong, 0),
			MMShort:      Value(d.row, cols.PrimaryShort, 0),
			MMSpreading:  Value(d.row, cols.PrimarySpread, 0),
			ProdLong:     Value(d.row, cols.ProducerLong, 0),
			ProdShort:    Value(d.row, cols.ProducerShort, 0),
			OtherLong:    Value(d.row, cols.OtherLong, 0),
			OtherShort:   Value(d.row, cols.OtherShort, 0),
			OpenInterest: Value(d.row, cols.OpenInterest, 0),
		}
		rec.MMNet = rec.MMLong - rec.MMShort
		rec.ProdNet = rec.ProdLong - rec.ProdShort
		rec.OtherNet = rec.OtherLong - rec.OtherShort
		records = append(records, rec)
	}

	// The first week has no predecessor; its change fields stay zero.
	for i := 1; i < len(records); i++ {
		prev, cur := &records[i-1], &records[i]
		cur.MMNetChange = cur.MMNet - prev.MMNet
		cur.ProdNetChange = cur.ProdNet - prev.ProdNet
		cur.OtherNetChange = cur.OtherNet - prev.OtherNet
		cur.OIChange = cur.OpenInterest - prev.OpenInterest
	}

	return records, nil
}

// Summarize derives the headline metrics from the last record.
func Summarize(records []WeeklyRecord) (Summary, bool) {
	if len(records) == 0 {
		return Summary{}, false
	}
	latest := records[len(records)-1]
	return Summary{
		LatestDate:     latest.Date,
		MMNet:          latest.MMNet,
		ProdNet:        latest.ProdNet,
		OpenInterest:   latest.OpenInterest,
		MMNetChange:    latest.MMNetChange,
		ProdNetChange:  latest.ProdNetChange,
		OIChange:       latest.OIChange,
		LongShortRatio: LongShortRatio(latest.MMLong, latest.MMShort),
	}, true
}

// LongShortRatio divides long by short with the divisor floored at one.
func LongShortRatio(long, short int64) decimal.Decimal {
	if short < 1 {
		short = 1
	}
	return decimal.NewFromInt(long).Div(decimal.NewFromInt(short)).Round(2)
}
