package positions

// ReportKind names one family of regulatory report layouts.
type ReportKind string

const (
	Disaggregated ReportKind = "disaggregated"
	TFF           ReportKind = "tff"
	Legacy        ReportKind = "legacy"
)

// ColumnMap lists, per logical field, the provider column names to try in order.
// Three trader groups are tracked; what each group means depends on the report
// kind (managed money / leveraged funds / non-commercial for Primary, and so on).
type ColumnMap struct {
	OpenInterest  []string `mapstructure:"open_interest"`
	PrimaryLong   []string `mapstructure:"primary_long"`
	PrimaryShort  []string `mapstructure:"primary_short"`
	PrimarySpread []string `mapstructure:"primary_spread"`
	ProducerLong  []string `mapstructure:"producer_long"`
	ProducerShort []string `mapstructure:"producer_short"`
	OtherLong     []string `mapstructure:"other_long"`
	OtherShort    []string `mapstructure:"other_short"`
}

// Schema binds a report kind to its column candidates.
type Schema struct {
	Kind    ReportKind `mapstructure:"kind"`
	Market  []string   `mapstructure:"market"`
	Date    []string   `mapstructure:"date"`
	Columns ColumnMap  `mapstructure:"columns"`
}

var (
	marketColumns = []string{"Market_and_Exchange_Names", "market_and_exchange_names"}
	dateColumns   = []string{"Report_Date_as_YYYY-MM-DD", "report_date_as_yyyy_mm_dd"}
	openInterest  = []string{"Open_Interest_All", "open_interest_all"}
)

// DefaultSchema returns the built-in layout for a report kind.
// Both the historical bulk-file spelling and the public API spelling are listed.
func DefaultSchema(kind ReportKind) (Schema, bool) {
	s := Schema{Kind: kind, Market: marketColumns, Date: dateColumns}
	switch kind {
	case Disaggregated:
		s.Columns = ColumnMap{
			OpenInterest:  openInterest,
			PrimaryLong:   []string{"M_Money_Positions_Long_All", "m_money_positions_long_all"},
			PrimaryShort:  []string{"M_Money_Positions_Short_All", "m_money_positions_short_all"},
			PrimarySpread: []string{"M_Money_Positions_Spread_All", "m_money_positions_spread_all"},
			ProducerLong:  []string{"Prod_Merc_Positions_Long_All", "prod_merc_positions_long", "prod_merc_positions_long_all"},
			ProducerShort: []string{"Prod_Merc_Positions_Short_All", "prod_merc_positions_short", "prod_merc_positions_short_all"},
			OtherLong:     []string{"Other_Rept_Positions_Long_All", "other_rept_positions_long", "other_rept_positions_long_all"},
			OtherShort:    []string{"Other_Rept_Positions_Short_All", "other_rept_positions_short", "other_rept_positions_short_all"},
		}
	case TFF:
		s.Columns = ColumnMap{
			OpenInterest:  openInterest,
			PrimaryLong:   []string{"Lev_Money_Positions_Long_All", "lev_money_positions_long", "lev_money_positions_long_all"},
			PrimaryShort:  []string{"Lev_Money_Positions_Short_All", "lev_money_positions_short", "lev_money_positions_short_all"},
			PrimarySpread: []string{"Lev_Money_Positions_Spread_All", "lev_money_positions_spread", "lev_money_positions_spread_all"},
			ProducerLong:  []string{"Asset_Mgr_Positions_Long_All", "asset_mgr_positions_long", "asset_mgr_positions_long_all"},
			ProducerShort: []string{"Asset_Mgr_Positions_Short_All", "asset_mgr_positions_short", "asset_mgr_positions_short_all"},
			OtherLong:     []string{"Dealer_Positions_Long_All", "dealer_positions_long_all"},
			OtherShort:    []string{"Dealer_Positions_Short_All", "dealer_positions_short_all"},
		}
	case Legacy:
		s.Columns = ColumnMap{
			OpenInterest:  openInterest,
			PrimaryLong:   []string{"NonComm_Positions_Long_All", "noncomm_positions_long_all"},
			PrimaryShort:  []string{"NonComm_Positions_Short_All", "noncomm_positions_short_all"},
			PrimarySpread: []string{"NonComm_Postions_Spread_All", "NonComm_Positions_Spread_All", "noncomm_postions_spread_all"},
			ProducerLong:  []string{"Comm_Positions_Long_All", "comm_positions_long_all"},
			ProducerShort: []string{"Comm_Positions_Short_All", "comm_positions_short_all"},
			OtherLong:     []string{"NonRept_Positions_Long_All", "nonrept_positions_long_all"},
			OtherShort:    []string{"NonRept_Positions_Short_All", "nonrept_positions_short_all"},
		}
	default:
		return Schema{}, false
	}
	return s, true
}
