package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cotwatch/internal/alerting"
	"cotwatch/internal/config"
	"cotwatch/internal/curve"
	"cotwatch/internal/fetcher"
	"cotwatch/internal/merge"
	"cotwatch/internal/positions"
	"cotwatch/internal/storage"
)

var runAt = time.Date(2026, time.January, 9, 22, 0, 0, 0, time.UTC)

type fakeReports struct {
	rows    []positions.Row
	failAll bool
}

func (f *fakeReports) ReportRows(_ context.Context, kind positions.ReportKind, year int) ([]positions.Row, error) {
	if f.failAll || year == runAt.Year() {
		return nil, fmt.Errorf("%w: %s %d unavailable", fetcher.ErrUpstream, kind, year)
	}
	var out []positions.Row
	for _, r := range f.rows {
		if d, ok := positions.ParseDate(r["Report_Date_as_YYYY-MM-DD"]); ok && d.Year() == year {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakePrices struct {
	series map[string][]curve.PricePoint
}

func (f *fakePrices) DailyPrices(_ context.Context, ticker string, _, _ time.Time) ([]curve.PricePoint, error) {
	points, ok := f.series[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s not listed", fetcher.ErrUpstream, ticker)
	}
	return points, nil
}

type fakeStock struct {
	stock fetcher.Stock
	err   error
}

func (f *fakeStock) WarehouseStock(context.Context, string) (fetcher.Stock, error) {
	return f.stock, f.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

func goldRows(n int, start time.Time) []positions.Row {
	rows := make([]positions.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, positions.Row{
			"Market_and_Exchange_Names":      "GOLD - COMMODITY EXCHANGE INC.",
			"Report_Date_as_YYYY-MM-DD":      start.AddDate(0, 0, 7*i).Format("2006-01-02"),
			"Open_Interest_All":              float64(500000 + 1000*i),
			"M_Money_Positions_Long_All":     float64(200000 + 37*i*i),
			"M_Money_Positions_Short_All":    float64(50000 + 11*i),
			"Prod_Merc_Positions_Long_All":   "90,000",
			"Prod_Merc_Positions_Short_All":  float64(300000 + 5*i),
			"Other_Rept_Positions_Long_All":  float64(41000),
			"Other_Rept_Positions_Short_All": float64(39000),
		})
	}
	return rows
}

func daily(from, to time.Time, price string, volume int64) []curve.PricePoint {
	var out []curve.PricePoint
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, curve.PricePoint{Date: d, Close: decimal.RequireFromString(price), Volume: volume})
	}
	return out
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		CFTC: config.CFTCConfig{YearsBack: 4},
		Engine: config.EngineConfig{
			Weeks:              156,
			CurveMonths:        3,
			CurveLookback:      7 * 24 * time.Hour,
			SpreadStart:        "2025-10-01",
			SpreadYearsForward: 1,
			SpreadGrace:        10 * 24 * time.Hour,
			SpreadWeekday:      "fri",
			Workers:            2,
		},
		Exchanges: []config.ExchangeConfig{
			{Key: "comex", Exchange: "comex", Root: "HG", Suffix: ".CMX", Source: "yahoo", Unit: "USD/lb", Precision: 4},
		},
		Groups: []config.GroupConfig{
			{
				Key:      "commodities",
				Kind:     positions.Disaggregated,
				Required: true,
				Instruments: []config.InstrumentConfig{
					{Code: "gold", Name: "黄金", NameEN: "GOLD", Pattern: "GOLD - COMMODITY"},
					{Code: "silver", Name: "白银", NameEN: "SILVER", Pattern: "SILVER"},
				},
			},
		},
		Volatility: config.VolatilityConfig{Enabled: true, IndexTicker: "^GVZ", VolumeTicker: "GLD", StartDate: "2025-12-01", Weekday: "tue"},
		Warehouse:  config.WarehouseConfig{Enabled: true, Label: "铜"},
		Alerting:   config.AlertingConfig{Enabled: true, ThresholdPct: 1, Channels: []string{"log"}},
		Output:     config.OutputConfig{Path: filepath.Join(dir, "cot_data.json")},
	}
}

func testPrices() *fakePrices {
	from := time.Date(2025, time.September, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.January, 8, 0, 0, 0, 0, time.UTC)
	return &fakePrices{series: map[string][]curve.PricePoint{
		"HGZ25.CMX": daily(from, time.Date(2025, time.December, 24, 0, 0, 0, 0, time.UTC), "4.9", 0),
		"HGF26.CMX": daily(from, to, "5.0", 0),
		"HGG26.CMX": daily(from, to, "5.05", 0),
		"HGH26.CMX": daily(from, to, "5.123456", 0),
		"HGM26.CMX": daily(from, to, "5.2", 0),
		"^GVZ":      daily(time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC), to, "17.456", 0),
		"GLD":       daily(time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC), to, "400", 100),
	}}
}

func newTestService(t *testing.T, reports fetcher.ReportProvider, prices fetcher.PriceProvider, stock fetcher.StockProvider) (*Service, *storage.FileStore, *recordingNotifier) {
	t.Helper()
	cfg := testConfig(t.TempDir())
	files := storage.NewFileStore(cfg.Output.Path)
	notifier := &recordingNotifier{}
	svc := New(cfg, nil, Providers{
		Reports: reports,
		Prices:  map[string]fetcher.PriceProvider{"yahoo": prices},
		Stock:   stock,
	}, files, nil, notifier, zerolog.Nop())
	svc.now = func() time.Time { return runAt }
	return svc, files, notifier
}

func TestRefreshBuildsAndPersistsSnapshot(t *testing.T) {
	reports := &fakeReports{rows: goldRows(160, time.Date(2022, time.December, 6, 0, 0, 0, 0, time.UTC))}
	stock := &fakeStock{stock: fetcher.Stock{Total: decimal.NewFromInt(1000), Change: decimal.NewFromInt(10)}}
	svc, files, notifier := newTestService(t, reports, testPrices(), stock)

	snap, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	group := snap.Groups["commodities"]
	require.Len(t, group.List, 1, "silver has no rows and is skipped")
	assert.Equal(t, "gold", group.List[0].Code)
	gold := group.Instruments["gold"]
	require.Len(t, gold.Weekly, 156)
	assert.Zero(t, gold.Weekly[0].MMNetChange)
	require.NotNil(t, gold.Summary)
	assert.Equal(t, "2025-12-23", gold.Summary.LatestDate)
	assert.Equal(t, int64(90000), gold.Weekly[0].ProdLong)

	comex := snap.Curves["comex"]
	assert.Equal(t, "COMEX", comex.Exchange)
	require.Len(t, comex.Curve, 3)
	assert.Equal(t, "2026-01", comex.Curve[0].MonthLabel)
	assert.Equal(t, "HGH26.CMX", comex.Curve[2].Contract)
	assert.True(t, comex.Curve[2].Price.Equal(decimal.RequireFromString("5.1235")))

	require.NotEmpty(t, comex.SpreadHistory)
	first := comex.SpreadHistory[0]
	assert.Equal(t, "2025-10-03", first.Date)
	assert.Equal(t, "HGZ25.CMX", first.M1Contract)
	assert.Equal(t, "HGM26.CMX", first.M3Contract)
	assert.True(t, first.Spread.Equal(decimal.RequireFromString("-0.3")))
	last := comex.SpreadHistory[len(comex.SpreadHistory)-1]
	assert.Equal(t, "2026-01-09", last.Date)
	assert.Equal(t, "HGH26.CMX", last.M1Contract)
	assert.Equal(t, "HGM26.CMX", last.M3Contract, "two live contracts pair the first with the last")

	require.Len(t, snap.Inventory, 1)
	assert.Equal(t, "2026-01-09", snap.Inventory[0].Date)

	require.Len(t, snap.Volatility, 6)
	assert.Equal(t, "2025-12-02", snap.Volatility[0].Date)
	assert.True(t, snap.Volatility[0].Close.Equal(decimal.RequireFromString("17.46")))
	require.NotNil(t, snap.Volatility[0].ETFVolume)
	assert.Equal(t, int64(200), *snap.Volatility[0].ETFVolume)
	assert.Equal(t, int64(500), *snap.Volatility[1].ETFVolume)

	persisted, err := files.Load()
	require.NoError(t, err)
	assert.Equal(t, snap.InstrumentCount(), persisted.InstrumentCount())

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "gold", notifier.notes[0].Code)
	assert.Equal(t, "long", notifier.notes[0].Direction)
	assert.Equal(t, []string{"log"}, notifier.notes[0].Channels)

	// A second run over the same report week neither re-alerts nor duplicates inventory.
	_, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, notifier.notes, 1)
	again, err := files.Load()
	require.NoError(t, err)
	assert.Len(t, again.Inventory, 1)
}

func TestRefreshFallsBackToPriorState(t *testing.T) {
	reports := &fakeReports{rows: goldRows(10, time.Date(2025, time.October, 7, 0, 0, 0, 0, time.UTC))}
	stock := &fakeStock{err: fmt.Errorf("%w: warehouse down", fetcher.ErrUpstream)}
	svc, files, _ := newTestService(t, reports, &fakePrices{series: map[string][]curve.PricePoint{}}, stock)

	vol := int64(42)
	prior := &storage.Snapshot{
		UpdatedAt: runAt.AddDate(0, 0, -7),
		Curves: map[string]storage.ExchangeCurve{
			"comex": {
				Exchange:      "COMEX",
				Curve:         []curve.CurvePoint{{MonthLabel: "2026-01", Price: decimal.NewFromInt(5), Contract: "HGF26.CMX"}},
				SpreadHistory: []curve.SpreadRecord{{Date: "2025-12-26", Spread: decimal.RequireFromString("-0.1")}},
			},
		},
		Inventory:  []merge.InventoryRecord{{Date: "2026-01-02", Total: decimal.NewFromInt(900)}},
		Volatility: []merge.VolatilityRecord{{Date: "2025-12-30", Close: decimal.NewFromInt(18), ETFVolume: &vol}},
	}
	require.NoError(t, files.Save(prior))

	snap, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.Groups["commodities"].Instruments["gold"].Weekly, 10)
	comex := snap.Curves["comex"]
	require.Len(t, comex.Curve, 1)
	assert.Equal(t, "HGF26.CMX", comex.Curve[0].Contract)
	assert.True(t, comex.Curve[0].Price.Equal(decimal.NewFromInt(5)))
	require.Len(t, comex.SpreadHistory, 1)
	assert.Equal(t, "2025-12-26", comex.SpreadHistory[0].Date)
	require.Len(t, snap.Inventory, 1, "failed warehouse fetch must not append or drop")
	assert.Equal(t, "2026-01-02", snap.Inventory[0].Date)
	require.Len(t, snap.Volatility, 1)
	assert.Equal(t, int64(42), *snap.Volatility[0].ETFVolume)
}

func TestRefreshWithoutPrimaryReportIsFatal(t *testing.T) {
	svc, files, notifier := newTestService(t, &fakeReports{failAll: true}, testPrices(), nil)

	_, err := svc.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoUsableData)

	_, err = files.Load()
	assert.True(t, errors.Is(err, storage.ErrNoSnapshot), "nothing may be persisted")
	assert.Empty(t, notifier.notes)
}

func TestOptionalGroupKeepsPrior(t *testing.T) {
	reports := &fakeReports{failAll: true}
	svc, files, _ := newTestService(t, reports, testPrices(), nil)
	svc.cfg.Groups[0].Required = false

	prior := &storage.Snapshot{Groups: map[string]storage.Group{
		"commodities": {
			Kind:        positions.Disaggregated,
			Instruments: map[string]storage.Instrument{"gold": {Name: "黄金", Weekly: []positions.WeeklyRecord{{Date: "2025-12-30"}}}},
			List:        []storage.InstrumentRef{{Code: "gold", Name: "黄金"}},
		},
	}}
	require.NoError(t, files.Save(prior))

	snap, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, prior.Groups["commodities"], snap.Groups["commodities"])
}

type flakyNotifier struct {
	failures int
	sent     []alerting.Notification
}

func (f *flakyNotifier) Notify(_ context.Context, note alerting.Notification) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("telegram: 502 bad gateway")
	}
	f.sent = append(f.sent, note)
	return nil
}

type memoryAlerts struct {
	nextID  int64
	rows    map[string]storage.AlertRecord
	deleted []int64
}

func (m *memoryAlerts) RecordAlert(_ context.Context, alert storage.AlertRecord) (storage.AlertRecord, bool, error) {
	key := alert.ReportDate.Format("2006-01-02") + "/" + alert.Group + "/" + alert.Code
	if _, ok := m.rows[key]; ok {
		return alert, false, nil
	}
	m.nextID++
	alert.ID = m.nextID
	m.rows[key] = alert
	return alert, true, nil
}

func (m *memoryAlerts) DeleteAlert(_ context.Context, id int64) error {
	for k, rec := range m.rows {
		if rec.ID == id {
			delete(m.rows, k)
		}
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memoryAlerts) ListRecentAlerts(context.Context, int) ([]storage.AlertRecord, error) {
	out := make([]storage.AlertRecord, 0, len(m.rows))
	for _, rec := range m.rows {
		out = append(out, rec)
	}
	return out, nil
}

func alertSnapshot() *storage.Snapshot {
	return &storage.Snapshot{Groups: map[string]storage.Group{
		"commodities": {
			Instruments: map[string]storage.Instrument{
				"crude": summaryInstrument("2026-01-06", -5000, -60000, 1000000),
			},
			List: []storage.InstrumentRef{{Code: "crude"}},
		},
	}}
}

func TestDispatchRetriesFailedDelivery(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeReports{}, testPrices(), nil)
	notifier := &flakyNotifier{failures: 1}
	svc.notifier = notifier
	snap := alertSnapshot()

	assert.Equal(t, 0, svc.DispatchAlerts(context.Background(), nil, snap))

	// The next run sees the same report week in its prior snapshot.
	assert.Equal(t, 1, svc.DispatchAlerts(context.Background(), snap, snap))
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "crude", notifier.sent[0].Code)

	assert.Equal(t, 0, svc.DispatchAlerts(context.Background(), snap, snap), "delivered alert is not repeated")
}

func TestDispatchReleasesAlertRecordOnFailure(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeReports{}, testPrices(), nil)
	notifier := &flakyNotifier{failures: 1}
	store := &memoryAlerts{rows: make(map[string]storage.AlertRecord)}
	svc.notifier = notifier
	svc.alertStore = store
	snap := alertSnapshot()
	ctx := context.Background()

	assert.Equal(t, 0, svc.DispatchAlerts(ctx, nil, snap))
	assert.Empty(t, store.rows, "failed delivery must not leave a record behind")
	assert.Equal(t, []int64{1}, store.deleted)

	assert.Equal(t, 1, svc.DispatchAlerts(ctx, snap, snap))
	assert.Len(t, store.rows, 1)
	require.Len(t, notifier.sent, 1)

	assert.Equal(t, 0, svc.DispatchAlerts(ctx, snap, snap))
	assert.Len(t, notifier.sent, 1)
}
