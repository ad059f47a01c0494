package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cotwatch/internal/config"
	"cotwatch/internal/curve"
	"cotwatch/internal/positions"
	"cotwatch/internal/storage"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Output: config.OutputConfig{Path: filepath.Join(t.TempDir(), "cot_data.json")},
		Export: config.ExportConfig{MaxDataPoints: 100},
		Alerting: config.AlertingConfig{
			Enabled:      true,
			ThresholdPct: 5,
			Channels:     []string{"log"},
		},
	}
	return NewApp(cfg, zerolog.Nop())
}

func seedSnapshot(t *testing.T, a *App) *storage.Snapshot {
	t.Helper()
	snap := &storage.Snapshot{
		UpdatedAt: time.Date(2026, 1, 9, 21, 0, 0, 0, time.UTC),
		Groups: map[string]storage.Group{
			"commodities": {
				Kind: positions.Disaggregated,
				Instruments: map[string]storage.Instrument{
					"gold": {
						Name:   "黄金",
						NameEN: "GOLD",
						Summary: &positions.Summary{
							LatestDate:     "2026-01-06",
							MMNet:          150000,
							MMNetChange:    1000,
							OpenInterest:   500000,
							LongShortRatio: decimal.RequireFromString("3.25"),
						},
						Weekly: []positions.WeeklyRecord{
							{Date: "2025-12-30", MMNet: 149000, OpenInterest: 490000},
							{Date: "2026-01-06", MMNet: 150000, OpenInterest: 500000, MMNetChange: 1000},
						},
					},
				},
				List: []storage.InstrumentRef{{Code: "gold", Name: "黄金", NameEN: "GOLD"}},
			},
		},
		Curves: map[string]storage.ExchangeCurve{
			"comex": {
				Exchange: "COMEX",
				Unit:     "USD/lb",
				Curve: []curve.CurvePoint{
					{MonthLabel: "2026-03", Price: decimal.RequireFromString("5.12"), Contract: "HGH26.CMX", Date: "2026-01-09"},
				},
				SpreadHistory: []curve.SpreadRecord{
					{Date: "2026-01-02", M1Contract: "HGH26.CMX", M3Contract: "HGM26.CMX", M1Price: decimal.RequireFromString("5.0"), M3Price: decimal.RequireFromString("5.1"), Spread: decimal.RequireFromString("-0.1")},
					{Date: "2026-01-09", M1Contract: "HGH26.CMX", M3Contract: "HGM26.CMX", M1Price: decimal.RequireFromString("5.12"), M3Price: decimal.RequireFromString("5.2"), Spread: decimal.RequireFromString("-0.08")},
				},
			},
		},
	}
	require.NoError(t, a.fileStore().Save(snap))
	return snap
}

func TestExportSpreadCSV(t *testing.T) {
	a := testApp(t)
	seedSnapshot(t, a)

	out := filepath.Join(t.TempDir(), "out", "comex.csv")
	require.NoError(t, a.Export(context.Background(), ExportOptions{Exchange: "comex", CSVPath: out}))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"date", "m1_contract", "m3_contract", "m1_price", "m3_price", "spread"}, records[0])
	assert.Equal(t, []string{"2026-01-09", "HGH26.CMX", "HGM26.CMX", "5.12", "5.2", "-0.08"}, records[2])
}

func TestExportInstrumentWindow(t *testing.T) {
	a := testApp(t)
	seedSnapshot(t, a)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := filepath.Join(t.TempDir(), "gold.csv")
	require.NoError(t, a.Export(context.Background(), ExportOptions{Instrument: "gold", From: &from, CSVPath: out}))

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "date,mm_net,prod_net,other_net,open_interest\n2026-01-06,150000,0,0,500000\n", string(body))
}

func TestExportValidation(t *testing.T) {
	a := testApp(t)
	seedSnapshot(t, a)
	ctx := context.Background()

	assert.Error(t, a.Export(ctx, ExportOptions{Exchange: "comex"}), "no destination")
	assert.Error(t, a.Export(ctx, ExportOptions{Exchange: "comex", Instrument: "gold", CSVPath: "x.csv"}))
	assert.Error(t, a.Export(ctx, ExportOptions{Exchange: "shfe", CSVPath: filepath.Join(t.TempDir(), "x.csv")}))
	assert.Error(t, a.Export(ctx, ExportOptions{Instrument: "gold", Group: "financials", CSVPath: filepath.Join(t.TempDir(), "x.csv")}))
}

func TestDownsampleRows(t *testing.T) {
	rows := make([]exportRow, 10)
	for i := range rows {
		rows[i].Date = time.Date(2026, 1, i+1, 0, 0, 0, 0, time.UTC)
	}

	got := downsampleRows(rows, 4)
	require.Len(t, got, 4)
	assert.Equal(t, rows[0].Date, got[0].Date)
	assert.Equal(t, rows[9].Date, got[3].Date)

	assert.Len(t, downsampleRows(rows, 20), 10)
	assert.Equal(t, rows[9].Date, downsampleRows(rows, 1)[0].Date)
}

func TestWriteSummaryTable(t *testing.T) {
	a := testApp(t)
	snap := seedSnapshot(t, a)

	var buf bytes.Buffer
	writeSummaryTable(&buf, snap, "")
	out := buf.String()
	assert.Contains(t, out, "commodities")
	assert.Contains(t, out, "黄金")
	assert.Contains(t, out, "+1000")
	assert.Contains(t, out, "3.25")

	buf.Reset()
	writeCurveTable(&buf, snap)
	assert.Contains(t, buf.String(), "HGH26.CMX")
	assert.Contains(t, buf.String(), "2026-01-09 -0.08 (USD/lb)")
}

func TestSimulateAlert(t *testing.T) {
	a := testApp(t)
	seedSnapshot(t, a)
	ctx := context.Background()

	err := a.SimulateAlert(ctx, SimulateOptions{Instrument: "gold"})
	assert.Error(t, err, "0.2% change stays under the threshold")

	require.NoError(t, a.SimulateAlert(ctx, SimulateOptions{Group: "commodities", Instrument: "gold", NetChange: -40000}))

	a.Config.Alerting.Enabled = false
	assert.Error(t, a.SimulateAlert(ctx, SimulateOptions{Instrument: "gold", NetChange: -40000}))
}

func TestPruneCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	keep := 30 * 24 * time.Hour

	assert.Equal(t, now.Add(-keep), pruneCutoff(now, keep, now.Add(-time.Hour)))

	stale := now.Add(-60 * 24 * time.Hour)
	assert.Equal(t, stale, pruneCutoff(now, keep, stale), "latest archived snapshot survives pruning")
}
