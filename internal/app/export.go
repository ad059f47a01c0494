package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"cotwatch/internal/calendar"
	"cotwatch/internal/storage"
)

// exportTable is a dated series ready for CSV or chart output.
type exportTable struct {
	Title     string
	TextCols  []string
	ValueCols []string
	// Secondary is the value column drawn on the secondary axis, -1 for none.
	Secondary int
	Rows      []exportRow
}

type exportRow struct {
	Date   time.Time
	Text   []string
	Values []decimal.Decimal
}

// Export renders an exchange spread history or an instrument's weekly
// positioning as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if (opts.Exchange == "") == (opts.Instrument == "") {
		return errors.New("exactly one of --exchange or --instrument must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return err
	}

	var table exportTable
	if opts.Exchange != "" {
		table, err = spreadTable(snap, opts.Exchange)
	} else {
		table, err = positionTable(snap, opts.Group, opts.Instrument)
	}
	if err != nil {
		return err
	}

	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}
	table.Rows = filterRows(table.Rows, opts.From, opts.To)
	if len(table.Rows) == 0 {
		a.Logger.Info().Str("series", table.Title).Msg("no rows found for export window")
		return nil
	}

	total := len(table.Rows)
	table.Rows = downsampleRows(table.Rows, opts.MaxPoints)
	a.Logger.Info().Str("series", table.Title).Int("total", total).Int("exported", len(table.Rows)).Msg("exporting series")

	if opts.CSVPath != "" {
		if err := writeTableCSV(opts.CSVPath, table); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTablePNG(opts.PNGPath, table); err != nil {
			return err
		}
	}

	return nil
}

func spreadTable(snap *storage.Snapshot, exchange string) (exportTable, error) {
	ec, ok := snap.Curves[exchange]
	if !ok {
		return exportTable{}, fmt.Errorf("exchange %q not found in snapshot", exchange)
	}

	table := exportTable{
		Title:     ec.Exchange + " M1-M3 spread",
		TextCols:  []string{"m1_contract", "m3_contract"},
		ValueCols: []string{"m1_price", "m3_price", "spread"},
		Secondary: 2,
	}
	for _, rec := range ec.SpreadHistory {
		date, err := time.Parse(calendar.DateLayout, rec.Date)
		if err != nil {
			return exportTable{}, err
		}
		table.Rows = append(table.Rows, exportRow{
			Date:   date,
			Text:   []string{rec.M1Contract, rec.M3Contract},
			Values: []decimal.Decimal{rec.M1Price, rec.M3Price, rec.Spread},
		})
	}
	return table, nil
}

func positionTable(snap *storage.Snapshot, group, code string) (exportTable, error) {
	inst, groupKey, err := findInstrument(snap, group, code)
	if err != nil {
		return exportTable{}, err
	}

	table := exportTable{
		Title:     fmt.Sprintf("%s/%s net positions", groupKey, code),
		ValueCols: []string{"mm_net", "prod_net", "other_net", "open_interest"},
		Secondary: 3,
	}
	for _, w := range inst.Weekly {
		date, err := time.Parse(calendar.DateLayout, w.Date)
		if err != nil {
			return exportTable{}, err
		}
		table.Rows = append(table.Rows, exportRow{
			Date: date,
			Values: []decimal.Decimal{
				decimal.NewFromInt(w.MMNet),
				decimal.NewFromInt(w.ProdNet),
				decimal.NewFromInt(w.OtherNet),
				decimal.NewFromInt(w.OpenInterest),
			},
		})
	}
	return table, nil
}

// findInstrument locates code in group, or in any group when group is empty.
func findInstrument(snap *storage.Snapshot, group, code string) (storage.Instrument, string, error) {
	if group != "" {
		g, ok := snap.Groups[group]
		if !ok {
			return storage.Instrument{}, "", fmt.Errorf("group %q not found in snapshot", group)
		}
		inst, ok := g.Instruments[code]
		if !ok {
			return storage.Instrument{}, "", fmt.Errorf("instrument %q not found in group %q", code, group)
		}
		return inst, group, nil
	}

	var (
		found storage.Instrument
		key   string
	)
	for k, g := range snap.Groups {
		inst, ok := g.Instruments[code]
		if !ok {
			continue
		}
		if key != "" {
			return storage.Instrument{}, "", fmt.Errorf("instrument %q exists in %q and %q; pass --group", code, key, k)
		}
		found, key = inst, k
	}
	if key == "" {
		return storage.Instrument{}, "", fmt.Errorf("instrument %q not found in snapshot", code)
	}
	return found, key, nil
}

func filterRows(rows []exportRow, from, to *time.Time) []exportRow {
	if from == nil && to == nil {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if from != nil && r.Date.Before(from.UTC()) {
			continue
		}
		if to != nil && r.Date.After(to.UTC()) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func downsampleRows(rows []exportRow, max int) []exportRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]exportRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeTableCSV(path string, table exportTable) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := append([]string{"date"}, table.TextCols...)
	header = append(header, table.ValueCols...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range table.Rows {
		record := make([]string, 0, len(header))
		record = append(record, calendar.Format(row.Date))
		record = append(record, row.Text...)
		for _, v := range row.Values {
			record = append(record, v.String())
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeTablePNG(path string, table exportTable) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(table.Rows))
	ys := make([][]float64, len(table.ValueCols))
	for i := range ys {
		ys[i] = make([]float64, len(table.Rows))
	}
	for i, row := range table.Rows {
		x[i] = row.Date
		for j, v := range row.Values {
			ys[j][i] = v.InexactFloat64()
		}
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  table.Title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			ValueFormatter: valueFormatter,
		},
	}
	for j, name := range table.ValueCols {
		series := chart.TimeSeries{
			Name:    name,
			XValues: x,
			YValues: ys[j],
		}
		if j == table.Secondary {
			series.YAxis = chart.YAxisSecondary
			graph.YAxisSecondary = chart.YAxis{
				Name:           name,
				ValueFormatter: valueFormatter,
			}
		}
		graph.Series = append(graph.Series, series)
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
