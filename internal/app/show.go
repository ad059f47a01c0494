package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"cotwatch/internal/storage"
)

// Show prints the latest positioning summary and forward curves, or the
// archive listing when opts.Archive is set.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Archive {
		return a.showArchive(ctx, os.Stdout, opts.Limit)
	}

	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return err
	}
	if opts.Group != "" {
		if _, ok := snap.Groups[opts.Group]; !ok {
			return fmt.Errorf("group %q not found in snapshot", opts.Group)
		}
	}

	fmt.Fprintf(os.Stdout, "updated_at: %s\n\n", snap.UpdatedAt.UTC().Format(time.RFC3339))
	writeSummaryTable(os.Stdout, snap, opts.Group)
	if opts.Group == "" {
		fmt.Fprintln(os.Stdout)
		writeCurveTable(os.Stdout, snap)
	}
	return nil
}

func writeSummaryTable(w io.Writer, snap *storage.Snapshot, only string) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Group\tCode\tName\tReport\tMM Net\tMM Chg\tProd Net\tOI\tL/S")

	for _, key := range sortedKeys(snap.Groups) {
		if only != "" && key != only {
			continue
		}
		group := snap.Groups[key]
		for _, ref := range group.List {
			inst := group.Instruments[ref.Code]
			if inst.Summary == nil {
				fmt.Fprintf(writer, "%s\t%s\t%s\t-\t-\t-\t-\t-\t-\n", key, ref.Code, sanitizeInline(ref.Name))
				continue
			}
			sum := inst.Summary
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%d\t%+d\t%d\t%d\t%s\n",
				key,
				ref.Code,
				sanitizeInline(ref.Name),
				sum.LatestDate,
				sum.MMNet,
				sum.MMNetChange,
				sum.ProdNet,
				sum.OpenInterest,
				formatDecimal(sum.LongShortRatio, 2),
			)
		}
	}
	writer.Flush()
}

func writeCurveTable(w io.Writer, snap *storage.Snapshot) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Exchange\tMonth\tContract\tPrice\tAs Of\tLast Spread")

	for _, key := range sortedKeys(snap.Curves) {
		ec := snap.Curves[key]
		last := "-"
		if n := len(ec.SpreadHistory); n > 0 {
			rec := ec.SpreadHistory[n-1]
			last = fmt.Sprintf("%s %s (%s)", rec.Date, rec.Spread.String(), ec.Unit)
		}
		if len(ec.Curve) == 0 {
			fmt.Fprintf(writer, "%s\t-\t-\t-\t-\t%s\n", ec.Exchange, last)
			continue
		}
		for i, pt := range ec.Curve {
			spread := ""
			if i == 0 {
				spread = last
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n", ec.Exchange, pt.MonthLabel, pt.Contract, pt.Price.String(), pt.Date, spread)
		}
	}
	writer.Flush()
}

func (a *App) showArchive(ctx context.Context, w io.Writer, limit int) error {
	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	defer closeArchive()
	if !archive.Configured() {
		return errors.New("database not configured; cannot show archive")
	}

	snaps, err := archive.ListSnapshots(ctx, limit)
	if err != nil {
		return err
	}
	alerts, err := archive.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Generated (UTC)\tInstruments\tSize\tArchived (UTC)")
	for _, s := range snaps {
		fmt.Fprintf(writer, "%s\t%d\t%d\t%s\n",
			s.GeneratedAt.UTC().Format(time.RFC3339),
			s.Instruments,
			s.SizeBytes,
			s.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	writer.Flush()

	if len(alerts) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	writer = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Report\tGroup\tCode\tNet Chg\tChg%\tThreshold%\tChannels")
	for _, al := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%+d\t%s\t%s\t%s\n",
			al.ReportDate.Format("2006-01-02"),
			al.Group,
			al.Code,
			al.NetChange,
			formatDecimal(al.ChangePct, 2),
			formatDecimal(al.ThresholdPct, 2),
			strings.Join(al.Channels, ","),
		)
	}
	writer.Flush()
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
