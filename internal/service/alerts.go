package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cotwatch/internal/alerting"
	"cotwatch/internal/calendar"
	"cotwatch/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// EvaluateAlerts returns a notification for every instrument whose latest
// managed-money net change is at least threshold percent of open interest.
// Instruments whose latest report date already appeared in prior are skipped.
func EvaluateAlerts(prior, snap *storage.Snapshot, threshold decimal.Decimal) []alerting.Notification {
	if snap == nil || !threshold.IsPositive() {
		return nil
	}

	keys := make([]string, 0, len(snap.Groups))
	for k := range snap.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var notes []alerting.Notification
	for _, key := range keys {
		group := snap.Groups[key]
		for _, ref := range group.List {
			inst, ok := group.Instruments[ref.Code]
			if !ok || inst.Summary == nil || inst.Summary.OpenInterest <= 0 {
				continue
			}
			sum := inst.Summary
			if sum.MMNetChange == 0 || alreadySeen(prior, key, ref.Code, sum.LatestDate) {
				continue
			}

			pct := decimal.NewFromInt(sum.MMNetChange).Abs().
				Mul(hundred).
				Div(decimal.NewFromInt(sum.OpenInterest))
			if pct.LessThan(threshold) {
				continue
			}

			direction := "long"
			if sum.MMNetChange < 0 {
				direction = "short"
			}
			notes = append(notes, alerting.Notification{
				ReportDate:   sum.LatestDate,
				Group:        key,
				Code:         ref.Code,
				Name:         inst.Name,
				NameEN:       inst.NameEN,
				Net:          sum.MMNet,
				NetChange:    sum.MMNetChange,
				OpenInterest: sum.OpenInterest,
				ChangePct:    pct.Round(2),
				ThresholdPct: threshold,
				Direction:    direction,
			})
		}
	}
	return notes
}

func alreadySeen(prior *storage.Snapshot, group, code, date string) bool {
	if prior == nil {
		return false
	}
	inst, ok := prior.Groups[group].Instruments[code]
	return ok && inst.Summary != nil && inst.Summary.LatestDate == date
}

// DispatchAlerts evaluates snap against prior and delivers every resulting
// notification. A notification whose delivery fails stays eligible on the
// next call even when prior already carries its report week. When an alert
// store is attached it is the source of truth for de-duplication: the row is
// claimed before delivery and released again when delivery fails.
func (s *Service) DispatchAlerts(ctx context.Context, prior, snap *storage.Snapshot) int {
	if !s.alertsOn || s.notifier == nil || s.threshold.IsZero() {
		return 0
	}

	sent := 0
	for _, note := range EvaluateAlerts(nil, snap, s.threshold) {
		key := alertKey(note)
		if s.alertStore == nil && alreadySeen(prior, note.Group, note.Code, note.ReportDate) && !s.unsent[key] {
			continue
		}
		note.Channels = s.channels
		logger := s.logger.With().Str("group", note.Group).Str("instrument", note.Code).Logger()

		var claimed int64
		if s.alertStore != nil {
			reportDate, _ := time.Parse(calendar.DateLayout, note.ReportDate)
			rec, inserted, err := s.alertStore.RecordAlert(ctx, storage.AlertRecord{
				ReportDate:   reportDate,
				Group:        note.Group,
				Code:         note.Code,
				NetChange:    note.NetChange,
				ChangePct:    note.ChangePct,
				ThresholdPct: note.ThresholdPct,
				Channels:     note.Channels,
			})
			if err != nil {
				logger.Error().Err(err).Msg("failed to persist alert record")
			} else if !inserted {
				logger.Debug().Str("report_date", note.ReportDate).Msg("alert already sent")
				continue
			} else {
				claimed = rec.ID
			}
		}

		if err := s.notifier.Notify(ctx, note); err != nil {
			logger.Error().Err(err).Msg("failed to dispatch alert")
			s.unsent[key] = true
			if claimed != 0 {
				if delErr := s.alertStore.DeleteAlert(ctx, claimed); delErr != nil {
					logger.Error().Err(delErr).Int64("alert_id", claimed).Msg("failed to release alert record")
				}
			}
			continue
		}
		delete(s.unsent, key)
		sent++
	}
	return sent
}

func alertKey(note alerting.Notification) string {
	return note.Group + "/" + note.Code + "@" + note.ReportDate
}

func (s *Service) dispatchAlerts(ctx context.Context, prior, snap *storage.Snapshot) {
	if n := s.DispatchAlerts(ctx, prior, snap); n > 0 {
		s.logger.Info().Int("alerts", n).Msg("positioning alerts sent")
	}
}
