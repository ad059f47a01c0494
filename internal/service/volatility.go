package service

import (
	"context"
	"time"

	"cotwatch/internal/calendar"
	"cotwatch/internal/curve"
	"cotwatch/internal/merge"
)

const volatilitySource = "yahoo"

func (s *Service) buildVolatility(ctx context.Context, now time.Time) []merge.VolatilityRecord {
	vc := s.cfg.Volatility
	if !vc.Enabled {
		return nil
	}
	provider, ok := s.providers.Prices[volatilitySource]
	if !ok {
		s.logger.Warn().Msg("no price provider for volatility series")
		return nil
	}
	start, err := time.Parse(calendar.DateLayout, vc.StartDate)
	if err != nil {
		s.logger.Error().Err(err).Msg("invalid volatility start date")
		return nil
	}
	weekday, ok := calendar.ParseWeekday(vc.Weekday)
	if !ok {
		weekday = time.Tuesday
	}

	indexPoints, err := provider.DailyPrices(ctx, vc.IndexTicker, start, now)
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", vc.IndexTicker).Msg("volatility index fetch failed")
		return nil
	}

	var volume curve.Series
	if vc.VolumeTicker != "" {
		points, err := provider.DailyPrices(ctx, vc.VolumeTicker, start, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("ticker", vc.VolumeTicker).Msg("volume series fetch failed")
		} else {
			volume = curve.NewSeries(points)
		}
	}

	records := WeeklyVolatility(curve.NewSeries(indexPoints), volume, calendar.WeeklyAnchors(start, now, weekday), weekday)
	s.logger.Info().Int("weeks", len(records)).Msg("volatility series built")
	return records
}

// WeeklyVolatility samples index at every anchor and attaches the companion
// volume summed over the week ending on that anchor. Anchors before the first
// index observation are dropped. Anchors past the last volume week reuse the
// last weekly sum; anchors before the first get no volume.
func WeeklyVolatility(index, volume curve.Series, anchors []time.Time, weekday time.Weekday) []merge.VolatilityRecord {
	sums := make(map[string]int64)
	var firstWeek, lastWeek time.Time
	for i, p := range volume {
		label := calendar.NextWeekday(p.Date, weekday)
		sums[calendar.Format(label)] += p.Volume
		if i == 0 {
			firstWeek = label
		}
		lastWeek = label
	}

	out := make([]merge.VolatilityRecord, 0, len(anchors))
	for _, a := range anchors {
		a = calendar.Day(a)
		p, ok := index.AtOrBefore(a)
		if !ok {
			continue
		}
		rec := merge.VolatilityRecord{
			Date:  calendar.Format(a),
			Close: p.Close.Round(2),
		}
		if len(volume) > 0 {
			switch {
			case a.After(lastWeek):
				v := sums[calendar.Format(lastWeek)]
				rec.ETFVolume = &v
			case !a.Before(firstWeek):
				v := sums[calendar.Format(a)]
				rec.ETFVolume = &v
			}
		}
		out = append(out, rec)
	}
	return out
}
