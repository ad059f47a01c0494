package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cotwatch/internal/calendar"
	"cotwatch/internal/config"
	"cotwatch/internal/curve"
	"cotwatch/internal/fetcher"
	"cotwatch/internal/merge"
	"cotwatch/internal/storage"
)

// CurveInputs are the contract sets and price series an exchange needs.
type CurveInputs struct {
	CurveContracts  []calendar.Contract
	SpreadContracts []calendar.Contract
	Series          map[string]curve.Series
}

func (s *Service) buildCurves(ctx context.Context, prior *storage.Snapshot, now time.Time) map[string]storage.ExchangeCurve {
	results := make([]storage.ExchangeCurve, len(s.cfg.Exchanges))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers())

	for i, ex := range s.cfg.Exchanges {
		i, ex := i, ex
		eg.Go(func() error {
			results[i] = s.buildExchange(egCtx, ex, prior.Curves[ex.Key], now)
			return nil
		})
	}
	_ = eg.Wait()

	out := make(map[string]storage.ExchangeCurve, len(results))
	for i, ex := range s.cfg.Exchanges {
		out[ex.Key] = results[i]
	}
	return out
}

func (s *Service) buildExchange(ctx context.Context, ex config.ExchangeConfig, prev storage.ExchangeCurve, now time.Time) storage.ExchangeCurve {
	logger := s.logger.With().Str("exchange", ex.Key).Logger()
	result := storage.ExchangeCurve{
		Exchange: strings.ToUpper(ex.Exchange),
		Unit:     ex.Unit,
	}

	conv, err := calendar.NewConvention(calendar.Exchange(strings.ToUpper(ex.Exchange)), ex.Root, ex.Suffix)
	if err != nil {
		logger.Error().Err(err).Msg("invalid exchange convention")
		return keepPrior(result, prev)
	}
	provider, ok := s.providers.Prices[ex.Source]
	if !ok {
		logger.Error().Str("source", ex.Source).Msg("no price provider for source")
		return keepPrior(result, prev)
	}
	spreadStart, err := s.cfg.SpreadStart()
	if err != nil {
		logger.Error().Err(err).Msg("invalid spread start")
		return keepPrior(result, prev)
	}

	inputs := s.collectCurveInputs(ctx, conv, provider, spreadStart, now)
	fresh := ComputeCurve(inputs, now, s.cfg.Engine, ex.Precision, spreadStart)

	if len(fresh.Curve) == 0 && len(prev.Curve) > 0 {
		logger.Warn().Msg("no curve prices; keeping prior curve")
	}
	if len(fresh.SpreadHistory) == 0 && len(prev.SpreadHistory) > 0 {
		logger.Warn().Msg("no spread history; keeping prior history")
	}
	result.Curve = merge.ReplaceOrKeep(fresh.Curve, prev.Curve)
	result.SpreadHistory = merge.ReplaceOrKeep(fresh.SpreadHistory, prev.SpreadHistory)

	logger.Info().Int("curve_points", len(result.Curve)).
		Int("spread_weeks", len(result.SpreadHistory)).
		Int("series", len(inputs.Series)).
		Msg("exchange curve built")
	return result
}

func (s *Service) collectCurveInputs(ctx context.Context, conv calendar.Convention, provider fetcher.PriceProvider, spreadStart, now time.Time) CurveInputs {
	curveContracts := conv.Enumerate(now, s.cfg.Engine.CurveMonths, calendar.AllMonths)
	spreadContracts := conv.Between(spreadStart, now.AddDate(s.cfg.Engine.SpreadYearsForward, 0, 0), calendar.QuarterlyMonths)

	seen := make(map[string]bool)
	var tickers []string
	for _, set := range [][]calendar.Contract{curveContracts, spreadContracts} {
		for _, c := range set {
			if !seen[c.Ticker] {
				seen[c.Ticker] = true
				tickers = append(tickers, c.Ticker)
			}
		}
	}

	from := spreadStart
	if lookbackStart := calendar.Day(now).Add(-s.cfg.Engine.CurveLookback); lookbackStart.Before(from) {
		from = lookbackStart
	}
	// Allow the first anchors to see a price older than the spread start.
	from = from.Add(-s.cfg.Engine.SpreadGrace)

	return CurveInputs{
		CurveContracts:  curveContracts,
		SpreadContracts: spreadContracts,
		Series:          fetcher.FetchAll(ctx, provider, tickers, from, now, s.logger),
	}
}

// ComputeCurve derives the forward curve at now and the weekly spread history
// from spreadStart to now. It performs no I/O.
func ComputeCurve(in CurveInputs, now time.Time, eng config.EngineConfig, precision int32, spreadStart time.Time) storage.ExchangeCurve {
	lookback := eng.CurveLookback
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	weekday, ok := calendar.ParseWeekday(eng.SpreadWeekday)
	if !ok {
		weekday = time.Friday
	}

	lookups := curve.Lookups(in.CurveContracts, in.Series, now, lookback)
	anchors := calendar.WeeklyAnchors(spreadStart, now, weekday)

	return storage.ExchangeCurve{
		Curve: curve.Snapshot(lookups, precision),
		SpreadHistory: curve.Spreads(in.SpreadContracts, in.Series, anchors, curve.SpreadOptions{
			Grace:     eng.SpreadGrace,
			Precision: precision,
		}),
	}
}

func keepPrior(result, prev storage.ExchangeCurve) storage.ExchangeCurve {
	result.Curve = merge.ReplaceOrKeep(nil, prev.Curve)
	result.SpreadHistory = merge.ReplaceOrKeep(nil, prev.SpreadHistory)
	return result
}
