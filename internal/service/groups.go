package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cotwatch/internal/config"
	"cotwatch/internal/positions"
	"cotwatch/internal/storage"
)

// InstrumentResult is the outcome of building one instrument. Err is set when
// the instrument was skipped.
type InstrumentResult struct {
	Code       string
	Instrument storage.Instrument
	Err        error
}

func (s *Service) buildGroups(ctx context.Context, prior *storage.Snapshot, now time.Time) (map[string]storage.Group, error) {
	rowsByKind := make(map[positions.ReportKind][]positions.Row)
	for _, g := range s.cfg.Groups {
		if _, done := rowsByKind[g.Kind]; done {
			continue
		}
		rowsByKind[g.Kind] = s.fetchReports(ctx, g.Kind, now)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]storage.Group, len(s.cfg.Groups))
	for _, g := range s.cfg.Groups {
		rows := rowsByKind[g.Kind]
		if len(rows) == 0 {
			if g.Required {
				return nil, fmt.Errorf("%w: %s report returned no rows", ErrNoUsableData, g.Kind)
			}
			if prev, ok := prior.Groups[g.Key]; ok {
				s.logger.Warn().Str("group", g.Key).Msg("report rows unavailable; keeping prior group")
				prev.ListKey = g.ListKey
				out[g.Key] = prev
				continue
			}
			s.logger.Warn().Str("group", g.Key).Msg("report rows unavailable; group left empty")
			out[g.Key] = storage.Group{Kind: g.Kind, ListKey: g.ListKey, Instruments: map[string]storage.Instrument{}, List: []storage.InstrumentRef{}}
			continue
		}

		schema, err := s.cfg.Schema(g.Kind)
		if err != nil {
			return nil, err
		}
		results := s.buildInstruments(ctx, g, rows, schema)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[g.Key] = assembleGroup(g, results)

		s.logger.Info().Str("group", g.Key).
			Int("rows", len(rows)).
			Int("instruments", len(out[g.Key].List)).
			Msg("group built")
	}
	return out, nil
}

// fetchReports collects every configured year of kind. Failing years are logged
// and skipped.
func (s *Service) fetchReports(ctx context.Context, kind positions.ReportKind, now time.Time) []positions.Row {
	var rows []positions.Row
	for year := now.Year() - s.cfg.CFTC.YearsBack; year <= now.Year(); year++ {
		batch, err := s.providers.Reports.ReportRows(ctx, kind, year)
		if err != nil {
			s.logger.Warn().Err(err).Str("kind", string(kind)).Int("year", year).Msg("report fetch failed")
			continue
		}
		s.logger.Debug().Str("kind", string(kind)).Int("year", year).Int("rows", len(batch)).Msg("report rows fetched")
		rows = append(rows, batch...)
	}
	return rows
}

// buildInstruments fans out across instruments; results keep configured order.
func (s *Service) buildInstruments(ctx context.Context, g config.GroupConfig, rows []positions.Row, schema positions.Schema) []InstrumentResult {
	results := make([]InstrumentResult, len(g.Instruments))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers())

	for i, inst := range g.Instruments {
		i, inst := i, inst
		eg.Go(func() error {
			if egCtx.Err() != nil {
				results[i] = InstrumentResult{Code: inst.Code, Err: egCtx.Err()}
				return nil
			}
			results[i] = BuildInstrument(inst, rows, s.cfg.Engine.Weeks, schema)
			if results[i].Err != nil {
				s.logger.Warn().Err(results[i].Err).Str("group", g.Key).Str("instrument", inst.Code).Msg("instrument skipped")
			}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// BuildInstrument filters rows to one market and derives its weekly records.
func BuildInstrument(inst config.InstrumentConfig, rows []positions.Row, weeks int, schema positions.Schema) InstrumentResult {
	res := InstrumentResult{Code: inst.Code}

	re, err := positions.CompileMarketPattern(inst.Pattern)
	if err != nil {
		res.Err = err
		return res
	}
	matched, err := positions.FilterMarket(rows, schema.Market, re)
	if err != nil {
		res.Err = err
		return res
	}
	if len(matched) == 0 {
		res.Err = errors.New("no rows matched market pattern")
		return res
	}

	records, err := positions.Build(matched, weeks, schema)
	if err != nil {
		res.Err = err
		return res
	}
	if len(records) == 0 {
		res.Err = errors.New("no dated rows")
		return res
	}

	res.Instrument = storage.Instrument{
		Name:   inst.Name,
		NameEN: inst.NameEN,
		Weekly: records,
	}
	if summary, ok := positions.Summarize(records); ok {
		res.Instrument.Summary = &summary
	}
	return res
}

func assembleGroup(g config.GroupConfig, results []InstrumentResult) storage.Group {
	group := storage.Group{
		Kind:        g.Kind,
		ListKey:     g.ListKey,
		Instruments: make(map[string]storage.Instrument, len(results)),
		List:        make([]storage.InstrumentRef, 0, len(results)),
	}
	for i, res := range results {
		if res.Err != nil {
			continue
		}
		inst := g.Instruments[i]
		group.Instruments[inst.Code] = res.Instrument
		group.List = append(group.List, storage.InstrumentRef{Code: inst.Code, Name: inst.Name, NameEN: inst.NameEN})
	}
	return group
}
