package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cotwatch/internal/curve"
	"cotwatch/internal/positions"
)

// ErrUpstream wraps every failure raised while talking to a data provider.
var ErrUpstream = errors.New("upstream fetch failed")

// ErrNotFound means the provider does not list the requested symbol or
// resource. It is not an outage and does not count against circuit breakers.
var ErrNotFound = errors.New("upstream resource not found")

func upstreamErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpstream, fmt.Sprintf(format, args...))
}

// ReportProvider retrieves regulatory positioning rows for one report year.
type ReportProvider interface {
	ReportRows(ctx context.Context, kind positions.ReportKind, year int) ([]positions.Row, error)
}

// PriceProvider retrieves daily closes for one ticker.
type PriceProvider interface {
	DailyPrices(ctx context.Context, ticker string, from, to time.Time) ([]curve.PricePoint, error)
}

// Stock is the registered inventory of a commodity and its change from the prior period.
type Stock struct {
	Total  decimal.Decimal
	Change decimal.Decimal
}

// StockProvider retrieves current warehouse stock.
type StockProvider interface {
	WarehouseStock(ctx context.Context, label string) (Stock, error)
}

// FetchAll requests every ticker and keeps the ones that returned data. A failing
// ticker is logged and left out so one contract cannot sink the rest.
func FetchAll(ctx context.Context, p PriceProvider, tickers []string, from, to time.Time, logger zerolog.Logger) map[string]curve.Series {
	out := make(map[string]curve.Series, len(tickers))
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		points, err := p.DailyPrices(ctx, ticker, from, to)
		if errors.Is(err, ErrNotFound) {
			logger.Debug().Str("ticker", ticker).Msg("ticker not listed")
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Str("ticker", ticker).Msg("price series unavailable")
			continue
		}
		series := curve.NewSeries(points)
		if len(series) == 0 {
			logger.Debug().Str("ticker", ticker).Msg("price series empty")
			continue
		}
		out[ticker] = series
	}
	return out
}
