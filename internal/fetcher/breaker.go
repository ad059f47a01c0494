package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"cotwatch/internal/curve"
	"cotwatch/internal/positions"
)

// BreakerSettings configure the circuit breakers placed in front of providers.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

func newBreaker(name string, settings BreakerSettings, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

func execBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %s: %v", ErrUpstream, cb.Name(), err)
		}
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// BreakerReports guards a ReportProvider.
type BreakerReports struct {
	next    ReportProvider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerReports wraps next with a circuit breaker.
func NewBreakerReports(next ReportProvider, settings BreakerSettings, logger zerolog.Logger) *BreakerReports {
	return &BreakerReports{next: next, breaker: newBreaker("reports", settings, logger)}
}

func (b *BreakerReports) ReportRows(ctx context.Context, kind positions.ReportKind, year int) ([]positions.Row, error) {
	return execBreaker(b.breaker, func() ([]positions.Row, error) { return b.next.ReportRows(ctx, kind, year) })
}

// BreakerPrices guards a PriceProvider.
type BreakerPrices struct {
	next    PriceProvider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerPrices wraps next with a circuit breaker named after the source.
func NewBreakerPrices(name string, next PriceProvider, settings BreakerSettings, logger zerolog.Logger) *BreakerPrices {
	return &BreakerPrices{next: next, breaker: newBreaker(name, settings, logger)}
}

func (b *BreakerPrices) DailyPrices(ctx context.Context, ticker string, from, to time.Time) ([]curve.PricePoint, error) {
	return execBreaker(b.breaker, func() ([]curve.PricePoint, error) { return b.next.DailyPrices(ctx, ticker, from, to) })
}

// BreakerStock guards a StockProvider.
type BreakerStock struct {
	next    StockProvider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStock wraps next with a circuit breaker.
func NewBreakerStock(next StockProvider, settings BreakerSettings, logger zerolog.Logger) *BreakerStock {
	return &BreakerStock{next: next, breaker: newBreaker("warehouse", settings, logger)}
}

func (b *BreakerStock) WarehouseStock(ctx context.Context, label string) (Stock, error) {
	return execBreaker(b.breaker, func() (Stock, error) { return b.next.WarehouseStock(ctx, label) })
}
