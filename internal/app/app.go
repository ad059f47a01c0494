package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cotwatch/internal/alerting"
	"cotwatch/internal/config"
	"cotwatch/internal/fetcher"
	"cotwatch/internal/scheduler"
	"cotwatch/internal/service"
	"cotwatch/internal/storage"
	"cotwatch/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newProviders() service.Providers {
	cfg := a.Config
	breaker := fetcher.BreakerSettings{
		MaxRequests:  cfg.Breaker.MaxRequests,
		Interval:     cfg.Breaker.Interval,
		Timeout:      cfg.Breaker.Timeout,
		MinRequests:  cfg.Breaker.MinRequests,
		FailureRatio: cfg.Breaker.FailureRatio,
	}
	priceClient := fetcher.ClientOptions{
		Timeout:   cfg.Prices.RequestTimeout,
		RateLimit: cfg.Prices.RateLimit,
		Burst:     cfg.Prices.Burst,
		UserAgent: cfg.Prices.UserAgent,
	}

	reports := fetcher.NewCFTC(fetcher.CFTCOptions{
		BaseURL:   cfg.CFTC.BaseURL,
		Datasets:  cfg.CFTC.Datasets,
		PageLimit: cfg.CFTC.PageLimit,
		AppToken:  cfg.CFTC.AppToken,
		Client: fetcher.ClientOptions{
			Timeout:   cfg.CFTC.RequestTimeout,
			UserAgent: version.UserAgent(),
		},
	})

	providers := service.Providers{
		Reports: fetcher.NewBreakerReports(reports, breaker, a.Logger),
		Prices: map[string]fetcher.PriceProvider{
			"yahoo": fetcher.NewBreakerPrices("yahoo", fetcher.NewYahoo(cfg.Prices.YahooBaseURL, priceClient), breaker, a.Logger),
			"sina":  fetcher.NewBreakerPrices("sina", fetcher.NewSina(cfg.Prices.SinaBaseURL, priceClient), breaker, a.Logger),
		},
	}

	if cfg.Warehouse.Enabled {
		wh := fetcher.NewWarehouse(fetcher.WarehouseOptions{
			URL:         cfg.Warehouse.URL,
			TotalField:  cfg.Warehouse.TotalField,
			ChangeField: cfg.Warehouse.ChangeField,
			Client:      priceClient,
		})
		providers.Stock = fetcher.NewBreakerStock(wh, breaker, a.Logger)
	}
	return providers
}

func (a *App) newNotifier() alerting.Notifier {
	var out alerting.Multi
	for _, ch := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "telegram":
			if a.Config.Alerting.Telegram.Enabled {
				cfg := a.Config.Alerting.Telegram
				out = append(out, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
			}
		case "log":
			out = append(out, alerting.NewLogNotifier(a.Logger))
		default:
			a.Logger.Warn().Str("channel", ch).Msg("unknown alert channel ignored")
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (a *App) openArchive(ctx context.Context) (*storage.Store, func(), error) {
	store, closer, err := storage.OpenArchive(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	if !store.Configured() {
		a.Logger.Debug().Msg("database.dsn not configured; snapshot archive disabled")
	}
	return store, closer, nil
}

func (a *App) fileStore() *storage.FileStore {
	return storage.NewFileStore(a.Config.Output.Path)
}

// Refresh performs a single refresh run.
func (a *App) Refresh(ctx context.Context) error {
	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	defer closeArchive()

	svc := service.New(a.Config, nil, a.newProviders(), a.fileStore(), archive, a.newNotifier(), a.Logger)
	snap, err := svc.Refresh(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Time("updated_at", snap.UpdatedAt).Msg("refresh complete")
	return nil
}

// Run executes the long-running scheduled service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	defer closeArchive()

	loc, err := scheduler.LoadLocation(a.Config.Scheduler.Timezone)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(scheduler.Options{
		Spec:         a.Config.Scheduler.Cron,
		Location:     loc,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc := service.New(a.Config, sched, a.newProviders(), a.fileStore(), archive, a.newNotifier(), a.Logger)

	a.Logger.Info().Str("cron", a.Config.Scheduler.Cron).Str("timezone", loc.String()).Msg("starting refresh service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("refresh service stopped")
	return nil
}

// loadSnapshot reads the current document, falling back to the archive.
func (a *App) loadSnapshot(ctx context.Context) (*storage.Snapshot, error) {
	snap, err := a.fileStore().Load()
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, storage.ErrNoSnapshot) {
		return nil, err
	}

	archive, closeArchive, openErr := a.openArchive(ctx)
	if openErr != nil {
		return nil, openErr
	}
	defer closeArchive()
	if !archive.Configured() {
		return nil, fmt.Errorf("%s: %w", a.Config.Output.Path, storage.ErrNoSnapshot)
	}
	return archive.LatestSnapshot(ctx)
}

// ExportOptions select the series to export and its destinations.
type ExportOptions struct {
	Exchange   string
	Group      string
	Instrument string
	From       *time.Time
	To         *time.Time
	PNGPath    string
	CSVPath    string
	MaxPoints  int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Group   string
	Archive bool
	Limit   int
}

// ArchiveOptions configure importing the current snapshot into PostgreSQL.
type ArchiveOptions struct {
	Keep   time.Duration
	DryRun bool
}
