package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cotwatch/internal/alerting"
	"cotwatch/internal/config"
	"cotwatch/internal/fetcher"
	"cotwatch/internal/merge"
	"cotwatch/internal/scheduler"
	"cotwatch/internal/storage"
)

// ErrNoUsableData means a required report kind produced no rows for any year.
// Nothing is persisted when a run fails with it.
var ErrNoUsableData = errors.New("service: no usable report data")

// ErrLocked means another process holds the refresh lock.
var ErrLocked = errors.New("service: refresh already running elsewhere")

// Providers bundles the upstream data sources.
type Providers struct {
	Reports fetcher.ReportProvider
	// Prices is keyed by source name as referenced by exchanges[].source.
	Prices map[string]fetcher.PriceProvider
	Stock  fetcher.StockProvider
}

// Service orchestrates fetching, snapshot assembly, persistence, and alerting.
type Service struct {
	cfg        *config.Config
	scheduler  *scheduler.Scheduler
	providers  Providers
	files      *storage.FileStore
	archive    storage.SnapshotArchive
	alertStore storage.AlertStore
	locker     storage.AdvisoryLocker
	notifier   alerting.Notifier
	logger     zerolog.Logger
	now        func() time.Time

	threshold decimal.Decimal
	channels  []string
	alertsOn  bool
	lockKey   int64

	// unsent holds alerts whose last delivery attempt failed.
	unsent map[string]bool
}

// New constructs the refresh service. archive may be nil or unconfigured.
func New(cfg *config.Config, sched *scheduler.Scheduler, providers Providers, files *storage.FileStore, archive *storage.Store, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if cfg.Alerting.Enabled && cfg.Alerting.ThresholdPct > 0 {
		threshold = decimal.NewFromFloat(cfg.Alerting.ThresholdPct)
	}

	s := &Service{
		cfg:       cfg,
		scheduler: sched,
		providers: providers,
		files:     files,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       time.Now,
		threshold: threshold,
		channels:  cfg.Alerting.Channels,
		alertsOn:  cfg.Alerting.Enabled,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
		unsent:    make(map[string]bool),
	}
	if archive.Configured() {
		s.archive = archive
		s.alertStore = archive
		s.locker = archive
	}
	return s
}

// Run begins the cron-driven refresh loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := s.Refresh(ctx)
		if errors.Is(err, ErrLocked) {
			s.logger.Info().Msg("skip run because advisory lock held elsewhere")
			return nil
		}
		return err
	})
}

// Refresh performs one full run: read prior state, rebuild, persist, alert.
func (s *Service) Refresh(ctx context.Context) (*storage.Snapshot, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		return nil, ErrLocked
	}
	if unlock != nil {
		defer unlock()
	}

	started := s.now()
	prior := s.loadPrior(ctx)

	snap, err := s.Build(ctx, prior, started)
	if err != nil {
		return nil, err
	}

	if err := s.files.Save(snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}
	s.logger.Info().Str("path", s.files.Path()).
		Int("instruments", snap.InstrumentCount()).
		Int("curves", len(snap.Curves)).
		Dur("elapsed", s.now().Sub(started)).
		Msg("snapshot persisted")

	if s.archive != nil {
		if err := s.archive.ArchiveSnapshot(ctx, snap); err != nil {
			s.logger.Error().Err(err).Msg("failed to archive snapshot")
		}
	}

	s.dispatchAlerts(ctx, prior, snap)
	return snap, nil
}

// Build assembles a snapshot from the providers, falling back to prior for
// series whose upstream failed. prior may be nil.
func (s *Service) Build(ctx context.Context, prior *storage.Snapshot, now time.Time) (*storage.Snapshot, error) {
	if prior == nil {
		prior = &storage.Snapshot{}
	}

	groups, err := s.buildGroups(ctx, prior, now)
	if err != nil {
		return nil, err
	}

	snap := &storage.Snapshot{
		UpdatedAt: now.UTC().Truncate(time.Second),
		Groups:    groups,
		Curves:    s.buildCurves(ctx, prior, now),
	}

	snap.Inventory = s.buildInventory(ctx, prior, now)

	fresh := s.buildVolatility(ctx, now)
	if len(fresh) == 0 && len(prior.Volatility) > 0 {
		s.logger.Warn().Int("records", len(prior.Volatility)).Msg("volatility fetch empty; keeping prior series")
	}
	snap.Volatility = merge.ReplaceOrKeep(fresh, prior.Volatility)

	return snap, nil
}

// loadPrior reads the previous snapshot from disk, then from the archive.
// Any failure yields nil so the run starts from empty state.
func (s *Service) loadPrior(ctx context.Context) *storage.Snapshot {
	snap, err := s.files.Load()
	if err == nil {
		return snap
	}
	if !errors.Is(err, storage.ErrNoSnapshot) {
		s.logger.Warn().Err(err).Msg("failed to read prior snapshot")
	}

	if s.archive == nil {
		return nil
	}
	snap, err = s.archive.LatestSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) {
			s.logger.Warn().Err(err).Msg("failed to read archived snapshot")
		}
		return nil
	}
	s.logger.Info().Time("generated_at", snap.UpdatedAt).Msg("prior state restored from archive")
	return snap
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (s *Service) workers() int {
	if s.cfg.Engine.Workers > 0 {
		return s.cfg.Engine.Workers
	}
	return 1
}
