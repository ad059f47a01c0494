package app

import (
	"context"
	"errors"
	"time"
)

// Archive 将当前 JSON 快照写入 PostgreSQL 归档，并清理早于 --keep 的历史快照。
func (a *App) Archive(ctx context.Context, opts ArchiveOptions) error {
	if opts.Keep < 0 {
		return errors.New("--keep 不能为负数")
	}

	snap, err := a.fileStore().Load()
	if err != nil {
		return err
	}

	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	defer closeArchive()
	if !archive.Configured() {
		return errors.New("database.dsn 未配置，无法归档")
	}

	logger := a.Logger.With().Time("generated_at", snap.UpdatedAt).Int("instruments", snap.InstrumentCount()).Logger()
	if opts.DryRun {
		logger.Warn().Msg("归档 dry-run：不会写入数据库")
	} else if err := archive.ArchiveSnapshot(ctx, snap); err != nil {
		return err
	} else {
		logger.Info().Msg("快照已归档")
	}

	if opts.Keep == 0 {
		return nil
	}

	cutoff := pruneCutoff(time.Now().UTC(), opts.Keep, snap.UpdatedAt)
	if opts.DryRun {
		a.Logger.Info().Time("cutoff", cutoff).Msg("dry-run：跳过清理")
		return nil
	}
	removed, err := archive.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("归档清理完成")
	return nil
}

// pruneCutoff never reaches past the snapshot that was just archived.
func pruneCutoff(now time.Time, keep time.Duration, latest time.Time) time.Time {
	cutoff := now.Add(-keep)
	if !latest.IsZero() && latest.Before(cutoff) {
		return latest
	}
	return cutoff
}
