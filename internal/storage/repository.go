package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSnapshotsSQL = `CREATE TABLE IF NOT EXISTS snapshots (
        generated_at timestamptz PRIMARY KEY,
        document     jsonb       NOT NULL,
        instruments  integer     NOT NULL DEFAULT 0,
        created_at   timestamptz NOT NULL DEFAULT now()
    );`

	createAlertsSQL = `CREATE TABLE IF NOT EXISTS alerts (
        id            bigserial   PRIMARY KEY,
        report_date   date        NOT NULL,
        group_key     text        NOT NULL,
        code          text        NOT NULL,
        net_change    bigint      NOT NULL,
        change_pct    numeric     NOT NULL,
        threshold_pct numeric     NOT NULL,
        channels      text[]      NOT NULL DEFAULT '{}',
        created_at    timestamptz NOT NULL DEFAULT now(),
        UNIQUE (report_date, group_key, code)
    );`

	upsertSnapshotSQL = `INSERT INTO snapshots (
        generated_at,
        document,
        instruments
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (generated_at) DO UPDATE
    SET document    = EXCLUDED.document,
        instruments = EXCLUDED.instruments;`

	latestSnapshotSQL = `SELECT document
    FROM snapshots
    ORDER BY generated_at DESC
    LIMIT 1;`

	listSnapshotsSQL = `SELECT
        generated_at,
        instruments,
        octet_length(document::text),
        created_at
    FROM snapshots
    ORDER BY generated_at DESC
    LIMIT $1;`

	deleteSnapshotsBeforeSQL = `DELETE FROM snapshots WHERE generated_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        report_date,
        group_key,
        code,
        net_change,
        change_pct,
        threshold_pct,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (report_date, group_key, code) DO NOTHING
    RETURNING id, created_at;`

	deleteAlertSQL = `DELETE FROM alerts WHERE id = $1;`

	listRecentAlertsSQL = `SELECT
        id,
        report_date,
        group_key,
        code,
        net_change,
        change_pct::text,
        threshold_pct::text,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotArchive keeps every persisted snapshot in PostgreSQL.
type SnapshotArchive interface {
	ArchiveSnapshot(ctx context.Context, snap *Snapshot) error
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]ArchivedSnapshot, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	RecordAlert(ctx context.Context, alert AlertRecord) (AlertRecord, bool, error)
	DeleteAlert(ctx context.Context, id int64) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to archived snapshots and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Configured reports whether a pool is attached.
func (s *Store) Configured() bool {
	return s != nil && s.pool != nil
}

// EnsureSchema creates the archive tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createSnapshotsSQL, createAlertsSQL} {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Releasing the connection drops the session lock even if the unlock fails.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ArchiveSnapshot upserts snap keyed by its generation timestamp.
func (s *Store) ArchiveSnapshot(ctx context.Context, snap *Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, execErr := pool.Exec(ctx, upsertSnapshotSQL, snap.UpdatedAt, doc, snap.InstrumentCount()); execErr != nil {
		return fmt.Errorf("archive snapshot: %w", execErr)
	}
	return nil
}

// LatestSnapshot returns the most recently generated archived snapshot.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var doc []byte
	if scanErr := pool.QueryRow(ctx, latestSnapshotSQL).Scan(&doc); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("latest snapshot: %w", scanErr)
	}

	var snap Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return nil, fmt.Errorf("decode archived snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots lists archived runs, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]ArchivedSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots: %w", queryErr)
	}
	defer rows.Close()

	out := make([]ArchivedSnapshot, 0, limit)
	for rows.Next() {
		var rec ArchivedSnapshot
		if err := rows.Scan(&rec.GeneratedAt, &rec.Instruments, &rec.SizeBytes, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DeleteSnapshotsBefore prunes archived runs older than cutoff.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteSnapshotsBeforeSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("delete snapshots before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// RecordAlert stores an alert emission. The boolean is false when the same
// instrument was already alerted for that report date.
func (s *Store) RecordAlert(ctx context.Context, alert AlertRecord) (AlertRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, false, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.ReportDate,
		alert.Group,
		alert.Code,
		alert.NetChange,
		alert.ChangePct.String(),
		alert.ThresholdPct.String(),
		alert.Channels,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return alert, false, nil
		}
		return AlertRecord{}, false, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, true, nil
}

// DeleteAlert removes an alert record so the alert can be sent again.
func (s *Store) DeleteAlert(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertSQL, id); execErr != nil {
		return fmt.Errorf("delete alert %d: %w", id, execErr)
	}
	return nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var changeStr, thresholdStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.ReportDate,
			&rec.Group,
			&rec.Code,
			&rec.NetChange,
			&changeStr,
			&thresholdStr,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.ChangePct, convErr = decimal.NewFromString(changeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse change pct: %w", convErr)
		}
		rec.ThresholdPct, convErr = decimal.NewFromString(thresholdStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse threshold pct: %w", convErr)
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}
