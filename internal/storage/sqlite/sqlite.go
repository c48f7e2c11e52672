// Package sqlite persists run snapshots so the next run can load them as its
// baseline.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chronicreport/internal/baseline"
	"chronicreport/internal/domain"
)

// Fixed width so created_at sorts lexically; always written in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		run_id     TEXT PRIMARY KEY,
		period     TEXT NOT NULL,
		headline   TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_period ON snapshots(period);

	CREATE TABLE IF NOT EXISTS snapshot_circuits (
		run_id          TEXT NOT NULL,
		circuit_id      TEXT NOT NULL,
		category        TEXT NOT NULL,
		status_source   TEXT DEFAULT '',
		rolling_tickets REAL DEFAULT 0,
		promoted        INTEGER DEFAULT 0,
		regional        INTEGER DEFAULT 0,
		watch           INTEGER DEFAULT 0,
		PRIMARY KEY (run_id, circuit_id)
	);

	CREATE TABLE IF NOT EXISTS snapshot_metrics (
		run_id       TEXT NOT NULL,
		circuit_id   TEXT NOT NULL,
		ticket_total REAL DEFAULT 0,
		outage_hours REAL DEFAULT 0,
		availability REAL DEFAULT 0,
		mtbf_days    REAL DEFAULT 0,
		mtbf_defined INTEGER DEFAULT 0,
		cost         REAL DEFAULT 0,
		PRIMARY KEY (run_id, circuit_id)
	);

	CREATE TABLE IF NOT EXISTS snapshot_rankings (
		run_id     TEXT NOT NULL,
		metric     TEXT NOT NULL,
		circuit_id TEXT NOT NULL,
		rank       INTEGER NOT NULL,
		value      REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rankings_run ON snapshot_rankings(run_id, metric);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Store implements baseline.Source and baseline.Sink on top of InitDB's schema.
type Store struct {
	db *sql.DB
}

var (
	_ baseline.Source = (*Store)(nil)
	_ baseline.Sink   = (*Store)(nil)
)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveSnapshot stores the snapshot in one transaction. Earlier runs for the
// same period are kept; LatestBefore prefers the newest.
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.Period.IsZero() {
		return fmt.Errorf("snapshot has no period")
	}
	if snap.RunID == "" {
		return fmt.Errorf("snapshot has no run id")
	}
	headline, err := json.Marshal(snap.Headline)
	if err != nil {
		return fmt.Errorf("marshal headline: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created := snap.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, period, headline, created_at) VALUES (?, ?, ?, ?)`,
		snap.RunID, snap.Period.String(), string(headline), created.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.RunID, err)
	}

	circuitStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_circuits (run_id, circuit_id, category, status_source, rolling_tickets, promoted, regional, watch)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer circuitStmt.Close()
	for _, r := range snap.Records {
		if _, err := circuitStmt.ExecContext(ctx,
			snap.RunID, r.CircuitID, string(r.Category), string(r.Source), r.RollingTickets,
			r.Promoted, r.Regional, int(r.Watch),
		); err != nil {
			return fmt.Errorf("insert circuit %s: %w", r.CircuitID, err)
		}
	}

	metricStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_metrics (run_id, circuit_id, ticket_total, outage_hours, availability, mtbf_days, mtbf_defined, cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer metricStmt.Close()
	for _, m := range snap.Metrics {
		if _, err := metricStmt.ExecContext(ctx,
			snap.RunID, m.CircuitID, m.TicketTotal, m.OutageHours, m.Availability, m.MTBFDays, m.MTBFDefined, m.Cost,
		); err != nil {
			return fmt.Errorf("insert metrics %s: %w", m.CircuitID, err)
		}
	}

	rankStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_rankings (run_id, metric, circuit_id, rank, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer rankStmt.Close()
	for metric, entries := range snap.Rankings {
		for _, e := range entries {
			if _, err := rankStmt.ExecContext(ctx, snap.RunID, string(metric), e.CircuitID, e.Rank, e.Value); err != nil {
				return fmt.Errorf("insert ranking %s/%s: %w", metric, e.CircuitID, err)
			}
		}
	}

	return tx.Commit()
}

// LatestBefore returns the newest snapshot whose period is strictly before period.
func (s *Store) LatestBefore(ctx context.Context, period domain.Period) (*domain.Snapshot, error) {
	var (
		snap      domain.Snapshot
		periodStr string
		headline  string
		created   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, period, headline, created_at FROM snapshots
		 WHERE period < ? ORDER BY period DESC, created_at DESC LIMIT 1`,
		period.String(),
	).Scan(&snap.RunID, &periodStr, &headline, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w before %s", baseline.ErrNoPriorSnapshot, period)
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	if snap.Period, err = domain.ParsePeriod(periodStr); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.RunID, err)
	}
	if err := json.Unmarshal([]byte(headline), &snap.Headline); err != nil {
		return nil, fmt.Errorf("snapshot %s headline: %w", snap.RunID, err)
	}
	if snap.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("snapshot %s created_at: %w", snap.RunID, err)
	}

	if snap.Records, err = s.records(ctx, snap.RunID); err != nil {
		return nil, err
	}
	if snap.Metrics, err = s.metrics(ctx, snap.RunID); err != nil {
		return nil, err
	}
	if snap.Rankings, err = s.rankings(ctx, snap.RunID); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) records(ctx context.Context, runID string) ([]domain.ClassificationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT circuit_id, category, status_source, rolling_tickets, promoted, regional, watch
		 FROM snapshot_circuits WHERE run_id = ? ORDER BY circuit_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ClassificationRecord
	for rows.Next() {
		var (
			r        domain.ClassificationRecord
			category string
			source   string
			watch    int
		)
		if err := rows.Scan(&r.CircuitID, &category, &source, &r.RollingTickets, &r.Promoted, &r.Regional, &watch); err != nil {
			return nil, err
		}
		r.Category = domain.Category(category)
		r.Source = domain.StatusSource(source)
		r.Watch = domain.WatchLevel(watch)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) metrics(ctx context.Context, runID string) ([]domain.SnapshotMetrics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT circuit_id, ticket_total, outage_hours, availability, mtbf_days, mtbf_defined, cost
		 FROM snapshot_metrics WHERE run_id = ? ORDER BY circuit_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SnapshotMetrics
	for rows.Next() {
		var m domain.SnapshotMetrics
		if err := rows.Scan(&m.CircuitID, &m.TicketTotal, &m.OutageHours, &m.Availability, &m.MTBFDays, &m.MTBFDefined, &m.Cost); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) rankings(ctx context.Context, runID string) (map[domain.Metric][]domain.RankEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metric, circuit_id, rank, value FROM snapshot_rankings
		 WHERE run_id = ? ORDER BY metric, rank, circuit_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Metric][]domain.RankEntry)
	for rows.Next() {
		var (
			metric string
			e      domain.RankEntry
		)
		if err := rows.Scan(&metric, &e.CircuitID, &e.Rank, &e.Value); err != nil {
			return nil, err
		}
		out[domain.Metric(metric)] = append(out[domain.Metric(metric)], e)
	}
	return out, rows.Err()
}

// RunSummary is one stored run, newest first in History.
type RunSummary struct {
	RunID     string
	Period    string
	CreatedAt time.Time
	Circuits  int
}

func (s *Store) History(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 12
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.run_id, s.period, s.created_at,
		        (SELECT COUNT(*) FROM snapshot_circuits c WHERE c.run_id = s.run_id)
		 FROM snapshots s ORDER BY s.period DESC, s.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r       RunSummary
			created string
		)
		if err := rows.Scan(&r.RunID, &r.Period, &created, &r.Circuits); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
