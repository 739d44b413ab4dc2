// Package storage provides SQLite-backed history of advisory reports: runs,
// per-regime statistics, and recommendation lists.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/s07362022/leadlag/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no stored report matches.
var ErrNotFound = errors.New("report not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db         *sql.DB
	maxReports int
}

// ReportSummary is one row of the report history.
type ReportSummary struct {
	ID          string
	GeneratedAt time.Time
	Regime      models.Regime
	ChangePct   float64
	FlatAction  models.FlatAction
	Runs        int
	Skipped     int
}

// StatsRecord is one stored regime statistic with the run it came from.
type StatsRecord struct {
	ReportID    string
	GeneratedAt time.Time
	Run         string
	HorizonDays int
	models.RegimeStats
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/leadlag/data.db.
func New(maxReports int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "leadlag", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxReports: maxReports}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id              TEXT PRIMARY KEY,
			generated_at    INTEGER NOT NULL,
			signal_regime   TEXT,
			signal_change   REAL,
			flat_action     TEXT NOT NULL,
			payload         TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			report_id       TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			name            TEXT NOT NULL,
			universe        TEXT NOT NULL,
			lookback_days   INTEGER NOT NULL,
			horizon_days    INTEGER NOT NULL,
			start_at        INTEGER NOT NULL,
			end_at          INTEGER NOT NULL,
			instruments     INTEGER NOT NULL,
			skipped         INTEGER NOT NULL,
			PRIMARY KEY (report_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS regime_stats (
			report_id       TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			run_name        TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			instrument      TEXT NOT NULL,
			regime          TEXT NOT NULL,
			sample_count    INTEGER NOT NULL,
			wins            INTEGER NOT NULL,
			win_rate        REAL NOT NULL,
			mean_return     REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS recommendations (
			report_id       TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			source          TEXT NOT NULL,
			regime          TEXT NOT NULL,
			position        INTEGER NOT NULL,
			instrument      TEXT NOT NULL,
			mean_return     REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_generated_at ON reports(generated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_regime_stats_symbol ON regime_stats(symbol, regime)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport stores a report with its runs, statistics and recommendation
// lists, then drops the oldest reports beyond the retention cap.
func (s *Storage) SaveReport(r *models.Report) error {
	if r.ID == "" {
		return errors.New("invalid report: id must be set")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var regime sql.NullString
	var change sql.NullFloat64
	if r.Signal != nil {
		regime = sql.NullString{String: string(r.Signal.Regime), Valid: true}
		change = sql.NullFloat64{Float64: r.Signal.ChangePct, Valid: true}
	}

	if _, err := tx.Exec(`
		INSERT INTO reports (id, generated_at, signal_regime, signal_change, flat_action, payload)
		VALUES (?,?,?,?,?,?)`,
		r.ID, r.GeneratedAt.UnixNano(), regime, change, string(r.Flat.Action), string(payload),
	); err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	for _, run := range r.Runs {
		if _, err := tx.Exec(`
			INSERT INTO runs
				(report_id, name, universe, lookback_days, horizon_days, start_at, end_at, instruments, skipped)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			r.ID, run.Name, run.Universe, run.LookbackDays, run.HorizonDays,
			run.Start.UnixNano(), run.End.UnixNano(), len(run.Instruments), len(run.Skipped),
		); err != nil {
			return fmt.Errorf("failed to insert run %s: %w", run.Name, err)
		}

		for _, inst := range run.Instruments {
			for _, regime := range models.Regimes {
				st := inst.Stats(regime)
				if _, err := tx.Exec(`
					INSERT INTO regime_stats
						(report_id, run_name, symbol, instrument, regime, sample_count, wins, win_rate, mean_return)
					VALUES (?,?,?,?,?,?,?,?,?)`,
					r.ID, run.Name, inst.Symbol, inst.Label(), string(regime),
					st.SampleCount, st.Wins, st.WinRatePct, st.MeanReturnPct,
				); err != nil {
					return fmt.Errorf("failed to insert stats for %s: %w", inst.Symbol, err)
				}
			}
		}
	}

	insertSet := func(set models.RecommendationSet) error {
		for i, p := range set.Picks {
			if _, err := tx.Exec(`
				INSERT INTO recommendations (report_id, source, regime, position, instrument, mean_return)
				VALUES (?,?,?,?,?,?)`,
				r.ID, set.Source, string(set.Regime), i, p.Instrument, p.MeanReturnPct,
			); err != nil {
				return fmt.Errorf("failed to insert recommendation: %w", err)
			}
		}
		return nil
	}
	pairs := []models.RecommendationPair{r.Composite.Short, r.Composite.Long}
	for _, rec := range r.Recommendations {
		pairs = append(pairs, rec.RecommendationPair)
	}
	for _, p := range r.Intersections {
		pairs = append(pairs, p)
	}
	for _, p := range pairs {
		if err := insertSet(p.Crash); err != nil {
			return err
		}
		if err := insertSet(p.Surge); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM reports WHERE id NOT IN (
			SELECT id FROM reports ORDER BY generated_at DESC LIMIT ?
		)`, s.maxReports); err != nil {
		return fmt.Errorf("failed to enforce report cap: %w", err)
	}

	return tx.Commit()
}

// GetReport returns the stored report with the given id.
func (s *Storage) GetReport(id string) (*models.Report, error) {
	return s.loadReport(s.db.QueryRow(`SELECT payload FROM reports WHERE id = ?`, id))
}

// LatestReport returns the most recently generated report.
func (s *Storage) LatestReport() (*models.Report, error) {
	return s.loadReport(s.db.QueryRow(`SELECT payload FROM reports ORDER BY generated_at DESC LIMIT 1`))
}

func (s *Storage) loadReport(row *sql.Row) (*models.Report, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	var r models.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

// ListReports returns up to limit reports, newest first.
func (s *Storage) ListReports(limit int) ([]ReportSummary, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.generated_at, r.signal_regime, r.signal_change, r.flat_action,
			COUNT(u.name), COALESCE(SUM(u.skipped), 0)
		FROM reports r
		LEFT JOIN runs u ON u.report_id = r.id
		GROUP BY r.id
		ORDER BY r.generated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	summaries := []ReportSummary{}
	for rows.Next() {
		var (
			sum    ReportSummary
			at     int64
			regime sql.NullString
			change sql.NullFloat64
			action string
		)
		if err := rows.Scan(&sum.ID, &at, &regime, &change, &action, &sum.Runs, &sum.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		sum.GeneratedAt = time.Unix(0, at)
		sum.Regime = models.Regime(regime.String)
		sum.ChangePct = change.Float64
		sum.FlatAction = models.FlatAction(action)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// InstrumentHistory returns the stored statistics of symbol, newest first.
func (s *Storage) InstrumentHistory(symbol string, limit int) ([]StatsRecord, error) {
	rows, err := s.db.Query(`
		SELECT st.report_id, r.generated_at, st.run_name, u.horizon_days, st.instrument, st.regime,
			st.sample_count, st.wins, st.win_rate, st.mean_return
		FROM regime_stats st
		JOIN reports r ON r.id = st.report_id
		JOIN runs u ON u.report_id = st.report_id AND u.name = st.run_name
		WHERE st.symbol = ?
		ORDER BY r.generated_at DESC, st.run_name, st.regime
		LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	records := []StatsRecord{}
	for rows.Next() {
		var (
			rec    StatsRecord
			at     int64
			regime string
		)
		if err := rows.Scan(&rec.ReportID, &at, &rec.Run, &rec.HorizonDays, &rec.Instrument, &regime,
			&rec.SampleCount, &rec.Wins, &rec.WinRatePct, &rec.MeanReturnPct); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		rec.GeneratedAt = time.Unix(0, at)
		rec.Regime = models.Regime(regime)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Recommendations returns the stored lists of a report keyed by source and
// regime, in their original order.
func (s *Storage) Recommendations(reportID string) (map[string][]models.Pick, error) {
	rows, err := s.db.Query(`
		SELECT source, regime, instrument, mean_return
		FROM recommendations
		WHERE report_id = ?
		ORDER BY source, regime, position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Pick)
	for rows.Next() {
		var source, regime string
		var p models.Pick
		if err := rows.Scan(&source, &regime, &p.Instrument, &p.MeanReturnPct); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		key := source + "/" + regime
		out[key] = append(out[key], p)
	}
	return out, rows.Err()
}
