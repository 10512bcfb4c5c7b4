package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/skytrail/internal/flights"
	"github.com/yegors/skytrail/pkg/logger"
	_ "modernc.org/sqlite"
)

// PollLogStorage is a SQLite-based log of upstream roster fetches
type PollLogStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPollLogStorage opens (or creates) the poll log database at dbPath
func NewPollLogStorage(dbPath string, log *logger.Logger) (*PollLogStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &PollLogStorage{
		db:     db,
		logger: storageLogger,
	}, nil
}

// Close closes the database connection
func (s *PollLogStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS poll_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			polled_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			aircraft_count INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create poll_log table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_poll_log_polled_at ON poll_log(polled_at)`)
	if err != nil {
		return fmt.Errorf("failed to create polled_at index: %w", err)
	}

	return nil
}

// RecordPoll stores one poll outcome and returns its row id
func (s *PollLogStorage) RecordPoll(rec flights.PollRecord) (int64, error) {
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO poll_log (polled_at, status, aircraft_count, duration_ms, error)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixMilli(),
		rec.Status,
		rec.AircraftCount,
		rec.Duration.Milliseconds(),
		errText,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert poll record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	s.logger.Debug("Recorded poll",
		logger.Int64("id", id),
		logger.String("status", rec.Status))

	return id, nil
}

// RecentPolls returns up to limit poll records, newest first
func (s *PollLogStorage) RecentPolls(limit int) ([]flights.PollRecord, error) {
	if limit <= 0 {
		return []flights.PollRecord{}, nil
	}

	rows, err := s.db.Query(
		`SELECT id, polled_at, status, aircraft_count, duration_ms, error
		FROM poll_log
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query poll log: %w", err)
	}
	defer rows.Close()

	records := make([]flights.PollRecord, 0, limit)
	for rows.Next() {
		var (
			rec        flights.PollRecord
			polledAt   int64
			durationMS int64
			errText    sql.NullString
		)
		if err := rows.Scan(&rec.ID, &polledAt, &rec.Status, &rec.AircraftCount, &durationMS, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan poll record: %w", err)
		}

		rec.Timestamp = time.UnixMilli(polledAt).UTC()
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Error = errText.String

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating poll log rows: %w", err)
	}

	return records, nil
}
