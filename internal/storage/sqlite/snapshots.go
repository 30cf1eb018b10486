package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/olneyjr/flightdeck/internal/opensky"
	"github.com/olneyjr/flightdeck/internal/pipeline"
	"github.com/olneyjr/flightdeck/pkg/logger"
	_ "modernc.org/sqlite"
)

// SnapshotStorage persists raw state vector pulls and per-cycle metrics
// summaries in SQLite. Each pull is keyed by region and fetch timestamp;
// the pipeline never reads snapshots back.
type SnapshotStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// StoredSummary is one persisted metrics summary row
type StoredSummary struct {
	Region    string                  `json:"region"`
	FetchedAt time.Time               `json:"fetched_at"`
	Summary   pipeline.MetricsSummary `json:"summary"`
}

// NewSnapshotStorage opens (or creates) the database at dbPath and ensures
// the schema exists
func NewSnapshotStorage(dbPath string, log *logger.Logger) (*SnapshotStorage, error) {
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

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SnapshotStorage{
		db:     db,
		logger: storageLogger,
	}, nil
}

// Close closes the database connection
func (s *SnapshotStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS state_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			region TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL,
			icao24 TEXT,
			callsign TEXT,
			origin_country TEXT,
			time_position INTEGER,
			last_contact INTEGER,
			longitude REAL,
			latitude REAL,
			baro_altitude REAL,
			on_ground INTEGER DEFAULT 0,
			velocity REAL,
			true_track REAL,
			vertical_rate REAL,
			geo_altitude REAL,
			squawk TEXT,
			spi INTEGER DEFAULT 0,
			position_source INTEGER,
			category INTEGER DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create state_snapshots table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_state_snapshots_region_time
		ON state_snapshots (region, fetched_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create state_snapshots index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metrics_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			region TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL,
			summary TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create metrics_summaries table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_metrics_summaries_region_time
		ON metrics_summaries (region, fetched_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create metrics_summaries index: %w", err)
	}

	return nil
}

// SaveStates writes one raw pull as a batch of rows in a single
// transaction
func (s *SnapshotStorage) SaveStates(region string, fetchedAt time.Time, states []opensky.StateVector) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO state_snapshots (
			region, fetched_at, icao24, callsign, origin_country,
			time_position, last_contact, longitude, latitude, baro_altitude,
			on_ground, velocity, true_track, vertical_rate, geo_altitude,
			squawk, spi, position_source, category
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sv := range states {
		_, err := stmt.Exec(
			region, fetchedAt.UTC(), sv.ICAO24, sv.Callsign, sv.OriginCountry,
			nullableInt64(sv.TimePosition), sv.LastContact,
			nullableFloat(sv.Longitude), nullableFloat(sv.Latitude), nullableFloat(sv.BaroAltitude),
			boolToInt(sv.OnGround), nullableFloat(sv.Velocity), nullableFloat(sv.TrueTrack),
			nullableFloat(sv.VerticalRate), nullableFloat(sv.GeoAltitude),
			sv.Squawk, boolToInt(sv.SPI), sv.PositionSource, sv.Category,
		)
		if err != nil {
			return fmt.Errorf("failed to insert state row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Debug("Saved state snapshot",
		logger.String("region", region),
		logger.Int("rows", len(states)))

	return nil
}

// SaveSummary persists one metrics summary as JSON
func (s *SnapshotStorage) SaveSummary(region string, fetchedAt time.Time, summary pipeline.MetricsSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO metrics_summaries (region, fetched_at, summary)
		VALUES (?, ?, ?)
	`, region, fetchedAt.UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}

	return nil
}

// RecentSummaries returns the most recent stored summaries for a region,
// newest first
func (s *SnapshotStorage) RecentSummaries(region string, limit int) ([]StoredSummary, error) {
	if limit <= 0 {
		limit = 24
	}

	rows, err := s.db.Query(`
		SELECT region, fetched_at, summary
		FROM metrics_summaries
		WHERE region = ?
		ORDER BY fetched_at DESC
		LIMIT ?
	`, region, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]StoredSummary, 0, limit)
	for rows.Next() {
		var stored StoredSummary
		var payload string
		if err := rows.Scan(&stored.Region, &stored.FetchedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &stored.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stored summary: %w", err)
		}
		summaries = append(summaries, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}

	return summaries, nil
}

// CountStates returns the number of snapshot rows stored for a region
func (s *SnapshotStorage) CountStates(region string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM state_snapshots WHERE region = ?
	`, region).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshot rows: %w", err)
	}
	return count, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
