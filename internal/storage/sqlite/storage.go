package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yegors/ogn-tracker/pkg/logger"
	_ "modernc.org/sqlite"
)

// Storage is the SQLite implementation of the persistence collaborator:
// flight events, club positions, club reference data and the device database
type Storage struct {
	db     *sql.DB
	logger *logger.Logger
}

// New opens (creating if needed) the database at dbPath
func New(dbPath string, log *logger.Logger) (*Storage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

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
		"PRAGMA cache_size=10000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetDB returns the database connection
func (s *Storage) GetDB() *sql.DB {
	return s.db
}

var schema = []struct {
	name string
	stmt string
}{
	{"flight_events table", `
		CREATE TABLE IF NOT EXISTS flight_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			aircraft_id TEXT NOT NULL,
			address TEXT,
			paired_with TEXT,
			airfield TEXT NOT NULL,
			airfield_name TEXT,
			club_aircraft INTEGER DEFAULT 0,
			club_airfield INTEGER DEFAULT 0,
			aircraft_type TEXT,
			aircraft_model TEXT,
			registration TEXT,
			start_type TEXT,
			lat REAL,
			lon REAL,
			altitude REAL,
			ground_speed REAL,
			magnetic_track REAL,
			flight_seconds INTEGER,
			timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`},
	{"flight_events index", `CREATE INDEX IF NOT EXISTS idx_flight_events_timestamp ON flight_events(timestamp)`},
	{"flight_events aircraft index", `CREATE INDEX IF NOT EXISTS idx_flight_events_aircraft ON flight_events(aircraft_id, timestamp)`},
	{"aircraft_positions table", `
		CREATE TABLE IF NOT EXISTS aircraft_positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aircraft_id TEXT NOT NULL,
			aircraft_type TEXT,
			registration TEXT,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			altitude REAL,
			ground_speed REAL,
			track REAL,
			climb_rate REAL,
			flight_phase TEXT,
			timestamp TIMESTAMP NOT NULL,
			UNIQUE(aircraft_id, timestamp)
		)`},
	{"aircraft_positions index", `CREATE INDEX IF NOT EXISTS idx_aircraft_positions_aircraft ON aircraft_positions(aircraft_id, timestamp)`},
	{"club_planes table", `
		CREATE TABLE IF NOT EXISTS club_planes (
			device_id TEXT PRIMARY KEY,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`},
	{"club_airfields table", `
		CREATE TABLE IF NOT EXISTS club_airfields (
			icao TEXT PRIMARY KEY,
			name TEXT,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			radius_km REAL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`},
	{"devices table", `
		CREATE TABLE IF NOT EXISTS devices (
			device_id TEXT PRIMARY KEY,
			device_type TEXT,
			aircraft_model TEXT,
			registration TEXT,
			competition_number TEXT,
			tracked INTEGER DEFAULT 1,
			identified INTEGER DEFAULT 1,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`},
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	for _, s := range schema {
		if _, err := db.Exec(s.stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.name, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout is a fixed-width RFC3339 variant so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime reads a timestamp column back. The driver hands TIMESTAMP columns
// to database/sql as time.Time, which arrive here as RFC3339Nano text with
// trailing zero fractions dropped, so both forms are accepted.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t.UTC(), nil
	}
	t, err = time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
