package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// SavePosition stores the position of one aircraft snapshot
func (s *Storage) SavePosition(ctx context.Context, st tracker.AircraftState) error {
	return s.SavePositions(ctx, []tracker.AircraftState{st})
}

// SavePositions stores a batch of snapshots. Repeated timestamps for the same
// aircraft are ignored.
func (s *Storage) SavePositions(ctx context.Context, states []tracker.AircraftState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO aircraft_positions (
			aircraft_id, aircraft_type, registration, lat, lon, altitude,
			ground_speed, track, climb_rate, flight_phase, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare position insert statement: %w", err)
	}
	defer stmt.Close()

	for _, st := range states {
		_, err := stmt.ExecContext(ctx,
			st.ID, string(st.AircraftType), st.Registration, st.Lat, st.Lon, st.AltitudeM,
			st.GroundSpeedKmh, nullFloat(st.Track), nullFloat(st.ClimbRateMs), string(st.Phase),
			formatTime(st.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("failed to insert position for %s: %w", st.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit positions batch: %w", err)
	}

	s.logger.Debug("Inserted positions batch", logger.Int("count", len(states)))
	return nil
}

// Track returns the latest limit stored positions of an aircraft, oldest first
func (s *Storage) Track(ctx context.Context, aircraftID string, limit int) ([]tracker.Position, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lat, lon, altitude, ground_speed, track, climb_rate, timestamp
		FROM (
			SELECT * FROM aircraft_positions
			WHERE aircraft_id = ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC`, aircraftID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	defer rows.Close()

	positions := []tracker.Position{}
	for rows.Next() {
		var (
			p                tracker.Position
			altitude, speed  sql.NullFloat64
			track, climbRate sql.NullFloat64
			timestamp        string
		)
		if err := rows.Scan(&p.Lat, &p.Lon, &altitude, &speed, &track, &climbRate, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		p.AltitudeM = altitude.Float64
		p.GroundSpeedKmh = speed.Float64
		p.Track = floatPtr(track)
		p.ClimbRateMs = floatPtr(climbRate)
		if p.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}
