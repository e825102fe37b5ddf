package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yegors/ogn-tracker/internal/reference"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// QueryClubPlanes returns the device ids of every club aircraft
func (s *Storage) QueryClubPlanes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device_id FROM club_planes ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query club planes: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan club plane row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating club plane rows: %w", err)
	}
	return ids, nil
}

// ReplaceClubPlanes replaces the club fleet. Ids are normalized to bare
// device addresses; duplicates collapse.
func (s *Storage) ReplaceClubPlanes(ctx context.Context, ids []string) error {
	return s.replace(ctx, "club_planes", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO club_planes (device_id) VALUES (?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare club plane insert statement: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			id = reference.NormalizeID(id)
			if id == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("failed to insert club plane %s: %w", id, err)
			}
		}
		return nil
	}, len(ids))
}

// QueryClubAirfields returns the club airfields
func (s *Storage) QueryClubAirfields(ctx context.Context) ([]reference.Airfield, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT icao, name, lat, lon, radius_km FROM club_airfields ORDER BY icao`)
	if err != nil {
		return nil, fmt.Errorf("failed to query club airfields: %w", err)
	}
	defer rows.Close()

	airfields := []reference.Airfield{}
	for rows.Next() {
		var (
			af     reference.Airfield
			name   sql.NullString
			radius sql.NullFloat64
		)
		if err := rows.Scan(&af.ID, &name, &af.Lat, &af.Lon, &radius); err != nil {
			return nil, fmt.Errorf("failed to scan club airfield row: %w", err)
		}
		af.Name = name.String
		af.RadiusKm = radius.Float64
		af.Club = true
		airfields = append(airfields, af)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating club airfield rows: %w", err)
	}
	return airfields, nil
}

// ReplaceClubAirfields replaces the club airfields
func (s *Storage) ReplaceClubAirfields(ctx context.Context, airfields []reference.Airfield) error {
	for _, af := range airfields {
		if strings.TrimSpace(af.ID) == "" {
			return fmt.Errorf("airfield without icao: %q", af.Name)
		}
		if af.RadiusKm < 0 {
			return fmt.Errorf("airfield %s has negative radius", af.ID)
		}
	}

	return s.replace(ctx, "club_airfields", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO club_airfields (icao, name, lat, lon, radius_km) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare club airfield insert statement: %w", err)
		}
		defer stmt.Close()

		for _, af := range airfields {
			if _, err := stmt.ExecContext(ctx, strings.ToUpper(strings.TrimSpace(af.ID)), af.Name, af.Lat, af.Lon, af.RadiusKm); err != nil {
				return fmt.Errorf("failed to insert club airfield %s: %w", af.ID, err)
			}
		}
		return nil
	}, len(airfields))
}

// replace clears table and refills it with fill inside one transaction
func (s *Storage) replace(ctx context.Context, table string, fill func(tx *sql.Tx) error, count int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if err := fill(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}

	s.logger.Info("Replaced reference table",
		logger.String("table", table),
		logger.Int("count", count))
	return nil
}
