package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/ogn-tracker/internal/events"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

const insertEvent = `
	INSERT INTO flight_events (
		type, aircraft_id, address, paired_with, airfield, airfield_name,
		club_aircraft, club_airfield, aircraft_type, aircraft_model, registration,
		start_type, lat, lon, altitude, ground_speed, magnetic_track, flight_seconds, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SaveEvent stores one flight event
func (s *Storage) SaveEvent(ctx context.Context, ev events.FlightEvent) error {
	return s.SaveEvents(ctx, []events.FlightEvent{ev})
}

// SaveEvents stores a batch of flight events in a single transaction
func (s *Storage) SaveEvents(ctx context.Context, evs []events.FlightEvent) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range evs {
		var flightSeconds sql.NullInt64
		if ev.FlightSeconds != nil {
			flightSeconds = sql.NullInt64{Int64: *ev.FlightSeconds, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			string(ev.Type), ev.AircraftID, ev.Address, ev.PairedWith, ev.Airfield, ev.AirfieldName,
			boolToInt(ev.ClubAircraft), boolToInt(ev.ClubAirfield), string(ev.AircraftType), ev.Model, ev.Registration,
			ev.StartType, ev.Lat, ev.Lon, ev.AltitudeM, ev.GroundSpeedKmh, nullFloat(ev.MagneticTrack), flightSeconds,
			formatTime(ev.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("failed to insert event for %s: %w", ev.AircraftID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events batch: %w", err)
	}

	s.logger.Debug("Inserted flight events batch", logger.Int("count", len(evs)))
	return nil
}

// EventFilter narrows RecentEvents. Zero values match everything.
type EventFilter struct {
	AircraftID string
	Airfield   string
	Type       events.EventType
	Since      time.Time
	Limit      int
}

// RecentEvents returns stored events, newest first
func (s *Storage) RecentEvents(ctx context.Context, filter EventFilter) ([]events.FlightEvent, error) {
	var where []string
	var args []any
	if filter.AircraftID != "" {
		where = append(where, "aircraft_id = ?")
		args = append(args, filter.AircraftID)
	}
	if filter.Airfield != "" {
		where = append(where, "airfield = ?")
		args = append(args, filter.Airfield)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, formatTime(filter.Since))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT type, aircraft_id, address, paired_with, airfield, airfield_name,
			club_aircraft, club_airfield, aircraft_type, aircraft_model, registration,
			start_type, lat, lon, altitude, ground_speed, magnetic_track, flight_seconds, timestamp
		FROM flight_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	result := []events.FlightEvent{}
	for rows.Next() {
		var (
			ev                         events.FlightEvent
			evType, aircraftType       string
			address, pairedWith, name  sql.NullString
			model, registration, start sql.NullString
			clubAircraft, clubAirfield int
			magneticTrack              sql.NullFloat64
			flightSeconds              sql.NullInt64
			timestamp                  string
		)
		if err := rows.Scan(&evType, &ev.AircraftID, &address, &pairedWith, &ev.Airfield, &name,
			&clubAircraft, &clubAirfield, &aircraftType, &model, &registration,
			&start, &ev.Lat, &ev.Lon, &ev.AltitudeM, &ev.GroundSpeedKmh, &magneticTrack, &flightSeconds, &timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		ev.Type = events.EventType(evType)
		ev.AircraftType = tracker.AircraftType(aircraftType)
		ev.Address = address.String
		ev.PairedWith = pairedWith.String
		ev.AirfieldName = name.String
		ev.Model = model.String
		ev.Registration = registration.String
		ev.StartType = start.String
		ev.ClubAircraft = clubAircraft == 1
		ev.ClubAirfield = clubAirfield == 1
		ev.MagneticTrack = floatPtr(magneticTrack)
		if flightSeconds.Valid {
			secs := flightSeconds.Int64
			ev.FlightSeconds = &secs
		}
		if ev.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return result, nil
}
