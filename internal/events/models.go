package events

import (
	"time"

	"github.com/yegors/ogn-tracker/internal/tracker"
)

// EventType is the kind of a detected flight event
type EventType string

const (
	EventTakeoff    EventType = "takeoff"
	EventLanding    EventType = "landing"
	EventTowTakeoff EventType = "tow_takeoff"
)

// Launch methods recorded on takeoff and landing events
const (
	StartTow      = "tow"
	StartTowPlane = "tow_plane"
	StartWinch    = "winch"
)

// Hub message types published by the detector
const (
	MessageFlightEvent = "flight_event"
	MessageWinchLaunch = "winch_launch"
)

// FlightEvent is one detected takeoff or landing. It is never modified after
// it has been emitted.
type FlightEvent struct {
	Type           EventType            `json:"type"`
	AircraftID     string               `json:"aircraft_id"`
	Address        string               `json:"address,omitempty"`
	PairedWith     string               `json:"paired_with,omitempty"`
	Airfield       string               `json:"airfield"`
	AirfieldName   string               `json:"airfield_name,omitempty"`
	ClubAircraft   bool                 `json:"club_aircraft"`
	ClubAirfield   bool                 `json:"club_airfield"`
	AircraftType   tracker.AircraftType `json:"aircraft_type"`
	Model          string               `json:"aircraft_model,omitempty"`
	Registration   string               `json:"registration,omitempty"`
	StartType      string               `json:"start_type,omitempty"`
	Lat            float64              `json:"latitude"`
	Lon            float64              `json:"longitude"`
	AltitudeM      float64              `json:"altitude"`
	GroundSpeedKmh float64              `json:"ground_speed"`
	MagneticTrack  *float64             `json:"magnetic_track,omitempty"`
	FlightSeconds  *int64               `json:"flight_duration_seconds,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

// WinchLaunch summarizes the climb of a winch launch after the cable release
type WinchLaunch struct {
	AircraftID      string    `json:"aircraft_id"`
	Airfield        string    `json:"airfield"`
	StartAltitudeM  float64   `json:"start_altitude"`
	ReleaseAltitude float64   `json:"release_altitude"`
	GainM           float64   `json:"altitude_gain"`
	DurationSeconds float64   `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	ReleasedAt      time.Time `json:"released_at"`
}
