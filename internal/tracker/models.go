package tracker

import (
	"time"

	"github.com/yegors/ogn-tracker/internal/spatial"
)

// AircraftType is the launch-relevant classification of an aircraft
type AircraftType string

const (
	TypeUnknown    AircraftType = "unknown"
	TypeGlider     AircraftType = "glider"
	TypeTowPlane   AircraftType = "tow_plane" // powered aircraft / drop plane, candidates for aerotow
	TypeHelicopter AircraftType = "helicopter"
	TypeParaglider AircraftType = "paraglider" // hang glider, paraglider, skydiver
	TypeJet        AircraftType = "jet"
	TypeBalloon    AircraftType = "balloon"
	TypeUAV        AircraftType = "uav"
	TypeStatic     AircraftType = "static"
)

// FlightPhase is the detector-owned ground/airborne tag
type FlightPhase string

const (
	PhaseUnknown  FlightPhase = ""
	PhaseGround   FlightPhase = "ground"
	PhaseAirborne FlightPhase = "airborne"
)

// Beacon is one normalized position report
type Beacon struct {
	ID             string       `json:"id"`      // callsign as assigned by the network, e.g. FLRDDE626
	Address        string       `json:"address"` // 6 hex digit device address
	AddressType    string       `json:"address_type,omitempty"`
	Lat            float64      `json:"latitude"`
	Lon            float64      `json:"longitude"`
	AltitudeM      float64      `json:"altitude"`
	GroundSpeedKmh float64      `json:"ground_speed"`
	ClimbRateMs    *float64     `json:"climb_rate,omitempty"`
	Track          *float64     `json:"track,omitempty"`
	TurnRate       *float64     `json:"turn_rate,omitempty"`
	AircraftType   AircraftType `json:"aircraft_type"`
	Symbol         string       `json:"symbol,omitempty"`
	Receiver       string       `json:"receiver,omitempty"`
	Region         string       `json:"region,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Point returns the beacon position
func (b Beacon) Point() spatial.Point {
	return spatial.Point{Lat: b.Lat, Lon: b.Lon}
}

// Position is one entry of an aircraft's recent history
type Position struct {
	Lat            float64   `json:"latitude"`
	Lon            float64   `json:"longitude"`
	AltitudeM      float64   `json:"altitude"`
	GroundSpeedKmh float64   `json:"ground_speed"`
	Track          *float64  `json:"track,omitempty"`
	ClimbRateMs    *float64  `json:"climb_rate,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PhaseState holds the detector's per-aircraft bookkeeping
type PhaseState struct {
	Phase          FlightPhase `json:"flight_phase"`
	BeaconsInPhase int         `json:"beacons_in_phase"`
	PhaseSince     time.Time   `json:"phase_since,omitempty"`
	TakeoffAt      *time.Time  `json:"takeoff_time,omitempty"`
	StartType      string      `json:"start_type,omitempty"`
	LastEventAt    *time.Time  `json:"-"`
}

// Variometer is the smoothed climb rate of an aircraft
type Variometer struct {
	Avg30s    *float64 `json:"climb_rate_30s_avg,omitempty"`
	Avg60s    *float64 `json:"climb_rate_60s_avg,omitempty"`
	Points30s int      `json:"data_points_30s"`
	Points60s int      `json:"data_points_60s"`
}

// Device is the reference metadata attached to an aircraft
type Device struct {
	Model        string `json:"aircraft_model,omitempty"`
	Registration string `json:"registration,omitempty"`
	CN           string `json:"competition_number,omitempty"`
}

// AircraftState is the current view of one aircraft
type AircraftState struct {
	Beacon
	Device
	PhaseState
	Variometer
	LastSeen time.Time `json:"last_seen"`
	Club     bool      `json:"club"`
}

// PositionOf returns the history entry for a beacon
func PositionOf(b Beacon) Position {
	return Position{
		Lat:            b.Lat,
		Lon:            b.Lon,
		AltitudeM:      b.AltitudeM,
		GroundSpeedKmh: b.GroundSpeedKmh,
		Track:          b.Track,
		ClimbRateMs:    b.ClimbRateMs,
		Timestamp:      b.Timestamp,
	}
}
