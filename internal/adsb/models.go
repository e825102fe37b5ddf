package adsb

import (
	"time"
)

// Message types published to subscribers
const (
	MessageUpdate  = "adsb_aircraft_update"
	MessageRemoved = "adsb_aircraft_removed"
)

// Aircraft is a normalized ADS-B target. All fields are values so two
// observations can be compared with ==.
type Aircraft struct {
	ID            string    `json:"aircraft_id"` // adsb_<HEX>
	Hex           string    `json:"hex"`
	Flight        string    `json:"flight,omitempty"`
	Registration  string    `json:"registration,omitempty"`
	AircraftType  string    `json:"aircraft_type,omitempty"`
	Lat           float64   `json:"latitude"`
	Lon           float64   `json:"longitude"`
	AltitudeFt    float64   `json:"altitude"` // barometric
	OnGround      bool      `json:"on_ground"`
	GroundSpeedKt float64   `json:"ground_speed"`
	Track         float64   `json:"track"`
	VerticalRate  float64   `json:"vertical_rate"` // ft/min
	Squawk        string    `json:"squawk,omitempty"`
	Emergency     string    `json:"emergency,omitempty"`
	Category      string    `json:"category,omitempty"`
	Military      bool      `json:"mil,omitempty"`
	Region        string    `json:"region,omitempty"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

// sameAs reports whether two observations differ only in their timestamp
func (a Aircraft) sameAs(b Aircraft) bool {
	a.Timestamp = time.Time{}
	b.Timestamp = time.Time{}
	return a == b
}

// Removal is the payload of an adsb_aircraft_removed message
type Removal struct {
	AircraftID string `json:"aircraft_id"`
	Hex        string `json:"hex"`
}
