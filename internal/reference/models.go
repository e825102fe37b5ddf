package reference

import (
	"strings"

	"github.com/yegors/ogn-tracker/internal/spatial"
)

// UnknownAirfield is attributed to events that happen away from every airfield
const UnknownAirfield = "UNKNOWN"

// DeviceInfo is one row of the OGN device database
type DeviceInfo struct {
	DeviceType   string `json:"device_type"`
	DeviceID     string `json:"device_id"`
	Model        string `json:"aircraft_model"`
	Registration string `json:"registration"`
	CN           string `json:"competition_number"`
	Tracked      bool   `json:"tracked"`
	Identified   bool   `json:"identified"`
}

// Airfield is a registration area events can be attributed to
type Airfield struct {
	ID       string  `json:"icao"`
	Name     string  `json:"name"`
	Lat      float64 `json:"latitude_deg"`
	Lon      float64 `json:"longitude_deg"`
	RadiusKm float64 `json:"radius_km,omitempty"`
	Club     bool    `json:"club"`
}

// Point returns the airfield center
func (a Airfield) Point() spatial.Point {
	return spatial.Point{Lat: a.Lat, Lon: a.Lon}
}

// NormalizeID reduces a FLARM/OGN identifier to its bare uppercase device
// address, e.g. "flrdde626" becomes "DDE626"
func NormalizeID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	for _, prefix := range []string{"FLR", "ICA", "OGN"} {
		if rest, ok := strings.CutPrefix(id, prefix); ok && len(rest) == 6 {
			return rest
		}
	}
	return id
}
