package adsb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexibleField can hold either a string or a number
type FlexibleField struct {
	value any
}

// UnmarshalJSON implements custom JSON unmarshaling for FlexibleField
func (f *FlexibleField) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		f.value = nil
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.value = num
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		f.value = str
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		f.value = b
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleField", data)
}

// Valid reports whether the field was present with a usable value
func (f *FlexibleField) Valid() bool {
	switch v := f.value.(type) {
	case float64, bool:
		return true
	case string:
		if v == "ground" {
			return true
		}
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	default:
		return false
	}
}

// IsGround reports the "ground" marker used in place of an altitude
func (f *FlexibleField) IsGround() bool {
	s, ok := f.value.(string)
	return ok && s == "ground"
}

// Float64 returns the value as a float64
func (f *FlexibleField) Float64() float64 {
	switch v := f.value.(type) {
	case float64:
		return v
	case string:
		if v == "" || v == "ground" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// String returns the value as a string
func (f *FlexibleField) String() string {
	switch v := f.value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Target is one aircraft of a point response. Numeric fields use
// FlexibleField since the API mixes numbers, numeric strings and "ground".
type Target struct {
	Hex          string        `json:"hex"`
	Type         string        `json:"type"`
	Flight       string        `json:"flight"`
	Registration string        `json:"r"`
	AircraftType string        `json:"t"`
	AltBaro      FlexibleField `json:"alt_baro"`
	AltGeom      FlexibleField `json:"alt_geom"`
	GS           FlexibleField `json:"gs"`
	Track        FlexibleField `json:"track"`
	BaroRate     FlexibleField `json:"baro_rate"`
	GeomRate     FlexibleField `json:"geom_rate"`
	Squawk       string        `json:"squawk"`
	Emergency    string        `json:"emergency"`
	Category     string        `json:"category"`
	Lat          FlexibleField `json:"lat"`
	Lon          FlexibleField `json:"lon"`
	Military     bool          `json:"mil"`
	Seen         FlexibleField `json:"seen"`
	SeenPos      FlexibleField `json:"seen_pos"`
	RSSI         FlexibleField `json:"rssi"`
}

// PointResponse is the object form of a point response
type PointResponse struct {
	Now   float64  `json:"now,omitempty"`
	Total int      `json:"total,omitempty"`
	AC    []Target `json:"ac"`
}

// Normalize converts a target to an Aircraft. It reports false for targets
// without an address or a position.
func (t *Target) Normalize(now time.Time) (Aircraft, bool) {
	hex := strings.ToUpper(strings.TrimSpace(t.Hex))
	if hex == "" || !t.Lat.Valid() || !t.Lon.Valid() {
		return Aircraft{}, false
	}

	rate := t.BaroRate.Float64()
	if !t.BaroRate.Valid() {
		rate = t.GeomRate.Float64()
	}

	return Aircraft{
		ID:            "adsb_" + hex,
		Hex:           hex,
		Flight:        strings.TrimSpace(t.Flight),
		Registration:  t.Registration,
		AircraftType:  t.AircraftType,
		Lat:           t.Lat.Float64(),
		Lon:           t.Lon.Float64(),
		AltitudeFt:    t.AltBaro.Float64(),
		OnGround:      t.AltBaro.IsGround(),
		GroundSpeedKt: t.GS.Float64(),
		Track:         t.Track.Float64(),
		VerticalRate:  rate,
		Squawk:        t.Squawk,
		Emergency:     t.Emergency,
		Category:      t.Category,
		Military:      t.Military,
		Source:        "adsb",
		Timestamp:     now,
	}, true
}
