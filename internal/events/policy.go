package events

import (
	"fmt"

	"github.com/yegors/ogn-tracker/internal/tracker"
)

// Scope names accepted by NewScopePolicy
const (
	ScopeClub = "club"
	ScopeAll  = "all"
)

// ScopePolicy decides which detected events and positions are persisted.
// Detection itself always runs for every aircraft.
type ScopePolicy interface {
	PersistEvent(ev FlightEvent) bool
	PersistPosition(st tracker.AircraftState) bool
}

// NewScopePolicy returns the policy for a configured scope name
func NewScopePolicy(scope string, minPositionSpeedKmh float64) (ScopePolicy, error) {
	switch scope {
	case ScopeClub, "":
		return ClubScope{MinPositionSpeedKmh: minPositionSpeedKmh}, nil
	case ScopeAll:
		return AllScope{MinPositionSpeedKmh: minPositionSpeedKmh}, nil
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}
}

// ClubScope keeps club aircraft at club airfields
type ClubScope struct {
	MinPositionSpeedKmh float64
}

// PersistEvent requires both a club aircraft and a club airfield
func (p ClubScope) PersistEvent(ev FlightEvent) bool {
	return ev.ClubAircraft && ev.ClubAirfield
}

// PersistPosition keeps moving club aircraft
func (p ClubScope) PersistPosition(st tracker.AircraftState) bool {
	return st.Club && st.GroundSpeedKmh > p.MinPositionSpeedKmh
}

// AllScope keeps everything
type AllScope struct {
	MinPositionSpeedKmh float64
}

func (AllScope) PersistEvent(FlightEvent) bool { return true }

func (p AllScope) PersistPosition(st tracker.AircraftState) bool {
	return st.GroundSpeedKmh > p.MinPositionSpeedKmh
}
