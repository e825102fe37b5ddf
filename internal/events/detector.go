package events

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/ogn-tracker/internal/reference"
	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// Config holds the detection thresholds
type Config struct {
	TakeoffSpeedKmh  float64
	TakeoffAltitudeM float64
	LandingSpeedKmh  float64
	LandingAltitudeM float64
	TowWindow        time.Duration
	TowDistanceM     float64
	TowGrace         time.Duration // wait past TowWindow, on the receive clock, before giving up on a tow plane
	Cooldown         time.Duration
	TakeoffRetention time.Duration
	WinchClimbRateMs float64
	WinchTimeout     time.Duration
	WinchMinGainM    float64
}

// StateStore is the part of the aircraft store the detector writes its
// phase bookkeeping to
type StateStore interface {
	Mutate(id string, fn func(*tracker.AircraftState)) (tracker.AircraftState, bool)
}

// AirfieldLocator resolves the airfield an event happened at
type AirfieldLocator interface {
	Nearest(p spatial.Point) (reference.Airfield, float64, bool)
}

// ClubChecker reports club ownership of an aircraft
type ClubChecker interface {
	Contains(id string) bool
}

// EventSink persists events
type EventSink interface {
	SaveEvent(ctx context.Context, ev FlightEvent) error
}

// Publisher pushes messages to connected subscribers
type Publisher interface {
	Broadcast(msgType string, data any)
}

// Notifier forwards persisted events to an external system
type Notifier interface {
	Notify(ev FlightEvent)
}

// Deps are the collaborators of a Detector. Everything except Airfields may
// be nil.
type Deps struct {
	Airfields  AirfieldLocator
	ClubPlanes ClubChecker
	Policy     ScopePolicy
	Sink       EventSink
	Publisher  Publisher
	Notifier   Notifier
}

type transition int

const (
	noTransition transition = iota
	takeoffTransition
	landingTransition
)

type takeoffRecord struct {
	state    tracker.AircraftState
	at       time.Time // beacon time, used for pairing
	received time.Time // detector clock, used for expiry
	used     bool
}

type winchTrack struct {
	airfield  string
	startAlt  float64
	maxAlt    float64
	startedAt time.Time
	maxAt     time.Time
	received  time.Time
	climbing  bool
}

type output struct {
	events  []FlightEvent
	winches []WinchLaunch
}

// Detector runs the ground/airborne state machine of every aircraft and
// correlates glider takeoffs with tow plane takeoffs
type Detector struct {
	cfg    Config
	store  StateStore
	deps   Deps
	logger *logger.Logger
	clock  func() time.Time

	mu      sync.Mutex
	pending map[string]*takeoffRecord // glider takeoffs waiting for a tow plane
	tows    []*takeoffRecord          // recent tow plane takeoffs
	winches map[string]*winchTrack

	emitted   atomic.Int64
	persisted atomic.Int64
}

// NewDetector creates a new detector
func NewDetector(cfg Config, store StateStore, deps Deps, log *logger.Logger) *Detector {
	if deps.Policy == nil {
		deps.Policy = AllScope{}
	}
	if cfg.TowGrace < 0 {
		cfg.TowGrace = 0
	}
	if cfg.TakeoffRetention < cfg.TowWindow {
		cfg.TakeoffRetention = cfg.TowWindow
	}
	return &Detector{
		cfg:     cfg,
		store:   store,
		deps:    deps,
		logger:  log.Named("detector"),
		clock:   time.Now,
		pending: make(map[string]*takeoffRecord),
		winches: make(map[string]*winchTrack),
	}
}

// Process runs detection for the aircraft after a beacon was applied to the
// store and returns the events it emitted
func (d *Detector) Process(ctx context.Context, id string) []FlightEvent {
	d.mu.Lock()
	var out output
	if d.processLocked(id, &out) {
		d.flushLocked(d.clock(), &out)
	}
	d.mu.Unlock()

	d.emit(ctx, out)
	return out.events
}

func (d *Detector) processLocked(id string, out *output) bool {
	var (
		tr        transition
		startType string
		takeoffAt *time.Time
	)

	snap, ok := d.store.Mutate(id, func(s *tracker.AircraftState) {
		tr, startType, takeoffAt = d.advance(s)
	})
	if !ok {
		return false
	}

	switch tr {
	case takeoffTransition:
		d.takeoffLocked(snap, out)
	case landingTransition:
		// A glider still waiting for a tow plane is resolved before it lands
		if rec, ok := d.pending[id]; ok {
			d.resolveWinchLocked(rec, out, false)
			startType = StartWinch
		}
		delete(d.winches, id)

		ev := d.buildEvent(EventLanding, snap, snap.Timestamp, startType, "")
		if takeoffAt != nil {
			secs := int64(snap.Timestamp.Sub(*takeoffAt).Seconds())
			ev.FlightSeconds = &secs
		}
		out.events = append(out.events, ev)
	default:
		d.trackWinchLocked(snap, out)
	}
	return true
}

// advance applies the hysteresis state machine to one aircraft. It runs under
// the aircraft's entry lock.
func (d *Detector) advance(s *tracker.AircraftState) (transition, string, *time.Time) {
	ts := s.Timestamp
	airborne := s.GroundSpeedKmh > d.cfg.TakeoffSpeedKmh && s.AltitudeM > d.cfg.TakeoffAltitudeM
	ground := s.GroundSpeedKmh < d.cfg.LandingSpeedKmh && s.AltitudeM < d.cfg.LandingAltitudeM

	var tr transition
	switch s.Phase {
	case tracker.PhaseUnknown:
		// First sighting only establishes the phase
		s.Phase = tracker.PhaseGround
		if airborne {
			s.Phase = tracker.PhaseAirborne
		}
		s.PhaseSince = ts
		s.BeaconsInPhase = 1
		return noTransition, "", nil
	case tracker.PhaseGround:
		if airborne {
			tr = takeoffTransition
		}
	case tracker.PhaseAirborne:
		if ground {
			tr = landingTransition
		}
	}

	if tr == noTransition || (s.LastEventAt != nil && ts.Sub(*s.LastEventAt) < d.cfg.Cooldown) {
		s.BeaconsInPhase++
		return noTransition, "", nil
	}

	at := ts
	s.LastEventAt = &at
	s.PhaseSince = ts
	s.BeaconsInPhase = 1

	if tr == takeoffTransition {
		s.Phase = tracker.PhaseAirborne
		s.TakeoffAt = &at
		s.StartType = ""
		return tr, "", &at
	}

	startType, takeoffAt := s.StartType, s.TakeoffAt
	s.Phase = tracker.PhaseGround
	s.TakeoffAt = nil
	s.StartType = ""
	return tr, startType, takeoffAt
}

func (d *Detector) takeoffLocked(snap tracker.AircraftState, out *output) {
	rec := &takeoffRecord{state: snap, at: snap.Timestamp, received: d.clock()}

	switch snap.AircraftType {
	case tracker.TypeGlider:
		if tow := d.bestMatch(rec, d.unusedTows()); tow != nil {
			tow.used = true
			d.setStartType(snap.ID, StartTow)
			d.setStartType(tow.state.ID, StartTowPlane)
			d.logger.Info("Detected aerotow",
				logger.String("glider", snap.ID),
				logger.String("tow_plane", tow.state.ID))
			out.events = append(out.events, d.buildEvent(EventTowTakeoff, snap, rec.at, StartTow, tow.state.ID))
			return
		}
		d.pending[snap.ID] = rec

	case tracker.TypeTowPlane:
		d.tows = append(d.tows, rec)
		if glider := d.bestMatch(rec, d.pendingGliders()); glider != nil {
			rec.used = true
			delete(d.pending, glider.state.ID)
			d.setStartType(glider.state.ID, StartTow)
			d.setStartType(snap.ID, StartTowPlane)
			d.logger.Info("Detected aerotow",
				logger.String("glider", glider.state.ID),
				logger.String("tow_plane", snap.ID))
			out.events = append(out.events,
				d.buildEvent(EventTowTakeoff, glider.state, glider.at, StartTow, snap.ID),
				d.buildEvent(EventTakeoff, snap, rec.at, StartTowPlane, glider.state.ID))
			return
		}
		out.events = append(out.events, d.buildEvent(EventTakeoff, snap, rec.at, "", ""))

	default:
		out.events = append(out.events, d.buildEvent(EventTakeoff, snap, rec.at, "", ""))
	}
}

// bestMatch picks the candidate closest in time, then in distance, that lies
// within the tow time and distance windows of rec
func (d *Detector) bestMatch(rec *takeoffRecord, candidates []*takeoffRecord) *takeoffRecord {
	var (
		best     *takeoffRecord
		bestDt   time.Duration
		bestDist float64
	)
	for _, c := range candidates {
		if c.state.ID == rec.state.ID {
			continue
		}
		dt := rec.at.Sub(c.at)
		if dt < 0 {
			dt = -dt
		}
		if dt > d.cfg.TowWindow {
			continue
		}
		dist := spatial.DistanceM(rec.state.Point(), c.state.Point())
		if dist > d.cfg.TowDistanceM {
			continue
		}
		if best == nil || dt < bestDt || (dt == bestDt && dist < bestDist) {
			best, bestDt, bestDist = c, dt, dist
		}
	}
	return best
}

func (d *Detector) unusedTows() []*takeoffRecord {
	var out []*takeoffRecord
	for _, t := range d.tows {
		if !t.used {
			out = append(out, t)
		}
	}
	return out
}

func (d *Detector) pendingGliders() []*takeoffRecord {
	out := make([]*takeoffRecord, 0, len(d.pending))
	for _, g := range d.pending {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].state.ID < out[j].state.ID })
	return out
}

func (d *Detector) setStartType(id, startType string) {
	d.store.Mutate(id, func(s *tracker.AircraftState) {
		if s.Phase == tracker.PhaseAirborne {
			s.StartType = startType
		}
	})
}

// Flush emits plain winch takeoffs for gliders that were received more than
// TowWindow plus TowGrace before now without a tow plane showing up. Beacon
// timestamps play no part in expiry so feed latency and clock skew of other
// aircraft cannot cut a tow window short.
func (d *Detector) Flush(ctx context.Context, now time.Time) []FlightEvent {
	d.mu.Lock()
	var out output
	d.flushLocked(now, &out)
	d.mu.Unlock()

	d.emit(ctx, out)
	return out.events
}

func (d *Detector) flushLocked(now time.Time, out *output) {
	var expired []*takeoffRecord
	for _, rec := range d.pending {
		if now.Sub(rec.received) > d.cfg.TowWindow+d.cfg.TowGrace {
			expired = append(expired, rec)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].at.Equal(expired[j].at) {
			return expired[i].state.ID < expired[j].state.ID
		}
		return expired[i].at.Before(expired[j].at)
	})
	for _, rec := range expired {
		d.resolveWinchLocked(rec, out, true)
	}
}

func (d *Detector) resolveWinchLocked(rec *takeoffRecord, out *output, track bool) {
	delete(d.pending, rec.state.ID)
	d.setStartType(rec.state.ID, StartWinch)

	ev := d.buildEvent(EventTakeoff, rec.state, rec.at, StartWinch, "")
	out.events = append(out.events, ev)

	if track && d.cfg.WinchClimbRateMs > 0 {
		d.winches[rec.state.ID] = &winchTrack{
			airfield:  ev.Airfield,
			startAlt:  rec.state.AltitudeM,
			maxAlt:    rec.state.AltitudeM,
			startedAt: rec.at,
			maxAt:     rec.at,
			received:  rec.received,
		}
	}
}

// trackWinchLocked follows the climb of a winch launch until the cable is
// released, then reports the launch if it gained enough height
func (d *Detector) trackWinchLocked(snap tracker.AircraftState, out *output) {
	w, ok := d.winches[snap.ID]
	if !ok {
		return
	}
	if snap.Timestamp.Sub(w.startedAt) > d.cfg.WinchTimeout {
		delete(d.winches, snap.ID)
		return
	}

	rate := 0.0
	if snap.ClimbRateMs != nil {
		rate = *snap.ClimbRateMs
	}
	if rate >= d.cfg.WinchClimbRateMs {
		w.climbing = true
		if snap.AltitudeM > w.maxAlt {
			w.maxAlt = snap.AltitudeM
			w.maxAt = snap.Timestamp
		}
		return
	}
	if !w.climbing {
		return
	}

	delete(d.winches, snap.ID)
	gain := w.maxAlt - w.startAlt
	if gain < d.cfg.WinchMinGainM {
		return
	}
	out.winches = append(out.winches, WinchLaunch{
		AircraftID:      snap.ID,
		Airfield:        w.airfield,
		StartAltitudeM:  w.startAlt,
		ReleaseAltitude: w.maxAlt,
		GainM:           math.Round(gain),
		DurationSeconds: w.maxAt.Sub(w.startedAt).Seconds(),
		StartedAt:       w.startedAt,
		ReleasedAt:      w.maxAt,
	})
}

// Cleanup drops correlation data that can no longer match
func (d *Detector) Cleanup(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.tows[:0]
	for _, t := range d.tows {
		if now.Sub(t.received) <= d.cfg.TakeoffRetention {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(d.tows); i++ {
		d.tows[i] = nil
	}
	d.tows = kept

	for id, w := range d.winches {
		if now.Sub(w.received) > d.cfg.WinchTimeout {
			delete(d.winches, id)
		}
	}
}

// Forget drops every trace of aircraft that left the store
func (d *Detector) Forget(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		delete(d.pending, id)
		delete(d.winches, id)
	}
}

func (d *Detector) buildEvent(t EventType, st tracker.AircraftState, at time.Time, startType, paired string) FlightEvent {
	ev := FlightEvent{
		Type:           t,
		AircraftID:     st.ID,
		Address:        st.Address,
		PairedWith:     paired,
		Airfield:       reference.UnknownAirfield,
		ClubAircraft:   st.Club,
		AircraftType:   st.AircraftType,
		Model:          st.Model,
		Registration:   st.Registration,
		StartType:      startType,
		Lat:            st.Lat,
		Lon:            st.Lon,
		AltitudeM:      st.AltitudeM,
		GroundSpeedKmh: st.GroundSpeedKmh,
		Timestamp:      at,
	}
	if !ev.ClubAircraft && d.deps.ClubPlanes != nil {
		ev.ClubAircraft = d.deps.ClubPlanes.Contains(st.ID)
	}
	if d.deps.Airfields != nil {
		if af, _, ok := d.deps.Airfields.Nearest(st.Point()); ok {
			ev.Airfield = af.ID
			if ev.Airfield == "" {
				ev.Airfield = af.Name
			}
			ev.AirfieldName = af.Name
			ev.ClubAirfield = af.Club
		}
	}
	if st.Track != nil {
		mt := math.Round(spatial.MagneticTrack(*st.Track, st.Point(), st.AltitudeM, at))
		ev.MagneticTrack = &mt
	}
	return ev
}

func (d *Detector) emit(ctx context.Context, out output) {
	for _, ev := range out.events {
		d.emitted.Add(1)
		d.logger.Info("Flight event",
			logger.String("type", string(ev.Type)),
			logger.String("aircraft", ev.AircraftID),
			logger.String("airfield", ev.Airfield),
			logger.String("start_type", ev.StartType),
			logger.String("paired_with", ev.PairedWith))

		if d.deps.Publisher != nil {
			d.deps.Publisher.Broadcast(MessageFlightEvent, ev)
		}
		if !d.deps.Policy.PersistEvent(ev) {
			continue
		}
		d.persisted.Add(1)
		if d.deps.Sink != nil {
			if err := d.deps.Sink.SaveEvent(ctx, ev); err != nil {
				d.logger.Error("Failed to save flight event",
					logger.String("aircraft", ev.AircraftID),
					logger.Error(err))
			}
		}
		if d.deps.Notifier != nil {
			d.deps.Notifier.Notify(ev)
		}
	}

	for _, w := range out.winches {
		d.logger.Info("Winch launch",
			logger.String("aircraft", w.AircraftID),
			logger.Float64("gain_m", w.GainM),
			logger.Float64("duration_s", w.DurationSeconds))
		if d.deps.Publisher != nil {
			d.deps.Publisher.Broadcast(MessageWinchLaunch, w)
		}
	}
}

// Stats returns the number of emitted and persisted events
func (d *Detector) Stats() (emitted, persisted int64) {
	return d.emitted.Load(), d.persisted.Load()
}
