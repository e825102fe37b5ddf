package tracker

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// Options configures a Store
type Options struct {
	HistorySize          int
	InactivityTimeout    time.Duration
	SignificantDistanceM float64
	SignificantSpeedKmh  float64
	SignificantAltitudeM float64
}

// Meta is the reference data attached to an aircraft when a beacon is applied
type Meta struct {
	Device Device
	Club   bool
}

// ApplyResult describes what a beacon did to the store
type ApplyResult struct {
	State       AircraftState
	Applied     bool // false when the beacon was older than the stored state
	Created     bool
	Significant bool
}

// Store is the in-memory aircraft state store. The index is guarded by a
// read/write lock; each entry carries its own mutex so different aircraft
// never contend with each other.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	opts    Options
	clock   func() time.Time
	logger  *logger.Logger
}

type entry struct {
	mu      sync.Mutex
	state   AircraftState
	history *ring
	vario   variometer
	removed bool
}

// NewStore creates an empty store
func NewStore(opts Options, log *logger.Logger) *Store {
	if opts.HistorySize <= 0 {
		opts.HistorySize = 100
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = 5 * time.Minute
	}
	return &Store{
		entries: make(map[string]*entry),
		opts:    opts,
		clock:   time.Now,
		logger:  log.Named("state-store"),
	}
}

// SetClock replaces the clock used for last_seen bookkeeping
func (s *Store) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Apply creates or updates the state of the beacon's aircraft. Beacons that are
// not newer than the stored one are ignored entirely.
func (s *Store) Apply(b Beacon, meta Meta) ApplyResult {
	for {
		e, created := s.getOrCreate(b.ID)

		e.mu.Lock()
		if e.removed {
			// Evicted between lookup and lock, start over with a fresh entry
			e.mu.Unlock()
			continue
		}

		if !created && !b.Timestamp.After(e.state.Timestamp) {
			state := e.state
			e.mu.Unlock()
			return ApplyResult{State: state}
		}

		significant := created || s.significant(&e.state.Beacon, &b)

		e.state.Beacon = b
		e.state.Device = meta.Device
		e.state.Club = meta.Club
		e.state.LastSeen = s.clock()
		e.history.push(PositionOf(b))
		if b.ClimbRateMs != nil {
			e.vario.add(b.Timestamp, *b.ClimbRateMs)
		}
		e.state.Variometer = e.vario.summary(b.Timestamp)

		state := e.state
		e.mu.Unlock()

		return ApplyResult{
			State:       state,
			Applied:     true,
			Created:     created,
			Significant: significant,
		}
	}
}

func (s *Store) getOrCreate(id string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e, false
	}
	// Stamped before publishing so a sweep racing the first Apply keeps it
	e = &entry{history: newRing(s.opts.HistorySize)}
	e.state.LastSeen = s.clock()
	s.entries[id] = e
	return e, true
}

func (s *Store) significant(prev, next *Beacon) bool {
	if prev.AircraftType != next.AircraftType {
		return true
	}
	if math.Abs(prev.GroundSpeedKmh-next.GroundSpeedKmh) > s.opts.SignificantSpeedKmh {
		return true
	}
	if math.Abs(prev.AltitudeM-next.AltitudeM) > s.opts.SignificantAltitudeM {
		return true
	}
	return spatial.DistanceM(prev.Point(), next.Point()) > s.opts.SignificantDistanceM
}

// Get returns a snapshot of one aircraft
func (s *Store) Get(id string) (AircraftState, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return AircraftState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return AircraftState{}, false
	}
	return e.state, true
}

// Mutate runs fn on the stored state of one aircraft under its entry lock and
// returns the resulting snapshot
func (s *Store) Mutate(id string, fn func(*AircraftState)) (AircraftState, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return AircraftState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return AircraftState{}, false
	}
	fn(&e.state)
	return e.state, true
}

// ListActive returns a snapshot of every aircraft ordered by identifier
func (s *Store) ListActive() []AircraftState {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	states := make([]AircraftState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			states = append(states, e.state)
		}
		e.mu.Unlock()
	}

	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// History returns the recent positions of an aircraft, oldest first. Unknown
// identifiers yield an empty slice.
func (s *Store) History(id string) []Position {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return []Position{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return []Position{}
	}
	return e.history.items()
}

// EvictStale removes every aircraft whose last_seen is older than the
// inactivity timeout and returns the removed identifiers in sorted order
func (s *Store) EvictStale(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, e := range s.entries {
		e.mu.Lock()
		if now.Sub(e.state.LastSeen) > s.opts.InactivityTimeout {
			e.removed = true
			delete(s.entries, id)
			removed = append(removed, id)
		}
		e.mu.Unlock()
	}

	sort.Strings(removed)
	if len(removed) > 0 {
		s.logger.Debug("Evicted stale aircraft",
			logger.Int("removed", len(removed)),
			logger.Int("remaining", len(s.entries)))
	}
	return removed
}

// Len returns the number of tracked aircraft
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ring is a fixed-capacity position buffer that overwrites the oldest entry
type ring struct {
	buf   []Position
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Position, capacity)}
}

func (r *ring) push(p Position) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = p
		r.size++
		return
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) items() []Position {
	out := make([]Position, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
