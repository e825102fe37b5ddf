// Package engine connects the beacon feed, the state store, the detector and
// the subscriber hub, and runs every background activity under one context.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/ogn-tracker/internal/events"
	"github.com/yegors/ogn-tracker/internal/ogn"
	"github.com/yegors/ogn-tracker/internal/reference"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// Hub is the subscriber side of the engine
type Hub interface {
	BroadcastUpdate(id string, data any)
	BroadcastRemoved(id string)
}

// DeviceResolver resolves device metadata for a beacon
type DeviceResolver interface {
	Lookup(ctx context.Context, id string) (*reference.DeviceInfo, bool)
}

// PositionSink receives positions the scope policy wants stored
type PositionSink interface {
	SavePosition(ctx context.Context, st tracker.AircraftState) error
}

// Detector is the flight event detector as used by the engine
type Detector interface {
	Process(ctx context.Context, id string) []events.FlightEvent
	Flush(ctx context.Context, now time.Time) []events.FlightEvent
	Cleanup(now time.Time)
	Forget(ids []string)
}

// Options configures the engine loops and beacon enrichment
type Options struct {
	SweepInterval  time.Duration
	FlushInterval  time.Duration
	HideUntracked  bool
	TowPlaneModels []string
}

// Deps are the collaborators of the engine. Devices, ClubPlanes, Policy and
// Positions may be nil.
type Deps struct {
	Store      *tracker.Store
	Detector   Detector
	Hub        Hub
	Devices    DeviceResolver
	ClubPlanes events.ClubChecker
	Policy     events.ScopePolicy
	Positions  PositionSink
}

// Stats counts beacons handled by the engine
type Stats struct {
	Beacons   int64 `json:"beacons"`
	Stale     int64 `json:"stale"`
	Hidden    int64 `json:"hidden"`
	Updates   int64 `json:"updates"`
	Evicted   int64 `json:"evicted"`
	Positions int64 `json:"positions"`
}

type runner struct {
	name string
	fn   func(ctx context.Context) error
}

// Engine owns the beacon pipeline
type Engine struct {
	deps    Deps
	opts    Options
	runners []runner
	clock   func() time.Time
	logger  *logger.Logger

	beacons   atomic.Int64
	stale     atomic.Int64
	hidden    atomic.Int64
	updates   atomic.Int64
	evicted   atomic.Int64
	positions atomic.Int64
}

// New creates an engine
func New(deps Deps, opts Options, log *logger.Logger) (*Engine, error) {
	if deps.Store == nil || deps.Detector == nil || deps.Hub == nil {
		return nil, errors.New("engine requires a store, a detector and a hub")
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 60 * time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &Engine{
		deps:   deps,
		opts:   opts,
		clock:  time.Now,
		logger: log.Named("engine"),
	}, nil
}

// Add registers a background activity started by Run. The activity must
// return once ctx is done.
func (e *Engine) Add(name string, fn func(ctx context.Context) error) {
	e.runners = append(e.runners, runner{name: name, fn: fn})
}

// HandleBeacon enriches a beacon, applies it to the store, runs detection and
// queues the subscriber update. It is the ingestor's sink.
func (e *Engine) HandleBeacon(ctx context.Context, b tracker.Beacon) {
	e.beacons.Add(1)

	var meta tracker.Meta
	if e.deps.Devices != nil {
		key := b.Address
		if key == "" {
			key = b.ID
		}
		if info, ok := e.deps.Devices.Lookup(ctx, key); ok {
			if e.opts.HideUntracked && !info.Tracked {
				e.hidden.Add(1)
				return
			}
			meta.Device = tracker.Device{
				Model:        info.Model,
				Registration: info.Registration,
				CN:           info.CN,
			}
		}
	}
	b.AircraftType = ogn.RefineType(b.AircraftType, meta.Device.Model, e.opts.TowPlaneModels)
	if e.deps.ClubPlanes != nil {
		meta.Club = e.deps.ClubPlanes.Contains(b.ID)
	}

	res := e.deps.Store.Apply(b, meta)
	if !res.Applied {
		e.stale.Add(1)
		return
	}

	e.deps.Detector.Process(ctx, b.ID)

	// The detector may have changed the phase, so re-read
	st, ok := e.deps.Store.Get(b.ID)
	if !ok {
		return
	}
	if res.Created || res.Significant {
		e.updates.Add(1)
		e.deps.Hub.BroadcastUpdate(b.ID, st)
	}

	if e.deps.Positions != nil && e.deps.Policy != nil && e.deps.Policy.PersistPosition(st) {
		if err := e.deps.Positions.SavePosition(ctx, st); err != nil {
			e.logger.Debug("Position not stored",
				logger.String("aircraft", b.ID),
				logger.Error(err))
			return
		}
		e.positions.Add(1)
	}
}

// Sweep evicts stale aircraft, tells subscribers and lets the detector drop
// its bookkeeping for them
func (e *Engine) Sweep(now time.Time) []string {
	ids := e.deps.Store.EvictStale(now)
	for _, id := range ids {
		e.deps.Hub.BroadcastRemoved(id)
	}
	if len(ids) > 0 {
		e.evicted.Add(int64(len(ids)))
		e.deps.Detector.Forget(ids)
		e.logger.Info("Evicted stale aircraft",
			logger.Int("count", len(ids)),
			logger.Int("remaining", e.deps.Store.Len()))
	}
	e.deps.Detector.Cleanup(now)
	return ids
}

// drainHorizon moves the clock of the shutdown flush far enough ahead to
// expire every pending tow window
const drainHorizon = 24 * time.Hour

// Run starts every registered activity plus the sweep and flush loops and
// blocks until ctx is done or one of them fails. Once every activity has
// stopped the detector is flushed so no pending takeoff is lost.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, r := range e.runners {
		g.Go(func() error {
			e.logger.Debug("Starting activity", logger.String("name", r.name))
			err := r.fn(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", r.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		e.every(gctx, e.opts.SweepInterval, func(now time.Time) { e.Sweep(now) })
		return nil
	})
	g.Go(func() error {
		e.every(gctx, e.opts.FlushInterval, func(now time.Time) { e.deps.Detector.Flush(gctx, now) })
		return nil
	})

	err := g.Wait()

	if evs := e.deps.Detector.Flush(context.WithoutCancel(ctx), e.clock().Add(drainHorizon)); len(evs) > 0 {
		e.logger.Info("Flushed pending takeoffs on shutdown", logger.Int("count", len(evs)))
	}
	return err
}

func (e *Engine) every(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn(e.clock())
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns the engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		Beacons:   e.beacons.Load(),
		Stale:     e.stale.Load(),
		Hidden:    e.hidden.Load(),
		Updates:   e.updates.Load(),
		Evicted:   e.evicted.Load(),
		Positions: e.positions.Load(),
	}
}
