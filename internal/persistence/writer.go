// Package persistence puts a bounded write-behind queue in front of the
// storage collaborator so detection and ingestion never wait on disk.
package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/ogn-tracker/internal/events"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

var (
	// ErrQueueFull is returned when a write is dropped because the queue is full
	ErrQueueFull = errors.New("persistence queue full")
	// ErrClosed is returned for writes after Close
	ErrClosed = errors.New("persistence writer closed")
)

// Store is the durable side of the writer
type Store interface {
	SaveEvents(ctx context.Context, evs []events.FlightEvent) error
	SavePositions(ctx context.Context, states []tracker.AircraftState) error
}

// Options configures a Writer
type Options struct {
	QueueSize      int // position queue
	EventQueueSize int // event queue, QueueSize when unset
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration // bound of the final flush on shutdown
}

// Stats counts what happened to queued writes
type Stats struct {
	Written       int64 `json:"written"`
	Dropped       int64 `json:"dropped"`
	DroppedEvents int64 `json:"dropped_events"`
	Failed        int64 `json:"failed"`
	Pending       int   `json:"pending"`
}

// Writer batches events and positions into the Store from a single goroutine.
// Events and positions are queued separately so a burst of positions can
// never crowd out flight events.
type Writer struct {
	store  Store
	opts   Options
	logger *logger.Logger

	mu        sync.RWMutex
	closed    bool
	events    chan events.FlightEvent
	positions chan tracker.AircraftState

	started atomic.Bool
	done    chan struct{}

	written       atomic.Int64
	dropped       atomic.Int64
	droppedEvents atomic.Int64
	failed        atomic.Int64
}

// NewWriter creates a writer. Nothing is written until Run is started.
func NewWriter(store Store, opts Options, log *logger.Logger) *Writer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.EventQueueSize <= 0 {
		opts.EventQueueSize = opts.QueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 10 * time.Second
	}
	return &Writer{
		store:  store,
		opts:   opts,
		logger: log.Named("persistence"),
		events:    make(chan events.FlightEvent, opts.EventQueueSize),
		positions: make(chan tracker.AircraftState, opts.QueueSize),
		done:      make(chan struct{}),
	}
}

// SaveEvent queues an event. It never blocks.
func (w *Writer) SaveEvent(_ context.Context, ev events.FlightEvent) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.events <- ev:
		return nil
	default:
		w.dropped.Add(1)
		w.droppedEvents.Add(1)
		w.logger.Warn("Dropped flight event, queue full",
			logger.String("aircraft", ev.AircraftID),
			logger.String("type", string(ev.Type)))
		return ErrQueueFull
	}
}

// SavePosition queues a position snapshot. It never blocks.
func (w *Writer) SavePosition(_ context.Context, st tracker.AircraftState) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.positions <- st:
		return nil
	default:
		w.dropped.Add(1)
		return ErrQueueFull
	}
}

// Run writes batches until ctx is done or Close is called. Whatever is still
// queued at that point is written before Run returns.
func (w *Writer) Run(ctx context.Context) error {
	w.started.Store(true)
	defer close(w.done)

	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	var b batch
	evq, posq := w.events, w.positions
	for evq != nil || posq != nil {
		select {
		case ev, ok := <-evq:
			if !ok {
				evq = nil
				continue
			}
			b.events = append(b.events, ev)
			if b.len() >= w.opts.BatchSize {
				w.flush(ctx, &b)
			}

		case st, ok := <-posq:
			if !ok {
				posq = nil
				continue
			}
			b.positions = append(b.positions, st)
			if b.len() >= w.opts.BatchSize {
				w.flush(ctx, &b)
			}

		case <-ticker.C:
			w.flush(ctx, &b)

		case <-ctx.Done():
			w.shutdown()
			for ev := range w.events {
				b.events = append(b.events, ev)
				if b.len() >= w.opts.BatchSize {
					w.finish(ctx, &b)
				}
			}
			for st := range w.positions {
				b.positions = append(b.positions, st)
				if b.len() >= w.opts.BatchSize {
					w.finish(ctx, &b)
				}
			}
			w.finish(ctx, &b)
			return nil
		}
	}
	w.finish(ctx, &b)
	return nil
}

// finish flushes with a fresh deadline so shutdown does not abandon writes
func (w *Writer) finish(ctx context.Context, b *batch) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.FlushTimeout)
	defer cancel()
	w.flush(flushCtx, b)
}

func (w *Writer) flush(ctx context.Context, b *batch) {
	if b.len() == 0 {
		return
	}

	if len(b.events) > 0 {
		if err := w.store.SaveEvents(ctx, b.events); err != nil {
			w.failed.Add(int64(len(b.events)))
			w.logger.Error("Failed to store flight events",
				logger.Int("count", len(b.events)),
				logger.Error(err))
		} else {
			w.written.Add(int64(len(b.events)))
		}
	}
	if len(b.positions) > 0 {
		if err := w.store.SavePositions(ctx, b.positions); err != nil {
			w.failed.Add(int64(len(b.positions)))
			w.logger.Warn("Failed to store positions",
				logger.Int("count", len(b.positions)),
				logger.Error(err))
		} else {
			w.written.Add(int64(len(b.positions)))
		}
	}
	b.reset()
}

func (w *Writer) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
		close(w.positions)
	}
}

// Close stops accepting writes and waits for a running Run to write what is queued
func (w *Writer) Close() error {
	w.shutdown()
	if w.started.Load() {
		<-w.done
	}
	return nil
}

// Stats returns the writer counters
func (w *Writer) Stats() Stats {
	return Stats{
		Written:       w.written.Load(),
		Dropped:       w.dropped.Load(),
		DroppedEvents: w.droppedEvents.Load(),
		Failed:        w.failed.Load(),
		Pending:       len(w.events) + len(w.positions),
	}
}

type batch struct {
	events    []events.FlightEvent
	positions []tracker.AircraftState
}

func (b *batch) len() int { return len(b.events) + len(b.positions) }

func (b *batch) reset() {
	b.events = nil
	b.positions = nil
}
