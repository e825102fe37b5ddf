package adsb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// Fetcher fetches the targets around a point
type Fetcher interface {
	FetchPoint(ctx context.Context, lat, lon, radiusKm float64) ([]Target, error)
}

// Publisher delivers messages to subscribers
type Publisher interface {
	Broadcast(msgType string, data any)
}

// ClientCounter reports how many subscribers are connected
type ClientCounter interface {
	ClientCount() int
}

// Options configures the polling service
type Options struct {
	Regions        []spatial.Region
	FetchInterval  time.Duration
	MaxAltitudeFt  float64
	IgnoreFlights  []string
	RemovalTimeout time.Duration // entries not confirmed for this long are dropped even when fetches fail
}

// Service polls the ADS-B source while subscribers are connected and
// publishes the differences between consecutive polls
type Service struct {
	client    Fetcher
	publisher Publisher
	counter   ClientCounter
	opts      Options
	ignore    map[string]struct{}
	logger    *logger.Logger
	clock     func() time.Time

	mu        sync.RWMutex
	aircraft  map[string]Aircraft
	active    bool
	lastFetch time.Time
	fetchOK   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates a new ADS-B service
func NewService(client Fetcher, publisher Publisher, counter ClientCounter, opts Options, log *logger.Logger) *Service {
	if opts.FetchInterval <= 0 {
		opts.FetchInterval = 5 * time.Second
	}
	if opts.RemovalTimeout <= 0 {
		opts.RemovalTimeout = 5 * time.Minute
	}
	ignore := make(map[string]struct{}, len(opts.IgnoreFlights))
	for _, f := range opts.IgnoreFlights {
		ignore[strings.ToUpper(strings.TrimSpace(f))] = struct{}{}
	}
	return &Service{
		client:    client,
		publisher: publisher,
		counter:   counter,
		opts:      opts,
		ignore:    ignore,
		logger:    log.Named("adsb"),
		clock:     time.Now,
		aircraft:  make(map[string]Aircraft),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the background polling loop
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting ADS-B service",
		logger.Duration("fetch_interval", s.opts.FetchInterval),
		logger.Int("regions", len(s.opts.Regions)),
	)

	s.wg.Add(1)
	go s.fetchLoop(ctx)
	return nil
}

// Stop stops the polling loop and waits for it to exit
func (s *Service) Stop() {
	s.logger.Info("Stopping ADS-B service")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("ADS-B service stopped")
}

func (s *Service) fetchLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.FetchInterval)
	defer ticker.Stop()

	s.Poll(ctx)
	for {
		select {
		case <-ticker.C:
			s.Poll(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll runs one polling cycle. Without subscribers nothing is fetched and
// known aircraft are cleared.
func (s *Service) Poll(ctx context.Context) {
	if s.counter != nil && s.counter.ClientCount() == 0 {
		s.mu.Lock()
		wasActive := s.active
		s.active = false
		s.mu.Unlock()
		if wasActive {
			s.logger.Info("Pausing ADS-B polling, no clients connected")
			s.Clear()
		}
		return
	}

	s.mu.Lock()
	if !s.active {
		s.logger.Info("Resuming ADS-B polling")
	}
	s.active = true
	s.mu.Unlock()

	now := s.clock()
	current, complete := s.fetchAll(ctx, now)

	s.mu.Lock()
	s.lastFetch = now
	s.fetchOK = complete
	s.mu.Unlock()

	s.apply(current, complete, now)
}

func (s *Service) fetchAll(ctx context.Context, now time.Time) (map[string]Aircraft, bool) {
	current := make(map[string]Aircraft)
	complete := true

	for _, region := range s.opts.Regions {
		targets, err := s.client.FetchPoint(ctx, region.Center.Lat, region.Center.Lon, region.RadiusKm)
		if err != nil {
			s.logger.Error("Failed to fetch ADS-B data",
				logger.String("region", region.Name),
				logger.Error(err))
			complete = false
			continue
		}

		for i := range targets {
			ac, ok := targets[i].Normalize(now)
			if !ok || !s.accept(ac) {
				continue
			}
			if _, seen := current[ac.ID]; seen {
				continue // overlapping regions, first one wins
			}
			ac.Region = region.Name
			current[ac.ID] = ac
		}
	}
	return current, complete
}

func (s *Service) accept(ac Aircraft) bool {
	if s.opts.MaxAltitudeFt > 0 && !ac.OnGround && ac.AltitudeFt > s.opts.MaxAltitudeFt {
		return false
	}
	if _, ignored := s.ignore[strings.ToUpper(ac.Flight)]; ignored {
		return false
	}
	return true
}

// apply publishes new or changed aircraft and removals. When a region failed
// the missing aircraft are only removed after the removal timeout.
func (s *Service) apply(current map[string]Aircraft, complete bool, now time.Time) {
	var updates []Aircraft
	var removed []Removal

	s.mu.Lock()
	for id, ac := range current {
		old, ok := s.aircraft[id]
		if ok && old.sameAs(ac) {
			old.Timestamp = ac.Timestamp
			s.aircraft[id] = old
			continue
		}
		s.aircraft[id] = ac
		updates = append(updates, ac)
	}
	for id, ac := range s.aircraft {
		if _, ok := current[id]; ok {
			continue
		}
		if complete || now.Sub(ac.Timestamp) > s.opts.RemovalTimeout {
			delete(s.aircraft, id)
			removed = append(removed, Removal{AircraftID: id, Hex: ac.Hex})
		}
	}
	s.mu.Unlock()

	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	sort.Slice(removed, func(i, j int) bool { return removed[i].AircraftID < removed[j].AircraftID })

	for _, ac := range updates {
		s.publisher.Broadcast(MessageUpdate, ac)
	}
	for _, r := range removed {
		s.publisher.Broadcast(MessageRemoved, r)
	}

	if len(updates) > 0 || len(removed) > 0 {
		s.logger.Debug("ADS-B changes published",
			logger.Int("updated", len(updates)),
			logger.Int("removed", len(removed)),
			logger.Int("tracked", len(current)))
	}
}

// Clear forgets every aircraft and publishes a removal for each
func (s *Service) Clear() {
	s.mu.Lock()
	removed := make([]Removal, 0, len(s.aircraft))
	for id, ac := range s.aircraft {
		removed = append(removed, Removal{AircraftID: id, Hex: ac.Hex})
	}
	s.aircraft = make(map[string]Aircraft)
	s.mu.Unlock()

	sort.Slice(removed, func(i, j int) bool { return removed[i].AircraftID < removed[j].AircraftID })
	for _, r := range removed {
		s.publisher.Broadcast(MessageRemoved, r)
	}
}

// Snapshot returns the known aircraft ordered by id
func (s *Service) Snapshot() []Aircraft {
	s.mu.RLock()
	out := make([]Aircraft, 0, len(s.aircraft))
	for _, ac := range s.aircraft {
		out = append(out, ac)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetStatus returns the time of the last poll and whether every region succeeded
func (s *Service) GetStatus() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetch, s.fetchOK
}
