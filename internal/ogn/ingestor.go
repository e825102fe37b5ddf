package ogn

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// RegionFilter keeps beacons that lie inside at least one region
type RegionFilter struct {
	regions []spatial.Region
}

// NewRegionFilter creates a filter over the given regions
func NewRegionFilter(regions []spatial.Region) RegionFilter {
	return RegionFilter{regions: append([]spatial.Region(nil), regions...)}
}

// Contains reports whether p is inside a region and returns the region's name
func (f RegionFilter) Contains(p spatial.Point) (string, bool) {
	r, ok := spatial.InRegion(f.regions, p)
	if !ok {
		return "", false
	}
	return r.Name, true
}

// Regions returns the configured regions
func (f RegionFilter) Regions() []spatial.Region {
	return append([]spatial.Region(nil), f.regions...)
}

// BeaconSink consumes filtered beacons
type BeaconSink func(ctx context.Context, b tracker.Beacon)

// Stats counts what the ingestor did with the lines it received
type Stats struct {
	Lines       int64 `json:"lines"`
	Forwarded   int64 `json:"forwarded"`
	Ignored     int64 `json:"ignored"`
	Malformed   int64 `json:"malformed"`
	OutOfRegion int64 `json:"out_of_region"`
	NoTrack     int64 `json:"no_track"`
}

type lineSource interface {
	Run(ctx context.Context, handler LineHandler) error
}

// Ingestor parses the feed, drops out-of-region traffic and forwards the rest
type Ingestor struct {
	source lineSource
	filter RegionFilter
	sink   BeaconSink
	logger *logger.Logger

	lines       atomic.Int64
	forwarded   atomic.Int64
	ignored     atomic.Int64
	malformed   atomic.Int64
	outOfRegion atomic.Int64
	noTrack     atomic.Int64
}

// NewIngestor creates a new ingestor reading from client
func NewIngestor(client *Client, filter RegionFilter, sink BeaconSink, log *logger.Logger) *Ingestor {
	return newIngestor(client, filter, sink, log)
}

func newIngestor(source lineSource, filter RegionFilter, sink BeaconSink, log *logger.Logger) *Ingestor {
	return &Ingestor{
		source: source,
		filter: filter,
		sink:   sink,
		logger: log.Named("ingestor"),
	}
}

// Run reads the feed until ctx is cancelled
func (i *Ingestor) Run(ctx context.Context) error {
	i.logger.Info("Starting beacon ingestor", logger.Int("regions", len(i.filter.regions)))
	return i.source.Run(ctx, func(line string, receivedAt time.Time) {
		i.HandleLine(ctx, line, receivedAt)
	})
}

// HandleLine processes one raw line. It reports whether a beacon was forwarded.
func (i *Ingestor) HandleLine(ctx context.Context, line string, receivedAt time.Time) bool {
	i.lines.Add(1)

	b, err := ParseLine(line, receivedAt)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotPosition):
		i.ignored.Add(1)
		return false
	case errors.Is(err, ErrNoTrack):
		i.noTrack.Add(1)
		return false
	default:
		i.malformed.Add(1)
		i.logger.Debug("Dropping unparseable line", logger.Error(err), logger.String("line", line))
		return false
	}

	region, ok := i.filter.Contains(b.Point())
	if !ok {
		i.outOfRegion.Add(1)
		return false
	}
	b.Region = region

	i.forwarded.Add(1)
	i.sink(ctx, b)
	return true
}

// Stats returns a snapshot of the counters
func (i *Ingestor) Stats() Stats {
	return Stats{
		Lines:       i.lines.Load(),
		Forwarded:   i.forwarded.Load(),
		Ignored:     i.ignored.Load(),
		Malformed:   i.malformed.Load(),
		OutOfRegion: i.outOfRegion.Load(),
		NoTrack:     i.noTrack.Load(),
	}
}
