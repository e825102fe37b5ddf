package ogn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

type staticSource struct {
	lines []string
	at    time.Time
}

func (s staticSource) Run(ctx context.Context, handler LineHandler) error {
	for _, l := range s.lines {
		handler(l, s.at)
	}
	return nil
}

var denmark = spatial.Region{Name: "Denmark", Center: spatial.Point{Lat: 55.923624, Lon: 9.755859}, RadiusKm: 195}

func TestRegionFilter(t *testing.T) {
	f := NewRegionFilter([]spatial.Region{denmark})

	name, ok := f.Contains(spatial.Point{Lat: 55.9, Lon: 9.5})
	assert.True(t, ok)
	assert.Equal(t, "Denmark", name)

	_, ok = f.Contains(spatial.Point{Lat: 48.1, Lon: 11.5})
	assert.False(t, ok)
}

func TestIngestorFiltersAndCounts(t *testing.T) {
	now := time.Date(2025, 6, 14, 10, 16, 0, 0, time.UTC)
	var got []tracker.Beacon
	sink := func(_ context.Context, b tracker.Beacon) { got = append(got, b) }

	src := staticSource{
		at: now,
		lines: []string{
			"# aprsc 2.1.14",
			gliderLine,
			// Munich, outside every region
			`FLRDD5555>OGFLR,qAS,EDDM:/101500h4808.00N/01134.00E'231/048/A=001234`,
			"garbage",
			`FLRDDE626>OGFLR,qAS,EKSL:/101500h5555.55N/00930.00E'231/048/A=001234 id46DDE626`,
		},
	}
	ing := newIngestor(src, NewRegionFilter([]spatial.Region{denmark}), sink, logger.NewNop())
	require.NoError(t, ing.Run(context.Background()))

	require.Len(t, got, 1)
	assert.Equal(t, "FLRDDE626", got[0].ID)
	assert.Equal(t, "Denmark", got[0].Region)

	assert.Equal(t, Stats{
		Lines:       5,
		Forwarded:   1,
		Ignored:     1,
		Malformed:   1,
		OutOfRegion: 1,
		NoTrack:     1,
	}, ing.Stats())
}
