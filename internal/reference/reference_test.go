package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

type fakeSource struct {
	mu        sync.Mutex
	planes    []string
	airfields []Airfield
	devices   map[string]*DeviceInfo
	err       error
	lookups   atomic.Int64
}

func (f *fakeSource) QueryClubPlanes(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.planes...), nil
}

func (f *fakeSource) QueryClubAirfields(context.Context) ([]Airfield, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Airfield(nil), f.airfields...), nil
}

func (f *fakeSource) LookupDevice(_ context.Context, address string) (*DeviceInfo, error) {
	f.lookups.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.devices[address], nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"FLRDDE626", "DDE626"},
		{"flrdde626", "DDE626"},
		{"ICA4B1234", "4B1234"},
		{"OGN123456", "123456"},
		{" dde626 ", "DDE626"},
		{"FLRX", "FLRX"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeID(tt.in))
		})
	}
}

func TestCacheKeepsStaleSnapshot(t *testing.T) {
	src := &fakeSource{planes: []string{"FLRDDE626"}}
	planes := NewClubPlanes(src, time.Minute, logger.NewNop())

	assert.False(t, planes.Contains("DDE626"), "empty before the first refresh")

	require.NoError(t, planes.Refresh(context.Background()))
	assert.True(t, planes.Contains("FLRDDE626"))
	assert.True(t, planes.Contains("dde626"))
	loadedAt := planes.LoadedAt()

	src.setErr(errors.New("database down"))
	assert.Error(t, planes.Refresh(context.Background()))
	assert.True(t, planes.Contains("DDE626"), "failed refresh keeps the old snapshot")
	assert.Equal(t, loadedAt, planes.LoadedAt())
	assert.Equal(t, int64(1), planes.Failures())
}

func TestCacheSwapIsAtomic(t *testing.T) {
	var gen atomic.Int64
	fetch := func(context.Context) ([]int, error) {
		n := int(gen.Add(1))
		data := make([]int, 100)
		for i := range data {
			data[i] = n
		}
		return data, nil
	}
	c := NewCache("numbers", fetch, time.Minute, logger.NewNop())
	require.NoError(t, c.Refresh(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			_ = c.Refresh(ctx)
		}
	}()

	for i := 0; i < 1000; i++ {
		data, ok := c.Load()
		require.True(t, ok)
		for _, v := range data {
			require.Equal(t, data[0], v, "snapshot mixes generations")
		}
	}
	cancel()
	wg.Wait()
}

func TestCacheRun(t *testing.T) {
	src := &fakeSource{planes: []string{"DDE626"}}
	planes := NewClubPlanes(src, 10*time.Millisecond, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		planes.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return planes.Contains("DDE626") }, time.Second, 5*time.Millisecond)

	src.mu.Lock()
	src.planes = []string{"DD1234"}
	src.mu.Unlock()
	assert.Eventually(t, func() bool { return planes.Contains("DD1234") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"DD1234"}, planes.List())

	cancel()
	<-done
}

func TestAirfields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "airfields.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"icao": "EKVD", "name": "Vamdrup", "latitude_deg": 55.436, "longitude_deg": 9.331},
		{"icao": "EKAR", "name": "Arnborg", "latitude_deg": 56.013, "longitude_deg": 9.008, "radius_km": 3}
	]`), 0o644))

	src := &fakeSource{airfields: []Airfield{
		{ID: "EKAR", Name: "Arnborg Club", Lat: 56.013, Lon: 9.008, RadiusKm: 4},
		{ID: "X-KONGSTED", Name: "Kongsted", Lat: 55.30, Lon: 12.05},
	}}
	airfields := NewAirfields(src, path, 5, time.Minute, logger.NewNop())
	require.NoError(t, airfields.Refresh(context.Background()))

	list, ok := airfields.Load()
	require.True(t, ok)
	assert.Len(t, list, 3)

	af, dist, ok := airfields.Nearest(spatial.Point{Lat: 56.02, Lon: 9.01})
	require.True(t, ok)
	assert.Equal(t, "EKAR", af.ID)
	assert.Equal(t, "Arnborg Club", af.Name)
	assert.True(t, af.Club)
	assert.Less(t, dist, 1.0)

	// 10 km from Vamdrup, outside its default radius
	_, _, ok = airfields.Nearest(spatial.Point{Lat: 55.526, Lon: 9.331})
	assert.False(t, ok)

	got, ok := airfields.Lookup("vamdrup")
	require.True(t, ok)
	assert.Equal(t, "EKVD", got.ID)
	assert.False(t, airfields.IsClub("EKVD"))
	assert.True(t, airfields.IsClub("ekar"))

	_, ok = airfields.Lookup("nowhere")
	assert.False(t, ok)
}

func TestAirfieldsMissingFile(t *testing.T) {
	airfields := NewAirfields(&fakeSource{}, filepath.Join(t.TempDir(), "missing.json"), 5, time.Minute, logger.NewNop())
	assert.Error(t, airfields.Refresh(context.Background()))
	_, _, ok := airfields.Nearest(spatial.Point{Lat: 56, Lon: 9})
	assert.False(t, ok)
}

func TestDeviceLookup(t *testing.T) {
	src := &fakeSource{devices: map[string]*DeviceInfo{
		"DDE626": {DeviceID: "DDE626", Model: "LS-4", Registration: "OY-XRG", Tracked: true},
	}}
	lookup := NewDeviceLookup(src, 16, time.Hour, logger.NewNop())
	ctx := context.Background()

	info, ok := lookup.Lookup(ctx, "FLRDDE626")
	require.True(t, ok)
	assert.Equal(t, "LS-4", info.Model)

	_, ok = lookup.Lookup(ctx, "dde626")
	assert.True(t, ok)
	assert.Equal(t, int64(1), src.lookups.Load(), "second lookup is served from cache")

	_, ok = lookup.Lookup(ctx, "FLR000000")
	assert.False(t, ok)
	_, ok = lookup.Lookup(ctx, "FLR000000")
	assert.False(t, ok)
	assert.Equal(t, int64(2), src.lookups.Load(), "misses are cached")

	src.setErr(errors.New("boom"))
	_, ok = lookup.Lookup(ctx, "FLRAAAAAA")
	assert.False(t, ok)
	assert.Equal(t, 2, lookup.Len(), "errors are not cached")

	lookup.Purge()
	assert.Equal(t, 0, lookup.Len())
}
