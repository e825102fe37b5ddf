package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/ogn-tracker/internal/events"
	"github.com/yegors/ogn-tracker/internal/reference"
	"github.com/yegors/ogn-tracker/internal/storage/sqlite"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

type countingRefresher struct {
	calls int
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls++
	return r.err
}

type fixture struct {
	server  *httptest.Server
	store   *tracker.Store
	db      *sqlite.Storage
	planes  *countingRefresher
	fields  *countingRefresher
	handler *Handler
}

var base = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		store:  tracker.NewStore(tracker.Options{}, logger.NewNop()),
		db:     db,
		planes: &countingRefresher{},
		fields: &countingRefresher{},
	}
	f.handler = NewHandler(f.store, db, Refreshers{ClubPlanes: f.planes, Airfields: f.fields}, "test", logger.NewNop())
	f.handler.AddStats("ingestor", func() any { return map[string]int{"lines": 7} })

	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }
	router := NewRouter(f.handler, ws, nil, []string{"https://map.example.org"}, logger.NewNop())
	f.server = httptest.NewServer(router.Routes())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (f *fixture) apply(id string, offset time.Duration, club bool) {
	f.store.Apply(tracker.Beacon{
		ID:             id,
		Lat:            56.0,
		Lon:            9.0,
		AltitudeM:      float64(100 + offset/time.Second),
		GroundSpeedKmh: 80,
		AircraftType:   tracker.TypeGlider,
		Timestamp:      base.Add(offset),
	}, tracker.Meta{Club: club})
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.apply("FLRDDE626", 0, true)

	resp, body := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status   string                    `json:"status"`
		Version  string                    `json:"version"`
		Aircraft int                       `json:"aircraft"`
		Stats    map[string]map[string]int `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, 1, health.Aircraft)
	assert.Equal(t, 7, health.Stats["ingestor"]["lines"])
}

func TestAircraftEndpoints(t *testing.T) {
	f := newFixture(t)
	f.apply("FLRDDE626", 0, true)
	f.apply("FLRDDE626", time.Second, true)
	f.apply("OGN123456", 0, false)

	t.Run("list", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/v1/aircraft", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out struct {
			Count    int                     `json:"count"`
			Aircraft []tracker.AircraftState `json:"aircraft"`
		}
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, 2, out.Count)
		assert.Equal(t, "FLRDDE626", out.Aircraft[0].ID)
		assert.Equal(t, "OGN123456", out.Aircraft[1].ID)
	})

	t.Run("club filter", func(t *testing.T) {
		_, body := f.do(t, http.MethodGet, "/api/v1/aircraft?club=true", "")
		assert.Contains(t, string(body), `"count":1`)
		resp, _ := f.do(t, http.MethodGet, "/api/v1/aircraft?club=maybe", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("get", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/v1/aircraft/FLRDDE626", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var st tracker.AircraftState
		require.NoError(t, json.Unmarshal(body, &st))
		assert.Equal(t, 101.0, st.AltitudeM)
		assert.True(t, st.Club)

		resp, _ = f.do(t, http.MethodGet, "/api/v1/aircraft/FLR000000", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("memory track", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/v1/aircraft/FLRDDE626/track?limit=1", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out struct {
			Source    string             `json:"source"`
			Positions []tracker.Position `json:"positions"`
		}
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, "memory", out.Source)
		require.Len(t, out.Positions, 1)
		assert.Equal(t, 101.0, out.Positions[0].AltitudeM)
	})

	t.Run("stored track for departed aircraft", func(t *testing.T) {
		st := tracker.AircraftState{}
		st.ID = "FLRGONE01"
		st.Lat, st.Lon, st.AltitudeM, st.GroundSpeedKmh = 56, 9, 300, 90
		st.Timestamp = base
		require.NoError(t, f.db.SavePositions(context.Background(), []tracker.AircraftState{st}))

		_, body := f.do(t, http.MethodGet, "/api/v1/aircraft/FLRGONE01/track", "")
		assert.Contains(t, string(body), `"source":"db"`)
		assert.Contains(t, string(body), `"count":1`)

		resp, _ := f.do(t, http.MethodGet, "/api/v1/aircraft/FLRGONE01/track?source=memory", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp, _ = f.do(t, http.MethodGet, "/api/v1/aircraft/FLRGONE01/track?source=disk", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp, _ = f.do(t, http.MethodGet, "/api/v1/aircraft/FLRGONE01/track?limit=-1", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.SaveEvents(context.Background(), []events.FlightEvent{
		{Type: events.EventTakeoff, AircraftID: "FLRDDE626", Airfield: "EKAR", AircraftType: tracker.TypeGlider, Timestamp: base},
		{Type: events.EventLanding, AircraftID: "FLRDDE626", Airfield: "EKAR", AircraftType: tracker.TypeGlider, Timestamp: base.Add(time.Hour)},
		{Type: events.EventTakeoff, AircraftID: "FLRDD1234", Airfield: "EKVB", AircraftType: tracker.TypeTowPlane, Timestamp: base.Add(2 * time.Hour)},
	}))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all newest first", "", []string{"FLRDD1234", "FLRDDE626", "FLRDDE626"}},
		{"limit", "?limit=1", []string{"FLRDD1234"}},
		{"airfield", "?airfield=ekar", []string{"FLRDDE626", "FLRDDE626"}},
		{"type", "?type=landing", []string{"FLRDDE626"}},
		{"since", "?since=2026-06-01T13:30:00Z", []string{"FLRDD1234"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodGet, "/api/v1/events"+tt.query, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var out struct {
				Events []events.FlightEvent `json:"events"`
			}
			require.NoError(t, json.Unmarshal(body, &out))
			ids := make([]string, 0, len(out.Events))
			for _, ev := range out.Events {
				ids = append(ids, ev.AircraftID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	resp, _ := f.do(t, http.MethodGet, "/api/v1/events?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClubPlanesAdmin(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/api/v1/club/planes", "")
	assert.JSONEq(t, `[]`, string(body))

	resp, body := f.do(t, http.MethodPut, "/api/v1/club/planes", `["flrdde626", "DD1234", "FLRDDE626"]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["DD1234", "DDE626"]`, string(body))
	assert.Equal(t, 1, f.planes.calls)
	assert.Equal(t, 0, f.fields.calls)

	resp, _ = f.do(t, http.MethodPut, "/api/v1/club/planes", `{"id": "x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPut, "/api/v1/club/planes", `["  "]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, f.planes.calls)
}

func TestClubAirfieldsAdmin(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPut, "/api/v1/club/airfields",
		`[{"icao": "ekar", "name": "Arnborg", "latitude_deg": 56.01, "longitude_deg": 9.01, "radius_km": 3}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var airfields []reference.Airfield
	require.NoError(t, json.Unmarshal(body, &airfields))
	require.Len(t, airfields, 1)
	assert.Equal(t, "EKAR", airfields[0].ID)
	assert.True(t, airfields[0].Club)
	assert.Equal(t, 1, f.fields.calls)

	for _, bad := range []string{
		`[{"name": "no id"}]`,
		`[{"icao": "X", "latitude_deg": 91}]`,
		`[{"icao": "X", "radius_km": -1}]`,
		`[{"icao": "X", "runway": "09"}]`,
	} {
		resp, _ := f.do(t, http.MethodPut, "/api/v1/club/airfields", bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}

	_, body = f.do(t, http.MethodGet, "/api/v1/club/airfields", "")
	assert.Contains(t, string(body), `"EKAR"`)
}

func TestReferenceRefresh(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/v1/reference/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"club_planes": "ok", "airfields": "ok"}`, string(body))

	f.fields.err = errors.New("database is locked")
	resp, body = f.do(t, http.MethodPost, "/api/v1/reference/refresh", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.JSONEq(t, `{"club_planes": "ok", "airfields": "database is locked"}`, string(body))
	assert.Equal(t, 2, f.planes.calls)
}

func TestRouterWebSocketAndCORS(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://map.example.org")
	req.Header.Set("Access-Control-Request-Method", "GET")
	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	preflight.Body.Close()
	assert.Equal(t, http.StatusNoContent, preflight.StatusCode)
	assert.Equal(t, "https://map.example.org", preflight.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, f.server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	other, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	other.Body.Close()
	assert.Empty(t, other.Header.Get("Access-Control-Allow-Origin"))
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>map</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	h := NewStaticFileHandler(dir, logger.NewNop())

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/", http.StatusOK, "<html>map</html>"},
		{"/app.js", http.StatusOK, "console.log(1)"},
		{"/missing.css", http.StatusNotFound, ""},
		{"/../../etc/passwd", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
				assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
			}
		})
	}
}
