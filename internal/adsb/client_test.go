package adsb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

func TestPointURL(t *testing.T) {
	c := NewClient("https://api.adsb.lol/", time.Second, logger.NewNop())

	tests := []struct {
		name     string
		radiusKm float64
		want     string
	}{
		{"small", 100, "https://api.adsb.lol/v2/point/56.1/9.5/53"},
		{"capped", 1000, "https://api.adsb.lol/v2/point/56.1/9.5/250"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.PointURL(56.1, 9.5, tt.radiusKm))
		})
	}
}

func TestFetchPoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"now":1700000000,"total":2,"ac":[
			{"hex":"4ca7b5","flight":"RYR1AB  ","alt_baro":3500,"gs":"180.5","track":90,"lat":56.2,"lon":9.6,"baro_rate":-640},
			{"hex":"45ac2d","flight":"TWR","alt_baro":"ground","lat":56.3,"lon":9.7}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.NewNop())
	targets, err := c.FetchPoint(context.Background(), 56.1, 9.5, 100)
	require.NoError(t, err)
	assert.Equal(t, "/v2/point/56.1/9.5/53", gotPath)
	require.Len(t, targets, 2)
	assert.Equal(t, "4ca7b5", targets[0].Hex)
	assert.Equal(t, 180.5, targets[0].GS.Float64())
	assert.True(t, targets[1].AltBaro.IsGround())
}

func TestFetchPointBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(` [{"hex":"abc123","lat":1,"lon":2}]`))
	}))
	defer srv.Close()

	targets, err := NewClient(srv.URL, time.Second, logger.NewNop()).FetchPoint(context.Background(), 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "abc123", targets[0].Hex)
}

func TestFetchPointErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second, logger.NewNop()).FetchPoint(context.Background(), 0, 0, 10)
		assert.ErrorContains(t, err, "unexpected status code: 429")
	})

	t.Run("json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ac":`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second, logger.NewNop()).FetchPoint(context.Background(), 0, 0, 10)
		assert.ErrorContains(t, err, "failed to parse JSON")
	})

	t.Run("empty object", func(t *testing.T) {
		targets, err := DecodePoint([]byte(`{"now":1}`))
		require.NoError(t, err)
		assert.NotNil(t, targets)
		assert.Empty(t, targets)
	})
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	targets, err := DecodePoint([]byte(`[
		{"hex":"4ca7b5","flight":"RYR1AB  ","r":"EI-ABC","t":"B738","alt_baro":"3500","gs":180,"track":91.5,"lat":"56.2","lon":9.6,"geom_rate":320,"squawk":"1234","category":"A3"},
		{"hex":"45ac2d","alt_baro":"ground","lat":56.3,"lon":9.7},
		{"hex":"","lat":1,"lon":2},
		{"hex":"111111","lat":null}
	]`))
	require.NoError(t, err)
	require.Len(t, targets, 4)

	ac, ok := targets[0].Normalize(now)
	require.True(t, ok)
	assert.Equal(t, Aircraft{
		ID:            "adsb_4CA7B5",
		Hex:           "4CA7B5",
		Flight:        "RYR1AB",
		Registration:  "EI-ABC",
		AircraftType:  "B738",
		Lat:           56.2,
		Lon:           9.6,
		AltitudeFt:    3500,
		GroundSpeedKt: 180,
		Track:         91.5,
		VerticalRate:  320,
		Squawk:        "1234",
		Category:      "A3",
		Source:        "adsb",
		Timestamp:     now,
	}, ac)

	ground, ok := targets[1].Normalize(now)
	require.True(t, ok)
	assert.True(t, ground.OnGround)
	assert.Equal(t, 0.0, ground.AltitudeFt)

	_, ok = targets[2].Normalize(now)
	assert.False(t, ok)
	_, ok = targets[3].Normalize(now)
	assert.False(t, ok)
}
