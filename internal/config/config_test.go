package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[server]
port = 9000

[logging]
level = "debug"

[[regions]]
name = "Denmark"
center_lat = 55.923624
center_lon = 9.755859
radius_km = 195

[[regions]]
name = "Frankfurt"
center_lat = 50.1109
center_lon = 8.6821
radius_km = 100

[detection]
scope = "all"
takeoff_speed_kmh = 35
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Regions, 2)
	assert.Equal(t, "Frankfurt", cfg.Regions[1].Name)
	assert.Equal(t, "all", cfg.Detection.Scope)
	assert.Equal(t, 35.0, cfg.Detection.TakeoffSpeedKmh)
	assert.Equal(t, 30.0, cfg.Detection.LandingSpeedKmh)
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[detection]
takeoff_altitude_m = 0
tow_grace_seconds = 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.0, cfg.Detection.TakeoffAltitudeM)
	assert.Equal(t, 0, cfg.Detection.TowGraceSecs)
	assert.Equal(t, 40.0, cfg.Detection.TakeoffSpeedKmh, "keys left out still get defaults")
	assert.Equal(t, 100.0, cfg.Detection.LandingAltitudeM)

	// Programmatic configs have no file to consult
	assert.Equal(t, 30.0, Default().Detection.TakeoffAltitudeM)
	assert.Equal(t, 5, Default().Detection.TowGraceSecs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)

	_, err = LoadWithFallback(filepath.Join(dir, "missing.toml"))
	if _, statErr := os.Stat("configs/config.toml"); os.IsNotExist(statErr) {
		assert.Error(t, err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "aprs.glidernet.org:14580", cfg.OGN.Server)
	assert.Equal(t, "N0CALL", cfg.OGN.User)
	require.Len(t, cfg.Regions, 1)
	assert.Equal(t, 195.0, cfg.Regions[0].RadiusKm)
	assert.Equal(t, 300, cfg.Tracker.InactivityTimeoutSecs)
	assert.Equal(t, 60, cfg.Tracker.SweepIntervalSecs)
	assert.Equal(t, 30, cfg.Reference.RefreshIntervalMinutes)
	assert.Equal(t, 5, cfg.Hub.HeartbeatSecs)
	assert.Equal(t, "club", cfg.Detection.Scope)
	assert.Contains(t, cfg.Detection.TowPlaneModels, "PAWNEE")
	assert.Equal(t, []string{"TWR"}, cfg.ADSB.IgnoreFlights)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		isErr  error
	}{
		{
			name:   "bad port",
			mutate: func(c *Config) { c.Server.Port = 70000 },
		},
		{
			name:   "negative radius",
			mutate: func(c *Config) { c.Regions = []RegionConfig{{Name: "x", CenterLat: 1, CenterLon: 1, RadiusKm: -5}} },
		},
		{
			name:   "latitude out of range",
			mutate: func(c *Config) { c.Regions = []RegionConfig{{Name: "x", CenterLat: 91, CenterLon: 1, RadiusKm: 5}} },
		},
		{
			name: "overlapping thresholds",
			mutate: func(c *Config) {
				c.Detection.TakeoffSpeedKmh = 30
				c.Detection.TakeoffAltitudeM = 20
				c.Detection.LandingSpeedKmh = 40
				c.Detection.LandingAltitudeM = 100
			},
			isErr: ErrThresholdOverlap,
		},
		{
			name:   "unknown scope",
			mutate: func(c *Config) { c.Detection.Scope = "some" },
		},
		{
			name:   "webhook without url",
			mutate: func(c *Config) { c.Webhook.Enabled = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.isErr != nil {
				assert.ErrorIs(t, err, tt.isErr)
			}
		})
	}
}

func TestSpatialRegions(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	regions := cfg.SpatialRegions()
	require.Len(t, regions, 1)
	assert.Equal(t, "Denmark", regions[0].Name)
	assert.InDelta(t, 55.923624, regions[0].Center.Lat, 1e-9)
	assert.InDelta(t, 9.755859, regions[0].Center.Lon, 1e-9)
	assert.Equal(t, 195.0, regions[0].RadiusKm)
}
