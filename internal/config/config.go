package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/yegors/ogn-tracker/internal/spatial"
)

// ErrThresholdOverlap is returned when the takeoff and landing thresholds leave a
// region where both transitions would fire on the same beacon
var ErrThresholdOverlap = errors.New("takeoff and landing thresholds overlap")

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server    ServerConfig    `toml:"server"`    // HTTP + websocket listener settings
	Logging   LoggingConfig   `toml:"logging"`   // Application logging settings
	OGN       OGNConfig       `toml:"ogn"`       // APRS-IS connection to the OGN network
	Regions   []RegionConfig  `toml:"regions"`   // Geographic areas of interest
	Tracker   TrackerConfig   `toml:"tracker"`   // In-memory aircraft state settings
	Detection DetectionConfig `toml:"detection"` // Takeoff / landing detection thresholds
	Reference ReferenceConfig `toml:"reference"` // Club planes, airfields and device database
	Storage   StorageConfig   `toml:"storage"`   // Data persistence settings
	Hub       HubConfig       `toml:"hub"`       // Subscriber fan-out settings
	ADSB      ADSBConfig      `toml:"adsb"`      // Secondary ADS-B data source
	Webhook   WebhookConfig   `toml:"webhook"`   // Flight event webhook

	meta *toml.MetaData // keys present in the loaded file, nil for programmatic configs
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Host               string   `toml:"host"`                  // Host address to bind to (0.0.0.0 for all interfaces)
	Port               int      `toml:"port"`                  // Port for HTTP and websocket traffic
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // Origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, needed for websockets)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next keep-alive request
	StaticDir          string   `toml:"static_dir"`            // Optional directory served at / (map front-end)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" (structured) or "console" (human-readable)
	File       string `toml:"file"`         // Optional rotated log file
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotate the log file after this size
	MaxBackups int    `toml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
	Compress   bool   `toml:"compress"`     // Gzip rotated files
}

// OGNConfig contains the APRS-IS connection settings
type OGNConfig struct {
	Server            string `toml:"server"`                 // APRS-IS server host:port (filtered port 14580)
	User              string `toml:"user"`                   // Login callsign, N0CALL for receive-only
	Passcode          string `toml:"passcode"`               // APRS passcode, -1 for receive-only
	AppName           string `toml:"app_name"`               // Software name sent in the login line
	AppVersion        string `toml:"app_version"`            // Software version sent in the login line
	ReconnectMinSecs  int    `toml:"reconnect_min_seconds"`  // Initial reconnect backoff
	ReconnectMaxSecs  int    `toml:"reconnect_max_seconds"`  // Upper bound of the reconnect backoff
	KeepaliveSecs     int    `toml:"keepalive_seconds"`      // Interval between #keepalive comments
	ReadTimeoutSecs   int    `toml:"read_timeout_seconds"`   // Reconnect if the feed is silent this long
	DialTimeoutSecs   int    `toml:"dial_timeout_seconds"`   // TCP connect timeout
	ExtraFilter       string `toml:"extra_filter"`           // Appended verbatim to the generated server-side filter
	HideUntrackedDevs bool   `toml:"hide_untracked_devices"` // Drop beacons of devices flagged no-track in the DDB
}

// RegionConfig is one circular area of interest
type RegionConfig struct {
	Name      string  `toml:"name"`       // Display name
	CenterLat float64 `toml:"center_lat"` // Center latitude in decimal degrees
	CenterLon float64 `toml:"center_lon"` // Center longitude in decimal degrees
	RadiusKm  float64 `toml:"radius_km"`  // Radius in kilometers
}

// TrackerConfig contains the aircraft state store settings
type TrackerConfig struct {
	HistorySize           int     `toml:"history_size"`               // Positions kept per aircraft for track requests
	InactivityTimeoutSecs int     `toml:"inactivity_timeout_seconds"` // Aircraft not heard from for this long are evicted
	SweepIntervalSecs     int     `toml:"sweep_interval_seconds"`     // How often the eviction sweep runs
	SignificantDistanceM  float64 `toml:"significant_distance_m"`     // Position delta that counts as a significant change
	SignificantSpeedKmh   float64 `toml:"significant_speed_kmh"`      // Ground speed delta that counts as a significant change
	SignificantAltitudeM  float64 `toml:"significant_altitude_m"`     // Altitude delta that counts as a significant change
}

// DetectionConfig contains the flight event detection settings
type DetectionConfig struct {
	TakeoffSpeedKmh         float64  `toml:"takeoff_speed_kmh"`                // Ground speed above which an aircraft may be airborne
	TakeoffAltitudeM        float64  `toml:"takeoff_altitude_m"`               // Altitude above which an aircraft may be airborne
	LandingSpeedKmh         float64  `toml:"landing_speed_kmh"`                // Ground speed below which an aircraft may be on the ground
	LandingAltitudeM        float64  `toml:"landing_altitude_m"`               // Altitude below which an aircraft may be on the ground
	TowTimeWindowSecs       int      `toml:"tow_time_window_seconds"`          // Max takeoff time difference between glider and tow plane
	TowDistanceM            float64  `toml:"tow_distance_m"`                   // Max takeoff distance between glider and tow plane
	TowGraceSecs            int      `toml:"tow_grace_seconds"`                // Extra wait past the tow window for delayed tow beacons
	EventCooldownSecs       int      `toml:"event_cooldown_seconds"`           // Minimum time between two events of one aircraft
	RecentTakeoffRetainSecs int      `toml:"recent_takeoff_retention_seconds"` // How long takeoffs stay available for pairing
	AirfieldRadiusKm        float64  `toml:"airfield_radius_km"`               // Default registration radius for airfields without one
	Scope                   string   `toml:"scope"`                            // "club" stores club traffic at club airfields, "all" stores everything
	WinchClimbRateMs        float64  `toml:"winch_climb_rate_ms"`              // Climb rate that keeps a winch launch going
	WinchTimeoutSecs        int      `toml:"winch_timeout_seconds"`            // Longest plausible winch launch
	WinchMinGainM           float64  `toml:"winch_min_gain_m"`                 // Altitude gain required for a winch launch report
	TowPlaneModels          []string `toml:"tow_plane_models"`                 // Model name fragments that identify tow planes
}

// ReferenceConfig contains the reference dataset settings
type ReferenceConfig struct {
	RefreshIntervalMinutes int    `toml:"refresh_interval_minutes"` // Club planes / airfields refresh interval
	AirfieldsPath          string `toml:"airfields_path"`           // Optional JSON list of all airfields (name, icao, latitude_deg, longitude_deg)
	DeviceCacheSize        int    `toml:"device_cache_size"`        // LRU capacity for device lookups
	DDBURL                 string `toml:"ddb_url"`                  // OGN device database download URL
	DDBRefreshHours        int    `toml:"ddb_refresh_hours"`        // Device database refresh interval (0 disables)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath          string  `toml:"sqlite_path"`            // SQLite database file
	QueueSize           int     `toml:"queue_size"`             // Pending position writes held in memory before new ones are dropped
	EventQueueSize      int     `toml:"event_queue_size"`       // Pending flight event writes, queue_size when unset
	BatchSize           int     `toml:"batch_size"`             // Writes per transaction
	FlushIntervalMs     int     `toml:"flush_interval_ms"`      // Maximum delay before a partial batch is written
	PositionMinSpeedKmh float64 `toml:"position_min_speed_kmh"` // Club positions slower than this are not stored
	TrackLimit          int     `toml:"track_limit"`            // Positions returned by the track API
}

// HubConfig contains the subscriber hub settings
type HubConfig struct {
	HeartbeatSecs    int `toml:"heartbeat_seconds"`     // Interval of heartbeat pings
	WriteTimeoutSecs int `toml:"write_timeout_seconds"` // Write deadline per frame
	PongTimeoutSecs  int `toml:"pong_timeout_seconds"`  // Connection is dropped if no pong arrives in this window
	SendQueueSize    int `toml:"send_queue_size"`       // Per-connection outbound queue; oldest is dropped when full
	BroadcastTickMs  int `toml:"broadcast_tick_ms"`     // Coalescing window for aircraft updates
}

// ADSBConfig contains the secondary ADS-B source settings
type ADSBConfig struct {
	Enabled            bool     `toml:"enabled"`                 // Poll adsb.lol while subscribers are connected
	BaseURL            string   `toml:"base_url"`                // API base URL
	FetchIntervalSecs  int      `toml:"fetch_interval_seconds"`  // Poll interval
	RequestTimeoutSecs int      `toml:"request_timeout_seconds"` // HTTP timeout
	MaxAltitudeFt      float64  `toml:"max_altitude_ft"`         // Higher aircraft are ignored
	IgnoreFlights      []string `toml:"ignore_flights"`          // Callsigns that are never forwarded
}

// WebhookConfig contains the flight event webhook settings
type WebhookConfig struct {
	Enabled     bool   `toml:"enabled"`         // Post stored events to URL
	URL         string `toml:"url"`             // Receiver endpoint
	APIKey      string `toml:"api_key"`         // Sent as X-api-key
	Origin      string `toml:"origin"`          // Origin field of the payload
	TimeoutSecs int    `toml:"timeout_seconds"` // HTTP timeout
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	config.meta = &md

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Default returns a configuration with every default applied
func Default() *Config {
	c := &Config{}
	// Defaults never fail validation
	_ = c.Validate()
	return c
}

// Validate fills in defaults and validates the configuration
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	c.applyLoggingDefaults()
	c.applyOGNDefaults()
	if err := c.ValidateRegions(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.ValidateDetection(); err != nil {
		return err
	}
	c.applyReferenceDefaults()
	if err := c.validateStorage(); err != nil {
		return err
	}
	c.applyHubDefaults()
	c.applyADSBDefaults()
	if err := c.validateWebhook(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8765
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}
	return nil
}

func (c *Config) applyLoggingDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

func (c *Config) applyOGNDefaults() {
	if c.OGN.Server == "" {
		c.OGN.Server = "aprs.glidernet.org:14580"
	}
	if c.OGN.User == "" {
		c.OGN.User = "N0CALL"
	}
	if c.OGN.Passcode == "" {
		c.OGN.Passcode = "-1"
	}
	if c.OGN.AppName == "" {
		c.OGN.AppName = "ogn-tracker"
	}
	if c.OGN.AppVersion == "" {
		c.OGN.AppVersion = "1.0"
	}
	if c.OGN.ReconnectMinSecs == 0 {
		c.OGN.ReconnectMinSecs = 1
	}
	if c.OGN.ReconnectMaxSecs == 0 {
		c.OGN.ReconnectMaxSecs = 60
	}
	if c.OGN.ReconnectMaxSecs < c.OGN.ReconnectMinSecs {
		c.OGN.ReconnectMaxSecs = c.OGN.ReconnectMinSecs
	}
	if c.OGN.KeepaliveSecs == 0 {
		c.OGN.KeepaliveSecs = 240
	}
	if c.OGN.ReadTimeoutSecs == 0 {
		c.OGN.ReadTimeoutSecs = 300
	}
	if c.OGN.DialTimeoutSecs == 0 {
		c.OGN.DialTimeoutSecs = 15
	}
}

// ValidateRegions validates the configured areas of interest
func (c *Config) ValidateRegions() error {
	if len(c.Regions) == 0 {
		c.Regions = []RegionConfig{{
			Name:      "Denmark",
			CenterLat: 55.923624,
			CenterLon: 9.755859,
			RadiusKm:  195,
		}}
	}
	for i, r := range c.Regions {
		if r.Name == "" {
			c.Regions[i].Name = fmt.Sprintf("region-%d", i+1)
		}
		if r.CenterLat < -90 || r.CenterLat > 90 {
			return fmt.Errorf("invalid center_lat for region %q: %f", r.Name, r.CenterLat)
		}
		if r.CenterLon < -180 || r.CenterLon > 180 {
			return fmt.Errorf("invalid center_lon for region %q: %f", r.Name, r.CenterLon)
		}
		if r.RadiusKm <= 0 {
			return fmt.Errorf("radius_km must be positive for region %q: %f", r.Name, r.RadiusKm)
		}
	}
	return nil
}

func (c *Config) validateTracker() error {
	if c.Tracker.HistorySize == 0 {
		c.Tracker.HistorySize = 100
	}
	if c.Tracker.InactivityTimeoutSecs == 0 {
		c.Tracker.InactivityTimeoutSecs = 300
	}
	if c.Tracker.SweepIntervalSecs == 0 {
		c.Tracker.SweepIntervalSecs = 60
	}
	if c.Tracker.SignificantDistanceM == 0 {
		c.Tracker.SignificantDistanceM = 5
	}
	if c.Tracker.SignificantSpeedKmh == 0 {
		c.Tracker.SignificantSpeedKmh = 2
	}
	if c.Tracker.SignificantAltitudeM == 0 {
		c.Tracker.SignificantAltitudeM = 2
	}

	if c.Tracker.HistorySize < 0 {
		return fmt.Errorf("history_size must be positive: %d", c.Tracker.HistorySize)
	}
	if c.Tracker.InactivityTimeoutSecs < 0 {
		return fmt.Errorf("inactivity_timeout_seconds must be positive: %d", c.Tracker.InactivityTimeoutSecs)
	}
	if c.Tracker.SweepIntervalSecs < 0 {
		return fmt.Errorf("sweep_interval_seconds must be positive: %d", c.Tracker.SweepIntervalSecs)
	}
	return nil
}

// unset reports whether key was left out of the loaded file. A zero value
// that was written explicitly is kept.
func (c *Config) unset(key ...string) bool {
	return c.meta == nil || !c.meta.IsDefined(key...)
}

// ValidateDetection validates the flight event detection settings
func (c *Config) ValidateDetection() error {
	d := &c.Detection

	// Defaults keep the landing region disjoint from the takeoff region through the speed bands
	if d.TakeoffSpeedKmh == 0 && c.unset("detection", "takeoff_speed_kmh") {
		d.TakeoffSpeedKmh = 40
	}
	if d.TakeoffAltitudeM == 0 && c.unset("detection", "takeoff_altitude_m") {
		d.TakeoffAltitudeM = 30
	}
	if d.LandingSpeedKmh == 0 && c.unset("detection", "landing_speed_kmh") {
		d.LandingSpeedKmh = 30
	}
	if d.LandingAltitudeM == 0 && c.unset("detection", "landing_altitude_m") {
		d.LandingAltitudeM = 100
	}
	if d.TowTimeWindowSecs == 0 && c.unset("detection", "tow_time_window_seconds") {
		d.TowTimeWindowSecs = 5
	}
	if d.TowDistanceM == 0 && c.unset("detection", "tow_distance_m") {
		d.TowDistanceM = 300
	}
	if d.TowGraceSecs == 0 && c.unset("detection", "tow_grace_seconds") {
		d.TowGraceSecs = 5
	}
	if d.EventCooldownSecs == 0 && c.unset("detection", "event_cooldown_seconds") {
		d.EventCooldownSecs = 10
	}
	if d.RecentTakeoffRetainSecs == 0 && c.unset("detection", "recent_takeoff_retention_seconds") {
		d.RecentTakeoffRetainSecs = 60
	}
	if d.AirfieldRadiusKm == 0 {
		d.AirfieldRadiusKm = 5
	}
	if d.Scope == "" {
		d.Scope = "club"
	}
	if d.WinchClimbRateMs == 0 && c.unset("detection", "winch_climb_rate_ms") {
		d.WinchClimbRateMs = 5
	}
	if d.WinchTimeoutSecs == 0 {
		d.WinchTimeoutSecs = 120
	}
	if d.WinchMinGainM == 0 && c.unset("detection", "winch_min_gain_m") {
		d.WinchMinGainM = 100
	}
	if len(d.TowPlaneModels) == 0 {
		d.TowPlaneModels = []string{
			"PA-25", "PAWNEE", "RALLYE", "DR-400", "ROBIN", "MAULE", "CUB", "WILGA", "HUSKY",
			"SUPER CUB", "SCOUT", "CITABRIA", "CESSNA", "PIPER",
		}
	}

	if d.TakeoffSpeedKmh < 0 || d.LandingSpeedKmh < 0 {
		return fmt.Errorf("speed thresholds must be positive: takeoff=%f landing=%f", d.TakeoffSpeedKmh, d.LandingSpeedKmh)
	}
	if d.LandingSpeedKmh > d.TakeoffSpeedKmh && d.LandingAltitudeM > d.TakeoffAltitudeM {
		return fmt.Errorf("%w: landing (%.0f km/h, %.0f m) must stay below takeoff (%.0f km/h, %.0f m) in speed or altitude",
			ErrThresholdOverlap, d.LandingSpeedKmh, d.LandingAltitudeM, d.TakeoffSpeedKmh, d.TakeoffAltitudeM)
	}
	if d.TowTimeWindowSecs < 0 {
		return fmt.Errorf("tow_time_window_seconds must be positive: %d", d.TowTimeWindowSecs)
	}
	if d.TowGraceSecs < 0 {
		return fmt.Errorf("tow_grace_seconds must be positive: %d", d.TowGraceSecs)
	}
	if d.TowDistanceM < 0 {
		return fmt.Errorf("tow_distance_m must be positive: %f", d.TowDistanceM)
	}
	if d.RecentTakeoffRetainSecs < d.TowTimeWindowSecs {
		return fmt.Errorf("recent_takeoff_retention_seconds (%d) must be at least tow_time_window_seconds (%d)",
			d.RecentTakeoffRetainSecs, d.TowTimeWindowSecs)
	}
	if d.AirfieldRadiusKm < 0 {
		return fmt.Errorf("airfield_radius_km must be positive: %f", d.AirfieldRadiusKm)
	}
	if d.Scope != "club" && d.Scope != "all" {
		return fmt.Errorf("invalid detection scope: %s (expected club or all)", d.Scope)
	}
	return nil
}

func (c *Config) applyReferenceDefaults() {
	if c.Reference.RefreshIntervalMinutes <= 0 {
		c.Reference.RefreshIntervalMinutes = 30
	}
	if c.Reference.DeviceCacheSize <= 0 {
		c.Reference.DeviceCacheSize = 4096
	}
	if c.Reference.DDBURL == "" {
		c.Reference.DDBURL = "https://ddb.glidernet.org/download/"
	}
	if c.Reference.DDBRefreshHours < 0 {
		c.Reference.DDBRefreshHours = 0
	}
}

func (c *Config) validateStorage() error {
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/ogn-tracker.db"
	}
	if c.Storage.QueueSize == 0 {
		c.Storage.QueueSize = 1024
	}
	if c.Storage.BatchSize == 0 {
		c.Storage.BatchSize = 64
	}
	if c.Storage.FlushIntervalMs == 0 {
		c.Storage.FlushIntervalMs = 500
	}
	if c.Storage.PositionMinSpeedKmh == 0 {
		c.Storage.PositionMinSpeedKmh = 10
	}
	if c.Storage.TrackLimit == 0 {
		c.Storage.TrackLimit = 100
	}
	if c.Storage.QueueSize < 0 || c.Storage.BatchSize < 0 {
		return fmt.Errorf("invalid storage queue settings: queue_size=%d batch_size=%d", c.Storage.QueueSize, c.Storage.BatchSize)
	}
	return nil
}

func (c *Config) applyHubDefaults() {
	if c.Hub.HeartbeatSecs <= 0 {
		c.Hub.HeartbeatSecs = 5
	}
	if c.Hub.WriteTimeoutSecs <= 0 {
		c.Hub.WriteTimeoutSecs = 10
	}
	if c.Hub.PongTimeoutSecs <= 0 {
		c.Hub.PongTimeoutSecs = 30
	}
	if c.Hub.PongTimeoutSecs <= c.Hub.HeartbeatSecs {
		c.Hub.PongTimeoutSecs = c.Hub.HeartbeatSecs * 3
	}
	if c.Hub.SendQueueSize <= 0 {
		c.Hub.SendQueueSize = 256
	}
	if c.Hub.BroadcastTickMs <= 0 {
		c.Hub.BroadcastTickMs = 250
	}
}

func (c *Config) applyADSBDefaults() {
	if c.ADSB.BaseURL == "" {
		c.ADSB.BaseURL = "https://api.adsb.lol"
	}
	if c.ADSB.FetchIntervalSecs <= 0 {
		c.ADSB.FetchIntervalSecs = 5
	}
	if c.ADSB.RequestTimeoutSecs <= 0 {
		c.ADSB.RequestTimeoutSecs = 10
	}
	if c.ADSB.MaxAltitudeFt == 0 {
		c.ADSB.MaxAltitudeFt = 5000
	}
	if c.ADSB.IgnoreFlights == nil {
		c.ADSB.IgnoreFlights = []string{"TWR"}
	}
}

func (c *Config) validateWebhook() error {
	if c.Webhook.Origin == "" {
		c.Webhook.Origin = "FSK"
	}
	if c.Webhook.TimeoutSecs <= 0 {
		c.Webhook.TimeoutSecs = 5
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook url is required when the webhook is enabled")
	}
	return nil
}

// Seconds converts a configured number of seconds to a duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// SpatialRegions returns the configured regions in the form used by the
// filters and pollers
func (c *Config) SpatialRegions() []spatial.Region {
	regions := make([]spatial.Region, 0, len(c.Regions))
	for _, r := range c.Regions {
		regions = append(regions, spatial.Region{
			Name:     r.Name,
			Center:   spatial.Point{Lat: r.CenterLat, Lon: r.CenterLon},
			RadiusKm: r.RadiusKm,
		})
	}
	return regions
}
