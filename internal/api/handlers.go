package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/ogn-tracker/internal/events"
	"github.com/yegors/ogn-tracker/internal/reference"
	"github.com/yegors/ogn-tracker/internal/storage/sqlite"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	defaultTrackLimit = 100
	maxTrackLimit     = 5000
	maxBodySize       = 1 << 20
)

// AircraftSource is the live aircraft state
type AircraftSource interface {
	ListActive() []tracker.AircraftState
	Get(id string) (tracker.AircraftState, bool)
	History(id string) []tracker.Position
}

// Store is the persisted data served and administered by the API
type Store interface {
	RecentEvents(ctx context.Context, filter sqlite.EventFilter) ([]events.FlightEvent, error)
	Track(ctx context.Context, aircraftID string, limit int) ([]tracker.Position, error)
	QueryClubPlanes(ctx context.Context) ([]string, error)
	ReplaceClubPlanes(ctx context.Context, ids []string) error
	QueryClubAirfields(ctx context.Context) ([]reference.Airfield, error)
	ReplaceClubAirfields(ctx context.Context, airfields []reference.Airfield) error
}

// Refresher reloads a reference dataset from its source
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Refreshers are the reference caches reloaded after club data changes. Any
// of them may be nil.
type Refreshers struct {
	ClubPlanes Refresher
	Airfields  Refresher
}

// StatsFunc reports the counters of one component for /health
type StatsFunc func() any

// Handler contains the API handlers
type Handler struct {
	aircraft   AircraftSource
	store      Store
	refreshers Refreshers
	stats      map[string]StatsFunc
	statsOrder []string
	trackLimit int
	version    string
	started    time.Time
	logger     *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(aircraft AircraftSource, store Store, refreshers Refreshers, version string, log *logger.Logger) *Handler {
	return &Handler{
		aircraft:   aircraft,
		store:      store,
		refreshers: refreshers,
		stats:      make(map[string]StatsFunc),
		trackLimit: defaultTrackLimit,
		version:    version,
		started:    time.Now(),
		logger:     log.Named("api-handler"),
	}
}

// SetTrackLimit sets the number of positions returned by the track endpoint
// when the request names no limit
func (h *Handler) SetTrackLimit(n int) {
	if n > 0 {
		h.trackLimit = min(n, maxTrackLimit)
	}
}

// AddStats registers the counters of a component under name
func (h *Handler) AddStats(name string, fn StatsFunc) {
	if _, ok := h.stats[name]; !ok {
		h.statsOrder = append(h.statsOrder, name)
	}
	h.stats[name] = fn
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Aircraft      int            `json:"aircraft"`
	Stats         map[string]any `json:"stats"`
}

// Health reports liveness plus the component counters
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]any, len(h.stats))
	for _, name := range h.statsOrder {
		stats[name] = h.stats[name]()
	}
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Aircraft:      len(h.aircraft.ListActive()),
		Stats:         stats,
	})
}

// GetAllAircraft returns every tracked aircraft. Optional filters: type,
// club=true|false and phase.
func (h *Handler) GetAllAircraft(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	aircraftType := tracker.AircraftType(q.Get("type"))
	phase := tracker.FlightPhase(q.Get("phase"))

	var club *bool
	if v := q.Get("club"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid club filter", http.StatusBadRequest)
			return
		}
		club = &b
	}

	aircraft := make([]tracker.AircraftState, 0)
	for _, st := range h.aircraft.ListActive() {
		if aircraftType != "" && st.AircraftType != aircraftType {
			continue
		}
		if phase != "" && st.Phase != phase {
			continue
		}
		if club != nil && st.Club != *club {
			continue
		}
		aircraft = append(aircraft, st)
	}
	sort.Slice(aircraft, func(i, j int) bool { return aircraft[i].ID < aircraft[j].ID })

	WriteJSON(w, http.StatusOK, map[string]any{
		"count":    len(aircraft),
		"aircraft": aircraft,
	})
}

// GetAircraft returns one aircraft by id
func (h *Handler) GetAircraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing aircraft ID", http.StatusBadRequest)
		return
	}

	st, found := h.aircraft.Get(id)
	if !found {
		http.Error(w, "Aircraft not found", http.StatusNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// GetAircraftTrack returns the recent positions of an aircraft. The in-memory
// history of a live aircraft is served unless source=db asks for the stored
// track.
func (h *Handler) GetAircraftTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing aircraft ID", http.StatusBadRequest)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), h.trackLimit, maxTrackLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "memory"
		if _, live := h.aircraft.Get(id); !live {
			source = "db"
		}
	}

	var positions []tracker.Position
	switch source {
	case "memory":
		if _, found := h.aircraft.Get(id); !found {
			http.Error(w, "Aircraft not found", http.StatusNotFound)
			return
		}
		positions = h.aircraft.History(id)
		if len(positions) > limit {
			positions = positions[len(positions)-limit:]
		}
	case "db":
		positions, err = h.store.Track(r.Context(), id, limit)
		if err != nil {
			h.logger.Error("Failed to load track",
				logger.Error(err),
				logger.String("aircraft", id))
			http.Error(w, "Failed to load track", http.StatusInternalServerError)
			return
		}
	default:
		http.Error(w, "Invalid source: must be memory or db", http.StatusBadRequest)
		return
	}

	if positions == nil {
		positions = []tracker.Position{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"aircraft_id": id,
		"source":      source,
		"count":       len(positions),
		"positions":   positions,
	})
}

// GetEvents returns stored flight events, newest first. Optional filters:
// limit, aircraft, airfield, type and since (RFC 3339).
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"), defaultEventLimit, maxEventLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filter := sqlite.EventFilter{
		AircraftID: q.Get("aircraft"),
		Airfield:   strings.ToUpper(q.Get("airfield")),
		Type:       events.EventType(q.Get("type")),
		Limit:      limit,
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "Invalid since: must be RFC 3339", http.StatusBadRequest)
			return
		}
		filter.Since = since
	}

	evs, err := h.store.RecentEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to query events", logger.Error(err))
		http.Error(w, "Failed to query events", http.StatusInternalServerError)
		return
	}
	if evs == nil {
		evs = []events.FlightEvent{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"count":  len(evs),
		"events": evs,
	})
}

// GetClubPlanes returns the stored club plane addresses
func (h *Handler) GetClubPlanes(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.QueryClubPlanes(r.Context())
	if err != nil {
		h.logger.Error("Failed to query club planes", logger.Error(err))
		http.Error(w, "Failed to query club planes", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	WriteJSON(w, http.StatusOK, ids)
}

// PutClubPlanes replaces the club planes with a JSON array of ids
func (h *Handler) PutClubPlanes(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := decodeBody(w, r, &ids); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	for _, id := range ids {
		if reference.NormalizeID(id) == "" {
			http.Error(w, "Empty aircraft ID", http.StatusBadRequest)
			return
		}
	}

	if err := h.store.ReplaceClubPlanes(r.Context(), ids); err != nil {
		h.logger.Error("Failed to replace club planes", logger.Error(err))
		http.Error(w, "Failed to replace club planes", http.StatusInternalServerError)
		return
	}
	h.refresh(r.Context(), "club_planes", h.refreshers.ClubPlanes)
	h.GetClubPlanes(w, r)
}

// GetClubAirfields returns the stored club airfields
func (h *Handler) GetClubAirfields(w http.ResponseWriter, r *http.Request) {
	airfields, err := h.store.QueryClubAirfields(r.Context())
	if err != nil {
		h.logger.Error("Failed to query club airfields", logger.Error(err))
		http.Error(w, "Failed to query club airfields", http.StatusInternalServerError)
		return
	}
	if airfields == nil {
		airfields = []reference.Airfield{}
	}
	WriteJSON(w, http.StatusOK, airfields)
}

// PutClubAirfields replaces the club airfields with a JSON array
func (h *Handler) PutClubAirfields(w http.ResponseWriter, r *http.Request) {
	var airfields []reference.Airfield
	if err := decodeBody(w, r, &airfields); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := validateAirfields(airfields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.ReplaceClubAirfields(r.Context(), airfields); err != nil {
		h.logger.Error("Failed to replace club airfields", logger.Error(err))
		http.Error(w, "Failed to replace club airfields", http.StatusInternalServerError)
		return
	}
	h.refresh(r.Context(), "airfields", h.refreshers.Airfields)
	h.GetClubAirfields(w, r)
}

// RefreshReference reloads every reference cache from storage
func (h *Handler) RefreshReference(w http.ResponseWriter, r *http.Request) {
	result := map[string]string{}
	for name, ref := range map[string]Refresher{
		"club_planes": h.refreshers.ClubPlanes,
		"airfields":   h.refreshers.Airfields,
	} {
		if ref == nil {
			continue
		}
		if err := h.refresh(r.Context(), name, ref); err != nil {
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}

	status := http.StatusOK
	for _, v := range result {
		if v != "ok" {
			status = http.StatusBadGateway
		}
	}
	WriteJSON(w, status, result)
}

// refresh reloads one cache. Failures keep the previous data and are only
// reported.
func (h *Handler) refresh(ctx context.Context, name string, ref Refresher) error {
	if ref == nil {
		return nil
	}
	if err := ref.Refresh(ctx); err != nil {
		h.logger.Warn("Reference refresh failed",
			logger.String("dataset", name),
			logger.Error(err))
		return err
	}
	return nil
}

func validateAirfields(airfields []reference.Airfield) error {
	for _, af := range airfields {
		if strings.TrimSpace(af.ID) == "" {
			return errors.New("airfield without icao")
		}
		if af.Lat < -90 || af.Lat > 90 {
			return fmt.Errorf("airfield %s: invalid latitude: must be between -90 and 90", af.ID)
		}
		if af.Lon < -180 || af.Lon > 180 {
			return fmt.Errorf("airfield %s: invalid longitude: must be between -180 and 180", af.ID)
		}
		if af.RadiusKm < 0 {
			return fmt.Errorf("airfield %s: negative radius", af.ID)
		}
	}
	return nil
}

func parseLimit(v string, def, ceiling int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit: must be a positive integer")
	}
	if n > ceiling {
		n = ceiling
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
