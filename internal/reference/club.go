package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// ClubSource provides the club-owned datasets
type ClubSource interface {
	QueryClubPlanes(ctx context.Context) ([]string, error)
	QueryClubAirfields(ctx context.Context) ([]Airfield, error)
}

// ClubPlanes is the set of device addresses owned by the club
type ClubPlanes struct {
	*Cache[map[string]struct{}]
}

// NewClubPlanes creates a club plane cache backed by src
func NewClubPlanes(src ClubSource, interval time.Duration, log *logger.Logger) *ClubPlanes {
	fetch := func(ctx context.Context) (map[string]struct{}, error) {
		ids, err := src.QueryClubPlanes(ctx)
		if err != nil {
			return nil, err
		}
		return planeSet(ids), nil
	}
	return &ClubPlanes{Cache: NewCache("club-planes", fetch, interval, log)}
}

func planeSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = NormalizeID(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Contains reports whether id belongs to a club plane. Any FLR/ICA/OGN prefix
// is ignored.
func (c *ClubPlanes) Contains(id string) bool {
	set, ok := c.Load()
	if !ok {
		return false
	}
	_, found := set[NormalizeID(id)]
	return found
}

// List returns the club plane addresses in sorted order
func (c *ClubPlanes) List() []string {
	set, _ := c.Load()
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Airfields is the airfield list, made of the optional airfields file plus
// the club airfields. Club entries override file entries with the same id.
type Airfields struct {
	*Cache[[]Airfield]
	defaultRadiusKm float64
}

// NewAirfields creates an airfield cache. path may be empty.
func NewAirfields(src ClubSource, path string, defaultRadiusKm float64, interval time.Duration, log *logger.Logger) *Airfields {
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = 5
	}
	fetch := func(ctx context.Context) ([]Airfield, error) {
		var base []Airfield
		if path != "" {
			var err error
			if base, err = LoadAirfieldsFile(path); err != nil {
				return nil, err
			}
		}
		club, err := src.QueryClubAirfields(ctx)
		if err != nil {
			return nil, err
		}
		return mergeAirfields(base, club), nil
	}
	return &Airfields{
		Cache:           NewCache("airfields", fetch, interval, log),
		defaultRadiusKm: defaultRadiusKm,
	}
}

// LoadAirfieldsFile reads a JSON array of airfields
func LoadAirfieldsFile(path string) ([]Airfield, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read airfields file: %w", err)
	}
	var airfields []Airfield
	if err := json.Unmarshal(data, &airfields); err != nil {
		return nil, fmt.Errorf("failed to parse airfields file: %w", err)
	}
	return airfields, nil
}

func mergeAirfields(base, club []Airfield) []Airfield {
	byID := make(map[string]int, len(base)+len(club))
	merged := make([]Airfield, 0, len(base)+len(club))
	add := func(a Airfield) {
		key := strings.ToUpper(a.ID)
		if i, ok := byID[key]; ok && key != "" {
			merged[i] = a
			return
		}
		byID[key] = len(merged)
		merged = append(merged, a)
	}
	for _, a := range base {
		add(a)
	}
	for _, a := range club {
		a.Club = true
		add(a)
	}
	return merged
}

// Nearest returns the closest airfield whose registration radius contains p
func (a *Airfields) Nearest(p spatial.Point) (Airfield, float64, bool) {
	list, _ := a.Load()
	i, dist := spatial.Nearest(p, len(list),
		func(i int) spatial.Point { return list[i].Point() },
		func(i int) float64 {
			if list[i].RadiusKm > 0 {
				return list[i].RadiusKm
			}
			return a.defaultRadiusKm
		})
	if i < 0 {
		return Airfield{}, 0, false
	}
	return list[i], dist, true
}

// Lookup finds an airfield by id or name, ignoring case
func (a *Airfields) Lookup(name string) (Airfield, bool) {
	list, _ := a.Load()
	for _, af := range list {
		if strings.EqualFold(af.ID, name) || strings.EqualFold(af.Name, name) {
			return af, true
		}
	}
	return Airfield{}, false
}

// IsClub reports whether the airfield with the given id is a club airfield
func (a *Airfields) IsClub(id string) bool {
	af, ok := a.Lookup(id)
	return ok && af.Club
}
