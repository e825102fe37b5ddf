// Package spatial holds the geographic helpers shared by the ingestor, the
// detector and the reference caches.
package spatial

import (
	"math"
	"time"

	sgeo "github.com/skypies/geo"
	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

const (
	KmPerNM    = 1.852
	FeetPerM   = 3.28084
	KmhPerKnot = 1.852
)

// Point is a WGS84 position in decimal degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) latlong() sgeo.Latlong {
	return sgeo.Latlong{Lat: p.Lat, Long: p.Lon}
}

// Valid reports whether the point lies inside the coordinate ranges
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lon)
}

// DistanceKm returns the great-circle distance between two points in kilometers
func DistanceKm(a, b Point) float64 {
	return a.latlong().DistKM(b.latlong())
}

// DistanceM returns the great-circle distance between two points in meters
func DistanceM(a, b Point) float64 {
	return DistanceKm(a, b) * 1000
}

// Bearing returns the initial true bearing from a to b in degrees
func Bearing(a, b Point) float64 {
	return normalizeHeading(a.latlong().BearingTowards(b.latlong()))
}

// KmToNM converts kilometers to nautical miles
func KmToNM(km float64) float64 {
	return km / KmPerNM
}

// Region is a named circle
type Region struct {
	Name     string  `json:"name"`
	Center   Point   `json:"center"`
	RadiusKm float64 `json:"radius_km"`
}

// Contains reports whether p lies inside the region
func (r Region) Contains(p Point) bool {
	return DistanceKm(r.Center, p) <= r.RadiusKm
}

// InRegion returns the first region containing p
func InRegion(regions []Region, p Point) (Region, bool) {
	for _, r := range regions {
		if r.Contains(p) {
			return r, true
		}
	}
	return Region{}, false
}

// Nearest returns the index of the candidate closest to p whose own radius
// (as reported by radiusKm) contains p, and the distance to it. Ties keep the
// earlier candidate. Returns -1 when nothing is in range.
func Nearest(p Point, n int, at func(i int) Point, radiusKm func(i int) float64) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i := 0; i < n; i++ {
		d := DistanceKm(p, at(i))
		if d > radiusKm(i) {
			continue
		}
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}

// MagneticVariation calculates the magnetic declination for a given position and time.
// Returns declination in degrees (+East, -West), 0 when the model cannot be evaluated.
func MagneticVariation(p Point, altM float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(p.Lat, p.Lon, altM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0.0
	}

	return mag.D()
}

// MagneticTrack converts a true track to a magnetic one at the given position
func MagneticTrack(trueTrack float64, p Point, altM float64, date time.Time) float64 {
	return normalizeHeading(trueTrack - MagneticVariation(p, altM, date))
}

func normalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
