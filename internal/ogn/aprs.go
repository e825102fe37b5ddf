package ogn

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/internal/tracker"
)

var (
	// ErrNotPosition marks lines that are valid but carry no aircraft position
	// (server comments, status and receiver beacons)
	ErrNotPosition = errors.New("not an aircraft position")
	// ErrMissingPosition marks position reports without usable coordinates
	ErrMissingPosition = errors.New("missing or invalid position")
	// ErrMalformed marks lines that cannot be parsed at all
	ErrMalformed = errors.New("malformed line")
	// ErrNoTrack marks beacons of devices that asked not to be tracked
	ErrNoTrack = errors.New("device requested no tracking")
)

const (
	fpmToMs       = 0.00508
	futureSkew    = 5 * time.Minute
	positionChars = 19 // ddmm.mmN + table + dddmm.mmE + code
)

// OGN address types encoded in the id field
var addressTypes = map[int]string{
	0: "random",
	1: "icao",
	2: "flarm",
	3: "ogn",
}

// ParseLine turns one APRS-IS line into a beacon. now is the receive time used
// to resolve the hhmmss timestamp to a date.
func ParseLine(line string, now time.Time) (tracker.Beacon, error) {
	var b tracker.Beacon

	line = strings.TrimRight(line, "\r\n")
	if line == "" || strings.HasPrefix(line, "#") {
		return b, ErrNotPosition
	}

	header, body, ok := strings.Cut(line, ":")
	if !ok || body == "" {
		return b, fmt.Errorf("%w: no body", ErrMalformed)
	}
	src, rest, ok := strings.Cut(header, ">")
	if !ok || src == "" {
		return b, fmt.Errorf("%w: no source callsign", ErrMalformed)
	}
	dest, path, _ := strings.Cut(rest, ",")
	if isReceiver(dest, path) {
		return b, ErrNotPosition
	}

	now = now.UTC()
	ts := now
	switch body[0] {
	case '/', '@':
		if len(body) < 8 {
			return b, fmt.Errorf("%w: short timestamp", ErrMalformed)
		}
		var err error
		ts, err = parseTimestamp(body[1:8], now)
		if err != nil {
			return b, err
		}
		body = body[8:]
	case '!', '=':
		body = body[1:]
	default:
		return b, ErrNotPosition
	}

	if len(body) < positionChars {
		return b, ErrMissingPosition
	}
	lat, err := parseLatitude(body[0:8])
	if err != nil {
		return b, err
	}
	table := body[8]
	lon, err := parseLongitude(body[9:18])
	if err != nil {
		return b, err
	}
	code := body[18]
	if table == 'I' && code == '&' {
		return b, ErrNotPosition
	}
	ext := body[positionChars:]

	b.ID = src
	b.Symbol = string([]byte{table, code})
	b.Timestamp = ts
	b.Receiver = receiverOf(path)

	if len(ext) >= 7 && ext[3] == '/' && isDigits(ext[0:3]) && isDigits(ext[4:7]) {
		course, _ := strconv.Atoi(ext[0:3])
		knots, _ := strconv.Atoi(ext[4:7])
		if course > 0 && course <= 360 {
			track := float64(course % 360)
			b.Track = &track
		}
		b.GroundSpeedKmh = float64(knots) * spatial.KmhPerKnot
		ext = ext[7:]
	}

	if i := strings.Index(ext, "/A="); i >= 0 {
		end := i + 3
		for end < len(ext) && (isDigit(ext[end]) || (end == i+3 && ext[end] == '-')) {
			end++
		}
		feet, err := strconv.Atoi(ext[i+3 : end])
		if err != nil {
			return b, fmt.Errorf("%w: bad altitude %q", ErrMalformed, ext[i+3:end])
		}
		b.AltitudeM = float64(feet) / spatial.FeetPerM
		ext = ext[:i] + ext[end:]
	}

	category := -1
	for _, field := range strings.Fields(ext) {
		switch {
		case len(field) == 5 && field[0] == '!' && field[1] == 'W' && field[4] == '!':
			if isDigit(field[2]) && isDigit(field[3]) {
				lat += sign(lat) * float64(field[2]-'0') * 0.001 / 60
				lon += sign(lon) * float64(field[3]-'0') * 0.001 / 60
			}
		case len(field) == 10 && strings.HasPrefix(field, "id"):
			flags, err := strconv.ParseUint(field[2:4], 16, 8)
			if err != nil {
				continue
			}
			if _, err := strconv.ParseUint(field[4:], 16, 32); err != nil {
				continue
			}
			if flags&0x40 != 0 {
				return b, ErrNoTrack
			}
			category = int(flags>>2) & 0x0f
			b.AddressType = addressTypes[int(flags&0x03)]
			b.Address = strings.ToUpper(field[4:])
		case strings.HasSuffix(field, "fpm"):
			if v, err := strconv.ParseFloat(strings.TrimSuffix(field, "fpm"), 64); err == nil {
				climb := roundTo(v*fpmToMs, 2)
				b.ClimbRateMs = &climb
			}
		case strings.HasSuffix(field, "rot"):
			if v, err := strconv.ParseFloat(strings.TrimSuffix(field, "rot"), 64); err == nil {
				b.TurnRate = &v
			}
		}
	}

	b.Lat = roundTo(lat, 6)
	b.Lon = roundTo(lon, 6)
	if !b.Point().Valid() {
		return b, ErrMissingPosition
	}
	if b.Address == "" {
		b.Address = addressFromCallsign(src)
	}

	b.AircraftType = typeFromSymbol(table, code)
	if t, ok := typeFromCategory(category); ok {
		b.AircraftType = t
	}
	return b, nil
}

// isReceiver reports whether the header belongs to a ground station
func isReceiver(dest, path string) bool {
	if dest == "OGNSDR" || dest == "OGNSXR" {
		return true
	}
	return strings.Contains(path, "TCPIP*")
}

// receiverOf returns the receiving station, the last element of the path
func receiverOf(path string) string {
	if path == "" {
		return ""
	}
	parts := strings.Split(path, ",")
	return parts[len(parts)-1]
}

func parseTimestamp(s string, now time.Time) (time.Time, error) {
	if !isDigits(s[0:6]) {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, s)
	}
	a, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	c, _ := strconv.Atoi(s[4:6])

	switch s[6] {
	case 'h':
		if a > 23 || m > 59 || c > 59 {
			return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, s)
		}
		ts := time.Date(now.Year(), now.Month(), now.Day(), a, m, c, 0, time.UTC)
		if ts.Sub(now) > futureSkew {
			ts = ts.AddDate(0, 0, -1)
		}
		return ts, nil
	case 'z':
		if a < 1 || a > 31 || m > 23 || c > 59 {
			return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, s)
		}
		ts := time.Date(now.Year(), now.Month(), a, m, c, 0, 0, time.UTC)
		if ts.Sub(now) > futureSkew {
			ts = time.Date(now.Year(), now.Month()-1, a, m, c, 0, 0, time.UTC)
		}
		return ts, nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported timestamp %q", ErrMalformed, s)
	}
}

// parseLatitude parses ddmm.mmN
func parseLatitude(s string) (float64, error) {
	if s[4] != '.' || !isDigits(s[0:4]) || !isDigits(s[5:7]) {
		return 0, ErrMissingPosition
	}
	deg, _ := strconv.Atoi(s[0:2])
	minutes, _ := strconv.ParseFloat(s[2:7], 64)
	if minutes >= 60 {
		return 0, ErrMissingPosition
	}
	v := float64(deg) + minutes/60
	switch s[7] {
	case 'N':
	case 'S':
		v = -v
	default:
		return 0, ErrMissingPosition
	}
	return v, nil
}

// parseLongitude parses dddmm.mmE
func parseLongitude(s string) (float64, error) {
	if s[5] != '.' || !isDigits(s[0:5]) || !isDigits(s[6:8]) {
		return 0, ErrMissingPosition
	}
	deg, _ := strconv.Atoi(s[0:3])
	minutes, _ := strconv.ParseFloat(s[3:8], 64)
	if minutes >= 60 {
		return 0, ErrMissingPosition
	}
	v := float64(deg) + minutes/60
	switch s[8] {
	case 'E':
	case 'W':
		v = -v
	default:
		return 0, ErrMissingPosition
	}
	return v, nil
}

// addressFromCallsign extracts the device address from callsigns like FLRDDE626
func addressFromCallsign(src string) string {
	for _, prefix := range []string{"FLR", "ICA", "OGN", "PAW", "SKY", "FNT"} {
		if rest, ok := strings.CutPrefix(src, prefix); ok && len(rest) == 6 {
			if _, err := strconv.ParseUint(rest, 16, 32); err == nil {
				return strings.ToUpper(rest)
			}
		}
	}
	return ""
}

func typeFromSymbol(table, code byte) tracker.AircraftType {
	switch string([]byte{table, code}) {
	case "/'":
		return tracker.TypeGlider
	case "\\^":
		return tracker.TypeTowPlane
	case "/X":
		return tracker.TypeHelicopter
	case "/g":
		return tracker.TypeParaglider
	case "/^":
		return tracker.TypeJet
	case "/O":
		return tracker.TypeBalloon
	case "/D":
		return tracker.TypeUAV
	case "\\n":
		return tracker.TypeStatic
	default:
		return tracker.TypeUnknown
	}
}

func typeFromCategory(category int) (tracker.AircraftType, bool) {
	switch category {
	case 1:
		return tracker.TypeGlider, true
	case 2, 5, 8:
		return tracker.TypeTowPlane, true
	case 3:
		return tracker.TypeHelicopter, true
	case 4, 6, 7:
		return tracker.TypeParaglider, true
	case 9:
		return tracker.TypeJet, true
	case 11, 12:
		return tracker.TypeBalloon, true
	case 13:
		return tracker.TypeUAV, true
	case 14, 15:
		return tracker.TypeStatic, true
	default:
		return "", false
	}
}

// RefineType upgrades unknown and powered aircraft to tow planes when their
// model matches one of the given model fragments
func RefineType(t tracker.AircraftType, model string, towModels []string) tracker.AircraftType {
	if t != tracker.TypeUnknown && t != tracker.TypeTowPlane {
		return t
	}
	upper := strings.ToUpper(model)
	for _, fragment := range towModels {
		if fragment != "" && strings.Contains(upper, strings.ToUpper(fragment)) {
			return tracker.TypeTowPlane
		}
	}
	return t
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
