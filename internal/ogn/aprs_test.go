package ogn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/ogn-tracker/internal/tracker"
)

const gliderLine = `FLRDDE626>OGFLR,qAS,EKSL:/101500h5555.55N/00930.00E'231/048/A=001234 !W12! id06DDE626 +198fpm +0.5rot 7.2dB 0e -0.4kHz`

func TestParseLineGlider(t *testing.T) {
	now := time.Date(2025, 6, 14, 10, 16, 0, 0, time.UTC)

	b, err := ParseLine(gliderLine, now)
	require.NoError(t, err)

	assert.Equal(t, "FLRDDE626", b.ID)
	assert.Equal(t, "DDE626", b.Address)
	assert.Equal(t, "flarm", b.AddressType)
	assert.Equal(t, "EKSL", b.Receiver)
	assert.Equal(t, "/'", b.Symbol)
	assert.Equal(t, tracker.TypeGlider, b.AircraftType)
	assert.Equal(t, time.Date(2025, 6, 14, 10, 15, 0, 0, time.UTC), b.Timestamp)
	assert.InDelta(t, 55.92585, b.Lat, 1e-6)
	assert.InDelta(t, 9.500033, b.Lon, 1e-6)
	assert.InDelta(t, 376.12, b.AltitudeM, 0.01)
	assert.InDelta(t, 88.896, b.GroundSpeedKmh, 1e-9)
	require.NotNil(t, b.Track)
	assert.Equal(t, 231.0, *b.Track)
	require.NotNil(t, b.ClimbRateMs)
	assert.Equal(t, 1.01, *b.ClimbRateMs)
	require.NotNil(t, b.TurnRate)
	assert.Equal(t, 0.5, *b.TurnRate)
}

func TestParseLineTypes(t *testing.T) {
	now := time.Date(2025, 6, 14, 10, 16, 0, 0, time.UTC)

	tests := []struct {
		name string
		line string
		want tracker.AircraftType
	}{
		{
			name: "tow plane by category",
			line: `FLRDD1234>OGFLR,qAS,EKSL:/101500h5555.00N/00930.00E'090/060/A=000500 id0ADD1234`,
			want: tracker.TypeTowPlane,
		},
		{
			name: "tow plane by symbol",
			line: `FLRDD1234>OGFLR,qAS,EKSL:/101500h5555.00N\00930.00E^090/060/A=000500`,
			want: tracker.TypeTowPlane,
		},
		{
			name: "helicopter",
			line: `ICA4B1234>OGFLR,qAS,EKSL:/101500h5555.00N/00930.00EX090/060/A=000500`,
			want: tracker.TypeHelicopter,
		},
		{
			name: "unknown symbol",
			line: `OGN123456>OGNTRK,qAS,EKSL:/101500h5555.00N/00930.00Ez090/060/A=000500`,
			want: tracker.TypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseLine(tt.line, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.AircraftType)
		})
	}
}

func TestParseLineAddressFromCallsign(t *testing.T) {
	now := time.Date(2025, 6, 14, 10, 16, 0, 0, time.UTC)
	b, err := ParseLine(`ICA4b1234>OGFLR,qAS,EKSL:/101500h5555.00N/00930.00E'000/000/A=-00012`, now)
	require.NoError(t, err)

	assert.Equal(t, "4B1234", b.Address)
	assert.Nil(t, b.Track, "course 000 means unknown")
	assert.Equal(t, 0.0, b.GroundSpeedKmh)
	assert.InDelta(t, -3.66, b.AltitudeM, 0.01)
}

func TestParseLineTimestamp(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		ts   string
		want time.Time
	}{
		{
			name: "same day",
			now:  time.Date(2025, 6, 14, 10, 16, 0, 0, time.UTC),
			ts:   "101500h",
			want: time.Date(2025, 6, 14, 10, 15, 0, 0, time.UTC),
		},
		{
			name: "slightly ahead of the receive clock",
			now:  time.Date(2025, 6, 14, 10, 14, 0, 0, time.UTC),
			ts:   "101500h",
			want: time.Date(2025, 6, 14, 10, 15, 0, 0, time.UTC),
		},
		{
			name: "before midnight received after midnight",
			now:  time.Date(2025, 6, 14, 0, 2, 0, 0, time.UTC),
			ts:   "235900h",
			want: time.Date(2025, 6, 13, 23, 59, 0, 0, time.UTC),
		},
		{
			name: "day hour minute",
			now:  time.Date(2025, 6, 14, 10, 16, 0, 0, time.UTC),
			ts:   "141015z",
			want: time.Date(2025, 6, 14, 10, 15, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := "FLRDDE626>OGFLR,qAS,EKSL:/" + tt.ts + "5555.55N/00930.00E'231/048/A=001234"
			b, err := ParseLine(line, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Timestamp)
		})
	}
}

func TestParseLineRejects(t *testing.T) {
	now := time.Date(2025, 6, 14, 10, 16, 0, 0, time.UTC)

	tests := []struct {
		name string
		line string
		want error
	}{
		{name: "server comment", line: "# aprsc 2.1.14-g5e22b37", want: ErrNotPosition},
		{name: "empty", line: "", want: ErrNotPosition},
		{name: "receiver position", line: `EKSL>OGNSDR,TCPIP*,qAC,GLIDERN1:/101000h5555.00NI00930.00E&/A=000180`, want: ErrNotPosition},
		{name: "receiver status", line: `EKSL>OGNSDR,TCPIP*,qAC,GLIDERN1:>101000h v0.2.8.RPI-GPU`, want: ErrNotPosition},
		{name: "aircraft status", line: `FLRDDE626>OGFLR,qAS,EKSL:>101500h hello`, want: ErrNotPosition},
		{name: "no header", line: "hello world", want: ErrMalformed},
		{name: "bad timestamp", line: `FLRDDE626>OGFLR,qAS,EKSL:/1015xxh5555.55N/00930.00E'`, want: ErrMalformed},
		{name: "truncated position", line: `FLRDDE626>OGFLR,qAS,EKSL:/101500h5555.55N/009`, want: ErrMissingPosition},
		{name: "latitude out of range", line: `FLRDDE626>OGFLR,qAS,EKSL:/101500h9555.55N/00930.00E'231/048/A=001234`, want: ErrMissingPosition},
		{name: "bad hemisphere", line: `FLRDDE626>OGFLR,qAS,EKSL:/101500h5555.55X/00930.00E'231/048/A=001234`, want: ErrMissingPosition},
		{name: "no tracking", line: `FLRDDE626>OGFLR,qAS,EKSL:/101500h5555.55N/00930.00E'231/048/A=001234 id46DDE626`, want: ErrNoTrack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line, now)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRefineType(t *testing.T) {
	models := []string{"PAWNEE", "DR-400", "Husky"}

	assert.Equal(t, tracker.TypeTowPlane, RefineType(tracker.TypeUnknown, "Piper PA-25 Pawnee", models))
	assert.Equal(t, tracker.TypeTowPlane, RefineType(tracker.TypeUnknown, "Aviat husky", models))
	assert.Equal(t, tracker.TypeUnknown, RefineType(tracker.TypeUnknown, "Cirrus SR22", models))
	assert.Equal(t, tracker.TypeGlider, RefineType(tracker.TypeGlider, "DR-400", models))
}
