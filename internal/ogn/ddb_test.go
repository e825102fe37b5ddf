package ogn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/ogn-tracker/internal/reference"
)

const sampleDDB = `#DEVICE_TYPE,DEVICE_ID,AIRCRAFT_MODEL,REGISTRATION,CN,TRACKED,IDENTIFIED
'F','DDE626','LS-4','OY-XRG','RG','Y','Y'
'F','dd1234','Piper PA-25 Pawnee','OY-DZP','','Y','N'
'O','123456','Rolladen, Schneider','D-1234','X''Y','N','Y'
`

func TestParseDDB(t *testing.T) {
	devices, err := ParseDDB(strings.NewReader(sampleDDB))
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, reference.DeviceInfo{
		DeviceType:   "F",
		DeviceID:     "DDE626",
		Model:        "LS-4",
		Registration: "OY-XRG",
		CN:           "RG",
		Tracked:      true,
		Identified:   true,
	}, devices[0])
	assert.Equal(t, "DD1234", devices[1].DeviceID)
	assert.False(t, devices[1].Identified)
	assert.Equal(t, "Rolladen, Schneider", devices[2].Model)
	assert.Equal(t, "X'Y", devices[2].CN)
	assert.False(t, devices[2].Tracked)
}

func TestParseDDBErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "short row", body: "'F','DDE626','LS-4'\n"},
		{name: "unterminated quote", body: "'F','DDE626\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDDB(strings.NewReader(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestFetchDDB(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/download/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(sampleDDB))
	}))
	defer srv.Close()

	devices, err := FetchDDB(context.Background(), srv.Client(), srv.URL+"/download/")
	require.NoError(t, err)
	assert.Len(t, devices, 3)

	_, err = FetchDDB(context.Background(), srv.Client(), srv.URL+"/missing")
	assert.Error(t, err)
}
