package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "debug console", cfg: Config{Level: "debug", Format: "console"}},
		{name: "json", cfg: Config{Level: "warn", Format: "json"}},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.log")

	log, err := New(Config{Level: "info", Format: "console", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Named("test").With(String("component", "unit")).Info("hello",
		Int("n", 1),
		Float64("f", 1.5),
		Bool("b", true),
		Duration("d", time.Second),
		Error(errors.New("boom")),
	)
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"unit"`)
	assert.Contains(t, string(data), `"logger":"test"`)
}

func TestNop(t *testing.T) {
	log := NewNop()
	log.Debug("ignored")
	log.Named("x").Error("ignored too")
}
