package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luck-mtp/mtp-go/pkg/mtp"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
device:
  vendor_id: 3725
  product_id: 8221
chunk_size: 65536
timeout: 2s
busy_policy: fail-fast
strict_names: true
wait: 30s
simulate: default
protocol_log: /tmp/session.mtplog
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, mtp.ConnectOptions{VendorID: 3725, ProductID: 8221}, cfg.ConnectOptions())
	assert.Equal(t, 65536, cfg.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Wait)
	assert.True(t, cfg.StrictNames)
	assert.Equal(t, "default", cfg.Simulate)

	busy, err := cfg.Busy()
	require.NoError(t, err)
	assert.Equal(t, mtp.BusyFailFast, busy)
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
	assert.Len(t, cfg.SessionOptions(), 4)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Len(t, cfg.SessionOptions(), 4)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "chunksize: 10"},
		{"bad policy", "busy_policy: sometimes"},
		{"bad level", "log_level: loud"},
		{"negative chunk", "chunk_size: -1"},
		{"negative wait", "wait: -5s"},
		{"bad duration", "timeout: soon"},
		{"not yaml", "device: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var le *LoadError
			require.ErrorAs(t, err, &le)
		})
	}
}

func TestLoad(t *testing.T) {
	fsys := afero.NewMemMapFs()

	cfg, err := Load(fsys, "/etc/mtpctl/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(fsys, "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, afero.WriteFile(fsys, "/c.yaml", []byte("chunk_size: 8192\n"), 0o644))
	cfg, err = Load(fsys, "/c.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8192, cfg.ChunkSize)
	assert.Equal(t, Default().Timeout, cfg.Timeout)

	require.NoError(t, afero.WriteFile(fsys, "/bad.yaml", []byte("busy_policy: maybe\n"), 0o644))
	_, err = Load(fsys, "/bad.yaml")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "/bad.yaml", le.File)
	assert.Contains(t, err.Error(), "/bad.yaml: invalid config")
}
