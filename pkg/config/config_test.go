package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ManifestStatic, cfg.Snapshot.ManifestSource)
	assert.Equal(t, 50, cfg.Search.TokensPerEntry)
	assert.Equal(t, 10, cfg.Search.TokensPerQuery)
	assert.Equal(t, "data", cfg.Snapshot.DataDir)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
snapshot:
  dataDir: /var/lib/syllabus
  manifestSource: http
  manifestUrl: https://config.example.com/manifest.json
  refreshInterval: 1h
filters:
  campusAliases:
    青山: ["表参道"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("SI_SERVER_PORT", "9999")
	t.Setenv("SI_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/syllabus", cfg.Snapshot.DataDir)
	assert.Equal(t, ManifestHTTP, cfg.Snapshot.ManifestSource)
	assert.Equal(t, time.Hour, cfg.Snapshot.RefreshInterval)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"表参道"}, cfg.Filters.CampusAliases["青山"])
	// untouched defaults survive a partial file
	assert.Equal(t, 10, cfg.Search.TokensPerQuery)
}

func TestValidateRejectsHTTPWithoutURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Snapshot.ManifestSource = ManifestHTTP
	assert.Error(t, cfg.Validate())

	cfg.Snapshot.ManifestSource = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}
