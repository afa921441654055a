package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fictotum", cfg.AppName)
	assert.Equal(t, 3002, cfg.Port)
	assert.Equal(t, "file", cfg.DecisionStore)
	assert.Equal(t, 50, cfg.ImportBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.IdentityMinInterval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "fictotum-events", cfg.KafkaOutputTopic)
	assert.InDelta(t, 0.95, cfg.MatchHighThreshold, 0.0001)
	assert.Equal(t, "lowest_authoritative_id", cfg.MergeTiebreak)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := inTempDir(t)
	yaml := `
graph_db_host: graph.internal
import_batch_size: 25
merge_retire_mode: tombstone
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fictotum.yaml"), []byte(yaml), 0o644))
	t.Setenv("IMPORT_BATCH_SIZE", "10")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "graph.internal", cfg.GraphDBHost)
	assert.Equal(t, "tombstone", cfg.MergeRetireMode)
	assert.Equal(t, 10, cfg.ImportBatchSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_NAME=from-dotenv\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("APP_NAME") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.AppName)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown store", func(c *Config) { c.DecisionStore = "sqlite" }, "unknown DECISION_STORE"},
		{"redis store without redis", func(c *Config) { c.DecisionStore = "redis" }, "requires REDIS_ENABLED"},
		{"postgres store without db", func(c *Config) { c.DecisionStore = "postgres" }, "requires DB_ENABLED"},
		{"inverted thresholds", func(c *Config) { c.MatchPotentialThreshold = 0.99 }, "MATCH_POTENTIAL_THRESHOLD"},
		{"unknown similarity mode", func(c *Config) { c.MatchSimilarityMode = "phonetic" }, "MATCH_SIMILARITY_MODE"},
		{"zero batch", func(c *Config) { c.ImportBatchSize = 0 }, "IMPORT_BATCH_SIZE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{DecisionStore: "file", MatchSimilarityMode: "fuzzy", MatchHighThreshold: 0.95, MatchPotentialThreshold: 0.85, ImportBatchSize: 50}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{DatabaseHost: "db", DatabasePort: "5432", DatabaseName: "fictotum", DatabaseSSLMode: "disable", DatabaseUserName: "app"}
	assert.Equal(t, "host=db port=5432 dbname=fictotum sslmode=disable user=app", cfg.DatabaseDSN())
}
