package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fluxcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "127.0.0.1:6214", cfg.Server.Addr)
	require.Equal(t, 16, cfg.Store.ShardCount)
	require.EqualValues(t, 256<<20, cfg.Store.CapacityBytes)
	require.Equal(t, "zstd", cfg.Store.Codec)
	require.Equal(t, "lru", cfg.Store.EvictionPolicy)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
server:
  addr: "0.0.0.0:7000"
  max_conns: 128
  idle_timeout: 90s
store:
  shard_count: 8
  capacity_bytes: 67108864
  max_value_bytes: 1048576
  codec: s2
  hash: murmur3
  eviction_policy: 2q
monitor:
  elevated_below: 0.3
  critical_below: 0.15
log:
  level: debug
  format: text
metrics:
  addr: ":9100"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:7000", cfg.Server.Addr)
	require.Equal(t, 128, cfg.Server.MaxConns)
	require.Equal(t, 90*time.Second, cfg.Server.IdleTimeout)
	require.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout, "unset keys keep defaults")
	require.Equal(t, 8, cfg.Store.ShardCount)
	require.EqualValues(t, 64<<20, cfg.Store.CapacityBytes)
	require.Equal(t, "s2", cfg.Store.Codec)
	require.Equal(t, "murmur3", cfg.Store.Hash)
	require.Equal(t, "2q", cfg.Store.EvictionPolicy)
	require.InDelta(t, 0.3, cfg.Monitor.ElevatedBelow, 1e-9)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  addr: \"0.0.0.0:7000\"\n")
	t.Setenv("FLUXCACHE_SERVER_ADDR", "127.0.0.1:7001")
	t.Setenv("FLUXCACHE_SERVER_MAX_PENDING_BYTES", "1024")
	t.Setenv("FLUXCACHE_STORE_EXPIRY_SWEEP_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7001", cfg.Server.Addr)
	require.EqualValues(t, 1024, cfg.Server.MaxPendingBytes)
	require.Equal(t, 250*time.Millisecond, cfg.Store.ExpirySweepInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "store:\n  codec: lz4\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "store.codec")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"value over shard share", func(c *Config) {
			c.Store.CapacityBytes = 1 << 20
			c.Store.ShardCount = 16
			c.Store.MaxValueBytes = 1 << 20
		}, "exceeds one shard's capacity"},
		{"zero shards", func(c *Config) { c.Store.ShardCount = 0 }, "store.shard_count"},
		{"unknown policy", func(c *Config) { c.Store.EvictionPolicy = "arc" }, "store.eviction_policy"},
		{"unknown hash", func(c *Config) { c.Store.Hash = "crc" }, "store.hash"},
		{"inverted thresholds", func(c *Config) {
			c.Monitor.ElevatedBelow = 0.1
			c.Monitor.CriticalBelow = 0.2
		}, "thresholds"},
		{"fraction above one", func(c *Config) { c.Monitor.CriticalFraction = 1.5 }, "monitor.critical_fraction"},
		{"negative conns", func(c *Config) { c.Server.MaxConns = -1 }, "server.max_conns"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Store.Codec = "lz4"
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.ErrorContains(t, err, "store.codec")
	require.ErrorContains(t, err, "log.format")
}

func TestEnvKey(t *testing.T) {
	require.Equal(t, "server.max_conns", envKey("FLUXCACHE_SERVER_MAX_CONNS"))
	require.Equal(t, "store.capacity_bytes", envKey("FLUXCACHE_STORE_CAPACITY_BYTES"))
	require.Equal(t, "metrics.addr", envKey("FLUXCACHE_METRICS_ADDR"))
}
