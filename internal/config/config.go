// Package config defines the fluxcache configuration and loads it from a
// YAML file and FLUXCACHE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/IvanBrykalov/fluxcache/codec"
	"github.com/IvanBrykalov/fluxcache/internal/logging"
	"github.com/IvanBrykalov/fluxcache/internal/util"
	"github.com/IvanBrykalov/fluxcache/monitor"
	"github.com/IvanBrykalov/fluxcache/policy/lfu"
	"github.com/IvanBrykalov/fluxcache/policy/lru"
	"github.com/IvanBrykalov/fluxcache/policy/twoq"
)

// Default configuration values.
const (
	DefaultAddr            = "127.0.0.1:6214"
	DefaultMaxPendingBytes = 4 << 20
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 5 * time.Minute
	DefaultWriteTimeout    = 30 * time.Second
	DefaultDrainTimeout    = 10 * time.Second
	DefaultMaxHeaderBytes  = 256

	DefaultShardCount           = 16
	DefaultCapacityBytes        = 256 << 20
	DefaultMaxValueBytes        = 8 << 20
	DefaultMaxKeyBytes          = 64 << 10
	DefaultCompressionThreshold = 1 << 10
	DefaultExpirySweepInterval  = time.Second

	DefaultMonitorInterval  = time.Second
	DefaultElevatedFraction = 0.05
	DefaultCriticalFraction = 0.20
	DefaultProcfsPath       = "/proc"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Config is the root configuration of the fluxcache server.
type Config struct {
	Server  ServerSection  `koanf:"server"`
	Store   StoreSection   `koanf:"store"`
	Monitor MonitorSection `koanf:"monitor"`
	Log     LogSection     `koanf:"log"`
	Metrics MetricsSection `koanf:"metrics"`
}

// ServerSection configures the protocol listener and sessions.
type ServerSection struct {
	Addr              string        `koanf:"addr"`
	MaxConns          int           `koanf:"max_conns"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	MaxPendingBytes   int64         `koanf:"max_pending_bytes"`
	MaxHeaderBytes    int           `koanf:"max_header_bytes"`
	RateLimit         float64       `koanf:"rate_limit"`
	RateBurst         int           `koanf:"rate_burst"`
	SocketBufferBytes int           `koanf:"socket_buffer_bytes"`
	DrainTimeout      time.Duration `koanf:"drain_timeout"`
}

// StoreSection configures the sharded store.
type StoreSection struct {
	ShardCount                int           `koanf:"shard_count"`
	CapacityBytes             int64         `koanf:"capacity_bytes"`
	MaxValueBytes             int           `koanf:"max_value_bytes"`
	MaxKeyBytes               int           `koanf:"max_key_bytes"`
	CompressionThresholdBytes int           `koanf:"compression_threshold_bytes"`
	Codec                     string        `koanf:"codec"`
	Hash                      string        `koanf:"hash"`
	EvictionPolicy            string        `koanf:"eviction_policy"`
	ExpirySweepInterval       time.Duration `koanf:"expiry_sweep_interval"`
}

// MonitorSection configures memory pressure sampling and the share of each
// shard freed per tier.
type MonitorSection struct {
	Interval         time.Duration `koanf:"interval"`
	ElevatedBelow    float64       `koanf:"elevated_below"`
	CriticalBelow    float64       `koanf:"critical_below"`
	ElevatedFraction float64       `koanf:"elevated_fraction"`
	CriticalFraction float64       `koanf:"critical_fraction"`
	ProcfsPath       string        `koanf:"procfs_path"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsSection configures the Prometheus endpoint. An empty Addr
// disables it.
type MetricsSection struct {
	Addr string `koanf:"addr"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerSection{
			Addr:            DefaultAddr,
			ReadTimeout:     DefaultReadTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			MaxPendingBytes: DefaultMaxPendingBytes,
			MaxHeaderBytes:  DefaultMaxHeaderBytes,
			DrainTimeout:    DefaultDrainTimeout,
		},
		Store: StoreSection{
			ShardCount:                DefaultShardCount,
			CapacityBytes:             DefaultCapacityBytes,
			MaxValueBytes:             DefaultMaxValueBytes,
			MaxKeyBytes:               DefaultMaxKeyBytes,
			CompressionThresholdBytes: DefaultCompressionThreshold,
			Codec:                     codec.NameZstd,
			Hash:                      util.HashFNV1a,
			EvictionPolicy:            lru.Name,
			ExpirySweepInterval:       DefaultExpirySweepInterval,
		},
		Monitor: MonitorSection{
			Interval:         DefaultMonitorInterval,
			ElevatedBelow:    monitor.DefaultThresholds.ElevatedBelow,
			CriticalBelow:    monitor.DefaultThresholds.CriticalBelow,
			ElevatedFraction: DefaultElevatedFraction,
			CriticalFraction: DefaultCriticalFraction,
			ProcfsPath:       DefaultProcfsPath,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Thresholds returns the monitor thresholds.
func (m MonitorSection) Thresholds() monitor.Thresholds {
	return monitor.Thresholds{ElevatedBelow: m.ElevatedBelow, CriticalBelow: m.CriticalBelow}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	return errors.Join(
		c.Server.validate(),
		c.Store.validate(),
		c.Monitor.validate(),
		c.Log.validate(),
	)
}

func (s ServerSection) validate() error {
	var errs []error
	if s.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if s.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("server.max_conns must be >= 0, got %d", s.MaxConns))
	}
	if s.ReadTimeout <= 0 || s.IdleTimeout <= 0 || s.WriteTimeout <= 0 || s.DrainTimeout <= 0 {
		errs = append(errs, errors.New("server timeouts must be positive"))
	}
	if s.MaxPendingBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_pending_bytes must be > 0, got %d", s.MaxPendingBytes))
	}
	if s.MaxHeaderBytes < 16 {
		errs = append(errs, fmt.Errorf("server.max_header_bytes must be >= 16, got %d", s.MaxHeaderBytes))
	}
	if s.RateLimit < 0 || s.RateBurst < 0 {
		errs = append(errs, errors.New("server.rate_limit and server.rate_burst must be >= 0"))
	}
	if s.SocketBufferBytes < 0 {
		errs = append(errs, errors.New("server.socket_buffer_bytes must be >= 0"))
	}
	return errors.Join(errs...)
}

func (s StoreSection) validate() error {
	var errs []error
	if s.ShardCount <= 0 {
		errs = append(errs, fmt.Errorf("store.shard_count must be > 0, got %d", s.ShardCount))
	}
	if s.CapacityBytes <= 0 {
		errs = append(errs, fmt.Errorf("store.capacity_bytes must be > 0, got %d", s.CapacityBytes))
	}
	if s.MaxValueBytes <= 0 || s.MaxKeyBytes <= 0 {
		errs = append(errs, errors.New("store.max_value_bytes and store.max_key_bytes must be > 0"))
	}
	if s.ShardCount > 0 && s.CapacityBytes > 0 {
		if share := util.ShareOf(s.CapacityBytes, s.ShardCount); int64(s.MaxValueBytes) > share {
			errs = append(errs, fmt.Errorf("store.max_value_bytes (%d) exceeds one shard's capacity (%d)", s.MaxValueBytes, share))
		}
	}
	if s.CompressionThresholdBytes < 0 {
		errs = append(errs, errors.New("store.compression_threshold_bytes must be >= 0"))
	}
	switch s.Codec {
	case codec.NameZstd, codec.NameS2, codec.NameNone:
	default:
		errs = append(errs, fmt.Errorf("store.codec %q is not one of zstd, s2, none", s.Codec))
	}
	if _, err := util.HasherByName(s.Hash); err != nil {
		errs = append(errs, fmt.Errorf("store.hash: %w", err))
	}
	switch s.EvictionPolicy {
	case lru.Name, lfu.Name, twoq.Name:
	default:
		errs = append(errs, fmt.Errorf("store.eviction_policy %q is not one of lru, lfu, 2q", s.EvictionPolicy))
	}
	if s.ExpirySweepInterval <= 0 {
		errs = append(errs, errors.New("store.expiry_sweep_interval must be positive"))
	}
	return errors.Join(errs...)
}

func (m MonitorSection) validate() error {
	var errs []error
	if m.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	if err := m.Thresholds().Validate(); err != nil {
		errs = append(errs, err)
	}
	for name, f := range map[string]float64{
		"monitor.elevated_fraction": m.ElevatedFraction,
		"monitor.critical_fraction": m.CriticalFraction,
	} {
		if f < 0 || f > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, f))
		}
	}
	return errors.Join(errs...)
}

func (l LogSection) validate() error {
	if _, err := logging.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch l.Format {
	case logging.FormatJSON, logging.FormatText:
		return nil
	default:
		return fmt.Errorf("log.format %q is not one of json, text", l.Format)
	}
}
