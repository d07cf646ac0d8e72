package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Registry RegistryConfig `mapstructure:"registry"`
	Sources  SourcesConfig  `mapstructure:"sources"`
}

type ServerConfig struct {
	// HTTP/3 Server
	HTTP3Port       int           `mapstructure:"http3_port"`
	TLSCertFile     string        `mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `mapstructure:"tls_key_file"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// QUIC specific
	MaxIncomingStreams    int64         `mapstructure:"max_incoming_streams"`
	MaxIncomingUniStreams int64         `mapstructure:"max_incoming_uni_streams"`
	MaxIdleTimeout        time.Duration `mapstructure:"max_idle_timeout"`

	// HTTP/1.1 and HTTP/2 fallback listener
	EnableHTTP     bool `mapstructure:"enable_http"`
	HTTPPort       int  `mapstructure:"http_port"`
	DebugEndpoints bool `mapstructure:"debug_endpoints"`
}

type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// PipelineConfig holds the per-pipeline processing knobs.
type PipelineConfig struct {
	// Latency accumulators reset after this many recorded runs.
	StatsResetRuns int `mapstructure:"stats_reset_runs"`
	// FPS sampling window. The counter swaps on every interval.
	FPSInterval time.Duration `mapstructure:"fps_interval"`
	// Append latency/FPS diagnostics annotations to the overlay.
	ShowDiagnostics bool `mapstructure:"show_diagnostics"`
	// When true the renderer shows the live camera surface underneath,
	// so the decoded source frame is not re-added to the overlay.
	LiveViewport bool `mapstructure:"live_viewport"`
	// How often pipeline stats snapshots are pushed to the registry.
	StatsPublishInterval time.Duration `mapstructure:"stats_publish_interval"`
	// Sysfs thermal zone file sampled for the periodic diagnostics log.
	// Empty disables temperature reporting.
	ThermalZone string `mapstructure:"thermal_zone"`
}

type RegistryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	TTL               time.Duration `mapstructure:"ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// SourcesConfig describes the frame sources started at boot.
type SourcesConfig struct {
	Pattern PatternSourceConfig `mapstructure:"pattern"`
}

// PatternSourceConfig configures the synthetic test pattern source.
type PatternSourceConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Width       int     `mapstructure:"width"`
	Height      int     `mapstructure:"height"`
	FrameRate   float64 `mapstructure:"frame_rate"`
	PixelFormat string  `mapstructure:"pixel_format"` // gray8, nv21, rgba
	Detector    string  `mapstructure:"detector"`     // luminance or motion
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetConfigFile(configPath)

	// Environment variable override
	viper.SetEnvPrefix("VISIONPIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.http3_port", 8443)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.max_incoming_streams", 5000)
	viper.SetDefault("server.max_incoming_uni_streams", 1000)
	viper.SetDefault("server.max_idle_timeout", "30s")
	viper.SetDefault("server.enable_http", true)
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.debug_endpoints", false)

	// Redis defaults
	viper.SetDefault("redis.addresses", []string{"localhost:6379"})
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("redis.min_idle_conns", 10)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 5)
	viper.SetDefault("logging.max_age", 30)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 9090)

	// Pipeline defaults
	viper.SetDefault("pipeline.stats_reset_runs", 500)
	viper.SetDefault("pipeline.fps_interval", "1s")
	viper.SetDefault("pipeline.show_diagnostics", true)
	viper.SetDefault("pipeline.live_viewport", false)
	viper.SetDefault("pipeline.stats_publish_interval", "5s")
	viper.SetDefault("pipeline.thermal_zone", "/sys/class/thermal/thermal_zone0/temp")

	// Registry defaults
	viper.SetDefault("registry.enabled", true)
	viper.SetDefault("registry.ttl", "5m")
	viper.SetDefault("registry.heartbeat_interval", "10s")

	// Source defaults
	viper.SetDefault("sources.pattern.enabled", false)
	viper.SetDefault("sources.pattern.width", 640)
	viper.SetDefault("sources.pattern.height", 480)
	viper.SetDefault("sources.pattern.frame_rate", 30.0)
	viper.SetDefault("sources.pattern.pixel_format", "gray8")
	viper.SetDefault("sources.pattern.detector", "luminance")
}
