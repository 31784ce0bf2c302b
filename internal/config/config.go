package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Settings       SettingsConfig       `mapstructure:"settings"`
	Storage        StorageConfig        `mapstructure:"storage"`
	KV             KVConfig             `mapstructure:"kv"`
	Destinations   DestinationsConfig   `mapstructure:"destinations"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int             `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration   `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration   `mapstructure:"write_timeout_seconds"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

// PipelineConfig is the per-instance configuration surface.
type PipelineConfig struct {
	WriteKey             string                 `mapstructure:"write_key"`
	Tag                  string                 `mapstructure:"tag"`
	FlushQueueSize       int                    `mapstructure:"flush_queue_size"`
	FlushInterval        time.Duration          `mapstructure:"flush_interval"`
	UploadWorkers        int                    `mapstructure:"upload_workers"`
	NanosecondTimestamps bool                   `mapstructure:"nanosecond_timestamps"`
	TrackLifecycleEvents bool                   `mapstructure:"track_lifecycle_events"`
	RecordScreenViews    bool                   `mapstructure:"record_screen_views"`
	TrackDeepLinks       bool                   `mapstructure:"track_deep_links"`
	DefaultContext       map[string]interface{} `mapstructure:"default_context"`
	DefaultIntegrations  map[string]interface{} `mapstructure:"default_integrations"`
	EncryptionKey        string                 `mapstructure:"encryption_key"`
	Application          ApplicationConfig      `mapstructure:"application"`
}

type ApplicationConfig struct {
	Name      string `mapstructure:"name"`
	Namespace string `mapstructure:"namespace"`
	Version   string `mapstructure:"version"`
	Build     string `mapstructure:"build"`
}

type SettingsConfig struct {
	APIHost         string                 `mapstructure:"api_host"`
	CDNHost         string                 `mapstructure:"cdn_host"`
	CacheTTL        time.Duration          `mapstructure:"cache_ttl"`
	RefreshInterval time.Duration          `mapstructure:"refresh_interval"`
	HTTPTimeout     time.Duration          `mapstructure:"http_timeout"`
	Defaults        map[string]interface{} `mapstructure:"defaults"`
	Retry           RetryConfig            `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type StorageConfig struct {
	Type string `mapstructure:"type"` // "memory" or "sqlite"
	Path string `mapstructure:"path"`
}

type KVConfig struct {
	Type   string      `mapstructure:"type"` // "memory" or "redis"
	Prefix string      `mapstructure:"prefix"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type DestinationsConfig struct {
	Kafka   KafkaConfig       `mapstructure:"kafka"`
	Filters map[string]string `mapstructure:"filters"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// Default returns the configuration used when the pipeline is embedded as a library.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8080,
			ReadTimeoutSeconds:  10 * time.Second,
			WriteTimeoutSeconds: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			Tag:                  "",
			FlushQueueSize:       20,
			FlushInterval:        30 * time.Second,
			UploadWorkers:        2,
			TrackLifecycleEvents: false,
			RecordScreenViews:    false,
			TrackDeepLinks:       false,
		},
		Settings: SettingsConfig{
			APIHost:     "api.segment.io/v1",
			CDNHost:     "cdn-settings.segment.com/v1",
			CacheTTL:    24 * time.Hour,
			HTTPTimeout: 15 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
				Multiplier:      2,
				MaxElapsedTime:  30 * time.Second,
			},
		},
		Storage: StorageConfig{Type: "memory"},
		KV:      KVConfig{Type: "memory", Prefix: "pulse:"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:      true,
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			FailureRatio: 0.6,
			MinRequests:  5,
		},
	}
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
