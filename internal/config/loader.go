package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "PULSE"

// LoadConfig reads configFile (YAML) over Default() and PULSE_* environment overrides.
// An empty configFile loads defaults and environment only.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(Default())
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(d *Config) {
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.read_timeout_seconds", d.Server.ReadTimeoutSeconds)
	viper.SetDefault("server.write_timeout_seconds", d.Server.WriteTimeoutSeconds)

	viper.SetDefault("pipeline.flush_queue_size", d.Pipeline.FlushQueueSize)
	viper.SetDefault("pipeline.flush_interval", d.Pipeline.FlushInterval)
	viper.SetDefault("pipeline.upload_workers", d.Pipeline.UploadWorkers)

	viper.SetDefault("settings.api_host", d.Settings.APIHost)
	viper.SetDefault("settings.cdn_host", d.Settings.CDNHost)
	viper.SetDefault("settings.cache_ttl", d.Settings.CacheTTL)
	viper.SetDefault("settings.http_timeout", d.Settings.HTTPTimeout)
	viper.SetDefault("settings.retry.max_attempts", d.Settings.Retry.MaxAttempts)
	viper.SetDefault("settings.retry.initial_interval", d.Settings.Retry.InitialInterval)
	viper.SetDefault("settings.retry.max_interval", d.Settings.Retry.MaxInterval)
	viper.SetDefault("settings.retry.multiplier", d.Settings.Retry.Multiplier)
	viper.SetDefault("settings.retry.max_elapsed_time", d.Settings.Retry.MaxElapsedTime)

	viper.SetDefault("storage.type", d.Storage.Type)
	viper.SetDefault("kv.type", d.KV.Type)
	viper.SetDefault("kv.prefix", d.KV.Prefix)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)

	viper.SetDefault("circuit_breaker.enabled", d.CircuitBreaker.Enabled)
	viper.SetDefault("circuit_breaker.max_requests", d.CircuitBreaker.MaxRequests)
	viper.SetDefault("circuit_breaker.interval", d.CircuitBreaker.Interval)
	viper.SetDefault("circuit_breaker.timeout", d.CircuitBreaker.Timeout)
	viper.SetDefault("circuit_breaker.failure_ratio", d.CircuitBreaker.FailureRatio)
	viper.SetDefault("circuit_breaker.min_requests", d.CircuitBreaker.MinRequests)
}

func bindEnvVariables() {
	viper.BindEnv("pipeline.write_key", "PULSE_PIPELINE_WRITE_KEY")
	viper.BindEnv("pipeline.tag", "PULSE_PIPELINE_TAG")
	viper.BindEnv("pipeline.flush_queue_size", "PULSE_PIPELINE_FLUSH_QUEUE_SIZE")
	viper.BindEnv("pipeline.flush_interval", "PULSE_PIPELINE_FLUSH_INTERVAL")
	viper.BindEnv("pipeline.encryption_key", "PULSE_PIPELINE_ENCRYPTION_KEY")

	viper.BindEnv("settings.api_host", "PULSE_SETTINGS_API_HOST")
	viper.BindEnv("settings.cdn_host", "PULSE_SETTINGS_CDN_HOST")
	viper.BindEnv("settings.refresh_interval", "PULSE_SETTINGS_REFRESH_INTERVAL")

	viper.BindEnv("storage.type", "PULSE_STORAGE_TYPE")
	viper.BindEnv("storage.path", "PULSE_STORAGE_PATH")

	viper.BindEnv("kv.type", "PULSE_KV_TYPE")
	viper.BindEnv("kv.redis.host", "PULSE_KV_REDIS_HOST")
	viper.BindEnv("kv.redis.port", "PULSE_KV_REDIS_PORT")
	viper.BindEnv("kv.redis.password", "PULSE_KV_REDIS_PASSWORD")
	viper.BindEnv("kv.redis.db", "PULSE_KV_REDIS_DB")

	viper.BindEnv("destinations.kafka.enabled", "PULSE_DESTINATIONS_KAFKA_ENABLED")
	viper.BindEnv("destinations.kafka.topic", "PULSE_DESTINATIONS_KAFKA_TOPIC")

	viper.BindEnv("server.port", "PULSE_SERVER_PORT")

	viper.BindEnv("logging.level", "PULSE_LOGGING_LEVEL")
	viper.BindEnv("logging.format", "PULSE_LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "PULSE_TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "PULSE_TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "PULSE_TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "PULSE_TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := os.Getenv("PULSE_DESTINATIONS_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Destinations.Kafka.Brokers = brokers
		}
	}

	return nil
}
