package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"pulse/pkg/cel"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := ValidatePipeline(cfg.Pipeline); err != nil {
		errors = append(errors, err)
	}

	if err := validateSettings(cfg.Settings); err != nil {
		errors = append(errors, err)
	}

	if err := validateStorage(cfg.Storage); err != nil {
		errors = append(errors, err)
	}

	if err := validateKV(cfg.KV); err != nil {
		errors = append(errors, err)
	}

	if err := validateDestinations(cfg.Destinations); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.RPS <= 0 {
		return &ValidationError{
			Field:   "server.rate_limit.rps",
			Message: "rps must be positive when rate limiting is enabled",
		}
	}

	return nil
}

// ValidatePipeline checks the per-instance options; it is also run by the library
// constructor, which never goes through LoadConfig.
func ValidatePipeline(cfg PipelineConfig) error {
	if strings.TrimSpace(cfg.WriteKey) == "" {
		return &ValidationError{
			Field:   "pipeline.write_key",
			Message: "write key is required",
		}
	}

	if cfg.FlushQueueSize < 1 {
		return &ValidationError{
			Field:   "pipeline.flush_queue_size",
			Message: fmt.Sprintf("flush queue size must be at least 1, got %d", cfg.FlushQueueSize),
		}
	}

	if cfg.FlushInterval <= 0 {
		return &ValidationError{
			Field:   "pipeline.flush_interval",
			Message: "flush interval must be positive",
		}
	}

	if cfg.UploadWorkers < 0 {
		return &ValidationError{
			Field:   "pipeline.upload_workers",
			Message: "upload workers must be non-negative",
		}
	}

	if cfg.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil || len(key) != 32 {
			return &ValidationError{
				Field:   "pipeline.encryption_key",
				Message: "encryption key must be 32 bytes, hex encoded",
			}
		}
	}

	return nil
}

func validateSettings(cfg SettingsConfig) error {
	if cfg.APIHost == "" {
		return &ValidationError{
			Field:   "settings.api_host",
			Message: "API host is required",
		}
	}

	if cfg.CDNHost == "" {
		return &ValidationError{
			Field:   "settings.cdn_host",
			Message: "CDN host is required",
		}
	}

	if cfg.CacheTTL < 0 {
		return &ValidationError{
			Field:   "settings.cache_ttl",
			Message: "cache TTL must be non-negative",
		}
	}

	if cfg.RefreshInterval < 0 {
		return &ValidationError{
			Field:   "settings.refresh_interval",
			Message: "refresh interval must be non-negative",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "settings.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "settings.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "settings.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateStorage(cfg StorageConfig) error {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return nil
	case "sqlite":
		if cfg.Path == "" {
			return &ValidationError{
				Field:   "storage.path",
				Message: "sqlite storage requires a path",
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("unknown storage type: %s (supported: memory, sqlite)", cfg.Type),
		}
	}
}

func validateKV(cfg KVConfig) error {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return nil
	case "redis":
		return validateRedis(cfg.Redis)
	default:
		return &ValidationError{
			Field:   "kv.type",
			Message: fmt.Sprintf("unknown kv type: %s (supported: memory, redis)", cfg.Type),
		}
	}
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "kv.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "kv.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.TTLSeconds < 0 {
		return &ValidationError{
			Field:   "kv.redis.ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	return nil
}

func validateDestinations(cfg DestinationsConfig) error {
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return &ValidationError{
				Field:   "destinations.kafka.brokers",
				Message: "at least one Kafka broker is required",
			}
		}
		for i, broker := range cfg.Kafka.Brokers {
			if broker == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("destinations.kafka.brokers[%d]", i),
					Message: "broker address cannot be empty",
				}
			}
		}
		if cfg.Kafka.Topic == "" {
			return &ValidationError{
				Field:   "destinations.kafka.topic",
				Message: "Kafka topic is required",
			}
		}
	}

	if len(cfg.Filters) == 0 {
		return nil
	}
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return err
	}
	for name, expr := range cfg.Filters {
		if strings.TrimSpace(expr) == "" {
			return &ValidationError{
				Field:   "destinations.filters." + name,
				Message: "filter expression cannot be empty",
			}
		}
		if err := evaluator.ValidateFilterExpression(expr); err != nil {
			return &ValidationError{
				Field:   "destinations.filters." + name,
				Message: err.Error(),
			}
		}
	}

	return nil
}
