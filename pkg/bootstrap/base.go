package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"pulse/internal/config"
	"pulse/internal/destinations/kafkasink"
	"pulse/internal/integration"
	"pulse/internal/kv"
	"pulse/internal/logger"
	"pulse/internal/storage"
)

// Base holds the infrastructure a pipeline host shares with its clients.
type Base struct {
	Config    *config.Config
	Logger    logger.Logger
	Store     kv.Store
	UploadLog storage.Log
	Redis     *redis.Client
	Kafka     *kafka.Writer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitStorage opens the kv store and the upload log.
func (b *Base) InitStorage(ctx context.Context) error {
	dc := NewDatabaseConnector(b.Config, b.Logger)

	store, rdb, err := dc.InitKVStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to init kv store: %w", err)
	}

	uploadLog, err := dc.InitUploadLog()
	if err != nil {
		dc.ShutdownDatabases(rdb)
		return err
	}

	b.Store = store
	b.Redis = rdb
	b.UploadLog = uploadLog
	return nil
}

// InitKafka creates the shared writer when the Kafka destination is enabled.
func (b *Base) InitKafka() {
	cfg := b.Config.Destinations.Kafka
	if !cfg.Enabled {
		return
	}
	b.Kafka = kafkasink.NewWriter(cfg, b.Logger.Named("kafka"))
	b.Logger.Infow("Kafka destination enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
}

// Factories lists the destinations provided by the host.
func (b *Base) Factories() []integration.Factory {
	var factories []integration.Factory
	if b.Kafka != nil {
		factories = append(factories, kafkasink.NewFactory(b.Kafka, b.Config.Destinations.Kafka.Topic))
	}
	return factories
}

// Shutdown releases what the clients do not own. The upload log and the Kafka writer
// are closed by the client that uses them.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, NewDatabaseConnector(b.Config, b.Logger).ShutdownDatabases(b.Redis)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
