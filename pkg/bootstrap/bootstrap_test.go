package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/config"
	"pulse/internal/destinations/kafkasink"
	"pulse/internal/kv"
	"pulse/internal/logger"
	"pulse/internal/storage"
)

func TestBase_InitStorage(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantLog interface{}
		wantErr bool
	}{
		{
			name:    "memory",
			mutate:  func(*config.Config) {},
			wantLog: &storage.MemoryLog{},
		},
		{
			name: "sqlite",
			mutate: func(c *config.Config) {
				c.Storage.Type = "sqlite"
				c.Storage.Path = filepath.Join(t.TempDir(), "upload.db")
			},
			wantLog: &storage.SQLiteLog{},
		},
		{
			name:    "unknown kv",
			mutate:  func(c *config.Config) { c.KV.Type = "etcd" },
			wantErr: true,
		},
		{
			name:    "unknown storage",
			mutate:  func(c *config.Config) { c.Storage.Type = "s3" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			b := NewBase(cfg, logger.NopLogger())

			err := b.InitStorage(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.UploadLog.Close() })

			assert.IsType(t, &kv.MemoryStore{}, b.Store)
			assert.IsType(t, tt.wantLog, b.UploadLog)
			assert.Nil(t, b.Redis)
			assert.NoError(t, b.Shutdown(context.Background(), nil))
		})
	}
}

func TestBase_Factories(t *testing.T) {
	cfg := config.Default()
	b := NewBase(cfg, logger.NopLogger())
	b.InitKafka()
	assert.Nil(t, b.Kafka)
	assert.Empty(t, b.Factories())

	cfg.Destinations.Kafka.Enabled = true
	cfg.Destinations.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Destinations.Kafka.Topic = "events"
	b.InitKafka()
	require.NotNil(t, b.Kafka)
	t.Cleanup(func() { _ = b.Kafka.Close() })

	factories := b.Factories()
	require.Len(t, factories, 1)
	assert.Equal(t, kafkasink.Key, factories[0].Key())
}

func TestBase_ShutdownCollectsErrors(t *testing.T) {
	b := NewBase(config.Default(), logger.NopLogger())
	err := b.Shutdown(context.Background(), func(context.Context) []error {
		return []error{assert.AnError}
	})
	assert.ErrorContains(t, err, assert.AnError.Error())
}
