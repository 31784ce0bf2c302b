// Package pulse records user analytics events and fans them out to destinations:
// the built-in batch uploader and any integration registered through a Factory.
package pulse

import (
	"context"

	"pulse/internal/analytics"
	"pulse/internal/config"
	"pulse/internal/integration"
	"pulse/internal/kv"
	"pulse/internal/lifecycle"
	"pulse/internal/logger"
	"pulse/internal/storage"
	"pulse/pkg/crypto"
	"pulse/pkg/errors"
	"pulse/pkg/models"
)

type (
	Client        = analytics.Client
	Deps          = analytics.Deps
	Registry      = analytics.Registry
	ReadyCallback = analytics.ReadyCallback

	Config         = config.Config
	PipelineConfig = config.PipelineConfig

	Options         = models.Options
	Payload         = models.Payload
	EventType       = models.EventType
	Traits          = models.Traits
	ProjectSettings = models.ProjectSettings
	ValueMap        = models.ValueMap

	Integration     = integration.Integration
	IntegrationBase = integration.Base
	Factory         = integration.Factory
	FactoryFunc     = integration.FactoryFunc
	LifecycleAware  = integration.LifecycleAware

	LifecycleEvent = lifecycle.Event
	LifecycleKind  = lifecycle.Kind

	Logger = logger.Logger
	Store  = kv.Store
	Log    = storage.Log
	Crypto = crypto.Crypto
	Error  = errors.Error
)

const AllIntegrations = models.AllIntegrations

const (
	EventIdentify = models.EventIdentify
	EventTrack    = models.EventTrack
	EventScreen   = models.EventScreen
	EventGroup    = models.EventGroup
	EventAlias    = models.EventAlias
)

const (
	LifecycleCreated      = lifecycle.Created
	LifecycleStarted      = lifecycle.Started
	LifecycleResumed      = lifecycle.Resumed
	LifecyclePaused       = lifecycle.Paused
	LifecycleStopped      = lifecycle.Stopped
	LifecycleDestroyed    = lifecycle.Destroyed
	LifecycleScreenViewed = lifecycle.ScreenViewed
)

var (
	ErrInvalidArgument      = errors.ErrInvalidArgument
	ErrIllegalState         = errors.ErrIllegalState
	ErrDuplicateInstance    = errors.ErrDuplicateInstance
	ErrUnsupportedOperation = errors.ErrUnsupportedOperation
)

var instances = analytics.NewRegistry()

// DefaultConfig returns library defaults; set Pipeline.WriteKey before calling New.
func DefaultConfig() Config {
	return *config.Default()
}

// LoadConfig reads a YAML file over the defaults and PULSE_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return Config{}, err
	}
	return *cfg, nil
}

// New creates a client in the process-wide registry. The tag (Pipeline.Tag, or the
// write key) must not belong to a live client.
func New(ctx context.Context, cfg Config, deps Deps) (*Client, error) {
	return instances.Create(ctx, cfg, deps)
}

// SetDefault installs c as the process default. It may be called once; the default
// client cannot be shut down.
func SetDefault(c *Client) error {
	return instances.PromoteDefault(c)
}

// Default returns the client installed by SetDefault, or nil.
func Default() *Client {
	return instances.Default()
}

// Get returns the live client with the given tag.
func Get(tag string) (*Client, bool) {
	return instances.Get(tag)
}

func NewOptions() *Options {
	return models.NewOptions()
}

func NewFactory(key string, create FactoryFunc) Factory {
	return integration.NewFactory(key, create)
}

func NewLogger(level string) (Logger, error) {
	return logger.New(level)
}

func NewMemoryStore() Store {
	return kv.NewMemoryStore()
}

// NewSQLiteLog opens a durable upload log at path.
func NewSQLiteLog(path string) (Log, error) {
	l, err := storage.NewSQLiteLog(path)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// NewChaCha20 encrypts queued payloads at rest with a 32-byte key.
func NewChaCha20(key []byte) (Crypto, error) {
	return crypto.NewChaCha20(key)
}
