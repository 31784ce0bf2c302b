package constants

import "time"

// Limits applied by the batch uploader.
const (
	MaxPayloadSize = 32000
	MaxBatchSize   = 475000
	MaxQueueSize   = 1000
)

const (
	SegmentIntegrationKey = "Segment.io"
	AllIntegrationsKey    = "All"
)

const (
	LibraryName    = "pulse-go"
	LibraryVersion = "1.0.0"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

// KV keys, suffixed with the instance tag.
const (
	KeyTraits          = "traits-"
	KeyProjectSettings = "project-settings-"
	KeyOptOut          = "opt-out-"
	KeyBuild           = "build-"
	KeyVersion         = "version-"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	StorageTypeMemory = "memory"
	StorageTypeSQLite = "sqlite"
	KVTypeMemory      = "memory"
	KVTypeRedis       = "redis"
)

const (
	SettingsSourceCache    = "cache"
	SettingsSourceNetwork  = "network"
	SettingsSourceStale    = "stale_cache"
	SettingsSourceDefaults = "defaults"
)
