package storage

import (
	"fmt"

	"pulse/internal/config"
	"pulse/internal/constants"
)

// Open returns the log selected by cfg.
func Open(cfg config.StorageConfig) (Log, error) {
	switch cfg.Type {
	case "", constants.StorageTypeMemory:
		return NewMemoryLog(), nil
	case constants.StorageTypeSQLite:
		l, err := NewSQLiteLog(cfg.Path)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
