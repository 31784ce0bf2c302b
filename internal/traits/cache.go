package traits

import (
	"context"
	"fmt"

	"pulse/internal/constants"
	"pulse/internal/kv"
	"pulse/pkg/errors"
	"pulse/pkg/jsoncodec"
	"pulse/pkg/models"
)

// Cache persists one instance's traits under a tag-scoped key.
type Cache struct {
	store kv.Store
	key   string
}

func NewCache(store kv.Store, tag string) *Cache {
	return &Cache{store: store, key: constants.KeyTraits + tag}
}

// Load returns nil traits without error when nothing was persisted yet.
func (c *Cache) Load(ctx context.Context) (models.Traits, error) {
	raw, err := c.store.Get(ctx, c.key)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read traits: %w", err)
	}

	m, err := jsoncodec.UnmarshalMap(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode traits: %w", err)
	}
	return models.Traits(m), nil
}

func (c *Cache) Save(ctx context.Context, t models.Traits) error {
	raw, err := jsoncodec.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode traits: %w", err)
	}
	if err := c.store.Set(ctx, c.key, raw); err != nil {
		return fmt.Errorf("failed to write traits: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("failed to delete traits: %w", err)
	}
	return nil
}
