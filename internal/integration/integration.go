package integration

import (
	"context"

	"pulse/internal/lifecycle"
	"pulse/internal/logger"
	"pulse/pkg/models"
)

// Integration is a destination that receives every payload the pipeline allows for it.
// Calls arrive on a single goroutine in enqueue order.
type Integration interface {
	Identify(ctx context.Context, p models.Payload) error
	Group(ctx context.Context, p models.Payload) error
	Alias(ctx context.Context, p models.Payload) error
	Track(ctx context.Context, p models.Payload) error
	Screen(ctx context.Context, p models.Payload) error
	Flush(ctx context.Context) error
	Reset(ctx context.Context) error
}

// LifecycleAware integrations also receive host lifecycle transitions.
type LifecycleAware interface {
	OnLifecycle(ctx context.Context, ev lifecycle.Event) error
}

// Underlying exposes the vendor object behind an integration to ready callbacks.
type Underlying interface {
	Underlying() any
}

// Factory creates an integration from its project settings entry. Create may return
// a nil Integration to opt out for the given settings.
type Factory interface {
	Key() string
	Create(settings models.ValueMap, log logger.Logger) (Integration, error)
}

// Local is implemented by factories for destinations configured in-process. They are
// created with empty settings when the project settings do not mention them.
type Local interface {
	Local() bool
}

type FactoryFunc func(settings models.ValueMap, log logger.Logger) (Integration, error)

type factory struct {
	key    string
	create FactoryFunc
}

func NewFactory(key string, create FactoryFunc) Factory {
	return &factory{key: key, create: create}
}

func (f *factory) Key() string {
	return f.key
}

func (f *factory) Create(settings models.ValueMap, log logger.Logger) (Integration, error) {
	return f.create(settings, log)
}

// Base implements every Integration method as a no-op. Embed it and override what
// the destination supports.
type Base struct{}

func (Base) Identify(context.Context, models.Payload) error { return nil }
func (Base) Group(context.Context, models.Payload) error    { return nil }
func (Base) Alias(context.Context, models.Payload) error    { return nil }
func (Base) Track(context.Context, models.Payload) error    { return nil }
func (Base) Screen(context.Context, models.Payload) error   { return nil }
func (Base) Flush(context.Context) error                    { return nil }
func (Base) Reset(context.Context) error                    { return nil }

// Deliver routes p to the method matching its type.
func Deliver(ctx context.Context, in Integration, p models.Payload) error {
	switch p.Type {
	case models.EventIdentify:
		return in.Identify(ctx, p)
	case models.EventGroup:
		return in.Group(ctx, p)
	case models.EventAlias:
		return in.Alias(ctx, p)
	case models.EventTrack:
		return in.Track(ctx, p)
	case models.EventScreen:
		return in.Screen(ctx, p)
	}
	return nil
}
