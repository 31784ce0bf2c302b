package integration

import (
	"context"
	"io"
	"strings"
	"time"

	"pulse/internal/lifecycle"
	"pulse/internal/logger"
	"pulse/internal/plan"
	"pulse/pkg/cel"
	"pulse/pkg/errors"
	"pulse/pkg/logging"
	"pulse/pkg/metrics"
	"pulse/pkg/models"
)

type entry struct {
	key         string
	integration Integration
	filter      *cel.Filter
}

// Registry holds the integrations created for one pipeline instance. It is built once
// and read-only afterwards; all calls come from the dispatch worker.
type Registry struct {
	entries []entry
	byKey   map[string]Integration
	log     logger.Logger
}

// Build creates an integration for every factory whose key appears in the settings,
// in factory order. Filters are keyed by integration name.
func Build(ctx context.Context, settings *models.ProjectSettings, factories []Factory, filters map[string]*cel.Filter, log logger.Logger) *Registry {
	r := &Registry{
		byKey: make(map[string]Integration),
		log:   log,
	}
	if settings == nil {
		return r
	}

	for _, f := range factories {
		key := f.Key()
		if _, dup := r.byKey[key]; dup {
			log.WarnwCtx(ctx, "Duplicate integration factory ignored", "integration", key)
			continue
		}
		integrationSettings, ok := settings.Integrations[key]
		if !ok {
			if local, isLocal := f.(Local); !isLocal || !local.Local() {
				log.DebugwCtx(ctx, "Integration not enabled in settings", "integration", key)
				continue
			}
			integrationSettings = models.ValueMap{}
		}

		var created Integration
		err := errors.Guard(errors.ErrIntegrationFailure, func() error {
			var createErr error
			created, createErr = f.Create(integrationSettings.Copy(), log.Named(key))
			return createErr
		})
		if err != nil {
			log.ErrorwCtx(ctx, "Failed to create integration", "integration", key, "error", err)
			metrics.IncIntegrationCall(key, "create", "error")
			continue
		}
		if created == nil {
			log.DebugwCtx(ctx, "Integration factory returned nothing", "integration", key)
			continue
		}

		r.entries = append(r.entries, entry{key: key, integration: created, filter: lookupFilter(filters, key)})
		r.byKey[key] = created
		log.InfowCtx(ctx, "Integration initialized", "integration", key)
	}

	return r
}

// lookupFilter matches case-insensitively since config keys arrive lowercased.
func lookupFilter(filters map[string]*cel.Filter, key string) *cel.Filter {
	if f, ok := filters[key]; ok {
		return f
	}
	for name, f := range filters {
		if strings.EqualFold(name, key) {
			return f
		}
	}
	return nil
}

// Dispatch delivers p to every integration the decision and the destination filter
// allow. Failures are isolated per integration.
func (r *Registry) Dispatch(ctx context.Context, p models.Payload, d plan.Decision) {
	if d.Blocked() {
		metrics.IncEventsFiltered("plan_blocked")
		return
	}

	for _, e := range r.entries {
		if !d.Allows(e.key) {
			metrics.IncEventsFiltered("integration_disabled")
			continue
		}
		if e.filter != nil {
			ok, err := e.filter.Matches(ctx, p, e.key)
			if err != nil {
				r.log.WarnwCtx(ctx, "Destination filter failed, delivering anyway",
					"integration", e.key, "expression", e.filter.Expression(), "error", err)
			} else if !ok {
				metrics.IncEventsFiltered("destination_filter")
				continue
			}
		}

		r.call(ctx, e, string(p.Type), func(ctx context.Context) error {
			return Deliver(ctx, e.integration, p)
		})
	}
}

// Flush asks every integration to flush.
func (r *Registry) Flush(ctx context.Context) {
	for _, e := range r.entries {
		r.call(ctx, e, "flush", e.integration.Flush)
	}
}

// Reset clears per-user state in every integration.
func (r *Registry) Reset(ctx context.Context) {
	for _, e := range r.entries {
		r.call(ctx, e, "reset", e.integration.Reset)
	}
}

// Lifecycle forwards ev to integrations that implement LifecycleAware.
func (r *Registry) Lifecycle(ctx context.Context, ev lifecycle.Event) {
	for _, e := range r.entries {
		aware, ok := e.integration.(LifecycleAware)
		if !ok {
			continue
		}
		r.call(ctx, e, "lifecycle", func(ctx context.Context) error {
			return aware.OnLifecycle(ctx, ev)
		})
	}
}

// Get returns the integration registered under key.
func (r *Registry) Get(key string) (Integration, bool) {
	in, ok := r.byKey[key]
	return in, ok
}

// Keys lists integration names in creation order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		keys = append(keys, e.key)
	}
	return keys
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Close closes every integration that implements io.Closer, in reverse creation order.
func (r *Registry) Close() error {
	var first error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		closer, ok := e.integration.(io.Closer)
		if !ok {
			continue
		}
		err := errors.Guard(errors.ErrIntegrationFailure, closer.Close)
		if err != nil {
			r.log.Errorw("Failed to close integration", "integration", e.key, "error", err)
			if first == nil {
				first = errors.ErrIntegrationFailure.WithCause(err).WithDetail("integration", e.key)
			}
		}
	}
	return first
}

func (r *Registry) call(ctx context.Context, e entry, operation string, fn func(context.Context) error) {
	ctx = logging.WithIntegration(ctx, e.key)
	start := time.Now()

	err := errors.Guard(errors.ErrIntegrationFailure, func() error {
		return fn(ctx)
	})
	metrics.ObserveIntegrationCallDuration(e.key, time.Since(start))

	if err != nil {
		failure := errors.ErrIntegrationFailure.WithCause(err).WithDetail("integration", e.key)
		r.log.ErrorwCtx(ctx, "Integration call failed", "operation", operation, "error", failure)
		metrics.IncIntegrationCall(e.key, operation, "error")
		return
	}
	metrics.IncIntegrationCall(e.key, operation, "success")
}
