package traits

import (
	"context"
	"sync"

	"pulse/internal/logger"
	"pulse/pkg/models"
)

// ContextTraitsKey is where the live context mirrors the current traits.
const ContextTraitsKey = "traits"

// Store is the process-wide identity state of one pipeline instance. All reads used
// for payload construction go through Snapshot so a payload never sees a torn update.
type Store struct {
	mu      sync.Mutex
	traits  models.Traits
	context map[string]interface{}
	cache   *Cache
	log     logger.Logger
}

// NewStore restores persisted traits, or starts with a fresh anonymous id. baseContext
// is the auto-populated context (library, os, app, ...) that payloads start from.
func NewStore(ctx context.Context, cache *Cache, baseContext map[string]interface{}, log logger.Logger) *Store {
	s := &Store{
		context: models.DeepCopy(baseContext),
		cache:   cache,
		log:     log,
	}
	if s.context == nil {
		s.context = make(map[string]interface{})
	}

	restored, err := cache.Load(ctx)
	if err != nil {
		log.WarnwCtx(ctx, "Failed to restore traits, starting fresh", "error", err)
	}
	if restored.AnonymousID() == "" {
		fresh := models.NewTraits()
		if restored != nil {
			fresh = restored.Merge(fresh)
		}
		restored = fresh
		s.persist(ctx, restored)
	}

	s.traits = restored
	s.context[ContextTraitsKey] = map[string]interface{}(restored.Copy())
	return s
}

// Identify merges traits over the current set (new values win) and records userID
// when non-empty. The user and anonymous ids are owned by the store; caller values
// for those keys are ignored. It returns a copy of the resulting traits.
func (s *Store) Identify(ctx context.Context, userID string, traits map[string]interface{}) models.Traits {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.traits.Merge(withoutReserved(traits))
	if userID != "" {
		next[models.TraitUserID] = userID
	}
	s.traits = next
	s.context[ContextTraitsKey] = map[string]interface{}(next.Copy())
	s.persist(ctx, next)

	return next.Copy()
}

// Reset forgets the user: only a new anonymous id survives.
func (s *Store) Reset(ctx context.Context) models.Traits {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Delete(ctx); err != nil {
		s.log.WarnwCtx(ctx, "Failed to delete persisted traits", "error", err)
	}

	fresh := models.NewTraits()
	s.traits = fresh
	s.context[ContextTraitsKey] = map[string]interface{}(fresh.Copy())
	s.persist(ctx, fresh)

	return fresh.Copy()
}

// CurrentID is the identified user id, or the anonymous id before any identify.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traits.CurrentID()
}

// Snapshot returns deep copies of the traits and the live context.
func (s *Store) Snapshot() (models.Traits, map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traits.Copy(), models.DeepCopy(s.context)
}

func withoutReserved(traits map[string]interface{}) map[string]interface{} {
	_, hasUser := traits[models.TraitUserID]
	_, hasAnon := traits[models.TraitAnonymousID]
	if !hasUser && !hasAnon {
		return traits
	}
	out := make(map[string]interface{}, len(traits))
	for k, v := range traits {
		if k == models.TraitUserID || k == models.TraitAnonymousID {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Store) persist(ctx context.Context, t models.Traits) {
	if err := s.cache.Save(ctx, t); err != nil {
		s.log.WarnwCtx(ctx, "Failed to persist traits", "error", err)
	}
}
