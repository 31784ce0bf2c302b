package analytics

import (
	"context"
	"sync"

	"pulse/internal/config"
	"pulse/pkg/errors"
)

// Registry tracks live clients by tag and holds the process default instance.
type Registry struct {
	mu            sync.Mutex
	instances     map[string]*Client
	reserved      map[string]struct{}
	defaultClient *Client
}

func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*Client),
		reserved:  make(map[string]struct{}),
	}
}

// Create builds a client for cfg. A tag may be live at most once; Shutdown frees it.
func (r *Registry) Create(ctx context.Context, cfg config.Config, deps Deps) (*Client, error) {
	tag := instanceTag(cfg.Pipeline)

	r.mu.Lock()
	_, live := r.instances[tag]
	_, pending := r.reserved[tag]
	if live || pending {
		r.mu.Unlock()
		return nil, errors.DuplicateInstance(tag)
	}
	r.reserved[tag] = struct{}{}
	r.mu.Unlock()

	c, err := newClient(ctx, cfg, deps, r)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, tag)
	if err != nil {
		return nil, err
	}
	r.instances[tag] = c
	return c, nil
}

// PromoteDefault makes c the process default. It succeeds once, and only for a
// live client.
func (r *Registry) PromoteDefault(c *Client) error {
	if c == nil || c.IsShutdown() {
		return errors.IllegalState(errors.MsgDefaultNotLive)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defaultClient != nil {
		return errors.IllegalState(errors.MsgSingletonExists)
	}
	r.defaultClient = c
	c.isDefault.Store(true)
	return nil
}

// Default returns the promoted client, nil when none was promoted.
func (r *Registry) Default() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultClient
}

func (r *Registry) Get(tag string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.instances[tag]
	return c, ok
}

// Remove frees tag for a new client.
func (r *Registry) Remove(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, tag)
}

// Tags lists the live instance tags.
func (r *Registry) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tags := make([]string, 0, len(r.instances))
	for tag := range r.instances {
		tags = append(tags, tag)
	}
	return tags
}
