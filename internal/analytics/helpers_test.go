package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pulse/internal/config"
	"pulse/internal/integration"
	"pulse/internal/kv"
	"pulse/internal/lifecycle"
	"pulse/internal/logger"
	"pulse/internal/storage"
	"pulse/pkg/models"
)

type recordingIntegration struct {
	integration.Base
	mu        sync.Mutex
	payloads  []models.Payload
	lifecycle []lifecycle.Kind
	flushes   int
	resets    int
	closes    int
}

func (r *recordingIntegration) record(p models.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return nil
}

func (r *recordingIntegration) Identify(_ context.Context, p models.Payload) error { return r.record(p) }
func (r *recordingIntegration) Group(_ context.Context, p models.Payload) error    { return r.record(p) }
func (r *recordingIntegration) Alias(_ context.Context, p models.Payload) error    { return r.record(p) }
func (r *recordingIntegration) Track(_ context.Context, p models.Payload) error    { return r.record(p) }
func (r *recordingIntegration) Screen(_ context.Context, p models.Payload) error   { return r.record(p) }

func (r *recordingIntegration) Flush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func (r *recordingIntegration) Reset(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	return nil
}

func (r *recordingIntegration) OnLifecycle(_ context.Context, ev lifecycle.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lifecycle = append(r.lifecycle, ev.Kind)
	return nil
}

func (r *recordingIntegration) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

func (r *recordingIntegration) Underlying() any {
	return r
}

func (r *recordingIntegration) received() []models.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Payload(nil), r.payloads...)
}

func (r *recordingIntegration) events() []string {
	var out []string
	for _, p := range r.received() {
		if p.Type == models.EventTrack {
			out = append(out, p.Event)
		}
	}
	return out
}

type stubFetcher struct {
	doc map[string]interface{}
	err error
}

func (s *stubFetcher) FetchSettings(context.Context) (map[string]interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	return models.DeepCopy(s.doc), nil
}

type stubSender struct {
	mu      sync.Mutex
	batches [][]byte
}

func (s *stubSender) Upload(_ context.Context, _ string, batch []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type harness struct {
	registry     *Registry
	store        *kv.MemoryStore
	fetcher      *stubFetcher
	sender       *stubSender
	integrations map[string]*recordingIntegration
	cfg          config.Config
}

// newHarness prepares a registry whose clients see the named destinations in their
// settings and can create a recording integration for each.
func newHarness(t *testing.T, names ...string) *harness {
	t.Helper()
	cfg := *config.Default()
	cfg.Pipeline.WriteKey = "wk_test"
	cfg.Pipeline.FlushQueueSize = 1000
	cfg.Pipeline.FlushInterval = time.Hour
	cfg.Settings.Retry = config.RetryConfig{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}

	integrations := map[string]interface{}{}
	h := &harness{
		registry:     NewRegistry(),
		store:        kv.NewMemoryStore(),
		sender:       &stubSender{},
		integrations: make(map[string]*recordingIntegration),
		cfg:          cfg,
	}
	for _, name := range names {
		integrations[name] = map[string]interface{}{"apiKey": name + "-key"}
		h.integrations[name] = &recordingIntegration{}
	}
	h.fetcher = &stubFetcher{doc: map[string]interface{}{"integrations": integrations}}
	return h
}

func (h *harness) withPlan(track map[string]interface{}) *harness {
	h.fetcher.doc["plan"] = map[string]interface{}{"track": track}
	return h
}

func (h *harness) deps() Deps {
	var factories []integration.Factory
	for name, rec := range h.integrations {
		rec := rec
		factories = append(factories, integration.NewFactory(name, func(models.ValueMap, logger.Logger) (integration.Integration, error) {
			return rec, nil
		}))
	}
	return Deps{
		Logger:    logger.NopLogger(),
		Store:     h.store,
		Log:       storage.NewMemoryLog(),
		Fetcher:   h.fetcher,
		Sender:    h.sender,
		Factories: factories,
	}
}

func (h *harness) create(t *testing.T) *Client {
	t.Helper()
	c, err := h.registry.Create(context.Background(), h.cfg, h.deps())
	require.NoError(t, err)
	t.Cleanup(func() {
		if !c.isDefault.Load() {
			_ = c.Shutdown(context.Background())
		}
	})
	waitIdle(t, c)
	return c
}

// waitIdle blocks until every task queued so far has been dispatched.
func waitIdle(t *testing.T, c *Client) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, c.queue.Enqueue(func(context.Context) { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch queue did not drain")
	}
}
