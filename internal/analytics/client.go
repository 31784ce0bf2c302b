// Package analytics is the pipeline instance: the five recording verbs, the
// identity state behind them, and the plumbing that carries payloads to every
// enabled integration.
package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"pulse/internal/client"
	"pulse/internal/config"
	"pulse/internal/constants"
	"pulse/internal/dispatch"
	"pulse/internal/integration"
	"pulse/internal/kv"
	"pulse/internal/lifecycle"
	"pulse/internal/logger"
	"pulse/internal/plan"
	"pulse/internal/settings"
	"pulse/internal/storage"
	"pulse/internal/traits"
	"pulse/internal/uploader"
	"pulse/pkg/cel"
	"pulse/pkg/circuitbreaker"
	"pulse/pkg/crypto"
	"pulse/pkg/errors"
	"pulse/pkg/logging"
	"pulse/pkg/metrics"
	"pulse/pkg/models"
	"pulse/pkg/retry"
	"pulse/pkg/tracing"
)

// ReadyCallback receives the vendor object of an integration, or nil when the
// integration exposes none.
type ReadyCallback func(instance any)

type Client struct {
	tag      string
	cfg      config.PipelineConfig
	log      logger.Logger
	registry *Registry

	store     kv.Store
	traits    *traits.Store
	settings  *settings.Loader
	queue     *dispatch.Queue
	uploader  *uploader.Uploader
	uploadLog storage.Log
	tracker   *lifecycle.Tracker
	factories []integration.Factory
	filters   map[string]*cel.Filter
	defaults  *models.Options

	// integrations is created and used only on the dispatch worker.
	integrations *integration.Registry

	// identity orders identity changes against payload snapshots so the queue sees
	// them in call order.
	identity sync.Mutex

	optOut    atomic.Bool
	isDefault atomic.Bool
	closed    atomic.Bool

	baseCtx      context.Context
	cancel       context.CancelFunc
	observers    sync.WaitGroup
	shutdownOnce sync.Once
	shutdownErr  error
}

func newClient(ctx context.Context, cfg config.Config, deps Deps, r *Registry) (*Client, error) {
	if err := config.ValidatePipeline(cfg.Pipeline); err != nil {
		return nil, errors.InvalidArgument(err.Error())
	}

	tag := instanceTag(cfg.Pipeline)
	log := deps.Logger
	if log == nil {
		log = logger.NopLogger()
	}
	log = log.Named("analytics")
	ctx = logging.WithInstanceTag(ctx, tag)

	store := deps.Store
	if store == nil {
		store = kv.NewMemoryStore()
	}

	cr := deps.Crypto
	if cr == nil {
		var err error
		if cr, err = crypto.FromHexKey(cfg.Pipeline.EncryptionKey); err != nil {
			return nil, errors.InvalidArgument(err.Error())
		}
	}

	filters, err := compileFilters(cfg.Destinations.Filters)
	if err != nil {
		return nil, err
	}

	uploadLog := deps.Log
	if uploadLog == nil {
		if uploadLog, err = storage.Open(cfg.Storage); err != nil {
			return nil, fmt.Errorf("failed to open upload log: %w", err)
		}
	}

	var httpClient *client.Client
	if deps.Fetcher == nil || deps.Sender == nil {
		clientCfg := client.Config{
			WriteKey: cfg.Pipeline.WriteKey,
			APIHost:  cfg.Settings.APIHost,
			CDNHost:  cfg.Settings.CDNHost,
			Timeout:  cfg.Settings.HTTPTimeout,
		}
		if cfg.CircuitBreaker.Enabled {
			cb := circuitbreaker.ConfigFrom("upload-"+tag, cfg.CircuitBreaker)
			clientCfg.Breaker = &cb
		}
		httpClient = client.New(clientCfg, log.Named("client"))
	}
	fetcher, sender := deps.Fetcher, deps.Sender
	if fetcher == nil {
		fetcher = httpClient
	}
	if sender == nil {
		sender = httpClient
	}

	up := uploader.New(uploader.Config{
		Instance:             tag,
		WriteKey:             cfg.Pipeline.WriteKey,
		FlushQueueSize:       cfg.Pipeline.FlushQueueSize,
		FlushInterval:        cfg.Pipeline.FlushInterval,
		Workers:              cfg.Pipeline.UploadWorkers,
		NanosecondTimestamps: cfg.Pipeline.NanosecondTimestamps,
	}, uploadLog, sender, cr, log.Named("uploader"))

	factories := append([]integration.Factory{uploader.NewFactory(up)}, deps.Factories...)

	loader := settings.NewLoader(settings.Config{
		Tag:             tag,
		WriteKey:        cfg.Pipeline.WriteKey,
		APIHost:         cfg.Settings.APIHost,
		CacheTTL:        cfg.Settings.CacheTTL,
		RefreshInterval: cfg.Settings.RefreshInterval,
		Defaults:        cfg.Settings.Defaults,
		Retry:           retry.PolicyFrom(cfg.Settings.Retry),
	}, fetcher, store, log.Named("settings"))

	baseCtx, cancel := context.WithCancel(logging.WithInstanceTag(context.Background(), tag))
	c := &Client{
		tag:       tag,
		cfg:       cfg.Pipeline,
		log:       log,
		registry:  r,
		store:     store,
		traits:    traits.NewStore(ctx, traits.NewCache(store, tag), autoContext(cfg.Pipeline), log),
		settings:  loader,
		queue:     dispatch.NewQueue(tag, log.Named("dispatch")),
		uploader:  up,
		uploadLog: uploadLog,
		factories: factories,
		filters:   filters,
		defaults:  defaultOptions(cfg.Pipeline, factories),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
	c.restoreOptOut(ctx)
	c.tracker = lifecycle.NewTracker(lifecycle.Config{
		Tag:            tag,
		Version:        cfg.Pipeline.Application.Version,
		Build:          cfg.Pipeline.Application.Build,
		TrackLifecycle: cfg.Pipeline.TrackLifecycleEvents,
		RecordScreens:  cfg.Pipeline.RecordScreenViews,
		TrackDeepLinks: cfg.Pipeline.TrackDeepLinks,
	}, store, lifecycleEmitter{c}, log.Named("lifecycle"))

	up.Start()

	// settings load and integration construction happen on the worker so that
	// verbs called right after construction queue behind them
	if err := c.queue.Enqueue(c.initialize); err != nil {
		return nil, err
	}

	log.InfowCtx(ctx, "Analytics client created", "write_key_suffix", suffix(cfg.Pipeline.WriteKey))
	return c, nil
}

// lifecycleEmitter records tracker events through the public verbs.
type lifecycleEmitter struct {
	c *Client
}

func (e lifecycleEmitter) Track(ctx context.Context, event string, properties map[string]interface{}) error {
	return e.c.Track(ctx, event, properties, nil)
}

func (e lifecycleEmitter) Screen(ctx context.Context, category, name string, properties map[string]interface{}) error {
	return e.c.Screen(ctx, category, name, properties, nil)
}

func instanceTag(cfg config.PipelineConfig) string {
	if cfg.Tag != "" {
		return cfg.Tag
	}
	return cfg.WriteKey
}

func suffix(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

func compileFilters(exprs map[string]string) (map[string]*cel.Filter, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	filters := make(map[string]*cel.Filter, len(exprs))
	for name, expr := range exprs {
		f, err := evaluator.CompileFilter(expr)
		if err != nil {
			return nil, errors.InvalidArgument(err.Error()).WithDetail("integration", name)
		}
		filters[name] = f
	}
	return filters, nil
}

func (c *Client) initialize(ctx context.Context) {
	ctx = logging.WithInstanceTag(ctx, c.tag)
	current := c.settings.Load(ctx)
	c.integrations = integration.Build(ctx, current, c.factories, c.filters, c.log.Named("integrations"))
	c.settings.StartRefresher(c.baseCtx)
}

// Tag identifies the instance in the registry.
func (c *Client) Tag() string {
	return c.tag
}

func (c *Client) IsShutdown() bool {
	return c.closed.Load()
}

func (c *Client) checkOpen() error {
	if c.closed.Load() {
		return errors.IllegalState(errors.MsgShutdown)
	}
	return nil
}

// Identify associates the current user with userID and traits. Either may be empty,
// not both.
func (c *Client) Identify(ctx context.Context, userID string, traits map[string]interface{}, opts *models.Options) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if userID == "" && len(traits) == 0 {
		return errors.InvalidArgument(errors.MsgIdentifyArgs)
	}

	return c.enqueue(ctx, opts, func() *models.PayloadBuilder {
		updated := c.traits.Identify(ctx, userID, traits)
		return models.NewPayloadBuilder(models.EventIdentify).WithTraits(updated)
	})
}

// Track records that the user performed event.
func (c *Client) Track(ctx context.Context, event string, properties map[string]interface{}, opts *models.Options) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if strings.TrimSpace(event) == "" {
		return errors.InvalidArgument(errors.MsgTrackEvent)
	}

	return c.enqueue(ctx, opts, func() *models.PayloadBuilder {
		return models.NewPayloadBuilder(models.EventTrack).WithEvent(event).WithProperties(properties)
	})
}

// Screen records a screen view. Category or name must be set.
func (c *Client) Screen(ctx context.Context, category, name string, properties map[string]interface{}, opts *models.Options) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if category == "" && name == "" {
		return errors.InvalidArgument(errors.MsgScreenArgs)
	}

	return c.enqueue(ctx, opts, func() *models.PayloadBuilder {
		return models.NewPayloadBuilder(models.EventScreen).WithScreen(category, name).WithProperties(properties)
	})
}

// Group associates the current user with groupID.
func (c *Client) Group(ctx context.Context, groupID string, traits map[string]interface{}, opts *models.Options) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if groupID == "" {
		return errors.InvalidArgument(errors.MsgGroupID)
	}

	return c.enqueue(ctx, opts, func() *models.PayloadBuilder {
		return models.NewPayloadBuilder(models.EventGroup).WithGroupID(groupID).WithTraits(traits)
	})
}

// Alias links the current identity to newID.
func (c *Client) Alias(ctx context.Context, newID string, opts *models.Options) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if newID == "" {
		return errors.InvalidArgument(errors.MsgAliasID)
	}

	return c.enqueue(ctx, opts, func() *models.PayloadBuilder {
		return models.NewPayloadBuilder(models.EventAlias).WithUserID(newID).WithPreviousID(c.traits.CurrentID())
	})
}

// enqueue completes the builder from the identity snapshot and the merged options,
// then hands the payload to the dispatch worker. newBuilder, the snapshot and the
// enqueue run under the identity lock.
func (c *Client) enqueue(ctx context.Context, opts *models.Options, newBuilder func() *models.PayloadBuilder) error {
	merged := opts.Over(c.defaults)

	c.identity.Lock()
	defer c.identity.Unlock()

	b := newBuilder()
	snapshot, liveContext := c.traits.Snapshot()

	b.WithAnonymousID(snapshot.AnonymousID()).
		WithContext(models.Merge(liveContext, merged.Context)).
		WithIntegrations(merged.Integrations).
		WithNanosecondTimestamps(c.cfg.NanosecondTimestamps)

	p, err := b.Build()
	if err != nil {
		return err
	}
	if p.Type != models.EventAlias {
		p.UserID = snapshot.UserID()
	}

	if err := c.queue.Enqueue(func(ctx context.Context) { c.dispatch(ctx, p) }); err != nil {
		return err
	}
	metrics.IncEventsEnqueued(string(p.Type))
	c.log.DebugwCtx(logging.WithMessageID(ctx, p.MessageID), "Payload enqueued", "type", p.Type)
	return nil
}

func (c *Client) dispatch(ctx context.Context, p models.Payload) {
	if c.optOut.Load() {
		metrics.IncEventsFiltered("opted_out")
		return
	}

	ctx = logging.WithMessageID(logging.WithInstanceTag(ctx, c.tag), p.MessageID)
	ctx, span := tracing.GetTracer("pulse-dispatch").Start(ctx, "dispatch."+string(p.Type))
	defer span.End()

	c.integrations.Dispatch(ctx, p, plan.Evaluate(p, c.settings.Current()))
}

// Flush asks every integration to send what it has buffered. It does not wait.
func (c *Client) Flush(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.queue.Enqueue(func(ctx context.Context) {
		c.integrations.Flush(logging.WithInstanceTag(ctx, c.tag))
	})
}

// Reset forgets the current user and clears per-user state in integrations.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.identity.Lock()
	defer c.identity.Unlock()

	c.traits.Reset(ctx)
	return c.queue.Enqueue(func(ctx context.Context) {
		c.integrations.Reset(logging.WithInstanceTag(ctx, c.tag))
	})
}

// OptOut stops (or resumes) delivery to every integration. The flag is persisted.
func (c *Client) OptOut(ctx context.Context, optOut bool) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.optOut.Store(optOut)
	if err := c.store.Set(ctx, constants.KeyOptOut+c.tag, []byte(strconv.FormatBool(optOut))); err != nil {
		c.log.WarnwCtx(ctx, "Failed to persist opt-out flag", "error", err)
	}
	return nil
}

func (c *Client) OptedOut() bool {
	return c.optOut.Load()
}

func (c *Client) restoreOptOut(ctx context.Context) {
	raw, err := c.store.Get(ctx, constants.KeyOptOut+c.tag)
	if err != nil {
		if !errors.IsNotFound(err) {
			c.log.WarnwCtx(ctx, "Failed to restore opt-out flag", "error", err)
		}
		return
	}
	if v, err := strconv.ParseBool(string(raw)); err == nil {
		c.optOut.Store(v)
	}
}

// OnIntegrationReady runs cb on the dispatch worker once integrations are built.
// cb is not called when no integration has that key.
func (c *Client) OnIntegrationReady(key string, cb ReadyCallback) error {
	if strings.TrimSpace(key) == "" {
		return errors.InvalidArgument(errors.MsgIntegrationKey)
	}
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.queue.Enqueue(func(ctx context.Context) {
		in, ok := c.integrations.Get(key)
		if !ok {
			return
		}
		var instance any
		if u, ok := in.(integration.Underlying); ok {
			instance = u.Underlying()
		}
		cb(instance)
	})
}

// Notify applies a host lifecycle transition: derived application events are
// recorded and lifecycle-aware integrations are told.
func (c *Client) Notify(ctx context.Context, ev lifecycle.Event) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !ev.Kind.Valid() {
		return errors.InvalidArgument(fmt.Sprintf("unknown lifecycle event %q", ev.Kind))
	}

	if err := c.queue.Enqueue(func(ctx context.Context) {
		c.integrations.Lifecycle(logging.WithInstanceTag(ctx, c.tag), ev)
	}); err != nil {
		return err
	}
	c.tracker.Handle(ctx, ev)
	return nil
}

// Observe feeds events from ch into Notify until ch closes or the client shuts down.
func (c *Client) Observe(ch <-chan lifecycle.Event) {
	c.observers.Add(1)
	go func() {
		defer c.observers.Done()
		for {
			select {
			case <-c.baseCtx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := c.Notify(c.baseCtx, ev); err != nil {
					c.log.WarnwCtx(c.baseCtx, "Dropped lifecycle event", "kind", ev.Kind, "error", err)
				}
			}
		}
	}()
}

// ProjectSettings returns the published settings, nil until the first load completes.
func (c *Client) ProjectSettings() *models.ProjectSettings {
	return c.settings.Current()
}

// Traits returns a copy of the current traits.
func (c *Client) Traits() models.Traits {
	t, _ := c.traits.Snapshot()
	return t
}

// Shutdown stops the instance: queued payloads are dispatched, in-flight uploads
// finish, integrations are closed and the tag is released. It is idempotent.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.isDefault.Load() {
		return errors.ErrUnsupportedOperation.WithMessage(errors.MsgSingletonShutdown)
	}

	c.shutdownOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.observers.Wait()
		c.settings.Stop()

		var errs []error
		if err := c.queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain dispatch queue: %w", err))
		}
		if err := c.uploader.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop uploader: %w", err))
		}
		if c.integrations != nil {
			if err := c.integrations.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := c.uploadLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close upload log: %w", err))
		}
		if c.registry != nil {
			c.registry.Remove(c.tag)
		}

		if len(errs) > 0 {
			c.shutdownErr = errs[0]
			c.log.Errorw("Analytics client shut down with errors", "errors", errs)
			return
		}
		c.log.Infow("Analytics client shut down")
	})
	return c.shutdownErr
}
