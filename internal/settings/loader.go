// Package settings loads and publishes the project settings for one pipeline
// instance.
package settings

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pulse/internal/constants"
	"pulse/internal/kv"
	"pulse/internal/logger"
	"pulse/pkg/errors"
	"pulse/pkg/jsoncodec"
	"pulse/pkg/metrics"
	"pulse/pkg/models"
	"pulse/pkg/retry"
)

// Fetcher downloads the settings document. *client.Client implements it.
type Fetcher interface {
	FetchSettings(ctx context.Context) (map[string]interface{}, error)
}

type Config struct {
	Tag             string
	WriteKey        string
	APIHost         string
	CacheTTL        time.Duration
	RefreshInterval time.Duration
	// Defaults is a settings document used when neither cache nor network can serve.
	Defaults map[string]interface{}
	Retry    retry.Policy
}

type Loader struct {
	cfg     Config
	fetcher Fetcher
	store   kv.Store
	log     logger.Logger
	current atomic.Pointer[models.ProjectSettings]
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewLoader(cfg Config, fetcher Fetcher, store kv.Store, log logger.Logger) *Loader {
	return &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		log:     log,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

func (l *Loader) cacheKey() string {
	return constants.KeyProjectSettings + l.cfg.Tag
}

// Load resolves the startup settings and publishes them: a fresh cache entry, then
// the network, then a stale cache entry, then the configured defaults.
func (l *Loader) Load(ctx context.Context) *models.ProjectSettings {
	cached := l.readCache(ctx)
	if cached != nil && !cached.IsStale(l.now(), l.cfg.CacheTTL) {
		return l.publish(cached, constants.SettingsSourceCache)
	}

	fetched, err := l.fetch(ctx)
	if err == nil {
		return l.publish(fetched, constants.SettingsSourceNetwork)
	}
	l.log.WarnwCtx(ctx, "Failed to fetch project settings", "error", err)

	if cached != nil {
		return l.publish(cached, constants.SettingsSourceStale)
	}

	defaults := models.ParseProjectSettings(l.cfg.Defaults)
	defaults.Timestamp = l.now().UnixMilli()
	return l.publish(defaults, constants.SettingsSourceDefaults)
}

// Refresh fetches settings and publishes them on success. The current value is
// kept on failure.
func (l *Loader) Refresh(ctx context.Context) error {
	fetched, err := l.fetch(ctx)
	if err != nil {
		return err
	}
	l.publish(fetched, constants.SettingsSourceNetwork)
	return nil
}

// Current returns the published settings, nil before Load.
func (l *Loader) Current() *models.ProjectSettings {
	return l.current.Load()
}

// StartRefresher refreshes on RefreshInterval until ctx ends or Stop is called.
// A zero interval disables it.
func (l *Loader) StartRefresher(ctx context.Context) {
	if l.cfg.RefreshInterval <= 0 {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		t := time.NewTicker(l.cfg.RefreshInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-t.C:
				if err := l.Refresh(ctx); err != nil {
					l.log.WarnwCtx(ctx, "Settings refresh failed, keeping current settings", "error", err)
				}
			}
		}
	}()
}

func (l *Loader) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *Loader) fetch(ctx context.Context) (*models.ProjectSettings, error) {
	var raw map[string]interface{}
	err := retry.Do(ctx, "settings_fetch", l.cfg.Retry, func(ctx context.Context) error {
		var fetchErr error
		raw, fetchErr = l.fetcher.FetchSettings(ctx)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	s := models.ParseProjectSettings(raw)
	s.Timestamp = l.now().UnixMilli()
	l.writeCache(ctx, s)
	return s, nil
}

func (l *Loader) readCache(ctx context.Context) *models.ProjectSettings {
	data, err := l.store.Get(ctx, l.cacheKey())
	if errors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		l.log.WarnwCtx(ctx, "Failed to read settings cache", "error", err)
		return nil
	}

	var s models.ProjectSettings
	if err := jsoncodec.Unmarshal(data, &s); err != nil {
		l.log.WarnwCtx(ctx, "Discarding unreadable settings cache", "error", err)
		return nil
	}
	if len(s.Integrations) == 0 {
		return nil
	}
	return &s
}

func (l *Loader) writeCache(ctx context.Context, s *models.ProjectSettings) {
	data, err := jsoncodec.Marshal(s)
	if err != nil {
		l.log.WarnwCtx(ctx, "Failed to encode settings for cache", "error", err)
		return
	}
	if err := l.store.Set(ctx, l.cacheKey(), data); err != nil {
		l.log.WarnwCtx(ctx, "Failed to write settings cache", "error", err)
	}
}

// publish overlays the built-in integration entry and swaps the settings in.
func (l *Loader) publish(s *models.ProjectSettings, source string) *models.ProjectSettings {
	out := s.Copy()
	if out.Integrations == nil {
		out.Integrations = make(map[string]models.ValueMap)
	}

	segment := out.Integrations[constants.SegmentIntegrationKey]
	merged := models.Merge(segment, l.defaultSegmentSettings(), map[string]interface{}{"apiKey": l.cfg.WriteKey})
	if l.cfg.APIHost != "" {
		if _, ok := merged["apiHost"]; !ok {
			merged["apiHost"] = l.cfg.APIHost
		}
	}
	out.Integrations[constants.SegmentIntegrationKey] = models.ValueMap(merged)

	l.current.Store(out)
	metrics.IncSettingsLoad(source)
	l.log.Infow("Project settings published", "source", source, "integrations", len(out.Integrations))
	return out
}

// defaultSegmentSettings finds the built-in entry in the defaults document. Names
// match case-insensitively since configuration keys may arrive lowercased.
func (l *Loader) defaultSegmentSettings() map[string]interface{} {
	defaults := models.ParseProjectSettings(l.cfg.Defaults)
	for name, v := range defaults.Integrations {
		if strings.EqualFold(name, constants.SegmentIntegrationKey) {
			return v
		}
	}
	return nil
}
