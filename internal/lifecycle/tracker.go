package lifecycle

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"pulse/internal/constants"
	"pulse/internal/kv"
	"pulse/internal/logger"
	"pulse/pkg/errors"
	"pulse/pkg/metrics"
)

// Emitter records the events the tracker derives. The pipeline client implements it.
type Emitter interface {
	Track(ctx context.Context, event string, properties map[string]interface{}) error
	Screen(ctx context.Context, category, name string, properties map[string]interface{}) error
}

type Config struct {
	Tag            string
	Version        string
	Build          string
	TrackLifecycle bool
	RecordScreens  bool
	TrackDeepLinks bool
}

// Tracker turns host transitions into application events. It counts started
// surfaces so that only the first start and the last stop change foreground state.
type Tracker struct {
	mu            sync.Mutex
	cfg           Config
	store         kv.Store
	emitter       Emitter
	log           logger.Logger
	started       int
	firstLaunch   bool
	installTraced bool
}

func NewTracker(cfg Config, store kv.Store, emitter Emitter, log logger.Logger) *Tracker {
	return &Tracker{
		cfg:         cfg,
		store:       store,
		emitter:     emitter,
		log:         log,
		firstLaunch: true,
	}
}

// Handle applies ev. Calls are serialized.
func (t *Tracker) Handle(ctx context.Context, ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case Created:
		if t.cfg.TrackLifecycle && !t.installTraced {
			t.installTraced = true
			t.trackInstallOrUpdate(ctx)
		}
		if t.cfg.TrackDeepLinks && ev.URL != "" {
			t.trackDeepLink(ctx, ev.URL)
		}
	case Started:
		t.started++
		if t.started == 1 && t.cfg.TrackLifecycle {
			t.emit(ctx, ApplicationOpened, map[string]interface{}{
				"version":         t.cfg.Version,
				"build":           t.cfg.Build,
				"from_background": !t.firstLaunch,
			})
		}
		if t.started == 1 {
			t.firstLaunch = false
		}
	case Stopped:
		if t.started == 0 {
			return
		}
		t.started--
		if t.started == 0 && t.cfg.TrackLifecycle {
			t.emit(ctx, ApplicationBackgrounded, nil)
		}
	case ScreenViewed:
		if !t.cfg.RecordScreens || (ev.Screen == "" && ev.Category == "") {
			return
		}
		if err := t.emitter.Screen(ctx, ev.Category, ev.Screen, nil); err != nil {
			t.log.WarnwCtx(ctx, "Failed to record screen view", "screen", ev.Screen, "error", err)
		}
	}
}

// Foreground reports whether at least one surface is started.
func (t *Tracker) Foreground() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started > 0
}

func (t *Tracker) trackInstallOrUpdate(ctx context.Context) {
	versionKey := constants.KeyVersion + t.cfg.Tag
	buildKey := constants.KeyBuild + t.cfg.Tag

	previousBuild, buildErr := t.read(ctx, buildKey)
	previousVersion, _ := t.read(ctx, versionKey)

	switch {
	case buildErr != nil:
		t.log.WarnwCtx(ctx, "Failed to read stored build, skipping install tracking", "error", buildErr)
		return
	case previousBuild == "":
		t.emit(ctx, ApplicationInstalled, map[string]interface{}{
			"version": t.cfg.Version,
			"build":   t.cfg.Build,
		})
	case previousBuild != t.cfg.Build:
		t.emit(ctx, ApplicationUpdated, map[string]interface{}{
			"version":          t.cfg.Version,
			"build":            t.cfg.Build,
			"previous_version": previousVersion,
			"previous_build":   previousBuild,
		})
	}

	if err := t.store.Set(ctx, versionKey, []byte(t.cfg.Version)); err != nil {
		t.log.WarnwCtx(ctx, "Failed to store application version", "error", err)
	}
	if err := t.store.Set(ctx, buildKey, []byte(t.cfg.Build)); err != nil {
		t.log.WarnwCtx(ctx, "Failed to store application build", "error", err)
	}
}

// trackDeepLink records the link with its non-blank query parameters as properties.
func (t *Tracker) trackDeepLink(ctx context.Context, link string) {
	props := map[string]interface{}{}
	u, err := url.Parse(link)
	if err != nil {
		t.log.WarnwCtx(ctx, "Failed to parse deep link, tracking url only", "error", err)
	} else {
		for name, values := range u.Query() {
			if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
				props[name] = values[0]
			}
		}
	}
	props["url"] = link
	t.emit(ctx, DeepLinkOpened, props)
}

func (t *Tracker) read(ctx context.Context, key string) (string, error) {
	v, err := t.store.Get(ctx, key)
	if errors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (t *Tracker) emit(ctx context.Context, event string, props map[string]interface{}) {
	if err := t.emitter.Track(ctx, event, props); err != nil {
		t.log.WarnwCtx(ctx, "Failed to track lifecycle event", "event", event, "error", err)
		return
	}
	metrics.IncLifecycleEvent(event)
}
