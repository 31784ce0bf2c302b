package analytics

import (
	"os"
	"runtime"
	"strings"
	"time"

	"pulse/internal/config"
	"pulse/internal/constants"
	"pulse/internal/integration"
	"pulse/internal/kv"
	"pulse/internal/logger"
	"pulse/internal/settings"
	"pulse/internal/storage"
	"pulse/internal/uploader"
	"pulse/pkg/crypto"
	"pulse/pkg/models"
)

// Deps are the collaborators of a Client. Nil fields get in-process defaults:
// memory kv, the log selected by config, and the HTTP client for fetch and upload.
type Deps struct {
	Logger    logger.Logger
	Store     kv.Store
	Log       storage.Log
	Fetcher   settings.Fetcher
	Sender    uploader.Sender
	Crypto    crypto.Crypto
	Factories []integration.Factory
}

// autoContext is the context every payload starts from.
func autoContext(cfg config.PipelineConfig) map[string]interface{} {
	ctx := map[string]interface{}{
		"library": map[string]interface{}{
			"name":    constants.LibraryName,
			"version": constants.LibraryVersion,
		},
		"os": map[string]interface{}{
			"name": runtime.GOOS,
		},
		"runtime": map[string]interface{}{
			"name":    "go",
			"version": runtime.Version(),
			"arch":    runtime.GOARCH,
		},
		"timezone": time.Local.String(),
	}

	app := map[string]interface{}{}
	for k, v := range map[string]string{
		"name":      cfg.Application.Name,
		"namespace": cfg.Application.Namespace,
		"version":   cfg.Application.Version,
		"build":     cfg.Application.Build,
	} {
		if v != "" {
			app[k] = v
		}
	}
	if len(app) > 0 {
		ctx["app"] = app
	}
	if host, err := os.Hostname(); err == nil {
		ctx["device"] = map[string]interface{}{"name": host}
	}
	return ctx
}

// canonicalKeys rewrites integration names to the casing of the registered
// factories. Configuration loaders may lowercase map keys.
func canonicalKeys(m map[string]interface{}, factories []integration.Factory) map[string]interface{} {
	if m == nil {
		return nil
	}
	known := []string{constants.AllIntegrationsKey, constants.SegmentIntegrationKey}
	for _, f := range factories {
		known = append(known, f.Key())
	}

	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		name := k
		for _, candidate := range known {
			if strings.EqualFold(k, candidate) {
				name = candidate
				break
			}
		}
		out[name] = v
	}
	return out
}

func defaultOptions(cfg config.PipelineConfig, factories []integration.Factory) *models.Options {
	return (&models.Options{
		Context:      cfg.DefaultContext,
		Integrations: canonicalKeys(cfg.DefaultIntegrations, factories),
	}).Copy()
}
