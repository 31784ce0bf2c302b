// Package plan applies the tracking plan and per-call integration overrides to a
// payload. Everything here is pure; the caller supplies the published settings.
package plan

import (
	"pulse/internal/constants"
	"pulse/pkg/models"
)

// Decision is the outcome of Evaluate for one payload.
type Decision struct {
	blocked bool
	planned map[string]bool
	planAll *bool
	call    models.Payload
}

// Evaluate looks up the payload's event in the tracking plan. Only track payloads are
// subject to the plan; every payload is subject to its own integrations map.
func Evaluate(p models.Payload, settings *models.ProjectSettings) Decision {
	d := Decision{call: models.Payload{Integrations: p.Integrations}}

	if p.Type != models.EventTrack || settings == nil {
		return d
	}

	entry, ok := settings.Plan.Track[p.Event]
	if !ok {
		return d
	}

	if !entry.IsEnabled() {
		d.blocked = true
		return d
	}

	for name, v := range entry.Integrations {
		enabled := true
		if b, isBool := v.(bool); isBool {
			enabled = b
		}
		if name == constants.AllIntegrationsKey {
			all := enabled
			d.planAll = &all
			continue
		}
		if d.planned == nil {
			d.planned = make(map[string]bool)
		}
		d.planned[name] = enabled
	}

	return d
}

// Blocked is true when the plan disables the event outright.
func (d Decision) Blocked() bool {
	return d.blocked
}

// Allows resolves whether integration name receives the payload.
//
// A whole-event block always wins. The built-in destination receives everything
// else; its server applies the integrations map. A plan-level disable can be lifted
// by an explicit per-call true, but not when the same call also sets All to false.
func (d Decision) Allows(name string) bool {
	if d.blocked {
		return false
	}
	if name == constants.SegmentIntegrationKey {
		return true
	}

	explicit, hasExplicit := d.call.IntegrationOverride(name)
	all, hasAll := d.call.IntegrationOverride(constants.AllIntegrationsKey)

	if d.disabledByPlan(name) {
		return hasExplicit && explicit && !(hasAll && !all)
	}
	if hasExplicit {
		return explicit
	}
	if hasAll {
		return all
	}
	return true
}

func (d Decision) disabledByPlan(name string) bool {
	if enabled, listed := d.planned[name]; listed {
		return !enabled
	}
	return d.planAll != nil && !*d.planAll
}
