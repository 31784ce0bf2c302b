package models

import (
	"time"
)

// ProjectSettings is the remote project configuration. A published value is never
// mutated; refreshes replace it.
type ProjectSettings struct {
	Integrations map[string]ValueMap `json:"integrations"`
	Plan         TrackingPlan        `json:"plan"`
	Timestamp    int64               `json:"timestamp"`
}

type TrackingPlan struct {
	Track map[string]EventPlan `json:"track,omitempty"`
}

type EventPlan struct {
	Enabled      *bool                  `json:"enabled,omitempty"`
	Integrations map[string]interface{} `json:"integrations,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (e EventPlan) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// IsStale reports whether the settings were produced longer than ttl before now.
func (s *ProjectSettings) IsStale(now time.Time, ttl time.Duration) bool {
	if s == nil || s.Timestamp == 0 {
		return true
	}
	return now.Sub(time.UnixMilli(s.Timestamp)) > ttl
}

func (s *ProjectSettings) Copy() *ProjectSettings {
	if s == nil {
		return nil
	}
	out := &ProjectSettings{
		Integrations: make(map[string]ValueMap, len(s.Integrations)),
		Timestamp:    s.Timestamp,
	}
	for k, v := range s.Integrations {
		out.Integrations[k] = v.Copy()
	}
	if s.Plan.Track != nil {
		out.Plan.Track = make(map[string]EventPlan, len(s.Plan.Track))
		for k, v := range s.Plan.Track {
			ep := EventPlan{Integrations: DeepCopy(v.Integrations)}
			if v.Enabled != nil {
				b := *v.Enabled
				ep.Enabled = &b
			}
			out.Plan.Track[k] = ep
		}
	}
	return out
}

// ParseProjectSettings reads the untyped settings object, as decoded from JSON or
// taken from configuration. Unknown fields are ignored.
func ParseProjectSettings(raw map[string]interface{}) *ProjectSettings {
	s := &ProjectSettings{Integrations: make(map[string]ValueMap)}
	if raw == nil {
		return s
	}

	if integrations, ok := asMap(raw["integrations"]); ok {
		for name, v := range integrations {
			if m, ok := asMap(v); ok {
				s.Integrations[name] = ValueMap(DeepCopy(m))
			} else {
				s.Integrations[name] = ValueMap{}
			}
		}
	}

	if plan, ok := asMap(raw["plan"]); ok {
		if track, ok := asMap(plan["track"]); ok {
			s.Plan.Track = make(map[string]EventPlan, len(track))
			for event, v := range track {
				entry, ok := asMap(v)
				if !ok {
					continue
				}
				var ep EventPlan
				if b, ok := entry["enabled"].(bool); ok {
					ep.Enabled = &b
				}
				if m, ok := asMap(entry["integrations"]); ok {
					ep.Integrations = DeepCopy(m)
				}
				s.Plan.Track[event] = ep
			}
		}
	}

	s.Timestamp = toInt64(raw["timestamp"])
	return s
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	}
	return 0
}
