package models

import (
	"time"
)

type EventType string

const (
	EventIdentify EventType = "identify"
	EventTrack    EventType = "track"
	EventScreen   EventType = "screen"
	EventGroup    EventType = "group"
	EventAlias    EventType = "alias"
)

func (t EventType) Valid() bool {
	switch t {
	case EventIdentify, EventTrack, EventScreen, EventGroup, EventAlias:
		return true
	}
	return false
}

// Payload is one recorded event. Values are built by PayloadBuilder and must not be
// mutated afterwards; its maps are private copies.
type Payload struct {
	MessageID    string                 `json:"messageId"`
	Type         EventType              `json:"type"`
	Timestamp    string                 `json:"timestamp"`
	AnonymousID  string                 `json:"anonymousId,omitempty"`
	UserID       string                 `json:"userId,omitempty"`
	Context      map[string]interface{} `json:"context"`
	Integrations map[string]interface{} `json:"integrations"`

	Event      string                 `json:"event,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Traits     map[string]interface{} `json:"traits,omitempty"`
	Name       string                 `json:"name,omitempty"`
	Category   string                 `json:"category,omitempty"`
	GroupID    string                 `json:"groupId,omitempty"`
	PreviousID string                 `json:"previousId,omitempty"`
}

const (
	millisLayout = "2006-01-02T15:04:05.000Z"
	nanosLayout  = "2006-01-02T15:04:05.000000000Z"
)

// FormatTimestamp renders t in UTC with millisecond, or nanosecond, precision.
func FormatTimestamp(t time.Time, nanos bool) string {
	if nanos {
		return t.UTC().Format(nanosLayout)
	}
	return t.UTC().Format(millisLayout)
}

// ParseTimestamp accepts either precision produced by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// IntegrationOverride reports the caller's explicit boolean for name, if any.
func (p Payload) IntegrationOverride(name string) (enabled bool, ok bool) {
	v, present := p.Integrations[name]
	if !present {
		return false, false
	}
	b, isBool := v.(bool)
	if !isBool {
		// a settings object for the destination counts as enabled
		return true, true
	}
	return b, true
}

// ToMap flattens the payload into the shape destination filters evaluate against.
func (p Payload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"messageId":    p.MessageID,
		"type":         string(p.Type),
		"timestamp":    p.Timestamp,
		"anonymousId":  p.AnonymousID,
		"userId":       p.UserID,
		"context":      orEmpty(p.Context),
		"integrations": orEmpty(p.Integrations),
		"event":        p.Event,
		"properties":   orEmpty(p.Properties),
		"traits":       orEmpty(p.Traits),
		"name":         p.Name,
		"category":     p.Category,
		"groupId":      p.GroupID,
		"previousId":   p.PreviousID,
	}
	return m
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
