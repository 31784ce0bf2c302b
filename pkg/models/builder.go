package models

import (
	"time"

	"github.com/google/uuid"
)

type PayloadBuilder struct {
	payload   Payload
	timestamp time.Time
	nanos     bool
}

func NewPayloadBuilder(eventType EventType) *PayloadBuilder {
	return &PayloadBuilder{
		payload: Payload{Type: eventType},
	}
}

func (b *PayloadBuilder) WithMessageID(id string) *PayloadBuilder {
	b.payload.MessageID = id
	return b
}

func (b *PayloadBuilder) WithTimestamp(timestamp time.Time) *PayloadBuilder {
	b.timestamp = timestamp
	return b
}

func (b *PayloadBuilder) WithNanosecondTimestamps(enabled bool) *PayloadBuilder {
	b.nanos = enabled
	return b
}

func (b *PayloadBuilder) WithAnonymousID(id string) *PayloadBuilder {
	b.payload.AnonymousID = id
	return b
}

func (b *PayloadBuilder) WithUserID(id string) *PayloadBuilder {
	b.payload.UserID = id
	return b
}

func (b *PayloadBuilder) WithContext(ctx map[string]interface{}) *PayloadBuilder {
	b.payload.Context = ctx
	return b
}

func (b *PayloadBuilder) WithIntegrations(integrations map[string]interface{}) *PayloadBuilder {
	b.payload.Integrations = integrations
	return b
}

func (b *PayloadBuilder) WithEvent(event string) *PayloadBuilder {
	b.payload.Event = event
	return b
}

func (b *PayloadBuilder) WithProperties(props map[string]interface{}) *PayloadBuilder {
	b.payload.Properties = props
	return b
}

func (b *PayloadBuilder) WithTraits(traits map[string]interface{}) *PayloadBuilder {
	b.payload.Traits = traits
	return b
}

func (b *PayloadBuilder) WithScreen(category, name string) *PayloadBuilder {
	b.payload.Category = category
	b.payload.Name = name
	return b
}

func (b *PayloadBuilder) WithGroupID(groupID string) *PayloadBuilder {
	b.payload.GroupID = groupID
	return b
}

func (b *PayloadBuilder) WithPreviousID(previousID string) *PayloadBuilder {
	b.payload.PreviousID = previousID
	return b
}

// Build fills the message id and timestamp when unset, copies every map, and validates.
func (b *PayloadBuilder) Build() (Payload, error) {
	p := b.payload

	if p.MessageID == "" {
		p.MessageID = uuid.NewString()
	}
	ts := b.timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	p.Timestamp = FormatTimestamp(ts, b.nanos)

	p.Context = DeepCopy(p.Context)
	if p.Context == nil {
		p.Context = make(map[string]interface{})
	}
	p.Integrations = DeepCopy(p.Integrations)
	if p.Integrations == nil {
		p.Integrations = make(map[string]interface{})
	}
	p.Properties = DeepCopy(p.Properties)
	p.Traits = DeepCopy(p.Traits)

	if err := Validate(&p); err != nil {
		return Payload{}, err
	}
	return p, nil
}
