package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pulse/pkg/models"
)

func boolPtr(b bool) *bool { return &b }

func settingsWithPlan() *models.ProjectSettings {
	return &models.ProjectSettings{
		Plan: models.TrackingPlan{Track: map[string]models.EventPlan{
			"Blocked": {Enabled: boolPtr(false)},
			"Partial": {
				Enabled:      boolPtr(true),
				Integrations: map[string]interface{}{"Mixpanel": false, "Amplitude": true},
			},
			"Implicit": {
				Integrations: map[string]interface{}{"Mixpanel": false},
			},
			"AllOff": {
				Integrations: map[string]interface{}{"All": false, "Amplitude": true},
			},
		}},
	}
}

func track(event string, integrations map[string]interface{}) models.Payload {
	return models.Payload{Type: models.EventTrack, Event: event, Integrations: integrations}
}

func TestAllows(t *testing.T) {
	settings := settingsWithPlan()

	tests := []struct {
		name        string
		payload     models.Payload
		integration string
		want        bool
	}{
		{"absent from plan", track("Unplanned", nil), "Mixpanel", true},
		{"absent from plan, caller disables", track("Unplanned", map[string]interface{}{"Mixpanel": false}), "Mixpanel", false},
		{"absent from plan, All false", track("Unplanned", map[string]interface{}{"All": false}), "Mixpanel", false},
		{"absent from plan, All false, explicit true", track("Unplanned", map[string]interface{}{"All": false, "Mixpanel": true}), "Mixpanel", true},
		{"absent from plan, options object enables", track("Unplanned", map[string]interface{}{"All": false, "Mixpanel": map[string]interface{}{"k": 1}}), "Mixpanel", true},

		{"blocked event", track("Blocked", nil), "Mixpanel", false},
		{"blocked event, caller re-enables", track("Blocked", map[string]interface{}{"Mixpanel": true}), "Mixpanel", false},
		{"blocked event, built-in destination", track("Blocked", nil), "Segment.io", false},

		{"plan disables integration", track("Partial", nil), "Mixpanel", false},
		{"plan disables integration, caller re-enables", track("Partial", map[string]interface{}{"Mixpanel": true}), "Mixpanel", true},
		{"plan disables integration, others unaffected", track("Partial", nil), "Intercom", true},
		{"plan disable with implicit enabled flag", track("Implicit", nil), "Mixpanel", false},
		{"All false beats re-enable of plan-disabled", track("Partial", map[string]interface{}{"All": false, "Mixpanel": true}), "Mixpanel", false},
		{"All false with plan-enabled integration", track("Partial", map[string]interface{}{"All": false}), "Amplitude", false},
		{"All false, plan-enabled, explicit true", track("Partial", map[string]interface{}{"All": false, "Amplitude": true}), "Amplitude", true},

		{"plan All false disables unlisted", track("AllOff", nil), "Mixpanel", false},
		{"plan All false keeps listed", track("AllOff", nil), "Amplitude", true},

		{"built-in always receives", track("Partial", map[string]interface{}{"All": false, "Segment.io": false}), "Segment.io", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.payload, settings)
			assert.Equal(t, tt.want, d.Allows(tt.integration))
		})
	}
}

func TestNonTrackBypassesPlan(t *testing.T) {
	settings := &models.ProjectSettings{
		Plan: models.TrackingPlan{Track: map[string]models.EventPlan{
			"": {Enabled: boolPtr(false)},
		}},
	}

	for _, typ := range []models.EventType{models.EventIdentify, models.EventScreen, models.EventGroup, models.EventAlias} {
		d := Evaluate(models.Payload{Type: typ}, settings)
		assert.False(t, d.Blocked(), typ)
		assert.True(t, d.Allows("Mixpanel"), typ)
	}

	d := Evaluate(models.Payload{Type: models.EventIdentify, Integrations: map[string]interface{}{"All": false}}, settings)
	assert.False(t, d.Allows("Mixpanel"))
	assert.True(t, d.Allows("Segment.io"))
}

func TestNilSettings(t *testing.T) {
	d := Evaluate(track("Anything", nil), nil)
	assert.False(t, d.Blocked())
	assert.True(t, d.Allows("Mixpanel"))
}
