package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/pkg/errors"
)

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 6, 123456789, time.FixedZone("X", 3600))

	millis := FormatTimestamp(ts, false)
	assert.Equal(t, "2024-03-09T13:05:06.123Z", millis)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`), millis)

	nanos := FormatTimestamp(ts, true)
	assert.Equal(t, "2024-03-09T13:05:06.123456789Z", nanos)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{9}Z$`), nanos)

	parsed, err := ParseTimestamp(nanos)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts))
}

func TestPayloadBuilder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		builder *PayloadBuilder
		wantMsg string
	}{
		{
			name:    "track without event",
			builder: NewPayloadBuilder(EventTrack).WithAnonymousID("a").WithEvent("   "),
			wantMsg: errors.MsgTrackEvent,
		},
		{
			name:    "screen without name and category",
			builder: NewPayloadBuilder(EventScreen).WithAnonymousID("a"),
			wantMsg: errors.MsgScreenArgs,
		},
		{
			name:    "group without id",
			builder: NewPayloadBuilder(EventGroup).WithAnonymousID("a"),
			wantMsg: errors.MsgGroupID,
		},
		{
			name:    "alias without new id",
			builder: NewPayloadBuilder(EventAlias).WithAnonymousID("a").WithPreviousID("a"),
			wantMsg: errors.MsgAliasID,
		},
		{
			name:    "no identity",
			builder: NewPayloadBuilder(EventIdentify),
			wantMsg: "either userId or anonymousId must be present",
		},
		{
			name:    "unknown type",
			builder: NewPayloadBuilder(EventType("page")).WithAnonymousID("a"),
			wantMsg: "unknown payload type: page",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			require.Error(t, err)
			assert.True(t, errors.IsInvalidArgument(err))
			var appErr *errors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantMsg, appErr.Reason())
		})
	}
}

func TestPayloadBuilder_CopiesMaps(t *testing.T) {
	props := map[string]interface{}{
		"nested": map[string]interface{}{"k": "v"},
		"list":   []interface{}{"a"},
	}
	p, err := NewPayloadBuilder(EventTrack).
		WithAnonymousID("anon").
		WithEvent("Order Completed").
		WithProperties(props).
		Build()
	require.NoError(t, err)

	props["nested"].(map[string]interface{})["k"] = "changed"
	props["list"].([]interface{})[0] = "b"
	props["new"] = true

	assert.Equal(t, "v", p.Properties["nested"].(map[string]interface{})["k"])
	assert.Equal(t, "a", p.Properties["list"].([]interface{})[0])
	assert.NotContains(t, p.Properties, "new")
	assert.NotEmpty(t, p.MessageID)
	assert.NotNil(t, p.Context)
	assert.NotNil(t, p.Integrations)
}

func TestMerge(t *testing.T) {
	base := map[string]interface{}{
		"app":    map[string]interface{}{"name": "demo", "version": "1"},
		"locale": "en-US",
	}
	over := map[string]interface{}{
		"app":    map[string]interface{}{"version": "2"},
		"locale": "de-DE",
		"extra":  1,
	}

	merged := Merge(base, over)

	assert.Equal(t, map[string]interface{}{"name": "demo", "version": "2"}, merged["app"])
	assert.Equal(t, "de-DE", merged["locale"])
	assert.Equal(t, 1, merged["extra"])
	assert.Equal(t, "1", base["app"].(map[string]interface{})["version"], "inputs are not modified")
}

func TestTraits(t *testing.T) {
	traits := NewTraits()
	anon := traits.AnonymousID()
	require.NotEmpty(t, anon)
	assert.Equal(t, anon, traits.CurrentID())

	merged := traits.Merge(map[string]interface{}{TraitUserID: "u1", "plan": "pro"})
	assert.Equal(t, "u1", merged.CurrentID())
	assert.Equal(t, anon, merged.AnonymousID())
	assert.NotContains(t, traits, TraitUserID, "merge returns a copy")

	again := merged.Merge(map[string]interface{}{"plan": "enterprise"})
	assert.Equal(t, "enterprise", again["plan"])
	assert.Equal(t, "u1", again.UserID())
}

func TestOptions(t *testing.T) {
	opts := NewOptions()
	err := opts.SetIntegration("", true)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))

	require.NoError(t, opts.SetIntegration("Mixpanel", false))
	opts.PutContext("ip", "1.2.3.4")

	defaults := NewOptions()
	require.NoError(t, defaults.SetIntegration(AllIntegrations, false))
	defaults.PutContext("ip", "0.0.0.0")
	defaults.PutContext("locale", "en")

	combined := opts.Over(defaults)
	assert.Equal(t, map[string]interface{}{AllIntegrations: false, "Mixpanel": false}, combined.Integrations)
	assert.Equal(t, "1.2.3.4", combined.Context["ip"])
	assert.Equal(t, "en", combined.Context["locale"])

	copied := opts.Copy()
	opts.Integrations["Amplitude"] = true
	assert.NotContains(t, copied.Integrations, "Amplitude")

	var nilOpts *Options
	assert.NotNil(t, nilOpts.Copy().Context)
}

func TestParseProjectSettings(t *testing.T) {
	raw := map[string]interface{}{
		"integrations": map[string]interface{}{
			"Segment.io": map[string]interface{}{"apiKey": "wk"},
			"Mixpanel":   true,
		},
		"plan": map[string]interface{}{
			"track": map[string]interface{}{
				"Blocked": map[string]interface{}{"enabled": false},
				"Partial": map[string]interface{}{
					"enabled":      true,
					"integrations": map[string]interface{}{"Mixpanel": false},
				},
				"Malformed": "x",
			},
		},
		"timestamp": float64(1700000000000),
	}

	s := ParseProjectSettings(raw)

	assert.Equal(t, "wk", s.Integrations["Segment.io"].GetString("apiKey"))
	assert.Contains(t, s.Integrations, "Mixpanel")
	require.Contains(t, s.Plan.Track, "Blocked")
	assert.False(t, s.Plan.Track["Blocked"].IsEnabled())
	assert.True(t, s.Plan.Track["Partial"].IsEnabled())
	assert.Equal(t, false, s.Plan.Track["Partial"].Integrations["Mixpanel"])
	assert.NotContains(t, s.Plan.Track, "Malformed")
	assert.Equal(t, int64(1700000000000), s.Timestamp)
}

func TestProjectSettingsIsStale(t *testing.T) {
	now := time.UnixMilli(1_000_000_000)
	fresh := &ProjectSettings{Timestamp: now.Add(-time.Minute).UnixMilli()}
	old := &ProjectSettings{Timestamp: now.Add(-25 * time.Hour).UnixMilli()}

	assert.False(t, fresh.IsStale(now, 24*time.Hour))
	assert.True(t, old.IsStale(now, 24*time.Hour))
	assert.True(t, (&ProjectSettings{}).IsStale(now, time.Hour))

	cp := fresh.Copy()
	cp.Timestamp = 0
	assert.NotZero(t, fresh.Timestamp)
}

func TestIntegrationOverride(t *testing.T) {
	p := Payload{Integrations: map[string]interface{}{
		"A": false,
		"B": map[string]interface{}{"k": "v"},
	}}

	v, ok := p.IntegrationOverride("A")
	assert.True(t, ok)
	assert.False(t, v)

	v, ok = p.IntegrationOverride("B")
	assert.True(t, ok)
	assert.True(t, v)

	_, ok = p.IntegrationOverride("C")
	assert.False(t, ok)
}
