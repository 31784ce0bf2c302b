package cel

// FilterExpressionExamples documents the destination filter vocabulary; each entry
// is compiled by the package tests.
var FilterExpressionExamples = map[string]string{
	"only_tracks":         `eventType == "track"`,
	"skip_event":          `event != "Heartbeat"`,
	"event_in_list":       `event in ["Order Completed", "Checkout Started"]`,
	"numeric_property":    `has(properties.revenue) && properties.revenue > 100.0`,
	"integer_property":    `has(properties.quantity) && properties.quantity >= 2`,
	"string_contains":     `has(traits.email) && traits.email.endsWith("@example.com")`,
	"nested_context":      `has(context.app) && context.app.version.startsWith("2.")`,
	"identified_only":     `payload.userId != ""`,
	"per_integration":     `integration != "Mixpanel" || eventType != "screen"`,
	"combined_conditions": `eventType == "track" && has(properties.plan) && properties.plan == "pro"`,
	"exists_in_list":      `has(properties.tags) && properties.tags.exists(t, t == "beta")`,
	"screen_category":     `eventType != "screen" || payload.category == "Onboarding"`,
}
