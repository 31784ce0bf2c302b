package cel

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range FilterExpressionExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateFilterExpression(expr))
		})
	}
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name: "valid bool expression",
			expr: `event == "Signed Up"`,
		},
		{
			name:      "non-bool expression",
			expr:      `payload.messageId`,
			wantError: true,
		},
		{
			name:      "invalid expression",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `undefinedVar == "test"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func samplePayload(t *testing.T) models.Payload {
	t.Helper()
	p, err := models.NewPayloadBuilder(models.EventTrack).
		WithAnonymousID("anon-1").
		WithUserID("user-1").
		WithEvent("Order Completed").
		WithProperties(map[string]interface{}{
			"revenue":  json.Number("129.5"),
			"quantity": 3,
			"plan":     "pro",
			"tags":     []interface{}{"beta", "eu"},
		}).
		WithTraits(map[string]interface{}{"email": "ada@example.com"}).
		WithContext(map[string]interface{}{"app": map[string]interface{}{"version": "2.4.0"}}).
		Build()
	require.NoError(t, err)
	return p
}

func TestFilterMatches(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	p := samplePayload(t)

	tests := []struct {
		name        string
		expr        string
		integration string
		want        bool
	}{
		{"event type", FilterExpressionExamples["only_tracks"], "Mixpanel", true},
		{"json number property", FilterExpressionExamples["numeric_property"], "Mixpanel", true},
		{"int property", FilterExpressionExamples["integer_property"], "Mixpanel", true},
		{"traits", FilterExpressionExamples["string_contains"], "Mixpanel", true},
		{"nested context", FilterExpressionExamples["nested_context"], "Mixpanel", true},
		{"list membership", FilterExpressionExamples["exists_in_list"], "Mixpanel", true},
		{"combined", FilterExpressionExamples["combined_conditions"], "Mixpanel", true},
		{"event list", FilterExpressionExamples["event_in_list"], "Mixpanel", true},
		{"per integration", `integration == "Amplitude"`, "Mixpanel", false},
		{"skip event", `event != "Order Completed"`, "Mixpanel", false},
		{"missing property guarded", `has(properties.coupon) && properties.coupon == "X"`, "Mixpanel", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := eval.CompileFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, f.Expression())

			got, err := f.Matches(context.Background(), p, tt.integration)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateFilterRuntimeError(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	f, err := eval.CompileFilter(`properties.missing == "x"`)
	require.NoError(t, err)
	_, err = f.Matches(context.Background(), samplePayload(t), "Mixpanel")
	assert.Error(t, err)

	_, err = eval.CompileFilter(`1 + `)
	assert.Error(t, err)
}
