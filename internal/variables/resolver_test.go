package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flowhook/backend/pkg/models"
)

func testContext() *models.ExecutionContext {
	return &models.ExecutionContext{
		Variables: map[string]any{
			"after": map[string]any{
				"name":      "X",
				"is_active": true,
				"score":     float64(12.5),
			},
			"prior_step": map[string]any{
				"task_id": "t-1",
			},
		},
		TriggerData: map[string]any{
			"operation": "UPDATE",
			"after":     map[string]any{"id": float64(7)},
		},
	}
}

func TestResolveEmbeddedToken(t *testing.T) {
	got := Resolve("Setup: {{variable.after.name}}", testContext())
	assert.Equal(t, "Setup: X", got)
}

func TestResolveWholeValueKeepsNativeType(t *testing.T) {
	ectx := testContext()

	assert.Equal(t, "X", Resolve("{{variable.after.name}}", ectx))
	assert.Equal(t, true, Resolve("{{variable.after.is_active}}", ectx))
	assert.Equal(t, float64(12.5), Resolve("{{variable.after.score}}", ectx))

	// whole-value object substitution
	got := Resolve("{{trigger.after}}", ectx)
	assert.Equal(t, map[string]any{"id": float64(7)}, got)
}

func TestResolveTriggerFamily(t *testing.T) {
	got := Resolve("op={{trigger.operation}} id={{trigger.after.id}}", testContext())
	assert.Equal(t, "op=UPDATE id=7", got)
}

func TestUnresolvedTokenLeftIntact(t *testing.T) {
	ectx := testContext()

	assert.Equal(t, "{{variable.no.such.path}}", Resolve("{{variable.no.such.path}}", ectx))
	assert.Equal(t, "hello {{variable.nope}}", Resolve("hello {{variable.nope}}", ectx))
}

func TestResolveNestedConfig(t *testing.T) {
	cfg := models.JSONMap{
		"title": "Review {{variable.after.name}}",
		"details": map[string]any{
			"active": "{{variable.after.is_active}}",
			"tags":   []any{"static", "{{trigger.operation}}"},
		},
		"count": float64(3),
	}

	resolved := ResolveConfig(cfg, testContext())

	assert.Equal(t, "Review X", resolved["title"])
	details := resolved["details"].(map[string]any)
	assert.Equal(t, true, details["active"])
	assert.Equal(t, []any{"static", "UPDATE"}, details["tags"])
	assert.Equal(t, float64(3), resolved["count"])
}

func TestResolveNilContext(t *testing.T) {
	assert.Equal(t, "{{variable.x}}", Resolve("{{variable.x}}", nil))
}
