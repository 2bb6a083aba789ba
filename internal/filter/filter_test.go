package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flowhook/backend/pkg/models"
)

func cond(field, op string, value any) *models.FilterNode {
	return &models.FilterNode{Variable: field, Operator: op, Value: value}
}

func group(comb models.Combinator, children ...*models.FilterNode) *models.FilterNode {
	return &models.FilterNode{Combinator: comb, Conditions: children}
}

func TestEvaluateEmptyGroups(t *testing.T) {
	e := NewEngine(nil)
	data := map[string]any{"name": "x"}

	assert.True(t, e.Evaluate(nil, data))
	assert.True(t, e.Evaluate(group(models.CombinatorAnd), data))
	assert.True(t, e.Evaluate(group(models.CombinatorOr), data))
}

func TestEvaluateCombinators(t *testing.T) {
	e := NewEngine(nil)
	data := map[string]any{"status": "active", "count": float64(3)}

	assert.True(t, e.Evaluate(group(models.CombinatorAnd,
		cond("status", models.OpEquals, "active"),
		cond("count", models.OpGreaterThan, 1),
	), data))

	assert.False(t, e.Evaluate(group(models.CombinatorAnd,
		cond("status", models.OpEquals, "active"),
		cond("count", models.OpGreaterThan, 5),
	), data))

	assert.True(t, e.Evaluate(group(models.CombinatorOr,
		cond("status", models.OpEquals, "inactive"),
		cond("count", models.OpLessThanOrEqual, 3),
	), data))

	// nested group
	assert.True(t, e.Evaluate(group(models.CombinatorAnd,
		cond("status", models.OpEquals, "active"),
		group(models.CombinatorOr,
			cond("count", models.OpEquals, 99),
			cond("count", models.OpEquals, 3),
		),
	), data))
}

func TestStringOperators(t *testing.T) {
	e := NewEngine(nil)
	data := map[string]any{"name": "Acme Corp", "tags": []any{"alpha", "beta"}}

	assert.True(t, e.Evaluate(cond("name", models.OpContains, "acme"), data))
	assert.False(t, e.Evaluate(cond("name", models.OpNotContains, "acme"), data))
	assert.True(t, e.Evaluate(cond("name", models.OpStartsWith, "ACME"), data))
	assert.True(t, e.Evaluate(cond("name", models.OpEndsWith, "corp"), data))
	assert.True(t, e.Evaluate(cond("tags", models.OpContains, "beta"), data))
	assert.False(t, e.Evaluate(cond("tags", models.OpContains, "gamma"), data))

	// contains against a non-string, non-array value is false
	assert.False(t, e.Evaluate(cond("missing", models.OpContains, "x"), data))
}

func TestComparisonFallbacks(t *testing.T) {
	e := NewEngine(nil)
	data := map[string]any{
		"amount":  "42",
		"created": "2024-03-01T10:00:00Z",
		"word":    "banana",
	}

	// numeric comparison of string-typed numbers
	assert.True(t, e.Evaluate(cond("amount", models.OpGreaterThan, 10), data))
	assert.False(t, e.Evaluate(cond("amount", models.OpLessThan, 42), data))

	// date comparison when not numeric
	assert.True(t, e.Evaluate(cond("created", models.OpGreaterThan, "2024-01-01"), data))
	assert.True(t, e.Evaluate(cond("created", models.OpLessThan, "2025-01-01T00:00:00Z"), data))

	// lexicographic fallback
	assert.True(t, e.Evaluate(cond("word", models.OpGreaterThan, "apple"), data))
	assert.False(t, e.Evaluate(cond("word", models.OpGreaterThan, "cherry"), data))
}

func TestBetweenIsInclusive(t *testing.T) {
	e := NewEngine(nil)
	bounds := []any{float64(10), float64(20)}

	assert.True(t, e.Evaluate(cond("v", models.OpBetween, bounds), map[string]any{"v": float64(10)}))
	assert.True(t, e.Evaluate(cond("v", models.OpBetween, bounds), map[string]any{"v": float64(20)}))
	assert.True(t, e.Evaluate(cond("v", models.OpBetween, bounds), map[string]any{"v": float64(15)}))
	assert.False(t, e.Evaluate(cond("v", models.OpBetween, bounds), map[string]any{"v": float64(21)}))
	assert.False(t, e.Evaluate(cond("v", models.OpBetween, "not-a-pair"), map[string]any{"v": float64(15)}))
}

func TestMembershipAndEmptiness(t *testing.T) {
	e := NewEngine(nil)
	data := map[string]any{"status": "open", "note": "", "zero": float64(0)}

	assert.True(t, e.Evaluate(cond("status", models.OpIn, []any{"open", "closed"}), data))
	assert.True(t, e.Evaluate(cond("status", models.OpNotIn, []any{"closed"}), data))
	assert.False(t, e.Evaluate(cond("status", models.OpIn, "open"), data)) // value must be an array

	assert.True(t, e.Evaluate(cond("note", models.OpIsEmpty, nil), data))
	assert.True(t, e.Evaluate(cond("missing", models.OpIsEmpty, nil), data))
	assert.True(t, e.Evaluate(cond("zero", models.OpIsNotEmpty, nil), data))
}

func TestRegexOperator(t *testing.T) {
	e := NewEngine(nil)
	data := map[string]any{"email": "User@Example.COM"}

	assert.True(t, e.Evaluate(cond("email", models.OpRegex, `^user@example\.com$`), data))
	assert.True(t, e.Evaluate(cond("email", models.OpMatches, `example`), data))
	// invalid pattern never panics, just fails the condition
	assert.False(t, e.Evaluate(cond("email", models.OpRegex, `([`), data))
}

func TestUnknownOperatorIsFalse(t *testing.T) {
	e := NewEngine(nil)
	assert.False(t, e.Evaluate(cond("x", "approximately", 1), map[string]any{"x": float64(1)}))
}

func TestDotPathTraversal(t *testing.T) {
	e := NewEngine(nil)
	data := map[string]any{
		"after": map[string]any{
			"customer": map[string]any{"name": "X"},
		},
	}

	assert.True(t, e.Evaluate(cond("after.customer.name", models.OpEquals, "X"), data))
	assert.False(t, e.Evaluate(cond("after.customer.missing", models.OpEquals, "X"), data))
	assert.False(t, e.Evaluate(cond("after.customer.name.too.deep", models.OpEquals, "X"), data))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(nil))
	assert.NoError(t, Validate(group(models.CombinatorAnd, cond("f", models.OpEquals, 1))))

	assert.Error(t, Validate(&models.FilterNode{Operator: models.OpEquals, Value: 1}))
	assert.Error(t, Validate(&models.FilterNode{Variable: "f"}))
	assert.Error(t, Validate(&models.FilterNode{Combinator: "XOR", Conditions: []*models.FilterNode{}}))
	assert.Error(t, Validate(group(models.CombinatorAnd, nil)))
}
