// Package filter evaluates boolean condition/group trees against event data.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"flowhook/backend/pkg/models"
)

// Logger is the subset of the application logger the engine needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Engine evaluates filter trees. Evaluation never returns an error: a
// malformed or unmatched condition is simply false, so one bad filter cannot
// halt event processing. Structural problems are caught up front by Validate.
type Engine struct {
	logger Logger
}

// NewEngine creates a filter engine. logger may be nil.
func NewEngine(logger Logger) *Engine {
	return &Engine{logger: logger}
}

// Evaluate returns true when data satisfies the filter tree. A nil node or an
// empty group passes vacuously.
func (e *Engine) Evaluate(node *models.FilterNode, data map[string]any) bool {
	if node == nil {
		return true
	}
	if node.IsGroup() {
		return e.evaluateGroup(node, data)
	}
	return e.evaluateCondition(node, data)
}

// Validate checks the tree for structural problems that would make
// evaluation meaningless: conditions missing a field or operator, groups
// with an unknown combinator.
func Validate(node *models.FilterNode) error {
	if node == nil {
		return nil
	}
	if node.IsGroup() {
		switch node.Combinator {
		case models.CombinatorAnd, models.CombinatorOr, "":
		default:
			return fmt.Errorf("unknown combinator %q", node.Combinator)
		}
		for i, child := range node.Conditions {
			if child == nil {
				return fmt.Errorf("condition %d is null", i)
			}
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	}
	if node.FieldPath() == "" {
		return fmt.Errorf("condition is missing a field")
	}
	if node.Operator == "" {
		return fmt.Errorf("condition on %q is missing an operator", node.FieldPath())
	}
	return nil
}

func (e *Engine) evaluateGroup(node *models.FilterNode, data map[string]any) bool {
	if len(node.Conditions) == 0 {
		return true
	}
	if node.Combinator == models.CombinatorOr {
		for _, child := range node.Conditions {
			if e.Evaluate(child, data) {
				return true
			}
		}
		return false
	}
	// AND is the default combinator
	for _, child := range node.Conditions {
		if !e.Evaluate(child, data) {
			return false
		}
	}
	return true
}

func (e *Engine) evaluateCondition(node *models.FilterNode, data map[string]any) bool {
	value, found := LookupPath(data, node.FieldPath())

	switch node.Operator {
	case models.OpEquals:
		return found && looseEqual(value, node.Value)
	case models.OpNotEquals:
		return !found || !looseEqual(value, node.Value)
	case models.OpContains:
		return contains(value, node.Value)
	case models.OpNotContains:
		return !contains(value, node.Value)
	case models.OpStartsWith:
		return hasAffix(value, node.Value, strings.HasPrefix)
	case models.OpEndsWith:
		return hasAffix(value, node.Value, strings.HasSuffix)
	case models.OpGreaterThan:
		cmp, ok := compareValues(value, node.Value)
		return ok && cmp > 0
	case models.OpGreaterThanOrEqual:
		cmp, ok := compareValues(value, node.Value)
		return ok && cmp >= 0
	case models.OpLessThan:
		cmp, ok := compareValues(value, node.Value)
		return ok && cmp < 0
	case models.OpLessThanOrEqual:
		cmp, ok := compareValues(value, node.Value)
		return ok && cmp <= 0
	case models.OpIn:
		return inList(value, node.Value)
	case models.OpNotIn:
		return !inList(value, node.Value)
	case models.OpIsEmpty:
		return isEmpty(value, found)
	case models.OpIsNotEmpty:
		return !isEmpty(value, found)
	case models.OpBetween:
		return between(value, node.Value)
	case models.OpRegex, models.OpMatches:
		return matchesRegex(value, node.Value)
	default:
		if e.logger != nil {
			e.logger.Warn("unknown filter operator", "operator", node.Operator, "field", node.FieldPath())
		}
		return false
	}
}

// LookupPath resolves a dot-notation path (a.b.c) through nested maps.
// The second return is false when any segment is missing.
func LookupPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = data
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// looseEqual compares two JSON-ish values: numbers compare numerically
// regardless of concrete type, everything else by serialized form.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func contains(value, needle any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), strings.ToLower(fmt.Sprint(needle)))
	case []any:
		for _, item := range v {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func hasAffix(value, affix any, test func(s, affix string) bool) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	return test(strings.ToLower(s), strings.ToLower(fmt.Sprint(affix)))
}

func inList(value, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEqual(value, item) {
			return true
		}
	}
	return false
}

func isEmpty(value any, found bool) bool {
	if !found || value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

func between(value, bounds any) bool {
	pair, ok := bounds.([]any)
	if !ok || len(pair) != 2 {
		return false
	}
	lo, okLo := compareValues(value, pair[0])
	hi, okHi := compareValues(value, pair[1])
	return okLo && okHi && lo >= 0 && hi <= 0
}

func matchesRegex(value, pattern any) bool {
	re, err := regexp.Compile("(?i)" + fmt.Sprint(pattern))
	if err != nil {
		return false
	}
	return re.MatchString(fmt.Sprint(value))
}

// compareValues orders two values numerically when both are finite numbers,
// then as timestamps, then lexicographically. The bool is false when either
// side is missing.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	if ta, okA := toTime(a); okA {
		if tb, okB := toTime(b); okB {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			}
			return 0, true
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
