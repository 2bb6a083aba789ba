// Package variables substitutes {{variable.path}} and {{trigger.path}}
// tokens in step configuration against the run-scoped execution context.
package variables

import (
	"encoding/json"
	"regexp"
	"strconv"

	"flowhook/backend/internal/filter"
	"flowhook/backend/pkg/models"
)

var tokenPattern = regexp.MustCompile(`\{\{(variable|trigger)\.([^{}]+)\}\}`)

// Resolve walks config structurally (maps, slices, string leaves) and
// substitutes tokens. A string that is exactly one token is replaced by the
// resolved value with its native type; a token embedded in a larger string is
// replaced by its string representation. Tokens that resolve to nothing are
// left as-is rather than deleted, so a misauthored path stays visible in the
// step output.
func Resolve(config any, ectx *models.ExecutionContext) any {
	switch v := config.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[key] = Resolve(value, ectx)
		}
		return out
	case models.JSONMap:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[key] = Resolve(value, ectx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Resolve(item, ectx)
		}
		return out
	case string:
		return resolveString(v, ectx)
	default:
		return config
	}
}

// ResolveConfig is Resolve specialized to step config maps.
func ResolveConfig(config models.JSONMap, ectx *models.ExecutionContext) models.JSONMap {
	resolved, ok := Resolve(config, ectx).(map[string]any)
	if !ok {
		return config
	}
	return resolved
}

func resolveString(s string, ectx *models.ExecutionContext) any {
	match := tokenPattern.FindStringSubmatch(s)
	if match == nil {
		return s
	}

	// whole-value token keeps the native type of whatever it resolves to
	if match[0] == s {
		if value, ok := lookup(match[1], match[2], ectx); ok {
			return value
		}
		return s
	}

	return tokenPattern.ReplaceAllStringFunc(s, func(token string) string {
		parts := tokenPattern.FindStringSubmatch(token)
		value, ok := lookup(parts[1], parts[2], ectx)
		if !ok {
			return token
		}
		return stringify(value)
	})
}

func lookup(family, path string, ectx *models.ExecutionContext) (any, bool) {
	if ectx == nil {
		return nil, false
	}
	switch family {
	case "variable":
		return filter.LookupPath(ectx.Variables, path)
	case "trigger":
		return filter.LookupPath(ectx.TriggerData, path)
	}
	return nil, false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
