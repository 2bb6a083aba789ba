// Package action resolves action keys to handlers and executes them.
package action

import (
	"context"
	"fmt"

	"flowhook/backend/internal/repository"
	"flowhook/backend/internal/variables"
	"flowhook/backend/pkg/models"
)

// Logger is the subset of the application logger this package needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// HandlerFunc is a built-in action implementation. Config arrives with
// variable tokens already resolved. A returned error (or panic) becomes a
// failed ExecutionResult; handlers never abort the caller.
type HandlerFunc func(ctx context.Context, cfg models.JSONMap, ectx *models.ExecutionContext) (map[string]any, error)

// Dispatcher routes action registry entries to registered handlers. New
// internal functions are added by registration, not by editing dispatch
// logic.
type Dispatcher struct {
	registries repository.RegistryStore
	byKey      map[string]HandlerFunc
	byCategory map[string]HandlerFunc
	logger     Logger
}

// NewDispatcher creates a Dispatcher. logger may be nil.
func NewDispatcher(registries repository.RegistryStore, logger Logger) *Dispatcher {
	return &Dispatcher{
		registries: registries,
		byKey:      make(map[string]HandlerFunc),
		byCategory: make(map[string]HandlerFunc),
		logger:     logger,
	}
}

// Register binds a handler to an exact action key.
func (d *Dispatcher) Register(key string, h HandlerFunc) {
	d.byKey[key] = h
}

// RegisterCategory binds a fallback handler for every action of a registry
// category that has no key-specific handler.
func (d *Dispatcher) RegisterCategory(category string, h HandlerFunc) {
	d.byCategory[category] = h
}

// Execute resolves actionKey through the action registry, resolves templated
// config and runs the handler. The result is always structured; no error or
// panic escapes.
func (d *Dispatcher) Execute(ctx context.Context, actionKey string, cfg models.JSONMap, ectx *models.ExecutionContext) *models.ExecutionResult {
	reg, err := d.registries.GetActionByKey(ctx, actionKey)
	if err != nil {
		return failure(fmt.Sprintf("action registry entry not found: %s", actionKey))
	}
	if !reg.IsActive {
		return failure(fmt.Sprintf("action registry entry inactive: %s", actionKey))
	}

	resolved := variables.ResolveConfig(cfg, ectx)

	switch reg.ExecutionType {
	case models.ExecutionTypeInternal:
		handler := d.byKey[reg.Key]
		if handler == nil {
			handler = d.byCategory[reg.Category]
		}
		if handler == nil {
			return failure(fmt.Sprintf("no internal handler registered for action %s (category %s)", reg.Key, reg.Category))
		}
		return d.run(ctx, reg.Key, handler, resolved, ectx)

	case models.ExecutionTypeExternalAPI, models.ExecutionTypeConditional:
		// extension points; workflows authored against these types keep
		// succeeding until a real implementation lands
		return &models.ExecutionResult{
			Success: true,
			Result: map[string]any{
				"action":         reg.Key,
				"execution_type": string(reg.ExecutionType),
				"status":         "not_implemented",
			},
		}

	default:
		return &models.ExecutionResult{
			Success: true,
			Result: map[string]any{
				"action": reg.Key,
				"config": map[string]any(resolved),
			},
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, key string, handler HandlerFunc, cfg models.JSONMap, ectx *models.ExecutionContext) (result *models.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			if d.logger != nil {
				d.logger.Error("action handler panicked", "action", key, "panic", r)
			}
			result = failure(fmt.Sprintf("action %s panicked: %v", key, r))
		}
	}()

	out, err := handler(ctx, cfg, ectx)
	if err != nil {
		return failure(err.Error())
	}
	return &models.ExecutionResult{Success: true, Result: out}
}

func failure(msg string) *models.ExecutionResult {
	return &models.ExecutionResult{Success: false, Error: msg}
}
