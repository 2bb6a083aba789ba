package action

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"flowhook/backend/internal/repository"
	"flowhook/backend/pkg/models"
)

// TaskHandlers implements the built-in task-management actions.
type TaskHandlers struct {
	store repository.TaskStore
}

// NewTaskHandlers creates TaskHandlers over the given store.
func NewTaskHandlers(store repository.TaskStore) *TaskHandlers {
	return &TaskHandlers{store: store}
}

// RegisterAll wires the built-in handlers into a dispatcher: the
// task-management category plus placeholder categories that succeed without
// side effects until a real handler replaces them.
func RegisterAll(d *Dispatcher, tasks *TaskHandlers) {
	d.RegisterCategory("task_management", tasks.Handle)
	d.RegisterCategory("communication", stubHandler("communication"))
	d.RegisterCategory("database", stubHandler("database"))
}

// Handle routes on cfg.operation: create, update, delete, get, list.
func (h *TaskHandlers) Handle(ctx context.Context, cfg models.JSONMap, ectx *models.ExecutionContext) (map[string]any, error) {
	operation, _ := cfg["operation"].(string)
	if operation == "" {
		operation = "create"
	}

	switch operation {
	case "create":
		return h.create(ctx, cfg)
	case "update":
		return h.update(ctx, cfg)
	case "delete":
		return h.delete(ctx, cfg)
	case "get":
		return h.get(ctx, cfg)
	case "list":
		return h.list(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown task operation %q", operation)
	}
}

func (h *TaskHandlers) create(ctx context.Context, cfg models.JSONMap) (map[string]any, error) {
	title, _ := cfg["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("task create requires a title")
	}

	task := &models.Task{
		Title:  title,
		Status: models.TaskStatusOpen,
	}
	if desc, ok := cfg["description"].(string); ok {
		task.Description = desc
	}
	if status, ok := cfg["status"].(string); ok && status != "" {
		task.Status = models.TaskStatus(status)
	}
	if entityType, ok := cfg["entityType"].(string); ok {
		task.EntityType = entityType
	}
	if entityID, ok := cfg["entityId"].(string); ok {
		task.EntityID = entityID
	}
	if raw, ok := cfg["dueDate"].(string); ok && raw != "" {
		due, err := ParseDueDate(raw, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("task create: %w", err)
		}
		task.DueDate = &due
	}

	if err := h.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return map[string]any{"task_id": task.ID, "task": task}, nil
}

func (h *TaskHandlers) update(ctx context.Context, cfg models.JSONMap) (map[string]any, error) {
	id, _ := cfg["taskId"].(string)
	if id == "" {
		return nil, fmt.Errorf("task update requires taskId")
	}
	task, err := h.store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if title, ok := cfg["title"].(string); ok && title != "" {
		task.Title = title
	}
	if desc, ok := cfg["description"].(string); ok {
		task.Description = desc
	}
	if status, ok := cfg["status"].(string); ok && status != "" {
		task.Status = models.TaskStatus(status)
	}
	if raw, ok := cfg["dueDate"].(string); ok && raw != "" {
		due, err := ParseDueDate(raw, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("task update: %w", err)
		}
		task.DueDate = &due
	}

	if err := h.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return map[string]any{"task_id": task.ID, "task": task}, nil
}

func (h *TaskHandlers) delete(ctx context.Context, cfg models.JSONMap) (map[string]any, error) {
	id, _ := cfg["taskId"].(string)
	if id == "" {
		return nil, fmt.Errorf("task delete requires taskId")
	}
	if err := h.store.DeleteTask(ctx, id); err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}
	return map[string]any{"task_id": id, "deleted": true}, nil
}

func (h *TaskHandlers) get(ctx context.Context, cfg models.JSONMap) (map[string]any, error) {
	id, _ := cfg["taskId"].(string)
	if id == "" {
		return nil, fmt.Errorf("task get requires taskId")
	}
	task, err := h.store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return map[string]any{"task": task}, nil
}

func (h *TaskHandlers) list(ctx context.Context, cfg models.JSONMap) (map[string]any, error) {
	entityType, _ := cfg["entityType"].(string)
	limit := 0
	if f, ok := cfg["limit"].(float64); ok {
		limit = int(f)
	}
	tasks, err := h.store.ListTasks(ctx, entityType, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return map[string]any{"tasks": tasks, "count": len(tasks)}, nil
}

var relativeDuePattern = regexp.MustCompile(`^\+(\d+)([dhm])$`)

// ParseDueDate accepts either an absolute timestamp (RFC 3339 or YYYY-MM-DD)
// or a relative form like +1d, +2h, +30m applied to now.
func ParseDueDate(raw string, now time.Time) (time.Time, error) {
	if match := relativeDuePattern.FindStringSubmatch(raw); match != nil {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid due date %q", raw)
		}
		switch match[2] {
		case "d":
			return now.AddDate(0, 0, n), nil
		case "h":
			return now.Add(time.Duration(n) * time.Hour), nil
		case "m":
			return now.Add(time.Duration(n) * time.Minute), nil
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due date %q", raw)
}

func stubHandler(category string) HandlerFunc {
	return func(ctx context.Context, cfg models.JSONMap, ectx *models.ExecutionContext) (map[string]any, error) {
		return map[string]any{
			"category": category,
			"status":   "not_implemented",
			"config":   map[string]any(cfg),
		}, nil
	}
}
