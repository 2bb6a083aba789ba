package models

import (
	"time"
)

// TaskStatus is the lifecycle state of a task created by the task-management
// action handlers.
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task is the entity the built-in task-management actions operate on.
type Task struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	Status      TaskStatus `json:"status" db:"status"`
	EntityType  string     `json:"entity_type,omitempty" db:"entity_type"`
	EntityID    string     `json:"entity_id,omitempty" db:"entity_id"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	CreatedBy   string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
