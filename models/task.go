package models

import "time"

// Task represents a task owned by exactly one user. The owner is set from
// the authenticated requester at creation time and never reassigned.
type Task struct {
	ID        string    `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	Completed bool      `json:"completed" db:"completed"`
	Owner     string    `json:"owner" db:"owner"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateTaskRequest represents the request to create a task. There is no
// owner field; whatever the client sends for it is ignored.
type CreateTaskRequest struct {
	Text string `json:"text"`
}

// TaskResponse wraps a single task, matching the list response shape.
type TaskResponse struct {
	Task Task `json:"task"`
}

// TaskListResponse is returned by GET /tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TaskUpdateFields is the allow-list for task PATCH bodies.
var TaskUpdateFields = map[string]bool{
	"text":      true,
	"completed": true,
}

// TaskSortFields maps sortBy names from the query string to columns. Only
// these columns are ever interpolated into ORDER BY.
var TaskSortFields = map[string]string{
	"text":       "text",
	"completed":  "completed",
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"created_at": "created_at",
	"updated_at": "updated_at",
}
