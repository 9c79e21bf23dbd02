package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"

	"task-service/auth"
	"task-service/models"
)

// TaskHandler handles task CRUD. Every operation is scoped to the
// authenticated owner; a task belonging to someone else is indistinguishable
// from a missing one.
type TaskHandler struct {
	db    *sqlx.DB
	cache cache.Cache
	auth  *auth.Authenticator
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(db *sqlx.DB, cache cache.Cache, authn *auth.Authenticator) *TaskHandler {
	return &TaskHandler{
		db:    db,
		cache: cache,
		auth:  authn,
	}
}

// CreateTask handles POST /tasks. The owner always comes from the
// authenticated identity; an owner field in the body is ignored.
func (h *TaskHandler) CreateTask(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	var req models.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logRequest(ctx, "error", "Invalid request body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid JSON"))
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		logRequest(ctx, "error", "Missing task text")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Text is required"))
		return
	}

	now := time.Now().UTC()
	task := models.Task{
		ID:        uuid.NewString(),
		Text:      req.Text,
		Owner:     user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := h.db.Exec("INSERT INTO tasks (id, text, completed, owner, created_at, updated_at) VALUES (?, ?, 0, ?, ?, ?)",
		task.ID, task.Text, task.Owner, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		logRequest(ctx, "error", "Failed to create task", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to create task"))
		return
	}

	logRequest(ctx, "info", "Task created", zap.String("task_id", task.ID), zap.String("owner", task.Owner))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(task)
}

// GetTasks handles GET /tasks with optional query parameters:
//
//	GET /tasks?completed=true
//	GET /tasks?limit=10&skip=20
//	GET /tasks?sortBy=createdAt:desc
//
// Non-numeric limit/skip degrade to no limit/no skip rather than erroring.
func (h *TaskHandler) GetTasks(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	query := "SELECT * FROM tasks WHERE owner = ?"
	args := []interface{}{user.ID}

	if completed := r.URL.Query().Get("completed"); completed != "" {
		query += " AND completed = ?"
		args = append(args, completed == "true")
	}

	orderColumn := "created_at"
	orderDirection := "ASC"
	if sortBy := r.URL.Query().Get("sortBy"); sortBy != "" {
		parts := strings.SplitN(sortBy, ":", 2)
		if column, ok := models.TaskSortFields[parts[0]]; ok {
			orderColumn = column
		}
		// a sortBy without an explicit asc is descending
		orderDirection = "DESC"
		if len(parts) == 2 && parts[1] == "asc" {
			orderDirection = "ASC"
		}
	}
	query += " ORDER BY " + orderColumn + " " + orderDirection

	limit := -1
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n >= 0 {
		limit = n
	}
	skip := 0
	if n, err := strconv.Atoi(r.URL.Query().Get("skip")); err == nil && n > 0 {
		skip = n
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, skip)

	tasks := []models.Task{}
	if err := h.db.Select(&tasks, query, args...); err != nil {
		logRequest(ctx, "error", "Failed to query tasks", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Database error"))
		return
	}

	logRequest(ctx, "info", "Tasks retrieved", zap.Int("count", len(tasks)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.TaskListResponse{Tasks: tasks})
}

// GetTask handles GET /tasks/{id} - owner-scoped lookup
func (h *TaskHandler) GetTask(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	idStr := mux.Vars(r)["id"]
	if _, err := uuid.Parse(idStr); err != nil {
		logRequest(ctx, "error", "Invalid task ID", zap.String("id", idStr))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid task ID"))
		return
	}

	var task models.Task
	err := h.db.Get(&task, "SELECT * FROM tasks WHERE id = ? AND owner = ?", idStr, user.ID)
	if err == sql.ErrNoRows {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errs.NewNotFoundError("Task not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to query task", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Database error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.TaskResponse{Task: task})
}

// parseTaskUpdates decodes a PATCH body and builds the SET clause. Only text
// and completed may change; anything else rejects the request.
func parseTaskUpdates(r *http.Request) ([]string, []interface{}, string) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		return nil, nil, "Invalid JSON"
	}
	if len(updates) == 0 {
		return nil, nil, "No fields to update"
	}

	setParts := []string{}
	args := []interface{}{}
	for field, raw := range updates {
		if !models.TaskUpdateFields[field] {
			return nil, nil, "Invalid updates"
		}
		switch field {
		case "text":
			value, ok := raw.(string)
			if !ok || strings.TrimSpace(value) == "" {
				return nil, nil, "Text is required"
			}
			setParts = append(setParts, "text = ?")
			args = append(args, strings.TrimSpace(value))
		case "completed":
			value, ok := raw.(bool)
			if !ok {
				return nil, nil, "Invalid updates"
			}
			setParts = append(setParts, "completed = ?")
			args = append(args, value)
		}
	}
	return setParts, args, ""
}

// UpdateTask handles PATCH /tasks/{id} - owner-scoped, allow-listed fields
func (h *TaskHandler) UpdateTask(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	idStr := mux.Vars(r)["id"]
	if _, err := uuid.Parse(idStr); err != nil {
		logRequest(ctx, "error", "Invalid task ID", zap.String("id", idStr))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid task ID"))
		return
	}

	setParts, args, msg := parseTaskUpdates(r)
	if msg != "" {
		logRequest(ctx, "error", "Invalid task update", zap.String("reason", msg))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError(msg))
		return
	}

	setParts = append(setParts, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, idStr, user.ID)

	query := "UPDATE tasks SET " + strings.Join(setParts, ", ") + " WHERE id = ? AND owner = ?"
	result, err := h.db.Exec(query, args...)
	if err != nil {
		logRequest(ctx, "error", "Failed to update task", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to update task"))
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		logRequest(ctx, "info", "Task not found for update", zap.String("id", idStr))
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errs.NewNotFoundError("Task not found"))
		return
	}

	var task models.Task
	if err := h.db.Get(&task, "SELECT * FROM tasks WHERE id = ?", idStr); err != nil {
		logRequest(ctx, "error", "Failed to reload task", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to update task"))
		return
	}

	logRequest(ctx, "info", "Task updated", zap.String("task_id", idStr))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// DeleteTask handles DELETE /tasks/{id} - owner-scoped delete
func (h *TaskHandler) DeleteTask(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	idStr := mux.Vars(r)["id"]
	if _, err := uuid.Parse(idStr); err != nil {
		logRequest(ctx, "error", "Invalid task ID", zap.String("id", idStr))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid task ID"))
		return
	}

	var task models.Task
	err := h.db.Get(&task, "SELECT * FROM tasks WHERE id = ? AND owner = ?", idStr, user.ID)
	if err == sql.ErrNoRows {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errs.NewNotFoundError("Task not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to query task", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Database error"))
		return
	}

	if _, err := h.db.Exec("DELETE FROM tasks WHERE id = ? AND owner = ?", idStr, user.ID); err != nil {
		logRequest(ctx, "error", "Failed to delete task", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to delete task"))
		return
	}

	logRequest(ctx, "info", "Task deleted", zap.String("task_id", idStr))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.TaskResponse{Task: task})
}
