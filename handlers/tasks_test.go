package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-service/models"
)

func TestCreateTaskOwnerForcedToRequester(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "Dustin", "dustin@example.com", "hunter21", false)

	rec := httptest.NewRecorder()
	// owner in the body must be ignored
	req := jsonRequest(t, "POST", "/tasks", token, map[string]interface{}{
		"text":  "buy milk",
		"owner": "someone-else",
	})
	env.tasks.CreateTask(background(), rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var task models.Task
	decodeBody(t, rec, &task)
	assert.Equal(t, "buy milk", task.Text)
	assert.Equal(t, user.ID, task.Owner)
	assert.False(t, task.Completed)

	var stored models.Task
	require.NoError(t, env.db.Get(&stored, "SELECT * FROM tasks WHERE id = ?", task.ID))
	assert.Equal(t, user.ID, stored.Owner)
}

func TestCreateTaskRequiresText(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "Dustin", "dustin@example.com", "hunter21", false)

	rec := httptest.NewRecorder()
	env.tasks.CreateTask(background(), rec, jsonRequest(t, "POST", "/tasks", token, map[string]interface{}{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func listTasks(t *testing.T, env *testEnv, token, query string) models.TaskListResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	env.tasks.GetTasks(background(), rec, jsonRequest(t, "GET", "/tasks"+query, token, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.TaskListResponse
	decodeBody(t, rec, &body)
	return body
}

func TestGetTasksOwnedOnly(t *testing.T) {
	env := newTestEnv(t)
	userA, _ := env.seedUser(t, "Dustin", "dustin@example.com", "hunter21", false)
	userB, tokenB := env.seedUser(t, "Natasha", "natasha@example.com", "notSecurePassword", false)
	env.seedTask(t, userA, "First test task", false)
	env.seedTask(t, userB, "Second test task", true)
	env.seedTask(t, userB, "Third test task", false)
	env.seedTask(t, userB, "Fourth test task", false)

	body := listTasks(t, env, tokenB, "")
	require.Len(t, body.Tasks, 3)
	for _, task := range body.Tasks {
		assert.Equal(t, userB.ID, task.Owner)
	}
}

func TestGetTasksFilterByCompleted(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "Natasha", "natasha@example.com", "notSecurePassword", false)
	env.seedTask(t, user, "Second test task", true)
	env.seedTask(t, user, "Third test task", false)
	env.seedTask(t, user, "Fourth test task", false)

	completed := listTasks(t, env, token, "?completed=true")
	require.Len(t, completed.Tasks, 1)
	assert.Equal(t, "Second test task", completed.Tasks[0].Text)

	incomplete := listTasks(t, env, token, "?completed=false")
	assert.Len(t, incomplete.Tasks, 2)
}

func TestGetTasksSortAndPaginate(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "Natasha", "natasha@example.com", "notSecurePassword", false)
	env.seedTask(t, user, "Second test task", true)
	env.seedTask(t, user, "Third test task", false)
	env.seedTask(t, user, "Fourth test task", false)

	sorted := listTasks(t, env, token, "?sortBy=text:asc")
	require.Len(t, sorted.Tasks, 3)
	assert.Equal(t, "Fourth test task", sorted.Tasks[0].Text)
	assert.Equal(t, "Second test task", sorted.Tasks[1].Text)
	assert.Equal(t, "Third test task", sorted.Tasks[2].Text)

	page := listTasks(t, env, token, "?sortBy=text:asc&limit=1&skip=1")
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, "Second test task", page.Tasks[0].Text)

	combined := listTasks(t, env, token, "?completed=false&sortBy=text:desc&limit=1&skip=1")
	require.Len(t, combined.Tasks, 1)
	assert.Equal(t, "Fourth test task", combined.Tasks[0].Text)
}

func TestGetTasksSortDefaultsDescending(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "Natasha", "natasha@example.com", "notSecurePassword", false)
	env.seedTask(t, user, "Second test task", true)
	env.seedTask(t, user, "Third test task", false)
	env.seedTask(t, user, "Fourth test task", false)

	// no direction means descending; only an explicit asc flips it
	body := listTasks(t, env, token, "?sortBy=text")
	require.Len(t, body.Tasks, 3)
	assert.Equal(t, "Third test task", body.Tasks[0].Text)
	assert.Equal(t, "Second test task", body.Tasks[1].Text)
	assert.Equal(t, "Fourth test task", body.Tasks[2].Text)
}

func TestGetTasksBadPaginationDegrades(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "Natasha", "natasha@example.com", "notSecurePassword", false)
	env.seedTask(t, user, "Second test task", true)
	env.seedTask(t, user, "Third test task", false)

	// non-numeric limit/skip mean no limit and no skip
	body := listTasks(t, env, token, "?limit=banana&skip=oops")
	assert.Len(t, body.Tasks, 2)
}

func TestGetTaskOwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	userA, tokenA := env.seedUser(t, "Dustin", "dustin@example.com", "hunter21", false)
	_, tokenB := env.seedUser(t, "Natasha", "natasha@example.com", "notSecurePassword", false)
	task := env.seedTask(t, userA, "First test task", false)

	t.Run("owner reads own task", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := withVars(jsonRequest(t, "GET", "/tasks/"+task.ID, tokenA, nil), map[string]string{"id": task.ID})
		env.tasks.GetTask(background(), rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var body models.TaskResponse
		decodeBody(t, rec, &body)
		assert.Equal(t, task.ID, body.Task.ID)
	})

	t.Run("other user gets 404, not 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := withVars(jsonRequest(t, "GET", "/tasks/"+task.ID, tokenB, nil), map[string]string{"id": task.ID})
		env.tasks.GetTask(background(), rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := withVars(jsonRequest(t, "GET", "/tasks/nope", tokenA, nil), map[string]string{"id": "nope"})
		env.tasks.GetTask(background(), rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateTask(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "Dustin", "dustin@example.com", "hunter21", false)
	task := env.seedTask(t, user, "First test task", false)

	rec := httptest.NewRecorder()
	req := withVars(jsonRequest(t, "PATCH", "/tasks/"+task.ID, token, map[string]interface{}{"completed": true}),
		map[string]string{"id": task.ID})
	env.tasks.UpdateTask(background(), rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.Task
	decodeBody(t, rec, &body)
	assert.True(t, body.Completed)

	var stored models.Task
	require.NoError(t, env.db.Get(&stored, "SELECT * FROM tasks WHERE id = ?", task.ID))
	assert.True(t, stored.Completed)
}

func TestUpdateTaskRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "Dustin", "dustin@example.com", "hunter21", false)
	task := env.seedTask(t, user, "First test task", false)

	rec := httptest.NewRecorder()
	req := withVars(jsonRequest(t, "PATCH", "/tasks/"+task.ID, token, map[string]interface{}{"owner": "x"}),
		map[string]string{"id": task.ID})
	env.tasks.UpdateTask(background(), rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var stored models.Task
	require.NoError(t, env.db.Get(&stored, "SELECT * FROM tasks WHERE id = ?", task.ID))
	assert.Equal(t, user.ID, stored.Owner)
}

func TestUpdateTaskOtherUser404(t *testing.T) {
	env := newTestEnv(t)
	userA, _ := env.seedUser(t, "Dustin", "dustin@example.com", "hunter21", false)
	_, tokenB := env.seedUser(t, "Natasha", "natasha@example.com", "notSecurePassword", false)
	task := env.seedTask(t, userA, "First test task", false)

	rec := httptest.NewRecorder()
	req := withVars(jsonRequest(t, "PATCH", "/tasks/"+task.ID, tokenB, map[string]interface{}{"completed": true}),
		map[string]string{"id": task.ID})
	env.tasks.UpdateTask(background(), rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var stored models.Task
	require.NoError(t, env.db.Get(&stored, "SELECT * FROM tasks WHERE id = ?", task.ID))
	assert.False(t, stored.Completed)
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "Dustin", "dustin@example.com", "hunter21", false)
	task := env.seedTask(t, user, "First test task", false)

	rec := httptest.NewRecorder()
	req := withVars(jsonRequest(t, "DELETE", "/tasks/"+task.ID, token, nil), map[string]string{"id": task.ID})
	env.tasks.DeleteTask(background(), rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var count int
	require.NoError(t, env.db.Get(&count, "SELECT COUNT(1) FROM tasks WHERE id = ?", task.ID))
	assert.Zero(t, count)
}

func TestDeleteTaskOtherUser404(t *testing.T) {
	env := newTestEnv(t)
	userA, _ := env.seedUser(t, "Dustin", "dustin@example.com", "hunter21", false)
	_, tokenB := env.seedUser(t, "Natasha", "natasha@example.com", "notSecurePassword", false)
	task := env.seedTask(t, userA, "First test task", false)

	rec := httptest.NewRecorder()
	req := withVars(jsonRequest(t, "DELETE", "/tasks/"+task.ID, tokenB, nil), map[string]string{"id": task.ID})
	env.tasks.DeleteTask(background(), rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var count int
	require.NoError(t, env.db.Get(&count, "SELECT COUNT(1) FROM tasks WHERE id = ?", task.ID))
	assert.Equal(t, 1, count)
}
