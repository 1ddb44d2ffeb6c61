package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aosanya/agentorch/internal/agentregistry"
	"github.com/aosanya/agentorch/internal/task"
	"github.com/aosanya/agentorch/internal/workflow"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tasks := task.NewMemRepository(0)
	registry := agentregistry.New(agentregistry.DefaultConfig(), tasks)
	engine := workflow.NewEngine(workflow.StepDelegateFunc(
		func(ctx context.Context, step workflow.WorkflowStep, vars map[string]interface{}) (string, string, error) {
			return "ok", "", nil
		}), nil)

	cfg := DefaultServerConfig()
	cfg.Environment = "test"
	return NewServer(cfg, &Services{Tasks: tasks, Registry: registry, Engine: engine})
}

func TestEnqueueTask(t *testing.T) {
	s := setupTestServer(t)

	body, _ := json.Marshal(EnqueueTaskRequest{Command: "echo hi", RepoPath: "/repo", Priority: 3})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestEnqueueTask_RejectsEmptyRepoPath(t *testing.T) {
	s := setupTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{"command": "echo hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTask_NotFound(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/does-not-exist", nil)
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterAndGetAgent(t *testing.T) {
	s := setupTestServer(t)

	body, _ := json.Marshal(RegisterAgentRequest{Name: "worker-1", Type: "shell", RepoPath: "/repo"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	data := created.Data.(map[string]interface{})
	id := data["id"].(string)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/agents/"+id, nil)
	getW := httptest.NewRecorder()
	s.router.ServeHTTP(getW, getReq)
	assert.Equal(t, http.StatusOK, getW.Code)
}

func TestExecuteWorkflow_RejectsMalformedDocument(t *testing.T) {
	s := setupTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"workflow": map[string]interface{}{"name": "missing-id-and-steps"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/execute", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestExecuteWorkflow_RunsAndIsRetrievable(t *testing.T) {
	s := setupTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"workflow": map[string]interface{}{
			"id":   "w1",
			"name": "demo",
			"steps": []map[string]interface{}{
				{"id": "A", "name": "step a", "type": "Task", "command": "noop"},
			},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/execute", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	data := created.Data.(map[string]interface{})
	executionID := data["ExecutionID"].(string)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/executions/"+executionID, nil)
	getW := httptest.NewRecorder()
	s.router.ServeHTTP(getW, getReq)
	assert.Equal(t, http.StatusOK, getW.Code)
}
