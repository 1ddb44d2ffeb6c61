package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/aosanya/agentorch/internal/task"
)

// EnqueueTaskRequest is the body of POST /api/v1/tasks.
type EnqueueTaskRequest struct {
	Command  string `json:"command" binding:"required"`
	RepoPath string `json:"repoPath" binding:"required"`
	Priority int    `json:"priority"`
}

func (s *Server) enqueueTask(c *gin.Context) {
	var req EnqueueTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body", err.Error())
		return
	}

	id, err := s.services.Tasks.Enqueue(c.Request.Context(), req.Command, req.RepoPath, req.Priority)
	if err != nil {
		if errors.Is(err, task.ErrInvalidArgument) {
			ValidationError(c, err.Error(), nil)
			return
		}
		InternalError(c, err.Error(), nil)
		return
	}
	CreatedResponse(c, gin.H{"id": id})
}

func (s *Server) getTask(c *gin.Context) {
	id := c.Param("id")
	t, err := s.services.Tasks.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			NotFoundError(c, "task not found")
			return
		}
		InternalError(c, err.Error(), nil)
		return
	}
	SuccessResponse(c, t)
}

func (s *Server) listTasks(c *gin.Context) {
	filter := task.Filter{
		RepoPath: c.Query("repoPath"),
		AgentID:  c.Query("agentId"),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = []task.Status{task.Status(status)}
	}

	tasks, err := s.services.Tasks.List(c.Request.Context(), filter)
	if err != nil {
		InternalError(c, err.Error(), nil)
		return
	}
	SuccessResponse(c, tasks)
}

func (s *Server) cancelTask(c *gin.Context) {
	id := c.Param("id")
	if err := s.services.Tasks.Cancel(c.Request.Context(), id); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			NotFoundError(c, "task not found")
			return
		}
		if errors.Is(err, task.ErrIllegalTransition) {
			ConflictError(c, err.Error(), nil)
			return
		}
		InternalError(c, err.Error(), nil)
		return
	}
	SuccessResponse(c, gin.H{"id": id, "status": task.StatusCancelled})
}
