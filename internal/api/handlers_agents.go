package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterAgentRequest is the body of POST /api/v1/agents.
type RegisterAgentRequest struct {
	Name     string `json:"name" binding:"required"`
	Type     string `json:"type" binding:"required"`
	RepoPath string `json:"repoPath" binding:"required"`
}

// agentView is the JSON projection of an agentregistry.Agent; its live
// status and metrics are exported only through accessor methods, so the
// handler copies them out rather than marshaling the struct directly.
type agentView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	RepoPath  string `json:"repoPath"`
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}

func (s *Server) registerAgent(c *gin.Context) {
	var req RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body", err.Error())
		return
	}

	id := uuid.NewString()
	a := s.services.Registry.Register(id, req.Name, req.Type, req.RepoPath)
	completed, failed, _ := a.Metrics()
	CreatedResponse(c, agentView{
		ID:        a.ID,
		Name:      a.Name,
		Type:      a.Type,
		RepoPath:  a.RepoPath,
		Status:    string(a.Status()),
		Completed: completed,
		Failed:    failed,
	})
}

func (s *Server) getAgent(c *gin.Context) {
	id := c.Param("id")
	a, ok := s.services.Registry.Get(id)
	if !ok {
		NotFoundError(c, "agent not found")
		return
	}
	completed, failed, _ := a.Metrics()
	SuccessResponse(c, agentView{
		ID:        a.ID,
		Name:      a.Name,
		Type:      a.Type,
		RepoPath:  a.RepoPath,
		Status:    string(a.Status()),
		Completed: completed,
		Failed:    failed,
	})
}

func (s *Server) listAgents(c *gin.Context) {
	agents := s.services.Registry.List()
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		completed, failed, _ := a.Metrics()
		views = append(views, agentView{
			ID:        a.ID,
			Name:      a.Name,
			Type:      a.Type,
			RepoPath:  a.RepoPath,
			Status:    string(a.Status()),
			Completed: completed,
			Failed:    failed,
		})
	}
	SuccessResponse(c, views)
}

func (s *Server) heartbeatAgent(c *gin.Context) {
	id := c.Param("id")
	if err := s.services.Registry.Heartbeat(id); err != nil {
		NotFoundError(c, err.Error())
		return
	}
	SuccessResponse(c, gin.H{"id": id})
}
