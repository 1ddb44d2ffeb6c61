package api

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/aosanya/agentorch/internal/orcherr"
	"github.com/aosanya/agentorch/internal/workflow"
)

// executeWorkflowRequest is the body of POST /api/v1/workflows/execute:
// the workflow document plus the input variables to seed its context.
// Workflow is kept as raw JSON so it can be validated against the
// document schema before being unmarshaled into a workflow.Workflow.
type executeWorkflowRequest struct {
	Workflow json.RawMessage        `json:"workflow"`
	Inputs   map[string]interface{} `json:"inputs"`
}

// executeWorkflow validates the posted document's shape with
// gojsonschema, then hands it to the engine, whose Execute checks its
// domain invariants with workflow.Validate and runs it to completion
// before this handler responds. The response carries the finished
// ExecutionResult; getExecution later returns the same registered result.
func (s *Server) executeWorkflow(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		BadRequestError(c, "failed to read request body", err.Error())
		return
	}

	var req executeWorkflowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		BadRequestError(c, "malformed request body", err.Error())
		return
	}

	if err := workflow.ValidateDocument(req.Workflow); err != nil {
		ValidationError(c, err.Error(), nil)
		return
	}

	wf, err := workflow.Deserialize(req.Workflow)
	if err != nil {
		BadRequestError(c, "malformed workflow document", err.Error())
		return
	}

	res, err := s.services.Engine.Execute(c.Request.Context(), wf, req.Inputs)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	CreatedResponse(c, res)
}

func (s *Server) getExecution(c *gin.Context) {
	id := c.Param("id")
	res, ok := s.services.Engine.GetExecution(id)
	if !ok {
		NotFoundError(c, "execution not found")
		return
	}
	SuccessResponse(c, res)
}

func (s *Server) pauseExecution(c *gin.Context) {
	id := c.Param("id")
	if err := s.services.Engine.Pause(id); err != nil {
		writeEngineError(c, err)
		return
	}
	SuccessResponse(c, gin.H{"id": id, "status": workflow.Paused})
}

func (s *Server) resumeExecution(c *gin.Context) {
	id := c.Param("id")
	if err := s.services.Engine.Resume(id); err != nil {
		writeEngineError(c, err)
		return
	}
	SuccessResponse(c, gin.H{"id": id, "status": workflow.Running})
}

// writeEngineError translates an orcherr-classified error from the
// workflow engine into the matching HTTP response. Every orcherr.Kind
// gets a branch here, including two that Execute, Pause and Resume never
// return as errors: StepExecutionFailed is recorded only on a StepResult,
// and the engine does not produce DependencyBlocked at all (a blocked
// step gets no StepResult).
func writeEngineError(c *gin.Context, err error) {
	oe, ok := err.(*orcherr.Error)
	if !ok {
		InternalError(c, err.Error(), nil)
		return
	}

	switch oe.Kind {
	case orcherr.ValidationFailed, orcherr.RequiredVariableMissing:
		ValidationError(c, oe.Error(), nil)
	case orcherr.IllegalTransition:
		ConflictError(c, oe.Error(), nil)
	case orcherr.DependencyBlocked:
		ErrorResponse(c, 409, ErrorCodeDependencyBlocked, oe.Error(), nil)
	case orcherr.StepExecutionFailed:
		ErrorResponse(c, 422, ErrorCodeStepExecutionError, oe.Error(), nil)
	case orcherr.InvalidArgument:
		NotFoundError(c, oe.Error())
	case orcherr.Cancelled, orcherr.Storage:
		InternalError(c, oe.Error(), nil)
	default:
		InternalError(c, oe.Error(), nil)
	}
}
