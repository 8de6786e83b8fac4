package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/scheduler"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/middleware"
)

const defaultJobListLimit = 20

// JobStore exposes the scheduler's in-memory job history
type JobStore interface {
	Get(id uuid.UUID) (scheduler.Job, error)
	Recent(limit int) []scheduler.Job
}

// JobHandler reports background job state
type JobHandler struct {
	BaseHandler
	jobs JobStore
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobStore) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Recent lists the latest jobs, newest first
func (h *JobHandler) Recent(c *gin.Context) {
	var req dto.LimitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	limit := req.EffectiveLimit(defaultJobListLimit)
	jobs := h.jobs.Recent(limit)
	h.SuccessList(c, jobs, len(jobs), limit)
}

// Get returns one job by id
func (h *JobHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job id")
		return
	}

	job, err := h.jobs.Get(id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}
