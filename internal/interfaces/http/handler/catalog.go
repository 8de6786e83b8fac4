package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	appcatalog "github.com/Memoya/simfly.me-sub000/internal/application/catalog"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/scheduler"
)

// adminTrigger labels jobs submitted through the admin API
const adminTrigger = "admin"

// CatalogSyncer runs one full catalog sync followed by a price recompute
type CatalogSyncer interface {
	Run(ctx context.Context) (*appcatalog.SyncReport, error)
}

// JobSubmitter hands work to the background scheduler
type JobSubmitter interface {
	SubmitJob(job *scheduler.Job) error
}

// AsyncQuery selects background execution of an admin action
type AsyncQuery struct {
	Async bool `form:"async"`
}

// CatalogHandler triggers catalog syncs
type CatalogHandler struct {
	BaseHandler
	syncer CatalogSyncer
	jobs   JobSubmitter
}

// NewCatalogHandler creates a new catalog handler. jobs may be nil, in
// which case async requests run inline.
func NewCatalogHandler(syncer CatalogSyncer, jobs JobSubmitter) *CatalogHandler {
	return &CatalogHandler{syncer: syncer, jobs: jobs}
}

// Sync fetches every active carrier catalog and recomputes best offers.
// With async=true the sync is queued and the job is returned.
func (h *CatalogHandler) Sync(c *gin.Context) {
	var q AsyncQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "async must be a boolean")
		return
	}

	if q.Async && h.jobs != nil {
		job := scheduler.NewJob(scheduler.JobKindCatalogSync, adminTrigger, 0)
		if err := h.jobs.SubmitJob(job); err != nil {
			h.HandleError(c, err)
			return
		}
		h.Accepted(c, job)
		return
	}

	report, err := h.syncer.Run(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
