package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pixtools/internal/jobstore"
	"pixtools/internal/objectstore"
	"pixtools/internal/utils"
)

// StatusHandler implements GET /api/jobs/{id} (spec §4.11). Side-effect free:
// it signs keys fresh on every read instead of persisting signed URLs.
type StatusHandler struct {
	store     jobstore.Store
	objects   objectstore.Gateway
	urlExpiry time.Duration
}

// NewStatusHandler wires the Status Endpoint's dependencies.
func NewStatusHandler(store jobstore.Store, objects objectstore.Gateway, urlExpiry time.Duration) *StatusHandler {
	return &StatusHandler{store: store, objects: objects, urlExpiry: urlExpiry}
}

type statusResponse struct {
	JobID      string                            `json:"job_id"`
	Status     jobstore.Status                   `json:"status"`
	Operations jobstore.OperationList            `json:"operations"`
	ResultURLs map[jobstore.OperationTag]string   `json:"result_urls"`
	ArchiveURL string                             `json:"archive_url,omitempty"`
	Metadata   jobstore.Metadata                  `json:"metadata,omitempty"`
	Error      string                             `json:"error,omitempty"`
	CreatedAt  time.Time                          `json:"created_at"`
}

func (h *StatusHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusNotFound, "job not found", nil)
		return
	}

	job, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			utils.SendError(c, http.StatusNotFound, "job not found", nil)
			return
		}
		utils.SendInternalError(c, err)
		return
	}

	resp := statusResponse{
		JobID:      job.ID.String(),
		Status:     job.Status,
		Operations: job.Operations,
		ResultURLs: make(map[jobstore.OperationTag]string, len(job.ResultKeys)),
		Metadata:   job.Metadata,
		CreatedAt:  job.CreatedAt,
	}
	if job.Error != nil {
		resp.Error = *job.Error
	}

	for tag, key := range job.ResultKeys {
		signed, err := h.objects.Sign(ctx, key, h.urlExpiry)
		if err != nil {
			continue
		}
		resp.ResultURLs[tag] = signed
	}

	if job.ArchiveKey != nil && *job.ArchiveKey != "" {
		if signed, err := h.objects.Sign(ctx, *job.ArchiveKey, h.urlExpiry); err == nil {
			resp.ArchiveURL = signed
		}
	}

	utils.SendSuccess(c, "job status", resp)
}
