// Package handlers implements the HTTP surface (spec §6): Submission,
// Status, and Health, following the teacher's gin handler + utils.SendX
// envelope shape.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v5"
	"github.com/gin-gonic/gin"

	"pixtools/internal/broker"
	"pixtools/internal/config"
	"pixtools/internal/dag"
	"pixtools/internal/idempotency"
	"pixtools/internal/imageops"
	"pixtools/internal/jobstore"
	"pixtools/internal/objectstore"
	"pixtools/internal/utils"
)

const maxIdempotencyKeyBytes = 128

// SubmitHandler implements POST /api/process (spec §4.6).
type SubmitHandler struct {
	store      jobstore.Store
	objects    objectstore.Gateway
	dispatcher broker.Dispatcher
	idemp      *idempotency.Cache
	maxUpload  int64
}

// NewSubmitHandler wires the Submission Endpoint's dependencies.
func NewSubmitHandler(store jobstore.Store, objects objectstore.Gateway, dispatcher broker.Dispatcher, idemp *idempotency.Cache, cfg *config.Config) *SubmitHandler {
	return &SubmitHandler{store: store, objects: objects, dispatcher: dispatcher, idemp: idemp, maxUpload: cfg.MaxUploadBytes}
}

type submitRequest struct {
	Operations      jobstore.OperationList `json:"operations"`
	OperationParams jobstore.ParamsByTag   `json:"operation_params"`
	WebhookURL      string                 `json:"webhook_url"`
}

// Handle runs the nine-step submission algorithm (spec §4.6).
func (h *SubmitHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "file is required", err)
		return
	}
	if fileHeader.Size > h.maxUpload {
		utils.SendError(c, http.StatusRequestEntityTooLarge, "file exceeds maximum upload size", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}
	if int64(len(data)) > h.maxUpload {
		utils.SendError(c, http.StatusRequestEntityTooLarge, "file exceeds maximum upload size", nil)
		return
	}

	validated, err := imageops.Validate(data)
	if err != nil {
		utils.SendError(c, http.StatusUnsupportedMediaType, "unsupported or invalid image", err)
		return
	}

	req, err := parseSubmitRequest(c)
	if err != nil {
		utils.SendError(c, http.StatusUnprocessableEntity, "malformed request", err)
		return
	}

	// Step 1 (continued) + step 2: non-empty operations, no same-format
	// conversion target (denoise/metadata exempt, spec §4.6 step 2).
	if len(req.Operations) == 0 || len(req.Operations) > 6 {
		utils.SendError(c, http.StatusUnprocessableEntity, "operations must contain 1-6 entries", nil)
		return
	}
	for _, op := range req.Operations {
		if !jobstore.ValidOperationTags[op] {
			utils.SendError(c, http.StatusUnprocessableEntity, fmt.Sprintf("unknown operation %q", op), nil)
			return
		}
		if op.IsImageProducing() && string(op) == formatTag(validated.Format) {
			utils.SendError(c, http.StatusUnprocessableEntity, fmt.Sprintf("same-format conversion to %q is not allowed", op), nil)
			return
		}
	}

	var webhookURL *string
	if req.WebhookURL != "" {
		if _, err := url.ParseRequestURI(req.WebhookURL); err != nil {
			utils.SendError(c, http.StatusUnprocessableEntity, "webhook_url is not a valid URL", err)
			return
		}
		webhookURL = &req.WebhookURL
	}

	// Step 3: idempotency check.
	idempotencyKey := c.GetHeader("Idempotency-Key")
	if len(idempotencyKey) > maxIdempotencyKeyBytes {
		utils.SendError(c, http.StatusUnprocessableEntity, "Idempotency-Key exceeds 128 bytes", nil)
		return
	}
	if idempotencyKey != "" {
		if existingID, hit := h.idemp.Check(ctx, idempotencyKey); hit {
			utils.SendAccepted(c, "job already accepted", gin.H{"job_id": existingID})
			return
		}
	}

	// Step 4: fresh job identifier.
	job := jobstore.NewJob(fileHeader.Filename, req.Operations, req.OperationParams, webhookURL)

	// Step 5: upload raw bytes, retrying transient failures within a small budget.
	rawKey := objectstore.RawKey(job.ID, fileHeader.Filename)
	contentType := contentTypeForFormat(validated.Format)
	if err := h.putRawWithRetry(ctx, rawKey, data, contentType); err != nil {
		if objectstore.ClassifyError(err) == objectstore.ErrKindPermanent {
			utils.SendInternalError(c, err)
			return
		}
		utils.SendError(c, http.StatusServiceUnavailable, "object store unavailable", err)
		return
	}
	job.SourceKey = rawKey

	// Step 6: create the job record.
	if err := h.store.Create(ctx, job); err != nil {
		utils.SendInternalError(c, err)
		return
	}

	// Step 7: build and dispatch the Plan.
	plan := dag.Build(job.ID.String(), req.Operations, req.OperationParams)
	correlationID := job.ID.String()
	if err := h.dispatcher.Dispatch(ctx, plan, rawKey, correlationID); err != nil {
		utils.SendInternalError(c, err)
		return
	}

	// Step 8: fail-open idempotency set.
	if idempotencyKey != "" {
		if _, _, err := h.idemp.Set(ctx, idempotencyKey, job.ID.String()); err != nil {
			c.Error(err)
		}
	}

	// Step 9.
	utils.SendAccepted(c, "job accepted", gin.H{"job_id": job.ID.String()})
}

func (h *SubmitHandler) putRawWithRetry(ctx context.Context, key string, data []byte, contentType string) error {
	op := func() (struct{}, error) {
		err := h.objects.PutRaw(ctx, key, data, contentType)
		if err == nil {
			return struct{}{}, nil
		}
		if objectstore.ClassifyError(err) == objectstore.ErrKindPermanent {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	return err
}

func parseSubmitRequest(c *gin.Context) (submitRequest, error) {
	var req submitRequest

	opsRaw := c.PostForm("operations")
	if opsRaw == "" {
		return req, errors.New("operations field is required")
	}
	if err := json.Unmarshal([]byte(opsRaw), &req.Operations); err != nil {
		return req, fmt.Errorf("operations must be a JSON array: %w", err)
	}

	if paramsRaw := c.PostForm("operation_params"); paramsRaw != "" {
		if err := json.Unmarshal([]byte(paramsRaw), &req.OperationParams); err != nil {
			return req, fmt.Errorf("operation_params must be a JSON object: %w", err)
		}
	}

	req.WebhookURL = c.PostForm("webhook_url")
	return req, nil
}

// formatTag maps a detected source format name (imageops.Validate's
// "jpeg"/"png"/"webp"/"avif") onto the operation-tag vocabulary
// ("jpg"/"png"/"webp"/"avif") so the same-format comparison in step 2
// actually lines up for JPEG sources.
func formatTag(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

func contentTypeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "avif":
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}
