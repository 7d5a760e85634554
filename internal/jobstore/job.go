// Package jobstore persists Job records: the one entity every other
// component reads or writes a single field of (spec §3, §9 "Cyclic/shared
// state").
package jobstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a Job's lifecycle state (spec §3).
type Status string

const (
	StatusPending                 Status = "PENDING"
	StatusProcessing              Status = "PROCESSING"
	StatusCompleted               Status = "COMPLETED"
	StatusCompletedWebhookFailed  Status = "COMPLETED_WEBHOOK_FAILED"
	StatusFailed                  Status = "FAILED"
)

// IsTerminal reports whether a status ends a Job's lifecycle (invariant 1).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWebhookFailed, StatusFailed:
		return true
	default:
		return false
	}
}

// OperationTag is one of the six recognized operations (spec §3).
type OperationTag string

const (
	OpJPG      OperationTag = "jpg"
	OpPNG      OperationTag = "png"
	OpWebP     OperationTag = "webp"
	OpAVIF     OperationTag = "avif"
	OpDenoise  OperationTag = "denoise"
	OpMetadata OperationTag = "metadata"
)

// IsImageProducing reports whether the tag yields an object-store artifact.
// Only "metadata" does not (spec §3, invariant 4).
func (t OperationTag) IsImageProducing() bool {
	return t != OpMetadata
}

// ValidOperationTags enumerates every tag the system recognizes.
var ValidOperationTags = map[OperationTag]bool{
	OpJPG: true, OpPNG: true, OpWebP: true, OpAVIF: true, OpDenoise: true, OpMetadata: true,
}

// OperationParams is the optional per-operation parameter bag (spec §3).
// Unknown fields for a given operation are ignored silently by callers.
type OperationParams struct {
	Quality *int `json:"quality,omitempty"` // 1-100, jpg/webp only
	Resize  *Resize `json:"resize,omitempty"`
}

// Resize carries optional width/height. Both present: honored verbatim.
// One present: aspect-preserving (spec §8 boundary behavior).
type Resize struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// OperationList is the ordered list of requested tags, as submitted;
// duplicates are kept here and collapsed only by the DAG builder.
type OperationList []OperationTag

// Value implements driver.Valuer for JSON-backed storage.
func (o OperationList) Value() (driver.Value, error) {
	return json.Marshal(o)
}

// Scan implements sql.Scanner.
func (o *OperationList) Scan(value interface{}) error {
	return scanJSON(value, o)
}

// ParamsByTag maps an operation tag to its parameters.
type ParamsByTag map[OperationTag]OperationParams

// Value implements driver.Valuer.
func (p ParamsByTag) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(ParamsByTag{})
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *ParamsByTag) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// ResultKeys maps a fulfilled operation tag to the object-store key it produced.
type ResultKeys map[OperationTag]string

// Value implements driver.Valuer.
func (r ResultKeys) Value() (driver.Value, error) {
	if r == nil {
		return json.Marshal(ResultKeys{})
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *ResultKeys) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// Metadata is the free-form key/value map populated by the metadata operation.
type Metadata map[string]string

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(Metadata{})
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(value interface{}) error {
	return scanJSON(value, m)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return fmt.Errorf("jobstore: unsupported scan source type %T", value)
		}
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dest)
}

// Job is the primary persisted entity (spec §3).
type Job struct {
	ID          uuid.UUID       `db:"id" json:"job_id"`
	Status      Status          `db:"status" json:"status"`
	Operations  OperationList   `db:"operations" json:"operations"`
	Params      ParamsByTag     `db:"params" json:"-"`
	SourceKey   string          `db:"source_key" json:"-"`
	ResultKeys  ResultKeys      `db:"result_keys" json:"result_keys"`
	ArchiveKey  *string         `db:"archive_key" json:"-"`
	Metadata    Metadata        `db:"metadata" json:"metadata,omitempty"`
	WebhookURL  *string         `db:"webhook_url" json:"-"`
	Error       *string         `db:"error" json:"error,omitempty"`
	RetryCount  int             `db:"retry_count" json:"-"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"-"`
}

// NewJob constructs a PENDING job with a fresh random identifier.
func NewJob(sourceKey string, operations OperationList, params ParamsByTag, webhookURL *string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:         uuid.New(),
		Status:     StatusPending,
		Operations: operations,
		Params:     params,
		SourceKey:  sourceKey,
		ResultKeys: ResultKeys{},
		Metadata:   Metadata{},
		WebhookURL: webhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
