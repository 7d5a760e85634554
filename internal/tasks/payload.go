// Package tasks defines the broker's wire payloads: the Task message and
// Fan-out result types from spec §3, plus the asynq task-type name
// constants internal/broker and internal/worker share.
package tasks

import (
	"encoding/json"

	"pixtools/internal/jobstore"
)

// Task type names registered on the asynq ServeMux.
const (
	TypeProcessOperation = "pixtools:process_operation"
	TypeFanOutResult     = "pixtools:fan_out_result"
	TypeFinalize         = "pixtools:finalize"
	TypeArchive          = "pixtools:archive"
)

// ProcessOperationPayload is the Task message (spec §3): everything a
// worker needs to perform one operation against one source image.
type ProcessOperationPayload struct {
	JobID         string                   `json:"job_id"`
	Operation     jobstore.OperationTag    `json:"operation"`
	SourceKey     string                   `json:"source_key"`
	Params        jobstore.OperationParams `json:"params"`
	CorrelationID string                   `json:"correlation_id"`
	DispatchedAt  string                   `json:"dispatched_at"` // RFC3339; string so it survives JSON round-trip byte-for-byte

	// ChordSize is 1 for a Chain's lone step (direct EnqueueFinalize) and
	// the sibling count for a Chord's steps (EnqueueFanOutResult into the
	// group instead). It lets the worker handler route without a jobstore
	// read on the hot path.
	ChordSize int `json:"chord_size"`
}

// Marshal encodes the payload for asynq.NewTask.
func (p ProcessOperationPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// FanOutResult is the Fan-out result (spec §3): what a worker hands back
// for one sibling of a Chord, collected by the Finalizer.
type FanOutResult struct {
	Operation jobstore.OperationTag `json:"operation"`
	ResultKey string                `json:"result_key,omitempty"`
	Metadata  jobstore.Metadata     `json:"metadata,omitempty"`
	ErrorKind string                `json:"error_kind,omitempty"`
}

// Marshal encodes the result for use as an asynq Group aggregator payload.
func (r FanOutResult) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// FinalizePayload is handed to the finalize task, whether invoked directly
// after a Chain's single task or as a Group's aggregation callback.
type FinalizePayload struct {
	JobID   string         `json:"job_id"`
	Results []FanOutResult `json:"results,omitempty"`
}

// Marshal encodes the payload for asynq.NewTask.
func (p FinalizePayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ArchivePayload is handed to the archive task after a successful finalize.
type ArchivePayload struct {
	JobID string `json:"job_id"`
}

// Marshal encodes the payload for asynq.NewTask.
func (p ArchivePayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

