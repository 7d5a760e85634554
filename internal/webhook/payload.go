package webhook

import "pixtools/internal/jobstore"

// Payload is the outbound POST body (spec §4.9, §6): URLs are freshly
// signed before each delivery attempt by the caller.
type Payload struct {
	JobID      string                           `json:"job_id"`
	Status     jobstore.Status                  `json:"status"`
	ResultURLs map[jobstore.OperationTag]string `json:"result_urls"`
	ArchiveURL string                            `json:"archive_url,omitempty"`
	Metadata   jobstore.Metadata                `json:"metadata,omitempty"`
	Error      string                            `json:"error,omitempty"`
}
