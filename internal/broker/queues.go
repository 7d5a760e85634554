package broker

import "pixtools/internal/jobstore"

// Logical queue names (spec §4.5, §6).
const (
	QueueStandard = "standard"
	QueueML       = "ml_inference"
)

// QueueFor implements DAG Builder rule 4: denoise routes to the ml queue,
// everything else to standard.
func QueueFor(tag jobstore.OperationTag) string {
	if tag == jobstore.OpDenoise {
		return QueueML
	}
	return QueueStandard
}

// DeadLetterKey is the Redis list operators inspect for exhausted tasks,
// playing the role of the spec's dead-letter exchange/queue.
const DeadLetterKey = "pixtools:dead_letter"

// MaxRetry is the default bounded retry count (spec §4.4 rule 5).
const MaxRetry = 3
