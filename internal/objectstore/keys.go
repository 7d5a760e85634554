package objectstore

import (
	"fmt"

	"github.com/google/uuid"

	"pixtools/internal/jobstore"
)

// Key prefixes. Retention rules are bootstrapped per-prefix (see gateway.go).
const (
	PrefixRaw       = "raw"
	PrefixProcessed = "processed"
	PrefixArchives  = "archives"
)

// RawKey builds the key an uploaded source image is stored under.
func RawKey(jobID uuid.UUID, originalName string) string {
	return fmt.Sprintf("%s/%s/%s", PrefixRaw, jobID, originalName)
}

// ProcessedKey builds the key a single operation's output is stored under.
func ProcessedKey(jobID uuid.UUID, tag jobstore.OperationTag, ext string) string {
	return fmt.Sprintf("%s/%s/%s.%s", PrefixProcessed, jobID, tag, ext)
}

// ArchiveKey builds the key the job's bundled ZIP is stored under.
func ArchiveKey(jobID uuid.UUID) string {
	return fmt.Sprintf("%s/%s.zip", PrefixArchives, jobID)
}
