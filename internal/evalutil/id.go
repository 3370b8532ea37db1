package evalutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a fresh globally unique identifier.
func NewID() string {
	return ulid.Make().String()
}

// RequestID derives the deterministic idempotency key for one scenario
// execution within a batch. Re-invoking the orchestrator with the same batch
// id must compute the same key.
func RequestID(batchID, datasetKey, scenarioID string) string {
	seed := strings.Join([]string{
		strings.TrimSpace(batchID),
		strings.TrimSpace(datasetKey),
		strings.TrimSpace(scenarioID),
	}, "|")
	sum := sha256.Sum256([]byte(seed))
	return fmt.Sprintf("req_%s", hex.EncodeToString(sum[:])[:24])
}

// Fingerprint returns the first 16 hex chars of the SHA-256 of b, used to
// detect and reuse identical generated fixtures.
func Fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}
