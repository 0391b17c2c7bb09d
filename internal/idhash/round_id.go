package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeRoundID computes a deterministic round_id using SHA256.
// Formula: SHA256(launch_id|record_at)
// Returns the base58-encoded first 16 bytes of the hash.
func ComputeRoundID(launchID string, recordAt int64) string {
	data := fmt.Sprintf("%s|%d", launchID, recordAt)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:16])
}
