package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeParticipationID computes a deterministic participation_id using SHA256.
// Formula: SHA256(launch_id|user_id)
// Returns the base58-encoded first 16 bytes of the hash.
func ComputeParticipationID(launchID string, userID string) string {
	data := fmt.Sprintf("%s|%s", launchID, userID)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:16])
}
