package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeLaunchID computes a deterministic launch_id using SHA256.
// Formula: SHA256(asset_code|asset_issuer|participation_start)
// Returns the base58-encoded first 16 bytes of the hash.
func ComputeLaunchID(
	assetCode string,
	assetIssuer string,
	participationStart int64,
) string {
	data := fmt.Sprintf("%s|%s|%d",
		assetCode,
		assetIssuer,
		participationStart,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:16])
}
