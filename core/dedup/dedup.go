package dedup

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the SHA-256 digest of data as lowercase hex. Identical bytes
// always produce identical digests, which is what upload deduplication
// compares on.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
