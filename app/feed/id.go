package feed

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveID content-addresses a feed URL or item GUID into a stable
// opaque identifier: the lowercase hex sha256 digest of the input.
func DeriveID(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}
