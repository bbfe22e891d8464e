package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key derives the cache key of a binding from the IDL text and the inputs
// that change the compiler output
func Key(idl string, withFramework bool, includePaths ...string) string {
	hasher := sha256.New()
	hasher.Write([]byte(idl))
	if withFramework {
		hasher.Write([]byte{0, 1})
	} else {
		hasher.Write([]byte{0, 0})
	}
	for _, p := range includePaths {
		hasher.Write([]byte(p))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// HashContent computes a SHA-256 hash of the given content
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
