package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GetHash returns the hex sha256 of value
func GetHash(value string) string {
	h := sha256.Sum256([]byte(value))

	return hex.EncodeToString(h[:])
}

// HashParts joins parts with an unambiguous separator and hashes the result
func HashParts(parts ...string) string {
	return GetHash(strings.Join(parts, "\x00"))
}
