// Package hashing computes content fingerprints for uploaded blobs and
// derives the sharded object paths they are stored under.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sum returns the lowercase hex SHA-256 digest of data. Identical bytes
// always produce the identical digest, which is what makes content-addressed
// dedup possible.
func Sum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// ObjectPath shards a hash into "ab/cd/abcd..." so object listings never
// degenerate into one flat directory.
func ObjectPath(hash string) string {
	return fmt.Sprintf("%s/%s/%s", hash[0:2], hash[2:4], hash)
}

// ValidHash reports whether s looks like a digest produced by Sum.
func ValidHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
