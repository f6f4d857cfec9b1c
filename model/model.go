package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes,
// e.g. "task_b6f1...", "cmp_91c2...".
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// HashFields produces a hex-encoded SHA-256 over the concatenation of the
// given fields. Used for deterministic idempotency keys: the same triggering
// event always hashes to the same key.
func HashFields(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ClampScore bounds a raw score to the valid 0-100 range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
