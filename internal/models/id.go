package models

import (
	"crypto/sha256"

	"github.com/google/uuid"
)

// DeterministicID derives a stable identifier from (table, natural key,
// owner). The same logical record always hashes to the same ID, which makes
// re-upserting it idempotent. Changing the owner changes the ID.
func DeterministicID(table, naturalKey, ownerID string) string {
	h := sha256.New()
	h.Write([]byte(table))
	h.Write([]byte{0})
	h.Write([]byte(naturalKey))
	h.Write([]byte{0})
	h.Write([]byte(ownerID))
	sum := h.Sum(nil)

	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// 16 bytes in, cannot fail
		panic(err)
	}
	return id.String()
}

// RandomID returns a fresh random identifier for records without a natural
// key.
func RandomID() string {
	return uuid.NewString()
}
