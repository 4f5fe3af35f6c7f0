package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Checksum computes the integrity checksum of the case: a SHA-256 digest
// over the canonical JSON serialization with the checksum field itself
// zeroed. It is recomputed on every committed write and verified on
// single-case reads.
func (c *IncidentCase) Checksum() string {
	dup := c.Clone()
	dup.IntegrityChecksum = ""

	data, err := json.Marshal(dup)
	if err != nil {
		// Marshalling a plain struct of scalars and slices cannot fail.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
