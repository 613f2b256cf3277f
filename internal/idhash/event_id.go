package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"fsp-staking/internal/domain"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(emitter|kind|tx_seq|log_index)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(emitter domain.Address, kind domain.EventKind, txSeq uint64, logIndex int) string {
	data := fmt.Sprintf("%s|%s|%d|%d", emitter.String(), string(kind), txSeq, logIndex)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
