package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeJobID computes a deterministic backfill job identifier using SHA256.
// Formula: SHA256(token|network|start_ts|scheduled_at_ns)
// Returns hex-encoded hash (64 characters).
//
// The scheduling time is part of the key so that rescheduling a failed
// backfill for the same (token, network) pair produces a new job.
func ComputeJobID(token, network string, startTs, scheduledAtNs int64) string {
	data := fmt.Sprintf("%s|%s|%d|%d", token, network, startTs, scheduledAtNs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
