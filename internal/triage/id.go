package triage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewRunID generates an opaque run identifier. Callers may supply their own
// instead; the orchestrator only requires uniqueness per run.
func NewRunID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return fmt.Sprintf("run-%x", time.Now().UnixNano())
	}
	return "run-" + hex.EncodeToString(b)
}
