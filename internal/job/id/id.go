// Package id provides unique identifier generation for jobs.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Prefix starts every generated job ID.
const Prefix = "vid-"

// Generate creates a new unique job ID.
// Format: vid-<timestamp>-<random>
// Example: vid-1701432000-a1b2c3d4
func Generate() string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to nanosecond timestamp if crypto/rand fails
		return fmt.Sprintf("%s%d", Prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s%d-%s", Prefix, timestamp, hex.EncodeToString(random))
}
