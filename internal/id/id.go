// Package id generates the identifiers used to correlate runs and requests.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run generates the identifier for one test run/session.
func Run() string {
	return uuid.New().String()
}

// Short generates a short random hex ID (16 characters) for places where a
// full UUID is too noisy, e.g. per-step trace records.
func Short() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// MillisSuffix returns the 6 trailing digits of the millisecond timestamp,
// zero-padded. Used as the correlation-header suffix so logged request and
// response pairs can be matched across systems.
func MillisSuffix(t time.Time) string {
	return fmt.Sprintf("%06d", t.UnixMilli()%1_000_000)
}
