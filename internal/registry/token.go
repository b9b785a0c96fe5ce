package registry

import (
	"crypto/rand"
	"encoding/hex"
)

// NewToken returns a fresh check-in credential: 16 bytes from the system
// CSPRNG, hex encoded. 128 bits makes brute-force guessing infeasible, and
// nothing attendee-derived goes into it — possession of the ticket is the
// whole credential.
func NewToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the host is unusable.
		panic("registry: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
