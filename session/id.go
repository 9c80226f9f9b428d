package session

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

// NewID mints an opaque session identifier: 16 random bytes rendered
// as base58. The store itself never inspects identifiers; this helper
// exists for collaborators that need to issue them.
func NewID() string {
	var buf [16]byte
	rand.Read(buf[:])
	return base58.Encode(buf[:])
}
