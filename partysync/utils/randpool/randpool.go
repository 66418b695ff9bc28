// Package randpool fills credentials from the system entropy source.
package randpool

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Reader is the entropy source. Tests may swap it.
var Reader io.Reader = rand.Reader

// Rand fills dst with cryptographically secure random bytes. An entropy
// failure is not recoverable and panics.
func Rand(dst []byte) {
	if len(dst) == 0 {
		return
	}
	if _, err := io.ReadFull(Reader, dst); err != nil {
		panic(fmt.Errorf("randpool: failed to read crypto randomness: %w", err))
	}
}
