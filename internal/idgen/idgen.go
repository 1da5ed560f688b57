// Package idgen generates the 8-character lowercase hex identifiers used
// for task and notification ids.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Length is the fixed id length in hex characters.
const Length = 8

// New returns a random 8-character lowercase hex identifier.
func New() string {
	var b [Length / 2]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing indicates a broken host entropy source; there
		// is no sane fallback that still satisfies the id-format contract.
		panic(fmt.Sprintf("idgen: reading random bytes: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// maxAttempts bounds the collision-retry loop Unique runs. With a 2^32 id
// space, a collision on the first attempt is already vanishingly unlikely;
// this only guards against a caller's exists check being permanently wrong.
const maxAttempts = 20

// Unique generates ids via New, calling exists to check each candidate
// against whatever store the caller is allocating an id for, and returns
// the first candidate exists reports as not present. Callers compose this
// with their own notion of "taken" (a store query, or an in-memory set for
// a batch being inserted together before any of it is committed).
func Unique(exists func(id string) (bool, error)) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		id := New()
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("idgen: exhausted %d attempts generating a unique id", maxAttempts)
}
