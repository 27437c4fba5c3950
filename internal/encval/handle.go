// handle.go - Opaque encrypted value handles.
//
// A Handle is the only view of a ciphertext the registry ever gets. It supports
// exactly the operations the protocol needs: storage, an is-initialized check,
// and (through the Adder capability) homomorphic addition.

package encval

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Handle is an opaque reference to ciphertext bytes.
type Handle []byte

// IsInitialized reports whether the handle refers to an actual ciphertext.
// A nil or empty handle is the "not yet created" state of an aggregate counter.
func (h Handle) IsInitialized() bool {
	return len(h) > 0
}

// Fingerprint returns a short content hash of the handle, for logging and
// event payloads. It reveals nothing about the plaintext.
func (h Handle) Fingerprint() string {
	sum := sha256.Sum256(h)
	return hex.EncodeToString(sum[:8])
}

// Clone returns an independent copy of the handle.
func (h Handle) Clone() Handle {
	if h == nil {
		return nil
	}
	out := make(Handle, len(h))
	copy(out, h)
	return out
}

// Adder is the homomorphic capability the registry uses for aggregate
// counters. Implementations must not require any secret material.
type Adder interface {
	// Zero returns a fresh encryption of zero.
	Zero() (Handle, error)
	// One returns a fresh encryption of one.
	One() (Handle, error)
	// Add homomorphically adds the plaintexts behind a and b.
	Add(a, b Handle) (Handle, error)
}

// randomBytes generates random bytes of specified length using crypto/rand.
func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}
