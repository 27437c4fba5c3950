// stream.go - MiMC mask-chain encryption for the record string fields.
//
// Each sealed value carries a fresh nonce; the keystream is a chain of MiMC
// hashes seeded from key and nonce, xored over the plaintext. The registry
// stores the resulting bytes as opaque handles and never holds the key.

package encval

import (
	"crypto/sha256"
	"errors"

	fr "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	"github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

const streamNonceSize = 32

// StreamKey is a symmetric key for sealing record fields. Held by the oracle.
type StreamKey []byte

// NewStreamKey generates a fresh 32-byte stream key.
func NewStreamKey() StreamKey {
	return StreamKey(randomBytes(streamNonceSize))
}

// Seal encrypts plaintext under the key with a fresh nonce.
// Output layout: nonce || plaintext XOR keystream.
func (k StreamKey) Seal(plaintext []byte) []byte {
	nonce := randomBytes(streamNonceSize)
	ks := keystream(k, nonce, len(plaintext))
	out := make([]byte, streamNonceSize+len(plaintext))
	copy(out, nonce)
	for i := range plaintext {
		out[streamNonceSize+i] = plaintext[i] ^ ks[i]
	}
	return out
}

// Open decrypts a sealed value.
func (k StreamKey) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < streamNonceSize {
		return nil, errors.New("sealed value too short")
	}
	nonce := sealed[:streamNonceSize]
	body := sealed[streamNonceSize:]
	ks := keystream(k, nonce, len(body))
	out := make([]byte, len(body))
	for i := range body {
		out[i] = body[i] ^ ks[i]
	}
	return out, nil
}

// keystream derives n bytes by chaining MiMC hashes from a key/nonce seed.
// The seed is reduced to a field element so every MiMC write is block-aligned.
func keystream(key StreamKey, nonce []byte, n int) []byte {
	seed := sha256.Sum256(append(append([]byte{}, key...), nonce...))
	var e fr.Element
	e.SetBytes(seed[:])
	block := e.Bytes()

	h := mimc.NewMiMC()
	h.Write(block[:])
	mask := h.Sum(nil)

	out := make([]byte, 0, n+len(mask))
	for len(out) < n {
		out = append(out, mask...)
		h.Write(mask)
		mask = h.Sum(nil)
	}
	return out[:n]
}
