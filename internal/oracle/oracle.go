// Package oracle integrates the registry with the external decryption oracle.
//
// The oracle is the only component that holds decryption keys. The registry
// talks to it through the Client interface: it hands over ciphertexts and gets
// back a request id minted by the oracle, never by the registry itself. The
// decryption result returns later through the registry's callback entry point,
// accompanied by an attestation proof.
package oracle

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Job kinds. They tell the oracle (and the callback decoder) what shape the
// cleartext payload takes.
const (
	KindRecord    = "record"    // three sealed strings: title, abstract, author
	KindAggregate = "aggregate" // one Paillier counter ciphertext
)

// Job is a decryption request handed to the oracle.
type Job struct {
	Kind        string   `json:"kind"`
	Ciphertexts [][]byte `json:"ciphertexts"`
}

// Client submits decryption jobs to an oracle. Implementations mint the
// request id; the registry only records it.
type Client interface {
	RequestDecryption(ctx context.Context, job *Job) (string, error)
}

// NewRequestID mints a request id from the job content plus fresh randomness.
func NewRequestID(job *Job) string {
	h := sha256.New()
	h.Write([]byte(job.Kind))
	for _, ct := range job.Ciphertexts {
		h.Write(ct)
	}
	nonce := make([]byte, 16)
	rand.Read(nonce)
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil))
}
