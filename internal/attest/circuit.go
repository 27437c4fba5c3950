package attest

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// Circuit proves that the holder of the oracle secret key produced the tag
// over a specific payload digest:
//
//	OraclePk = H(Sk)
//	Tag      = PRF(Sk, Digest)
//
// Digest binds the request id and the cleartext payload, so a valid proof
// authenticates exactly one (request, payload) pair.
type Circuit struct {
	// Public inputs
	OraclePk frontend.Variable `gnark:",public"`
	Digest   frontend.Variable `gnark:",public"`
	Tag      frontend.Variable `gnark:",public"`

	// Private inputs
	Sk frontend.Variable
}

func (c *Circuit) Define(api frontend.API) error {
	// Key derivation (oraclePk = H(sk))
	hasher, _ := mimc.NewMiMC(api)
	hasher.Write(c.Sk)
	pkComputed := hasher.Sum()
	api.AssertIsEqual(c.OraclePk, pkComputed)

	// Tag (tag = PRF(sk, digest))
	tagComputed := PRF(api, c.Sk, c.Digest)
	api.AssertIsEqual(c.Tag, tagComputed)

	return nil
}

// PRF implements a pseudo-random function using MiMC hash in the circuit
func PRF(api frontend.API, sk, digest frontend.Variable) frontend.Variable {
	hasher, _ := mimc.NewMiMC(api)
	hasher.Write(sk)
	hasher.Write(digest)
	return hasher.Sum()
}
