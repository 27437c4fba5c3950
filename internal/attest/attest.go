// attest.go - Decryption attestation proofs for oracle callbacks.
//
// The oracle accompanies every decryption result with a Groth16 proof that it
// computed a PRF tag over the digest of (request id, cleartext payload) using
// the secret key behind its published identity. The registry treats the proof
// as an opaque blob and only calls Verify.

package attest

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	fr "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Proof is the wire form of an attestation: the PRF tag plus the Groth16
// proof bytes. Serialized as JSON and carried opaquely through callbacks.
type Proof struct {
	Tag   string `json:"tag"`
	Proof []byte `json:"proof"`
}

// GenerateOracleKey draws a fresh oracle secret key and derives its public
// identity pk = H(sk).
func GenerateOracleKey() (sk, pk *big.Int, err error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return nil, nil, err
	}
	sk = e.BigInt(new(big.Int))
	return sk, derivePublic(sk), nil
}

// DerivePublic recomputes the public identity for a secret key.
func DerivePublic(sk *big.Int) *big.Int {
	return derivePublic(sk)
}

func derivePublic(sk *big.Int) *big.Int {
	h := mimcNative.NewMiMC()
	h.Write(fieldBytes(sk))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// Digest hashes a (request id, payload) pair into a single field element.
// Both inputs are first compressed with sha256 so MiMC sees aligned blocks.
func Digest(requestID string, payload []byte) *big.Int {
	rid := sha256.Sum256([]byte(requestID))
	pld := sha256.Sum256(payload)
	h := mimcNative.NewMiMC()
	h.Write(reduceBytes(rid[:]))
	h.Write(reduceBytes(pld[:]))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// tag computes PRF(sk, digest) natively, matching the in-circuit PRF.
func tag(sk, digest *big.Int) *big.Int {
	h := mimcNative.NewMiMC()
	h.Write(fieldBytes(sk))
	h.Write(fieldBytes(digest))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// fieldBytes encodes a big.Int as one canonical field-sized block.
func fieldBytes(x *big.Int) []byte {
	var e fr.Element
	e.SetBigInt(x)
	b := e.Bytes()
	return b[:]
}

// reduceBytes maps arbitrary bytes into one canonical field-sized block.
func reduceBytes(data []byte) []byte {
	var e fr.Element
	e.SetBytes(data)
	b := e.Bytes()
	return b[:]
}

// Compile builds the attestation constraint system.
func Compile() (constraint.ConstraintSystem, error) {
	var circuit Circuit
	ccs, err := frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	return ccs, nil
}

// Prover generates attestations. Only the oracle holds one.
type Prover struct {
	sk         *big.Int
	pk         *big.Int
	ccs        constraint.ConstraintSystem
	provingKey groth16.ProvingKey
}

// NewProver builds a prover from the oracle secret key and Groth16 material.
func NewProver(sk *big.Int, ccs constraint.ConstraintSystem, provingKey groth16.ProvingKey) *Prover {
	return &Prover{sk: sk, pk: derivePublic(sk), ccs: ccs, provingKey: provingKey}
}

// PublicKey returns the oracle's public identity.
func (p *Prover) PublicKey() *big.Int {
	return new(big.Int).Set(p.pk)
}

// Attest produces an attestation binding the payload to the request id.
func (p *Prover) Attest(requestID string, payload []byte) ([]byte, error) {
	d := Digest(requestID, payload)
	t := tag(p.sk, d)

	witness := &Circuit{
		OraclePk: p.pk.String(),
		Digest:   d.String(),
		Tag:      t.String(),
		Sk:       p.sk.String(),
	}
	w, err := frontend.NewWitness(witness, ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(p.ccs, p.provingKey, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	return json.Marshal(Proof{Tag: t.String(), Proof: buf.Bytes()})
}

// Verifier checks attestations against a fixed oracle identity.
type Verifier struct {
	oraclePk     *big.Int
	verifyingKey groth16.VerifyingKey
}

// NewVerifier builds a verifier for the given oracle identity.
func NewVerifier(oraclePk *big.Int, verifyingKey groth16.VerifyingKey) *Verifier {
	return &Verifier{oraclePk: new(big.Int).Set(oraclePk), verifyingKey: verifyingKey}
}

// Verify checks that proofBytes authenticates payload for requestID.
// Returns nil only for a valid attestation from the configured oracle.
func (v *Verifier) Verify(requestID string, payload, proofBytes []byte) error {
	var pr Proof
	if err := json.Unmarshal(proofBytes, &pr); err != nil {
		return fmt.Errorf("attestation unmarshaling failed: %w", err)
	}
	tagVal, ok := new(big.Int).SetString(pr.Tag, 10)
	if !ok {
		return fmt.Errorf("attestation tag is not a decimal integer")
	}

	witness := &Circuit{
		OraclePk: v.oraclePk.String(),
		Digest:   Digest(requestID, payload).String(),
		Tag:      tagVal.String(),
	}
	w, err := frontend.NewWitness(witness, ecc.BW6_761.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}

	proof := groth16.NewProof(ecc.BW6_761)
	if _, err := proof.ReadFrom(bytes.NewReader(pr.Proof)); err != nil {
		return fmt.Errorf("proof unmarshaling failed: %w", err)
	}
	if err := groth16.Verify(proof, v.verifyingKey, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BW6_761)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey loads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BW6_761)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// Setup runs the Groth16 trusted setup for the circuit without touching disk.
func Setup(ccs constraint.ConstraintSystem) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	return groth16.Setup(ccs)
}

// SetupOrLoadKeys generates or loads Groth16 keys for the circuit.
// If keys exist on disk, loads them; otherwise, generates and saves new keys.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}
