// paillier.go - Additively homomorphic counter scheme (Paillier over big.Int).
//
// The per-author counters are Paillier ciphertexts: adding plaintexts is
// multiplying ciphertexts modulo n^2, so the registry can increment a counter
// it cannot read. Encryption of zero/one needs only the public key; decryption
// needs the private key, which lives with the oracle.

package encval

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

var one = big.NewInt(1)

// PublicKey holds the Paillier public parameters (n, g = n+1, n^2).
type PublicKey struct {
	N  *big.Int
	G  *big.Int
	N2 *big.Int
}

// PrivateKey holds the full Paillier key. Only the oracle side ever sees one.
type PrivateKey struct {
	PublicKey
	Lambda *big.Int // lcm(p-1, q-1)
	Mu     *big.Int // (L(g^lambda mod n^2))^-1 mod n
}

// GeneratePaillierKey generates a fresh keypair with n of the given bit size.
func GeneratePaillierKey(bits int) (*PrivateKey, error) {
	if bits < 256 {
		return nil, errors.New("paillier modulus too small")
	}
	p, err := rand.Prime(rand.Reader, bits/2)
	if err != nil {
		return nil, err
	}
	q, err := rand.Prime(rand.Reader, bits/2)
	if err != nil {
		return nil, err
	}
	if p.Cmp(q) == 0 {
		return GeneratePaillierKey(bits)
	}
	n := new(big.Int).Mul(p, q)
	n2 := new(big.Int).Mul(n, n)
	g := new(big.Int).Add(n, one)

	pm1 := new(big.Int).Sub(p, one)
	qm1 := new(big.Int).Sub(q, one)
	gcd := new(big.Int).GCD(nil, nil, pm1, qm1)
	lambda := new(big.Int).Div(new(big.Int).Mul(pm1, qm1), gcd)

	// mu = (L(g^lambda mod n^2))^-1 mod n
	u := new(big.Int).Exp(g, lambda, n2)
	mu := new(big.Int).ModInverse(lFunc(u, n), n)
	if mu == nil {
		return nil, errors.New("paillier keygen: lambda not invertible")
	}

	return &PrivateKey{
		PublicKey: PublicKey{N: n, G: g, N2: n2},
		Lambda:    lambda,
		Mu:        mu,
	}, nil
}

// lFunc is the Paillier L function: L(x) = (x-1)/n.
func lFunc(x, n *big.Int) *big.Int {
	return new(big.Int).Div(new(big.Int).Sub(x, one), n)
}

// Encrypt encrypts m under the public key: c = g^m * r^n mod n^2.
func (pk *PublicKey) Encrypt(m *big.Int) (*big.Int, error) {
	if m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, fmt.Errorf("paillier plaintext out of range")
	}
	r, err := pk.randomizer()
	if err != nil {
		return nil, err
	}
	gm := new(big.Int).Exp(pk.G, m, pk.N2)
	rn := new(big.Int).Exp(r, pk.N, pk.N2)
	return mulMod(gm, rn, pk.N2), nil
}

// AddCiphertexts homomorphically adds two ciphertexts: c1 * c2 mod n^2.
func (pk *PublicKey) AddCiphertexts(c1, c2 *big.Int) *big.Int {
	return mulMod(c1, c2, pk.N2)
}

// randomizer draws r in Z*_n.
func (pk *PublicKey) randomizer() (*big.Int, error) {
	for {
		r, err := rand.Int(rand.Reader, pk.N)
		if err != nil {
			return nil, err
		}
		if r.Sign() == 0 {
			continue
		}
		if new(big.Int).GCD(nil, nil, r, pk.N).Cmp(one) == 0 {
			return r, nil
		}
	}
}

// Decrypt recovers the plaintext: m = L(c^lambda mod n^2) * mu mod n.
func (sk *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if c.Sign() <= 0 || c.Cmp(sk.N2) >= 0 {
		return nil, errors.New("paillier ciphertext out of range")
	}
	u := new(big.Int).Exp(c, sk.Lambda, sk.N2)
	m := new(big.Int).Mul(lFunc(u, sk.N), sk.Mu)
	return m.Mod(m, sk.N), nil
}

// mulMod returns x*y mod m.
func mulMod(x, y, m *big.Int) *big.Int {
	z := new(big.Int).Mul(x, y)
	return z.Mod(z, m)
}

// --- Adder capability over opaque handles ---

// Zero returns a fresh encryption of zero as an opaque handle.
func (pk *PublicKey) Zero() (Handle, error) {
	c, err := pk.Encrypt(big.NewInt(0))
	if err != nil {
		return nil, err
	}
	return Handle(c.Bytes()), nil
}

// One returns a fresh encryption of one as an opaque handle.
func (pk *PublicKey) One() (Handle, error) {
	c, err := pk.Encrypt(big.NewInt(1))
	if err != nil {
		return nil, err
	}
	return Handle(c.Bytes()), nil
}

// Add homomorphically adds the plaintexts behind two handles.
func (pk *PublicKey) Add(a, b Handle) (Handle, error) {
	if !a.IsInitialized() || !b.IsInitialized() {
		return nil, errors.New("paillier add: uninitialized handle")
	}
	ca := new(big.Int).SetBytes(a)
	cb := new(big.Int).SetBytes(b)
	return Handle(pk.AddCiphertexts(ca, cb).Bytes()), nil
}

// DecryptHandle decrypts a counter handle to its integer value.
func (sk *PrivateKey) DecryptHandle(h Handle) (*big.Int, error) {
	if !h.IsInitialized() {
		return nil, errors.New("paillier decrypt: uninitialized handle")
	}
	return sk.Decrypt(new(big.Int).SetBytes(h))
}

// --- JSON encoding (hex big ints, for key files) ---

type publicKeyJSON struct {
	N string `json:"n"`
	G string `json:"g"`
}

type privateKeyJSON struct {
	N      string `json:"n"`
	G      string `json:"g"`
	Lambda string `json:"lambda"`
	Mu     string `json:"mu"`
}

func (pk *PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(publicKeyJSON{N: pk.N.Text(16), G: pk.G.Text(16)})
}

func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	var raw publicKeyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n, ok := new(big.Int).SetString(raw.N, 16)
	if !ok {
		return errors.New("invalid paillier public key: n")
	}
	g, ok := new(big.Int).SetString(raw.G, 16)
	if !ok {
		return errors.New("invalid paillier public key: g")
	}
	pk.N = n
	pk.G = g
	pk.N2 = new(big.Int).Mul(n, n)
	return nil
}

func (sk *PrivateKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(privateKeyJSON{
		N:      sk.N.Text(16),
		G:      sk.G.Text(16),
		Lambda: sk.Lambda.Text(16),
		Mu:     sk.Mu.Text(16),
	})
}

func (sk *PrivateKey) UnmarshalJSON(data []byte) error {
	var raw privateKeyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n, ok1 := new(big.Int).SetString(raw.N, 16)
	g, ok2 := new(big.Int).SetString(raw.G, 16)
	lambda, ok3 := new(big.Int).SetString(raw.Lambda, 16)
	mu, ok4 := new(big.Int).SetString(raw.Mu, 16)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return errors.New("invalid paillier private key")
	}
	sk.N = n
	sk.G = g
	sk.N2 = new(big.Int).Mul(n, n)
	sk.Lambda = lambda
	sk.Mu = mu
	return nil
}

// Public returns the public half of the key.
func (sk *PrivateKey) Public() *PublicKey {
	return &sk.PublicKey
}
