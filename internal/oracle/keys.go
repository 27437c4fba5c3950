// keys.go - Oracle key material: stream key, Paillier private key, and the
// attestation secret. Saved to a single JSON file for prototype deployments
// where the worker and the registry daemon are provisioned from the same
// key ceremony output.

package oracle

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"os"

	"github.com/foehpvf432laurasmith/paper-repo/internal/encval"
)

// Keys bundles everything the oracle needs to decrypt and attest.
type Keys struct {
	OracleSk  *big.Int
	StreamKey encval.StreamKey
	Paillier  *encval.PrivateKey
}

type keysJSON struct {
	OracleSk  string             `json:"oracleSk"`
	StreamKey string             `json:"streamKey"`
	Paillier  *encval.PrivateKey `json:"paillier"`
}

// GenerateKeys creates a fresh oracle key bundle. bits sizes the Paillier
// modulus.
func GenerateKeys(oracleSk *big.Int, bits int) (*Keys, error) {
	paillier, err := encval.GeneratePaillierKey(bits)
	if err != nil {
		return nil, err
	}
	return &Keys{
		OracleSk:  oracleSk,
		StreamKey: encval.NewStreamKey(),
		Paillier:  paillier,
	}, nil
}

// Save writes the bundle to a JSON file.
func (k *Keys) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(keysJSON{
		OracleSk:  k.OracleSk.Text(16),
		StreamKey: hex.EncodeToString(k.StreamKey),
		Paillier:  k.Paillier,
	})
}

// LoadKeys reads a bundle from a JSON file.
func LoadKeys(path string) (*Keys, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var raw keysJSON
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}
	sk, ok := new(big.Int).SetString(raw.OracleSk, 16)
	if !ok {
		return nil, errors.New("invalid oracle secret key")
	}
	streamKey, err := hex.DecodeString(raw.StreamKey)
	if err != nil {
		return nil, errors.New("invalid stream key")
	}
	if raw.Paillier == nil {
		return nil, errors.New("missing paillier key")
	}
	return &Keys{
		OracleSk:  sk,
		StreamKey: encval.StreamKey(streamKey),
		Paillier:  raw.Paillier,
	}, nil
}
