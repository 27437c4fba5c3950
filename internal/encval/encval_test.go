package encval

import (
	"bytes"
	"math/big"
	"testing"
)

func TestPaillierHomomorphicAddition(t *testing.T) {
	sk, err := GeneratePaillierKey(512)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	pk := sk.Public()

	c1, err := pk.Encrypt(big.NewInt(17))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	c2, err := pk.Encrypt(big.NewInt(25))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	sum, err := sk.Decrypt(pk.AddCiphertexts(c1, c2))
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if sum.Int64() != 42 {
		t.Errorf("homomorphic sum = %v, want 42", sum)
	}
}

func TestPaillierCounterHandles(t *testing.T) {
	sk, err := GeneratePaillierKey(512)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	pk := sk.Public()

	var counter Handle
	if counter.IsInitialized() {
		t.Fatal("nil handle should not be initialized")
	}
	counter, err = pk.Zero()
	if err != nil {
		t.Fatalf("Zero failed: %v", err)
	}
	if !counter.IsInitialized() {
		t.Fatal("encrypted zero should be initialized")
	}

	// Increment three times.
	for i := 0; i < 3; i++ {
		inc, err := pk.One()
		if err != nil {
			t.Fatalf("One failed: %v", err)
		}
		counter, err = pk.Add(counter, inc)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	m, err := sk.DecryptHandle(counter)
	if err != nil {
		t.Fatalf("DecryptHandle failed: %v", err)
	}
	if m.Int64() != 3 {
		t.Errorf("counter = %v, want 3", m)
	}
}

func TestPaillierCiphertextsAreRandomized(t *testing.T) {
	sk, err := GeneratePaillierKey(512)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	a, _ := sk.Public().One()
	b, _ := sk.Public().One()
	if bytes.Equal(a, b) {
		t.Error("two encryptions of one should not be byte-identical")
	}
}

func TestPaillierKeyJSONRoundTrip(t *testing.T) {
	sk, err := GeneratePaillierKey(512)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	data, err := sk.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var restored PrivateKey
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	c, err := restored.Public().Encrypt(big.NewInt(7))
	if err != nil {
		t.Fatalf("encrypt with restored key failed: %v", err)
	}
	m, err := restored.Decrypt(c)
	if err != nil {
		t.Fatalf("decrypt with restored key failed: %v", err)
	}
	if m.Int64() != 7 {
		t.Errorf("round-tripped key decrypted %v, want 7", m)
	}
}

func TestStreamSealOpen(t *testing.T) {
	key := NewStreamKey()

	for _, pt := range []string{"", "x", "Confidential Paper Title", "a much longer abstract that spans more than one keystream block: Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore"} {
		sealed := key.Seal([]byte(pt))
		opened, err := key.Open(sealed)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if string(opened) != pt {
			t.Errorf("round trip mismatch: got %q want %q", opened, pt)
		}
	}
}

func TestStreamNonceFreshness(t *testing.T) {
	key := NewStreamKey()
	a := key.Seal([]byte("same plaintext"))
	b := key.Seal([]byte("same plaintext"))
	if bytes.Equal(a, b) {
		t.Error("sealing the same plaintext twice should produce distinct ciphertexts")
	}
}

func TestStreamWrongKey(t *testing.T) {
	sealed := NewStreamKey().Seal([]byte("secret"))
	opened, err := NewStreamKey().Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(opened) == "secret" {
		t.Error("opening with the wrong key should not recover the plaintext")
	}
}

func TestStreamOpenTooShort(t *testing.T) {
	if _, err := NewStreamKey().Open([]byte("short")); err == nil {
		t.Error("expected error for truncated sealed value")
	}
}
