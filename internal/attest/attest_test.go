package attest

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
)

var testSetup struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

func setupKeys(t *testing.T) {
	t.Helper()
	if testSetup.ccs != nil {
		return
	}
	ccs, err := Compile()
	if err != nil {
		t.Fatalf("circuit compilation failed: %v", err)
	}
	pkPath := "test_proving.key"
	vkPath := "test_verifying.key"
	pk, vk, err := SetupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		t.Fatalf("SetupOrLoadKeys failed: %v", err)
	}
	os.Remove(pkPath)
	os.Remove(vkPath)
	testSetup.ccs = ccs
	testSetup.pk = pk
	testSetup.vk = vk
}

func TestAttestationRoundTrip(t *testing.T) {
	setupKeys(t)

	sk, pk, err := GenerateOracleKey()
	if err != nil {
		t.Fatalf("oracle keygen failed: %v", err)
	}
	prover := NewProver(sk, testSetup.ccs, testSetup.pk)
	verifier := NewVerifier(pk, testSetup.vk)

	payload := []byte(`["Paper A","Abs A","alice"]`)
	proof, err := prover.Attest("req-1", payload)
	if err != nil {
		t.Fatalf("Attest failed: %v", err)
	}
	if err := verifier.Verify("req-1", payload, proof); err != nil {
		t.Errorf("valid attestation rejected: %v", err)
	}

	t.Run("wrong request id", func(t *testing.T) {
		if err := verifier.Verify("req-2", payload, proof); err == nil {
			t.Error("attestation must not verify for a different request id")
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		if err := verifier.Verify("req-1", []byte(`["Paper A","Abs A","mallory"]`), proof); err == nil {
			t.Error("attestation must not verify for a tampered payload")
		}
	})

	t.Run("tampered tag", func(t *testing.T) {
		var pr Proof
		if err := json.Unmarshal(proof, &pr); err != nil {
			t.Fatalf("proof decode failed: %v", err)
		}
		pr.Tag = "12345"
		bad, _ := json.Marshal(pr)
		if err := verifier.Verify("req-1", payload, bad); err == nil {
			t.Error("attestation must not verify with a forged tag")
		}
	})

	t.Run("garbage proof bytes", func(t *testing.T) {
		if err := verifier.Verify("req-1", payload, []byte("not json")); err == nil {
			t.Error("garbage proof bytes must be rejected")
		}
	})

	t.Run("wrong oracle identity", func(t *testing.T) {
		_, otherPk, err := GenerateOracleKey()
		if err != nil {
			t.Fatalf("oracle keygen failed: %v", err)
		}
		other := NewVerifier(otherPk, testSetup.vk)
		if err := other.Verify("req-1", payload, proof); err == nil {
			t.Error("attestation must not verify against a different oracle identity")
		}
	})
}

func TestDigestBindsBothInputs(t *testing.T) {
	d1 := Digest("req-1", []byte("payload"))
	d2 := Digest("req-2", []byte("payload"))
	d3 := Digest("req-1", []byte("payload!"))
	if d1.Cmp(d2) == 0 {
		t.Error("digest should depend on the request id")
	}
	if d1.Cmp(d3) == 0 {
		t.Error("digest should depend on the payload")
	}
	if d1.Cmp(Digest("req-1", []byte("payload"))) != 0 {
		t.Error("digest should be deterministic")
	}
}

func TestDerivePublicMatchesKeygen(t *testing.T) {
	sk, pk, err := GenerateOracleKey()
	if err != nil {
		t.Fatalf("oracle keygen failed: %v", err)
	}
	if DerivePublic(sk).Cmp(pk) != 0 {
		t.Error("DerivePublic should reproduce the generated public identity")
	}
}
