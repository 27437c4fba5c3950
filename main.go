// main.go - Confidential paper registry: end-to-end demo scenario.
//
// This demonstrates the complete lifecycle of the registry protocol:
//   - the oracle generates its key material and attestation circuit keys
//   - three participants submit papers with encrypted title/abstract/author
//   - records are revealed out of submission order through the oracle's
//     verified request/callback round-trip
//   - each revealed author identity feeds an encrypted per-author counter
//   - the aggregate counters are themselves revealed through the oracle
//
// Usage:
//   go run main.go
//
// Architecture:
//   - the registry never sees plaintext until a verified callback arrives
//   - the oracle runs in-process here; registryd/revealworker split the same
//     roles across Redis in a deployment
//   - the final ledger state is written to ledger.json

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/foehpvf432laurasmith/paper-repo/internal/attest"
	"github.com/foehpvf432laurasmith/paper-repo/internal/oracle"
	"github.com/foehpvf432laurasmith/paper-repo/internal/registry"
)

type paper struct {
	title    string
	abstract string
	author   string
}

func main() {
	log.Println("=== Confidential Paper Registry: Demo Scenario ===")

	// 1. Setup: compile the attestation circuit and generate/load ZKP keys
	ccs, err := attest.Compile()
	if err != nil {
		log.Printf("ERROR: attestation circuit compilation failed: %v", err)
		return
	}
	provingKey, verifyingKey, err := attest.SetupOrLoadKeys(ccs, "keys/attest_pk.bin", "keys/attest_vk.bin")
	if err != nil {
		log.Printf("ERROR: attestation key setup failed: %v", err)
		return
	}

	// 2. Oracle key material: attestation identity, stream key, Paillier key
	oracleSk, _, err := attest.GenerateOracleKey()
	if err != nil {
		log.Printf("ERROR: oracle identity generation failed: %v", err)
		return
	}
	keys, err := oracle.GenerateKeys(oracleSk, 1024)
	if err != nil {
		log.Printf("ERROR: oracle key generation failed: %v", err)
		return
	}
	prover := attest.NewProver(oracleSk, ccs, provingKey)
	verifier := attest.NewVerifier(attest.DerivePublic(oracleSk), verifyingKey)

	// 3. Wire the in-process oracle to the registry. The oracle calls back
	// into the registry, so the client closes over the reg variable.
	var reg *registry.Registry
	orc := oracle.NewLocal(keys, prover, func(requestID string, payload, proof []byte) error {
		return reg.Callback(requestID, payload, proof)
	})

	reg, err = registry.New(registry.Config{
		Oracle:   orc,
		Verifier: verifier,
		Counters: keys.Paillier.Public(),
	})
	if err != nil {
		log.Printf("ERROR: registry init failed: %v", err)
		return
	}

	// 4. Three participants submit papers; every field is sealed before it
	// reaches the registry
	papers := []paper{
		{"Paper A", "Abs A", "alice"},
		{"Paper B", "Abs B", "alice"},
		{"Paper C", "Abs C", "bob"},
	}
	ids := make([]uint64, len(papers))
	for i, p := range papers {
		id, err := reg.Submit(
			keys.StreamKey.Seal([]byte(p.title)),
			keys.StreamKey.Seal([]byte(p.abstract)),
			keys.StreamKey.Seal([]byte(p.author)),
		)
		if err != nil {
			log.Printf("ERROR: submission failed: %v", err)
			return
		}
		ids[i] = id
		log.Printf("submitted record %d (fields encrypted)", id)
	}

	// 5. Reveal out of submission order
	log.Println("=== Reveal Phase ===")
	for _, idx := range []int{1, 2, 0} {
		requestID, err := reg.RequestReveal(context.Background(), ids[idx])
		if err != nil {
			log.Printf("ERROR: reveal request for record %d failed: %v", ids[idx], err)
			return
		}
		log.Printf("decryption request %s opened for record %d", requestID, ids[idx])
		if err := orc.Deliver(requestID); err != nil {
			log.Printf("ERROR: oracle delivery failed: %v", err)
			return
		}
		rec, err := reg.GetRecord(ids[idx])
		if err != nil {
			log.Printf("ERROR: record fetch failed: %v", err)
			return
		}
		log.Printf("record %d revealed: %q by %s", rec.ID, rec.Title, rec.Author)
	}

	// 6. Aggregate phase: reveal each author's encrypted counter
	log.Println("=== Aggregate Phase ===")
	for _, author := range reg.Authors() {
		requestID, err := reg.RequestAggregateReveal(context.Background(), author)
		if err != nil {
			log.Printf("ERROR: aggregate request for %s failed: %v", author, err)
			return
		}
		if err := orc.Deliver(requestID); err != nil {
			log.Printf("ERROR: oracle delivery failed: %v", err)
			return
		}
		count, _ := reg.GetAggregateCount(author)
		fmt.Printf("author %-8s revealed papers: %d\n", author, count)
	}

	// 7. Persist the final ledger state
	if err := reg.SaveToFile("ledger.json"); err != nil {
		log.Printf("ERROR: ledger save failed: %v", err)
		return
	}
	log.Println("ledger state written to ledger.json")
}
