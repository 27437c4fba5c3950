// local.go - In-process decryption oracle.
//
// Local plays the oracle role inside a single process: it holds the decryption
// keys and the attestation prover, queues incoming jobs, and delivers
// callbacks on demand. Held delivery lets tests replay callbacks in arbitrary
// orders, which is exactly the reordering the protocol must tolerate.

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/foehpvf432laurasmith/paper-repo/internal/attest"
	"github.com/foehpvf432laurasmith/paper-repo/internal/encval"
)

// CallbackFunc receives a decryption result. In practice this is the
// registry's Callback entry point.
type CallbackFunc func(requestID string, payload, proof []byte) error

// Local is an in-process oracle.
type Local struct {
	mu       sync.Mutex
	keys     *Keys
	prover   *attest.Prover
	callback CallbackFunc

	auto    bool
	pending map[string]*Job
	order   []string

	// corruptNext makes the next delivered proof fail verification. Test hook.
	corruptNext bool
}

// NewLocal builds a local oracle delivering results to cb.
func NewLocal(keys *Keys, prover *attest.Prover, cb CallbackFunc) *Local {
	return &Local{
		keys:     keys,
		prover:   prover,
		callback: cb,
		pending:  make(map[string]*Job),
	}
}

// SetAutoDeliver makes every request deliver its callback from a background
// goroutine as soon as it is minted.
func (l *Local) SetAutoDeliver(auto bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.auto = auto
}

// CorruptNextProof makes the next delivery carry an invalid proof.
func (l *Local) CorruptNextProof() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.corruptNext = true
}

// RequestDecryption queues a job and mints its request id. The callback is
// never invoked inline; delivery happens via Deliver/DeliverAll or, with
// auto-delivery on, from a separate goroutine.
func (l *Local) RequestDecryption(_ context.Context, job *Job) (string, error) {
	if job == nil || len(job.Ciphertexts) == 0 {
		return "", errors.New("empty decryption job")
	}
	id := NewRequestID(job)

	l.mu.Lock()
	l.pending[id] = job
	l.order = append(l.order, id)
	auto := l.auto
	l.mu.Unlock()

	if auto {
		go l.Deliver(id)
	}
	return id, nil
}

// Pending returns the queued request ids in issuance order.
func (l *Local) Pending() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Deliver decrypts one queued job, attests the result, and invokes the
// callback. The job is removed from the queue whatever the callback returns.
func (l *Local) Deliver(requestID string) error {
	l.mu.Lock()
	job, ok := l.pending[requestID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("no pending job for request %s", requestID)
	}
	delete(l.pending, requestID)
	for i, id := range l.order {
		if id == requestID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	corrupt := l.corruptNext
	l.corruptNext = false
	l.mu.Unlock()

	payload, err := DecryptJob(l.keys, job.Kind, job.Ciphertexts)
	if err != nil {
		return err
	}
	proof, err := l.prover.Attest(requestID, payload)
	if err != nil {
		return err
	}
	if corrupt {
		var pr attest.Proof
		if err := json.Unmarshal(proof, &pr); err != nil {
			return err
		}
		pr.Tag = new(big.Int).Add(mustInt(pr.Tag), big.NewInt(1)).String()
		proof, _ = json.Marshal(pr)
	}
	return l.callback(requestID, payload, proof)
}

// DeliverAll delivers every queued job in issuance order.
func (l *Local) DeliverAll() error {
	for _, id := range l.Pending() {
		if err := l.Deliver(id); err != nil {
			return err
		}
	}
	return nil
}

func mustInt(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	if v == nil {
		v = big.NewInt(0)
	}
	return v
}

// DecryptJob decrypts a job's ciphertexts into the cleartext payload shape
// the registry expects for the kind. Shared by Local and the queue worker.
func DecryptJob(keys *Keys, kind string, ciphertexts [][]byte) ([]byte, error) {
	switch kind {
	case KindRecord:
		if len(ciphertexts) != 3 {
			return nil, fmt.Errorf("record job needs 3 ciphertexts, got %d", len(ciphertexts))
		}
		fields := make([]string, 3)
		for i, ct := range ciphertexts {
			pt, err := keys.StreamKey.Open(ct)
			if err != nil {
				return nil, fmt.Errorf("open field %d: %w", i, err)
			}
			fields[i] = string(pt)
		}
		return json.Marshal(fields)

	case KindAggregate:
		if len(ciphertexts) != 1 {
			return nil, fmt.Errorf("aggregate job needs 1 ciphertext, got %d", len(ciphertexts))
		}
		m, err := keys.Paillier.DecryptHandle(encval.Handle(ciphertexts[0]))
		if err != nil {
			return nil, fmt.Errorf("decrypt counter: %w", err)
		}
		return json.Marshal(m.Int64())

	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}
