// registry.go - The core ledger state machine.
//
// The Registry owns four structures behind one mutex: the record store, the
// request correlation table, the aggregate counters, and the reverse key
// index. Every public operation runs check-then-act sequences under that
// single lock, so the ledger behaves as a serialized, replay-safe state
// machine; the oracle round-trip is the only asynchronous boundary.

package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/foehpvf432laurasmith/paper-repo/internal/encval"
	"github.com/foehpvf432laurasmith/paper-repo/internal/keyval"
	"github.com/foehpvf432laurasmith/paper-repo/internal/oracle"
)

// ProofVerifier authenticates a callback's cleartext payload against its
// request id. The registry treats the proof as an opaque blob.
type ProofVerifier interface {
	Verify(requestID string, payload, proof []byte) error
}

// Config assembles a Registry's collaborators.
type Config struct {
	// Oracle submits decryption jobs and mints request ids. Required.
	Oracle oracle.Client
	// Verifier gates every callback. Required.
	Verifier ProofVerifier
	// Counters is the homomorphic capability for aggregate counters. Required.
	Counters encval.Adder
	// Notifier receives events. Optional.
	Notifier Notifier
	// Store mirrors state for durability and restores it on startup. Optional.
	Store keyval.Store
	// Logger logs state transitions. Optional.
	Logger *logrus.Logger
}

// Registry is the confidential paper ledger.
type Registry struct {
	mu sync.Mutex

	records map[uint64]*Record
	nextID  uint64

	requests map[string]correlation

	aggregates map[string]*Aggregate
	keys       []string          // reverse key index, append-only
	keyByHash  map[string]string // key hash -> author key

	client   oracle.Client
	verifier ProofVerifier
	counters encval.Adder
	notify   Notifier
	store    keyval.Store
	log      *logrus.Logger
}

// New builds a Registry. If cfg.Store holds previous state, it is restored.
func New(cfg Config) (*Registry, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("registry: oracle client is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("registry: proof verifier is required")
	}
	if cfg.Counters == nil {
		return nil, errors.New("registry: counter capability is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	r := &Registry{
		records:    make(map[uint64]*Record),
		nextID:     1,
		requests:   make(map[string]correlation),
		aggregates: make(map[string]*Aggregate),
		keyByHash:  make(map[string]string),
		client:     cfg.Oracle,
		verifier:   cfg.Verifier,
		counters:   cfg.Counters,
		notify:     cfg.Notifier,
		store:      cfg.Store,
		log:        cfg.Logger,
	}
	if r.store != nil {
		if err := r.restore(); err != nil {
			return nil, fmt.Errorf("registry: restore from store: %w", err)
		}
	}
	return r, nil
}

// KeyHash derives the small correlation identifier for an author key.
func KeyHash(authorKey string) string {
	sum := sha256.Sum256([]byte(authorKey))
	return hex.EncodeToString(sum[:])
}

// Submit stores a new record from three opaque ciphertext handles and returns
// its id. The handles are not validated or decrypted.
func (r *Registry) Submit(encTitle, encAbstract, encAuthor encval.Handle) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	rec := &Record{
		ID:          id,
		EncTitle:    encTitle.Clone(),
		EncAbstract: encAbstract.Clone(),
		EncAuthor:   encAuthor.Clone(),
		CreatedAt:   time.Now().UTC(),
	}
	r.records[id] = rec
	r.persistRecord(rec)
	r.persistSequence()
	r.emit(Event{Type: EventRecordCreated, RecordID: id, At: rec.CreatedAt})
	return id, nil
}

// RequestReveal opens a decryption request for a record's three fields.
// The oracle mints the request id; the registry records the correlation.
// Re-requesting a still-unrevealed record is allowed: the stale entry stays
// pending, and whichever callback is accepted first wins.
func (r *Registry) RequestReveal(ctx context.Context, recordID uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[recordID]
	if !ok {
		return "", fmt.Errorf("record %d: %w", recordID, ErrUnknownRecord)
	}
	if rec.Revealed {
		return "", fmt.Errorf("record %d: %w", recordID, ErrDuplicateReveal)
	}

	job := &oracle.Job{
		Kind: oracle.KindRecord,
		Ciphertexts: [][]byte{
			rec.EncTitle,
			rec.EncAbstract,
			rec.EncAuthor,
		},
	}
	requestID, err := r.client.RequestDecryption(ctx, job)
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}

	r.requests[requestID] = correlation{Kind: KindRecord, RecordID: recordID}
	r.persistRequest(requestID)
	r.emit(Event{Type: EventDecryptionRequested, RecordID: recordID, RequestID: requestID, At: time.Now().UTC()})
	return requestID, nil
}

// RequestAggregateReveal opens a decryption request for an author's counter.
func (r *Registry) RequestAggregateReveal(ctx context.Context, authorKey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg, ok := r.aggregates[authorKey]
	if !ok {
		return "", fmt.Errorf("author %q: %w", authorKey, ErrUnknownAuthor)
	}

	job := &oracle.Job{
		Kind:        oracle.KindAggregate,
		Ciphertexts: [][]byte{agg.Counter},
	}
	requestID, err := r.client.RequestDecryption(ctx, job)
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}

	hash := KeyHash(authorKey)
	r.requests[requestID] = correlation{Kind: KindAggregate, KeyHash: hash}
	r.persistRequest(requestID)
	r.emit(Event{Type: EventDecryptionRequested, AuthorKey: authorKey, RequestID: requestID, At: time.Now().UTC()})
	return requestID, nil
}

// Callback is the single entry point for oracle results.
//
// Order matters: the correlation entry is consumed before the proof check, so
// a request id is burned by its first callback no matter what; a failed proof
// does not reopen it. A record left stranded that way must be re-requested.
func (r *Registry) Callback(requestID string, payload, proof []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	corr, ok := r.requests[requestID]
	if !ok {
		return fmt.Errorf("request %s: %w", requestID, ErrUnknownRequest)
	}
	delete(r.requests, requestID)
	r.removeRequest(requestID)

	if err := r.verifier.Verify(requestID, payload, proof); err != nil {
		r.log.WithFields(logrus.Fields{
			"requestId": requestID,
		}).Warnf("callback rejected: %v", err)
		return fmt.Errorf("request %s: %w", requestID, ErrInvalidProof)
	}

	switch corr.Kind {
	case KindRecord:
		var fields []string
		if err := json.Unmarshal(payload, &fields); err != nil || len(fields) != 3 {
			return fmt.Errorf("request %s: %w", requestID, ErrMalformedPayload)
		}
		return r.revealLocked(corr.RecordID, fields[0], fields[1], fields[2])

	case KindAggregate:
		var count int64
		if err := json.Unmarshal(payload, &count); err != nil {
			return fmt.Errorf("request %s: %w", requestID, ErrMalformedPayload)
		}
		return r.revealAggregateLocked(corr.KeyHash, count)

	default:
		return fmt.Errorf("request %s: %w", requestID, ErrMalformedPayload)
	}
}

// revealLocked writes a record's decrypted shadow exactly once and feeds the
// author key into the aggregation ledger. Callers hold the registry lock.
func (r *Registry) revealLocked(recordID uint64, title, abstract, author string) error {
	rec, ok := r.records[recordID]
	if !ok {
		return fmt.Errorf("record %d: %w", recordID, ErrUnknownRecord)
	}
	if rec.Revealed {
		return fmt.Errorf("record %d: %w", recordID, ErrAlreadyRevealed)
	}
	rec.Title = title
	rec.Abstract = abstract
	rec.Author = author
	rec.Revealed = true
	r.persistRecord(rec)
	r.emit(Event{Type: EventRecordRevealed, RecordID: recordID, At: time.Now().UTC()})

	return r.noteRevealLocked(author)
}

// noteRevealLocked lazily creates the author's counter and increments it by
// an encrypted one. Creation and increment happen under the registry lock,
// so two reveals of a never-seen key cannot both create the counter.
func (r *Registry) noteRevealLocked(authorKey string) error {
	agg, ok := r.aggregates[authorKey]
	if !ok {
		zero, err := r.counters.Zero()
		if err != nil {
			return fmt.Errorf("counter init for %q: %w", authorKey, err)
		}
		agg = &Aggregate{Key: authorKey, Counter: zero}
		r.aggregates[authorKey] = agg
		r.keys = append(r.keys, authorKey)
		r.keyByHash[KeyHash(authorKey)] = authorKey
		r.persistKeys()
	}
	inc, err := r.counters.One()
	if err != nil {
		return fmt.Errorf("counter increment for %q: %w", authorKey, err)
	}
	sum, err := r.counters.Add(agg.Counter, inc)
	if err != nil {
		return fmt.Errorf("counter add for %q: %w", authorKey, err)
	}
	agg.Counter = sum
	r.persistAggregate(agg)
	return nil
}

// revealAggregateLocked stores a revealed counter snapshot.
func (r *Registry) revealAggregateLocked(keyHash string, count int64) error {
	authorKey, ok := r.keyByHash[keyHash]
	if !ok {
		return fmt.Errorf("key hash %s: %w", keyHash, ErrUnknownAuthor)
	}
	agg := r.aggregates[authorKey]
	agg.Count = count
	agg.CountKnown = true
	agg.RevealedAt = time.Now().UTC()
	r.persistAggregate(agg)
	r.emit(Event{Type: EventAggregateRevealed, AuthorKey: authorKey, Count: count, At: agg.RevealedAt})
	return nil
}

// GetRecord returns a copy of a record. Callers must check Revealed before
// trusting the shadow fields.
func (r *Registry) GetRecord(recordID uint64) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordID]
	if !ok {
		return nil, fmt.Errorf("record %d: %w", recordID, ErrUnknownRecord)
	}
	return rec.Clone(), nil
}

// GetAggregateHandle returns the encrypted counter for an author key, or an
// uninitialized handle if no record by that author was ever revealed.
func (r *Registry) GetAggregateHandle(authorKey string) encval.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg, ok := r.aggregates[authorKey]
	if !ok {
		return nil
	}
	return agg.Counter.Clone()
}

// GetAggregateCount returns the latest revealed counter snapshot for an
// author key. ok is false if the counter was never revealed.
func (r *Registry) GetAggregateCount(authorKey string) (count int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg, exists := r.aggregates[authorKey]
	if !exists || !agg.CountKnown {
		return 0, false
	}
	return agg.Count, true
}

// Authors returns the reverse key index: every author key ever observed
// during a reveal, in observation order.
func (r *Registry) Authors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// NumRecords returns the number of records ever submitted.
func (r *Registry) NumRecords() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// PendingRequests returns the number of open correlation entries.
func (r *Registry) PendingRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// emit dispatches an event to the notifier and the log. Called under lock.
func (r *Registry) emit(ev Event) {
	r.log.WithFields(logrus.Fields{
		"event":     ev.Type,
		"recordId":  ev.RecordID,
		"requestId": ev.RequestID,
		"authorKey": ev.AuthorKey,
	}).Debug("ledger event")
	if r.notify != nil {
		r.notify(ev)
	}
}

// recordKey builds the store key for a record id.
func recordKey(id uint64) string {
	return keyRecordPrefix + strconv.FormatUint(id, 10)
}
