package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/foehpvf432laurasmith/paper-repo/internal/encval"
	"github.com/foehpvf432laurasmith/paper-repo/internal/keyval"
	"github.com/foehpvf432laurasmith/paper-repo/internal/oracle"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// scriptedOracle mints sequential request ids and remembers each job so the
// test can play the oracle's role by hand.
type scriptedOracle struct {
	next int
	jobs map[string]*oracle.Job
}

func newScriptedOracle() *scriptedOracle {
	return &scriptedOracle{jobs: make(map[string]*oracle.Job)}
}

func (o *scriptedOracle) RequestDecryption(_ context.Context, job *oracle.Job) (string, error) {
	o.next++
	id := fmt.Sprintf("req-%03d", o.next)
	o.jobs[id] = job
	return id, nil
}

// stubVerifier accepts every proof unless told otherwise.
type stubVerifier struct {
	rejectNext bool
}

func (v *stubVerifier) Verify(requestID string, payload, proof []byte) error {
	if v.rejectNext {
		v.rejectNext = false
		return errors.New("tag mismatch")
	}
	return nil
}

type harness struct {
	reg    *Registry
	orc    *scriptedOracle
	ver    *stubVerifier
	sk     *encval.PrivateKey
	events []Event
}

func newHarness(t *testing.T, store keyval.Store) *harness {
	t.Helper()
	sk, err := encval.GeneratePaillierKey(512)
	if err != nil {
		t.Fatalf("paillier keygen: %v", err)
	}
	h := &harness{orc: newScriptedOracle(), ver: &stubVerifier{}, sk: sk}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	reg, err := New(Config{
		Oracle:   h.orc,
		Verifier: h.ver,
		Counters: sk.Public(),
		Notifier: func(ev Event) { h.events = append(h.events, ev) },
		Store:    store,
		Logger:   log,
	})
	if err != nil {
		t.Fatalf("registry init: %v", err)
	}
	h.reg = reg
	return h
}

// submit stores a record with throwaway ciphertext handles.
func (h *harness) submit(t *testing.T, tag string) uint64 {
	t.Helper()
	id, err := h.reg.Submit(
		[]byte("ct-title-"+tag),
		[]byte("ct-abstract-"+tag),
		[]byte("ct-author-"+tag),
	)
	if err != nil {
		t.Fatalf("submit %s: %v", tag, err)
	}
	return id
}

// reveal runs the full request/callback round for a record.
func (h *harness) reveal(t *testing.T, recordID uint64, title, abstract, author string) string {
	t.Helper()
	reqID, err := h.reg.RequestReveal(context.Background(), recordID)
	if err != nil {
		t.Fatalf("request reveal of %d: %v", recordID, err)
	}
	h.callback(t, reqID, title, abstract, author)
	return reqID
}

func (h *harness) callback(t *testing.T, reqID, title, abstract, author string) {
	t.Helper()
	payload, _ := json.Marshal([]string{title, abstract, author})
	if err := h.reg.Callback(reqID, payload, []byte("proof")); err != nil {
		t.Fatalf("callback %s: %v", reqID, err)
	}
}

// counterValue decrypts an author's aggregate counter.
func (h *harness) counterValue(t *testing.T, author string) int64 {
	t.Helper()
	handle := h.reg.GetAggregateHandle(author)
	if !handle.IsInitialized() {
		t.Fatalf("counter for %q not initialized", author)
	}
	v, err := h.sk.DecryptHandle(handle)
	if err != nil {
		t.Fatalf("decrypt counter for %q: %v", author, err)
	}
	return v.Int64()
}

// ---------------------------------------------------------------------------
// Submission and ids
// ---------------------------------------------------------------------------

func TestSubmitAssignsSequentialIDs(t *testing.T) {
	h := newHarness(t, nil)

	for want := uint64(1); want <= 3; want++ {
		got := h.submit(t, fmt.Sprintf("p%d", want))
		if got != want {
			t.Fatalf("record id = %d, want %d", got, want)
		}
	}
	if n := h.reg.NumRecords(); n != 3 {
		t.Fatalf("NumRecords = %d, want 3", n)
	}
}

func TestSubmittedRecordStaysOpaque(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, "p1")

	rec, err := h.reg.GetRecord(id)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Revealed {
		t.Fatal("fresh record marked revealed")
	}
	if rec.Title != "" || rec.Abstract != "" || rec.Author != "" {
		t.Fatal("fresh record carries cleartext shadow fields")
	}
	if string(rec.EncTitle) != "ct-title-p1" {
		t.Fatalf("ciphertext handle altered: %q", rec.EncTitle)
	}
}

func TestGetRecordReturnsACopy(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, "p1")

	rec, _ := h.reg.GetRecord(id)
	rec.Title = "tampered"
	rec.EncTitle[0] = 'X'

	again, _ := h.reg.GetRecord(id)
	if again.Title != "" || string(again.EncTitle) != "ct-title-p1" {
		t.Fatal("mutating a returned record leaked into the ledger")
	}
}

// ---------------------------------------------------------------------------
// Reveal lifecycle
// ---------------------------------------------------------------------------

func TestRevealRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, "p1")

	h.reveal(t, id, "Paper A", "Abs A", "alice")

	rec, _ := h.reg.GetRecord(id)
	if !rec.Revealed {
		t.Fatal("record not marked revealed")
	}
	if rec.Title != "Paper A" || rec.Abstract != "Abs A" || rec.Author != "alice" {
		t.Fatalf("shadow fields = %q/%q/%q", rec.Title, rec.Abstract, rec.Author)
	}
	if got := h.counterValue(t, "alice"); got != 1 {
		t.Fatalf("alice counter = %d, want 1", got)
	}
}

func TestRevealRequestForUnknownRecord(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.reg.RequestReveal(context.Background(), 99); !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("err = %v, want ErrUnknownRecord", err)
	}
}

func TestRevealedRecordCannotBeReRequested(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, "p1")
	h.reveal(t, id, "Paper A", "Abs A", "alice")

	if _, err := h.reg.RequestReveal(context.Background(), id); !errors.Is(err, ErrDuplicateReveal) {
		t.Fatalf("err = %v, want ErrDuplicateReveal", err)
	}
}

func TestCallbackReplayIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, "p1")
	reqID := h.reveal(t, id, "Paper A", "Abs A", "alice")

	payload, _ := json.Marshal([]string{"Paper A", "Abs A", "alice"})
	err := h.reg.Callback(reqID, payload, []byte("proof"))
	if !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("replay err = %v, want ErrUnknownRequest", err)
	}
	if got := h.counterValue(t, "alice"); got != 1 {
		t.Fatalf("replay bumped counter to %d", got)
	}
}

func TestCallbackForUnknownRequest(t *testing.T) {
	h := newHarness(t, nil)
	err := h.reg.Callback("req-nonexistent", []byte(`["a","b","c"]`), nil)
	if !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("err = %v, want ErrUnknownRequest", err)
	}
}

// Two overlapping requests for the same record: the first accepted callback
// wins, the second burns its request id and reports the record as revealed.
func TestStaleRequestLosesRace(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, "p1")

	first, err := h.reg.RequestReveal(context.Background(), id)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := h.reg.RequestReveal(context.Background(), id)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if first == second {
		t.Fatal("oracle minted the same id twice")
	}

	h.callback(t, second, "Paper A", "Abs A", "alice")

	payload, _ := json.Marshal([]string{"Paper A", "Abs A", "alice"})
	if err := h.reg.Callback(first, payload, []byte("proof")); !errors.Is(err, ErrAlreadyRevealed) {
		t.Fatalf("stale callback err = %v, want ErrAlreadyRevealed", err)
	}
	if got := h.counterValue(t, "alice"); got != 1 {
		t.Fatalf("stale callback bumped counter to %d", got)
	}
	if n := h.reg.PendingRequests(); n != 0 {
		t.Fatalf("PendingRequests = %d after both callbacks", n)
	}
}

func TestFailedProofConsumesRequestWithoutMutation(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, "p1")

	reqID, err := h.reg.RequestReveal(context.Background(), id)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	h.ver.rejectNext = true
	payload, _ := json.Marshal([]string{"Paper A", "Abs A", "alice"})
	if err := h.reg.Callback(reqID, payload, []byte("bad")); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("err = %v, want ErrInvalidProof", err)
	}

	rec, _ := h.reg.GetRecord(id)
	if rec.Revealed {
		t.Fatal("rejected callback revealed the record")
	}
	if h.reg.GetAggregateHandle("alice") != nil {
		t.Fatal("rejected callback created a counter")
	}

	// The request id is burned; the same callback cannot be retried.
	if err := h.reg.Callback(reqID, payload, []byte("proof")); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("retry err = %v, want ErrUnknownRequest", err)
	}

	// A fresh request still works.
	h.reveal(t, id, "Paper A", "Abs A", "alice")
	if got := h.counterValue(t, "alice"); got != 1 {
		t.Fatalf("alice counter = %d, want 1", got)
	}
}

func TestMalformedPayloadIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, "p1")

	cases := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("not-json")},
		{"wrong arity", []byte(`["only","two"]`)},
		{"wrong type", []byte(`42`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reqID, err := h.reg.RequestReveal(context.Background(), id)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if err := h.reg.Callback(reqID, tc.payload, []byte("proof")); !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("err = %v, want ErrMalformedPayload", err)
			}
			rec, _ := h.reg.GetRecord(id)
			if rec.Revealed {
				t.Fatal("malformed payload revealed the record")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

func TestAggregationAcrossAuthors(t *testing.T) {
	h := newHarness(t, nil)

	p1 := h.submit(t, "p1")
	p2 := h.submit(t, "p2")
	p3 := h.submit(t, "p3")

	// Reveal out of submission order.
	h.reveal(t, p2, "Paper B", "Abs B", "alice")
	h.reveal(t, p3, "Paper C", "Abs C", "bob")
	h.reveal(t, p1, "Paper A", "Abs A", "alice")

	if got := h.counterValue(t, "alice"); got != 2 {
		t.Fatalf("alice counter = %d, want 2", got)
	}
	if got := h.counterValue(t, "bob"); got != 1 {
		t.Fatalf("bob counter = %d, want 1", got)
	}

	authors := h.reg.Authors()
	if len(authors) != 2 || authors[0] != "alice" || authors[1] != "bob" {
		t.Fatalf("authors = %v, want [alice bob] in observation order", authors)
	}
}

func TestAggregateHandleForUnknownAuthor(t *testing.T) {
	h := newHarness(t, nil)
	if h.reg.GetAggregateHandle("carol").IsInitialized() {
		t.Fatal("unknown author has an initialized counter")
	}
	if _, ok := h.reg.GetAggregateCount("carol"); ok {
		t.Fatal("unknown author has a revealed count")
	}
}

func TestAggregateRevealRequiresKnownAuthor(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.reg.RequestAggregateReveal(context.Background(), "carol"); !errors.Is(err, ErrUnknownAuthor) {
		t.Fatalf("err = %v, want ErrUnknownAuthor", err)
	}
}

func TestAggregateRevealRoundTrip(t *testing.T) {
	h := newHarness(t, nil)

	p1 := h.submit(t, "p1")
	p2 := h.submit(t, "p2")
	h.reveal(t, p1, "Paper A", "Abs A", "alice")
	h.reveal(t, p2, "Paper B", "Abs B", "alice")

	reqID, err := h.reg.RequestAggregateReveal(context.Background(), "alice")
	if err != nil {
		t.Fatalf("aggregate request: %v", err)
	}
	job := h.orc.jobs[reqID]
	if job.Kind != oracle.KindAggregate || len(job.Ciphertexts) != 1 {
		t.Fatalf("aggregate job shape: kind=%s n=%d", job.Kind, len(job.Ciphertexts))
	}

	// Decrypt the shipped counter as the oracle would.
	v, err := h.sk.DecryptHandle(job.Ciphertexts[0])
	if err != nil {
		t.Fatalf("decrypt shipped counter: %v", err)
	}
	payload, _ := json.Marshal(v.Int64())
	if err := h.reg.Callback(reqID, payload, []byte("proof")); err != nil {
		t.Fatalf("aggregate callback: %v", err)
	}

	count, ok := h.reg.GetAggregateCount("alice")
	if !ok || count != 2 {
		t.Fatalf("revealed count = %d (known=%v), want 2", count, ok)
	}

	// The snapshot is stale by design: a later reveal does not touch it
	// until the counter is revealed again.
	p3 := h.submit(t, "p3")
	h.reveal(t, p3, "Paper C", "Abs C", "alice")
	count, _ = h.reg.GetAggregateCount("alice")
	if count != 2 {
		t.Fatalf("snapshot moved to %d without a new reveal", count)
	}
	if got := h.counterValue(t, "alice"); got != 3 {
		t.Fatalf("live counter = %d, want 3", got)
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestEventStream(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, "p1")
	h.reveal(t, id, "Paper A", "Abs A", "alice")

	var types []string
	for _, ev := range h.events {
		types = append(types, ev.Type)
	}
	want := []string{EventRecordCreated, EventDecryptionRequested, EventRecordRevealed}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func TestRestoreFromStore(t *testing.T) {
	store := keyval.NewMemoryStore()
	h := newHarness(t, store)

	p1 := h.submit(t, "p1")
	p2 := h.submit(t, "p2")
	h.reveal(t, p1, "Paper A", "Abs A", "alice")
	pending, err := h.reg.RequestReveal(context.Background(), p2)
	if err != nil {
		t.Fatalf("pending request: %v", err)
	}

	// Rebuild a registry over the same store.
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	reg2, err := New(Config{
		Oracle:   h.orc,
		Verifier: h.ver,
		Counters: h.sk.Public(),
		Store:    store,
		Logger:   log,
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	rec, err := reg2.GetRecord(p1)
	if err != nil || !rec.Revealed || rec.Author != "alice" {
		t.Fatalf("restored record: %+v err=%v", rec, err)
	}
	if n := reg2.PendingRequests(); n != 1 {
		t.Fatalf("restored PendingRequests = %d, want 1", n)
	}

	// Ids keep counting past the restored sequence.
	p3, err := reg2.Submit([]byte("t"), []byte("a"), []byte("k"))
	if err != nil {
		t.Fatalf("submit after restore: %v", err)
	}
	if p3 != 3 {
		t.Fatalf("post-restore id = %d, want 3", p3)
	}

	// The pending correlation still resolves.
	payload, _ := json.Marshal([]string{"Paper B", "Abs B", "bob"})
	if err := reg2.Callback(pending, payload, []byte("proof")); err != nil {
		t.Fatalf("callback after restore: %v", err)
	}
	handle := reg2.GetAggregateHandle("bob")
	v, err := h.sk.DecryptHandle(handle)
	if err != nil || v.Int64() != 1 {
		t.Fatalf("bob counter after restore = %v err=%v", v, err)
	}
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	p1 := h.submit(t, "p1")
	h.reveal(t, p1, "Paper A", "Abs A", "alice")

	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := h.reg.SaveToFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	reg2, err := LoadFromFile(path, Config{
		Oracle:   h.orc,
		Verifier: h.ver,
		Counters: h.sk.Public(),
		Logger:   log,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	rec, err := reg2.GetRecord(p1)
	if err != nil || rec.Title != "Paper A" {
		t.Fatalf("loaded record: %+v err=%v", rec, err)
	}
	handle := reg2.GetAggregateHandle("alice")
	v, err := h.sk.DecryptHandle(handle)
	if err != nil || v.Int64() != 1 {
		t.Fatalf("loaded counter = %v err=%v", v, err)
	}
	authors := reg2.Authors()
	if len(authors) != 1 || authors[0] != "alice" {
		t.Fatalf("loaded authors = %v", authors)
	}
}
