package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestServer(t *testing.T) (*harness, *httptest.Server) {
	t.Helper()
	h := newHarness(t, nil)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	srv := httptest.NewServer(NewServer(h.reg, log).Handler())
	t.Cleanup(srv.Close)
	return h, srv
}

func TestRESTRoundTrip(t *testing.T) {
	h, srv := newTestServer(t)

	id, err := SubmitRecordTo(srv.URL, []byte("ct-t"), []byte("ct-a"), []byte("ct-k"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != 1 {
		t.Fatalf("record id = %d, want 1", id)
	}

	reqID, err := RequestRevealTo(srv.URL, id)
	if err != nil {
		t.Fatalf("reveal request: %v", err)
	}
	payload, _ := json.Marshal([]string{"Paper A", "Abs A", "alice"})
	if err := SendCallbackTo(srv.URL, reqID, payload, []byte("proof")); err != nil {
		t.Fatalf("callback: %v", err)
	}

	rec, err := FetchRecordFrom(srv.URL, id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !rec.Revealed || rec.Title != "Paper A" || rec.Author != "alice" {
		t.Fatalf("fetched record: %+v", rec)
	}

	if _, err := RequestAggregateRevealTo(srv.URL, "alice"); err != nil {
		t.Fatalf("aggregate reveal request: %v", err)
	}

	resp, err := http.Get(srv.URL + "/aggregate?author=alice")
	if err != nil {
		t.Fatalf("aggregate get: %v", err)
	}
	defer resp.Body.Close()
	var agg AggregateResponse
	if err := json.NewDecoder(resp.Body).Decode(&agg); err != nil {
		t.Fatalf("decode aggregate: %v", err)
	}
	if !agg.Initialized || agg.CountKnown {
		t.Fatalf("aggregate view = %+v", agg)
	}
	v, err := h.sk.DecryptHandle(agg.Counter)
	if err != nil || v.Int64() != 1 {
		t.Fatalf("counter over REST = %v err=%v", v, err)
	}

	var authors []string
	resp2, err := http.Get(srv.URL + "/authors")
	if err != nil {
		t.Fatalf("authors get: %v", err)
	}
	defer resp2.Body.Close()
	if err := json.NewDecoder(resp2.Body).Decode(&authors); err != nil {
		t.Fatalf("decode authors: %v", err)
	}
	if len(authors) != 1 || authors[0] != "alice" {
		t.Fatalf("authors over REST = %v", authors)
	}
}

func TestRESTErrorMapping(t *testing.T) {
	_, srv := newTestServer(t)

	if _, err := FetchRecordFrom(srv.URL, 42); err == nil {
		t.Fatal("fetching an unknown record succeeded")
	}

	// Unknown targets map to 404.
	if _, err := RequestRevealTo(srv.URL, 42); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("unknown record err = %v, want 404", err)
	}
	err := SendCallbackTo(srv.URL, "req-nope", []byte(`["a","b","c"]`), nil)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("unknown request err = %v, want 404", err)
	}

	// Method checks.
	resp, err := http.Get(srv.URL + "/submit")
	if err != nil {
		t.Fatalf("GET /submit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /submit status = %d, want 405", resp.StatusCode)
	}
}
