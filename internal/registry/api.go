// api.go - REST surface for the registry boundary operations.
//
// Exposes submit, reveal requests, the oracle callback, and the read
// endpoints. The package-level *To/*From helpers are the matching HTTP
// client, used by the demo driver and by the out-of-process reveal worker.
//
// WARNING: All REST endpoints must validate input and handle errors securely.

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/foehpvf432laurasmith/paper-repo/internal/encval"
)

// SubmitRequest is the REST request for submitting an encrypted record.
// Ciphertext bytes travel base64-encoded, as encoding/json does for []byte.
type SubmitRequest struct {
	EncTitle    []byte `json:"encTitle"`
	EncAbstract []byte `json:"encAbstract"`
	EncAuthor   []byte `json:"encAuthor"`
}

// SubmitResponse carries the allocated record id.
type SubmitResponse struct {
	RecordID uint64 `json:"recordId"`
}

// RevealRequest asks for a record's decryption.
type RevealRequest struct {
	RecordID uint64 `json:"recordId"`
}

// AggregateRevealRequest asks for an author counter's decryption.
type AggregateRevealRequest struct {
	Author string `json:"author"`
}

// RevealResponse carries the oracle-minted request id.
type RevealResponse struct {
	RequestID string `json:"requestId"`
}

// CallbackRequest is the oracle's decryption result.
type CallbackRequest struct {
	RequestID string `json:"requestId"`
	Payload   []byte `json:"payload"`
	Proof     []byte `json:"proof"`
}

// AggregateResponse is the read view of an author counter.
type AggregateResponse struct {
	Author      string `json:"author"`
	Counter     []byte `json:"counter,omitempty"`
	Initialized bool   `json:"initialized"`
	Count       int64  `json:"count,omitempty"`
	CountKnown  bool   `json:"countKnown"`
}

// Server serves the registry over HTTP.
type Server struct {
	reg *Registry
	log *logrus.Logger
}

// NewServer wraps a registry.
func NewServer(reg *Registry, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{reg: reg, log: log}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/reveal", s.handleReveal)
	mux.HandleFunc("/callback", s.handleCallback)
	mux.HandleFunc("/record", s.handleRecord)
	mux.HandleFunc("/aggregate", s.handleAggregate)
	mux.HandleFunc("/aggregate/reveal", s.handleAggregateReveal)
	mux.HandleFunc("/authors", s.handleAuthors)
	return mux
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	id, err := s.reg.Submit(req.EncTitle, req.EncAbstract, req.EncAuthor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, SubmitResponse{RecordID: id})
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req RevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	requestID, err := s.reg.RequestReveal(r.Context(), req.RecordID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, RevealResponse{RequestID: requestID})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.reg.Callback(req.RequestID, req.Payload, req.Proof); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid record id", http.StatusBadRequest)
		return
	}
	rec, err := s.reg.GetRecord(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("author")
	if author == "" {
		http.Error(w, "missing author", http.StatusBadRequest)
		return
	}
	handle := s.reg.GetAggregateHandle(author)
	count, known := s.reg.GetAggregateCount(author)
	writeJSON(w, AggregateResponse{
		Author:      author,
		Counter:     handle,
		Initialized: handle.IsInitialized(),
		Count:       count,
		CountKnown:  known,
	})
}

func (s *Server) handleAggregateReveal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req AggregateRevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	requestID, err := s.reg.RequestAggregateReveal(r.Context(), req.Author)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, RevealResponse{RequestID: requestID})
}

func (s *Server) handleAuthors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.reg.Authors())
}

// writeError maps protocol errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownRecord), errors.Is(err, ErrUnknownRequest), errors.Is(err, ErrUnknownAuthor):
		status = http.StatusNotFound
	case errors.Is(err, ErrDuplicateReveal), errors.Is(err, ErrAlreadyRevealed):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidProof):
		status = http.StatusForbidden
	case errors.Is(err, ErrMalformedPayload):
		status = http.StatusBadRequest
	}
	s.log.WithFields(logrus.Fields{"status": status}).Debugf("request failed: %v", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// --- HTTP client helpers ---

// SubmitRecordTo submits an encrypted record to a registry endpoint.
func SubmitRecordTo(addr string, encTitle, encAbstract, encAuthor encval.Handle) (uint64, error) {
	var resp SubmitResponse
	err := postJSON(addr+"/submit", SubmitRequest{
		EncTitle:    encTitle,
		EncAbstract: encAbstract,
		EncAuthor:   encAuthor,
	}, &resp)
	return resp.RecordID, err
}

// RequestRevealTo asks a registry endpoint to open a decryption request.
func RequestRevealTo(addr string, recordID uint64) (string, error) {
	var resp RevealResponse
	err := postJSON(addr+"/reveal", RevealRequest{RecordID: recordID}, &resp)
	return resp.RequestID, err
}

// RequestAggregateRevealTo asks for an author counter reveal.
func RequestAggregateRevealTo(addr string, author string) (string, error) {
	var resp RevealResponse
	err := postJSON(addr+"/aggregate/reveal", AggregateRevealRequest{Author: author}, &resp)
	return resp.RequestID, err
}

// SendCallbackTo delivers an oracle result to a registry endpoint.
func SendCallbackTo(addr string, requestID string, payload, proof []byte) error {
	return postJSON(addr+"/callback", CallbackRequest{
		RequestID: requestID,
		Payload:   payload,
		Proof:     proof,
	}, nil)
}

// FetchRecordFrom reads a record from a registry endpoint.
func FetchRecordFrom(addr string, recordID uint64) (*Record, error) {
	resp, err := http.Get(fmt.Sprintf("%s/record?id=%d", addr, recordID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("registry returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func postJSON(url string, req interface{}, out interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registry returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
