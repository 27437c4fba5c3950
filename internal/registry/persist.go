// persist.go - Durable state for the registry.
//
// Two paths: JSON snapshot files (save/load the whole ledger at once) and a
// write-through mirror into a key-value store, restored on startup. The store
// is a mirror of in-memory state, not the source of truth during operation;
// a failed mirror write is logged and does not fail the ledger operation.

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/foehpvf432laurasmith/paper-repo/internal/keyval"
)

// Store key namespace.
const (
	keyRecordPrefix    = "REC::"
	keyRequestPrefix   = "REQ::"
	keyAggregatePrefix = "AGG::"
	keyAuthorIndex     = "KEYS"
	keySequence        = "SEQ"
)

func (r *Registry) persistRecord(rec *Record) {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err == nil {
		err = r.store.Put(recordKey(rec.ID), data)
	}
	if err != nil {
		r.log.Warnf("mirror write for record %d failed: %v", rec.ID, err)
	}
}

func (r *Registry) persistRequest(requestID string) {
	if r.store == nil {
		return
	}
	corr := r.requests[requestID]
	data, err := json.Marshal(corr)
	if err == nil {
		err = r.store.Put(keyRequestPrefix+requestID, data)
	}
	if err != nil {
		r.log.Warnf("mirror write for request %s failed: %v", requestID, err)
	}
}

func (r *Registry) removeRequest(requestID string) {
	if r.store == nil {
		return
	}
	if err := r.store.Delete(keyRequestPrefix + requestID); err != nil {
		r.log.Warnf("mirror delete for request %s failed: %v", requestID, err)
	}
}

func (r *Registry) persistAggregate(agg *Aggregate) {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(agg)
	if err == nil {
		err = r.store.Put(keyAggregatePrefix+KeyHash(agg.Key), data)
	}
	if err != nil {
		r.log.Warnf("mirror write for aggregate %q failed: %v", agg.Key, err)
	}
}

func (r *Registry) persistKeys() {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(r.keys)
	if err == nil {
		err = r.store.Put(keyAuthorIndex, data)
	}
	if err != nil {
		r.log.Warnf("mirror write for author index failed: %v", err)
	}
}

func (r *Registry) persistSequence() {
	if r.store == nil {
		return
	}
	if err := r.store.Put(keySequence, []byte(strconv.FormatUint(r.nextID, 10))); err != nil {
		r.log.Warnf("mirror write for sequence failed: %v", err)
	}
}

// restore rebuilds in-memory state from the store. Called once from New.
func (r *Registry) restore() error {
	if data, err := r.store.Get(keySequence); err == nil {
		next, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt sequence entry: %w", err)
		}
		r.nextID = next
	} else if !errors.Is(err, keyval.ErrNotFound) {
		return err
	}

	recs, err := r.store.List(keyRecordPrefix)
	if err != nil {
		return err
	}
	for key, data := range recs {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("corrupt record entry %s: %w", key, err)
		}
		r.records[rec.ID] = &rec
		if rec.ID >= r.nextID {
			r.nextID = rec.ID + 1
		}
	}

	reqs, err := r.store.List(keyRequestPrefix)
	if err != nil {
		return err
	}
	for key, data := range reqs {
		var corr correlation
		if err := json.Unmarshal(data, &corr); err != nil {
			return fmt.Errorf("corrupt request entry %s: %w", key, err)
		}
		r.requests[strings.TrimPrefix(key, keyRequestPrefix)] = corr
	}

	if data, err := r.store.Get(keyAuthorIndex); err == nil {
		if err := json.Unmarshal(data, &r.keys); err != nil {
			return fmt.Errorf("corrupt author index: %w", err)
		}
	} else if !errors.Is(err, keyval.ErrNotFound) {
		return err
	}
	for _, key := range r.keys {
		r.keyByHash[KeyHash(key)] = key
	}

	aggs, err := r.store.List(keyAggregatePrefix)
	if err != nil {
		return err
	}
	for key, data := range aggs {
		var agg Aggregate
		if err := json.Unmarshal(data, &agg); err != nil {
			return fmt.Errorf("corrupt aggregate entry %s: %w", key, err)
		}
		r.aggregates[agg.Key] = &agg
	}
	return nil
}

// snapshot is the JSON file layout of the whole ledger.
type snapshot struct {
	NextID     uint64                 `json:"nextId"`
	Records    []*Record              `json:"records"`
	Requests   map[string]correlation `json:"requests"`
	Aggregates []*Aggregate           `json:"aggregates"`
	Keys       []string               `json:"keys"`
}

// SaveToFile saves the ledger to a JSON file. Overwrites the file if it
// exists.
func (r *Registry) SaveToFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := snapshot{
		NextID:   r.nextID,
		Requests: r.requests,
		Keys:     r.keys,
	}
	for _, rec := range r.records {
		snap.Records = append(snap.Records, rec)
	}
	for _, key := range r.keys {
		snap.Aggregates = append(snap.Aggregates, r.aggregates[key])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// LoadFromFile restores ledger state from a JSON snapshot into a fresh
// registry built from cfg. Returns an error if the file is invalid.
func LoadFromFile(path string, cfg Config) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, err
	}

	store := cfg.Store
	cfg.Store = nil // restore from the snapshot, not the mirror
	r, err := New(cfg)
	if err != nil {
		return nil, err
	}
	r.store = store

	if snap.NextID > 0 {
		r.nextID = snap.NextID
	}
	for _, rec := range snap.Records {
		r.records[rec.ID] = rec
		if rec.ID >= r.nextID {
			r.nextID = rec.ID + 1
		}
	}
	if snap.Requests != nil {
		r.requests = snap.Requests
	}
	r.keys = snap.Keys
	for _, key := range r.keys {
		r.keyByHash[KeyHash(key)] = key
	}
	for _, agg := range snap.Aggregates {
		if agg != nil {
			r.aggregates[agg.Key] = agg
		}
	}
	return r, nil
}
