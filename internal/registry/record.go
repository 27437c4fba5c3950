// record.go - Record and aggregate counter types.
//
// A Record holds three ciphertext handles and a plaintext shadow that is
// writable exactly once. An Aggregate holds one encrypted per-author counter
// plus the latest revealed snapshot of its value.

package registry

import (
	"time"

	"github.com/foehpvf432laurasmith/paper-repo/internal/encval"
)

// Record is one confidential paper entry. Ids are monotonically increasing,
// start at 1, and are never reused; records are never deleted.
type Record struct {
	ID          uint64        `json:"id"`
	EncTitle    encval.Handle `json:"encTitle"`
	EncAbstract encval.Handle `json:"encAbstract"`
	EncAuthor   encval.Handle `json:"encAuthor"`
	CreatedAt   time.Time     `json:"createdAt"`

	// Decrypted shadow. Empty until Revealed flips; written exactly once.
	Title    string `json:"title,omitempty"`
	Abstract string `json:"abstract,omitempty"`
	Author   string `json:"author,omitempty"`
	Revealed bool   `json:"revealed"`
}

// Clone returns an independent copy; GetRecord hands these out so callers
// cannot mutate ledger state.
func (r *Record) Clone() *Record {
	out := *r
	out.EncTitle = r.EncTitle.Clone()
	out.EncAbstract = r.EncAbstract.Clone()
	out.EncAuthor = r.EncAuthor.Clone()
	return &out
}

// Aggregate is the encrypted running counter for one author key, created
// lazily the first time the key is observed during a reveal.
type Aggregate struct {
	Key     string        `json:"key"`
	Counter encval.Handle `json:"counter"`

	// Latest revealed snapshot of the counter. The counter keeps moving as
	// more records are revealed, so a snapshot is dated, not final.
	Count      int64     `json:"count,omitempty"`
	CountKnown bool      `json:"countKnown"`
	RevealedAt time.Time `json:"revealedAt,omitempty"`
}

// Kind discriminates what a correlation entry targets.
type Kind uint8

const (
	// KindRecord marks a request for a record's field decryption.
	KindRecord Kind = iota + 1
	// KindAggregate marks a request for an aggregate counter decryption.
	KindAggregate
)

// correlation maps an outstanding oracle request to its target. Single-use.
type correlation struct {
	Kind     Kind   `json:"kind"`
	RecordID uint64 `json:"recordId,omitempty"`
	KeyHash  string `json:"keyHash,omitempty"`
}
