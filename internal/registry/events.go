package registry

import "time"

// Event types emitted for external observers (indexers, dashboards).
const (
	EventRecordCreated       = "RecordCreated"
	EventDecryptionRequested = "DecryptionRequested"
	EventRecordRevealed      = "RecordRevealed"
	EventAggregateRevealed   = "AggregateRevealed"
)

// Event is a notification about a state change. Fields are populated
// depending on Type.
type Event struct {
	Type      string    `json:"type"`
	RecordID  uint64    `json:"recordId,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	AuthorKey string    `json:"authorKey,omitempty"`
	Count     int64     `json:"count,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier observes events. It is invoked synchronously while the registry
// lock is held, so observers must not call back into the registry.
type Notifier func(Event)
