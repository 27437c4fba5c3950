package registry

import "errors"

// Protocol errors. Every failure is scoped to a single record or request and
// leaves state unchanged; nothing here is fatal to the registry as a whole.
var (
	// ErrAlreadyRevealed rejects a second reveal of the same record.
	ErrAlreadyRevealed = errors.New("record already revealed")
	// ErrUnknownRequest rejects a callback whose request id was never opened
	// or has already been consumed.
	ErrUnknownRequest = errors.New("unknown or consumed request id")
	// ErrDuplicateReveal rejects a decryption request for a record that is
	// already revealed, before any oracle round-trip is wasted.
	ErrDuplicateReveal = errors.New("decryption request refused: record already revealed")
	// ErrUnknownAuthor rejects an aggregate operation for an author with no
	// revealed records.
	ErrUnknownAuthor = errors.New("no aggregate counter for author")
	// ErrInvalidProof rejects a callback whose attestation does not verify.
	// The correlation entry stays consumed.
	ErrInvalidProof = errors.New("decryption proof verification failed")
	// ErrMalformedPayload rejects a callback whose cleartext payload does not
	// decode into the shape expected for the request kind.
	ErrMalformedPayload = errors.New("malformed callback payload")
	// ErrUnknownRecord rejects operations on a nonexistent record id.
	ErrUnknownRecord = errors.New("unknown record id")
)
