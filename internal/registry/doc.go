// Package registry implements the confidential paper registry ledger.
//
// Overview:
//   - Records are submitted with their title, abstract and author identity as
//     opaque ciphertext handles; a record's plaintext shadow stays empty until
//     an explicit reveal
//   - Reveals go through an external decryption oracle: the registry opens a
//     correlation entry for the oracle-minted request id, and accepts the
//     result only after verifying the attestation proof that accompanies it
//   - Revealed author identities feed per-author encrypted counters that are
//     incremented homomorphically and can themselves be revealed on demand
//
// Correctness model:
//   - reveal is a once-only transition per record; replayed or late callbacks
//     fail without touching state
//   - every correlation entry is consumed at most once, so a callback cannot
//     be applied twice
//   - all core state lives behind a single mutex; the oracle round-trip is
//     the only asynchronous boundary, and callbacks may arrive in any order
//
// Usage:
//   - Build a Registry with New, submit handles, request reveals, and feed
//     oracle results into Callback
//   - Use NewServer for the REST surface and the *To/*From helpers as client
//
// WARNING: This package is for research and educational purposes. Use with
// caution in production environments.
package registry
