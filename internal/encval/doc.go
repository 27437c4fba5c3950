// Package encval implements the encrypted value handles held by the registry.
//
// Overview:
//   - Handle is an opaque reference to ciphertext bytes; the registry stores,
//     forwards and homomorphically combines handles without ever decrypting them
//   - The additive scheme (Paillier over big.Int) backs the per-author counters:
//     ciphertext multiplication modulo n^2 adds plaintexts
//   - The stream scheme (MiMC mask chain) seals the record string fields; only
//     the decryption oracle holds the stream key
//
// Security Model:
//   - All randomness is generated using crypto/rand
//   - The registry side only ever needs the Paillier public key (encrypting
//     zero and one, adding ciphertexts); decryption stays with the oracle
//
// WARNING: This package is for research and educational purposes. Use with
// caution in production environments.
package encval
