// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package cryptoapi declares the `crypto` capability spec.md §1 carves out
// of the wallet engine's scope: curve arithmetic, key-image derivation, and
// the stream cipher backing the key file. The engine only ever calls
// through the Capability interface; this package ships no production
// implementation of it; see testcrypto for a reference implementation used
// by this module's own tests.
package cryptoapi

import "github.com/hmel/boolberry/er"

// PublicKey, SecretKey and KeyImage are opaque 32-byte curve points/scalars.
// The wallet engine never interprets their bytes; it only compares,
// stores, and hands them back to the Capability that produced them.
type PublicKey [32]byte
type SecretKey [32]byte
type KeyImage [32]byte

func (k KeyImage) String() string  { return hexString(k[:]) }
func (k PublicKey) String() string { return hexString(k[:]) }

func hexString(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}

// AccountKeys is the account secret bundle OutputDiscovery and
// TransferBuilder pass to the crypto capability. SpendSecretKey is the zero
// value in view-only mode (spec.md §3).
type AccountKeys struct {
	ViewSecretKey   SecretKey
	ViewPublicKey   PublicKey
	SpendSecretKey  SecretKey
	SpendPublicKey  PublicKey
	HasSpendSecret  bool
}

// OutputTarget is the subset of a transaction output the lookup needs: its
// one-time destination key. (The Codec facade owns the rest of the output
// shape — amount, etc.)
type OutputTarget struct {
	Key PublicKey
}

// Capability is every curve/hash/cipher operation the wallet engine
// consumes but does not implement (spec.md §1, §4.1, §4.5).
type Capability interface {
	// LookupAccountOutputs is `lookup_acc_outs`: given the account keys and
	// a transaction's tx_pub_key, returns the indices into outputs this
	// account owns, and the sum of their amounts.
	LookupAccountOutputs(account AccountKeys, txPubKey PublicKey, outputs []OutputTarget) (ownedIndices []int, totalIn uint64, err er.R)

	// DeriveKeyImage derives the one-time ephemeral public key and key
	// image for output at outputIndex of a transaction with the given
	// tx_pub_key, using the account's view+spend secrets.
	DeriveKeyImage(account AccountKeys, txPubKey PublicKey, outputIndex uint64) (ephemeralPub PublicKey, image KeyImage, err er.R)

	// SecretToPublic computes the public key matching a secret key
	// (ed25519-style scalar multiplication by the base point).
	SecretToPublic(sk SecretKey) PublicKey

	// StreamXOR is the symmetric stream cipher (chacha8 in the wire format,
	// spec.md §6) used to encrypt/decrypt the key file. Calling it twice
	// with the same key/iv on the output of the first call recovers the
	// original data.
	StreamXOR(key []byte, iv []byte, data []byte) []byte

	// RandomBytes returns n cryptographically random bytes, used for IVs
	// and for account generation.
	RandomBytes(n int) []byte
}
