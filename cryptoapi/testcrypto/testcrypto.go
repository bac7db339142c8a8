// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package testcrypto is a deterministic stand-in for cryptoapi.Capability.
// It is NOT a production Monero/CryptoNote curve implementation — it
// derives key images and ephemeral keys with blake2b digests instead of
// real ed25519 scalar/point arithmetic, and its "stream cipher" is a
// chacha20-backed keystream rather than the 8-round CryptoNote variant.
// Its only job is to let txstore/walletcore's own tests exercise every
// code path that calls through cryptoapi.Capability without linking a real
// curve library. Production callers of this module MUST supply their own
// Capability.
package testcrypto

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/aead/chacha20/chacha"
	"github.com/dchest/blake2b"

	"github.com/hmel/boolberry/cryptoapi"
	"github.com/hmel/boolberry/er"
)

// Capability is the reference cryptoapi.Capability used by this module's
// tests.
type Capability struct{}

var _ cryptoapi.Capability = Capability{}

func digest(parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SecretToPublic derives a "public key" as blake2b(secret || "pub"). Not a
// real scalar multiplication — see package doc.
func (Capability) SecretToPublic(sk cryptoapi.SecretKey) cryptoapi.PublicKey {
	return cryptoapi.PublicKey(digest(sk[:], []byte("pub")))
}

// deriveEphemeral computes the one-time keypair for (txPubKey, outputIndex,
// viewSecret, spendSecret): d = blake2b(viewSecret || txPubKey || index);
// ephemeral secret = blake2b(d || spendSecret); ephemeral public =
// SecretToPublic(ephemeral secret).
func (c Capability) deriveEphemeral(account cryptoapi.AccountKeys, txPubKey cryptoapi.PublicKey, outputIndex uint64) cryptoapi.PublicKey {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], outputIndex)
	d := digest(account.ViewSecretKey[:], txPubKey[:], idx[:])
	ephSecret := digest(d[:], account.SpendSecretKey[:])
	return c.SecretToPublic(cryptoapi.SecretKey(ephSecret))
}

// LookupAccountOutputs reports every output whose target key matches the
// ephemeral public key this account would derive for that index — the
// same ownership test real lookup_acc_outs performs, just over a fake
// derivation.
func (c Capability) LookupAccountOutputs(account cryptoapi.AccountKeys, txPubKey cryptoapi.PublicKey, outputs []cryptoapi.OutputTarget) ([]int, uint64, er.R) {
	var owned []int
	for i, out := range outputs {
		if c.deriveEphemeral(account, txPubKey, uint64(i)) == out.Key {
			owned = append(owned, i)
		}
	}
	// totalIn is computed by the caller from the amounts of owned outputs;
	// this reference implementation does not see amounts, so it returns 0
	// and leaves OutputDiscovery to sum them from the transaction itself.
	return owned, 0, nil
}

// DeriveKeyImage returns the deterministic ephemeral public key for this
// output plus a key image bound to it, so that two calls for the same
// (account, txPubKey, outputIndex) always collide -- exercising the
// duplicate-key-image poison path from spec.md §4.1 step 4.
func (c Capability) DeriveKeyImage(account cryptoapi.AccountKeys, txPubKey cryptoapi.PublicKey, outputIndex uint64) (cryptoapi.PublicKey, cryptoapi.KeyImage, er.R) {
	eph := c.deriveEphemeral(account, txPubKey, outputIndex)
	image := digest(eph[:], account.SpendSecretKey[:], []byte("keyimage"))
	return eph, cryptoapi.KeyImage(image), nil
}

// StreamXOR XORs data against a chacha20 keystream seeded from key[:32]
// and iv zero-padded/truncated to the cipher's nonce size. Not chacha8 —
// see package doc; production callers must bring a real implementation if
// on-disk key files must match the legacy wire format bit-for-bit.
func (Capability) StreamXOR(key []byte, iv []byte, data []byte) []byte {
	var k [32]byte
	copy(k[:], key)
	var nonce [8]byte
	copy(nonce[:], iv)
	c, err := chacha.NewCipher(nonce[:], k[:], 20)
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

// RandomBytes returns n bytes from crypto/rand.
func (Capability) RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
