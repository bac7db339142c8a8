// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"os"

	"github.com/dchest/blake2b"

	"github.com/hmel/boolberry/cryptoapi"
	"github.com/hmel/boolberry/er"
	"github.com/hmel/boolberry/txstore"
)

const ivSize = 8

// keyFileRecord is the bit-exact key-file envelope of spec.md §6: an IV
// followed by the ciphertext of the serialized account.
type keyFileRecord struct {
	IV         [ivSize]byte
	Ciphertext []byte
}

// deriveStreamKey is generate_chacha8_key_helper: the stream-cipher key is
// blake2b-256 of the password bytes directly, no salt, so the key file
// format matches the wire format bit-for-bit (spec.md §6).
func deriveStreamKey(password string) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(password))
	return h.Sum(nil)
}

// accountPlaintext is what gets encrypted into the key file.
type accountPlaintext struct {
	Keys      cryptoapi.AccountKeys
	CreatedAt int64
}

// KeyStore implements spec.md §4.5's store_keys/load_keys: password-keyed
// encryption of account secrets to a file, with a view-only projection.
type KeyStore struct {
	Crypto cryptoapi.Capability
	Codec  codecEncoder
}

// codecEncoder is the minimal (de)serialization this package needs for the
// key file's plaintext payload, implemented by GobCodec. The larger
// wallet-state file is handled separately by walletcore.Persistence.
type codecEncoder interface {
	EncodeAccount(accountPlaintext) ([]byte, er.R)
	DecodeAccount([]byte) (accountPlaintext, er.R)
}

// StoreKeys serializes account (optionally projected to view-only),
// encrypts it under password, and writes {iv, ciphertext} to path. The key
// file is append-never: once written it is not reopened for writing by
// this package (spec.md §4.5).
func (k *KeyStore) StoreKeys(path string, password string, account txstore.Account, viewOnly bool) er.R {
	plain := accountPlaintext{Keys: account.Keys, CreatedAt: account.CreatedAt}
	if viewOnly {
		plain.Keys.SpendSecretKey = cryptoapi.SecretKey{}
		plain.Keys.HasSpendSecret = false
	}

	payload, err := k.Codec.EncodeAccount(plain)
	if err != nil {
		return err
	}

	streamKey := deriveStreamKey(password)
	iv := k.Crypto.RandomBytes(ivSize)

	rec := keyFileRecord{Ciphertext: k.Crypto.StreamXOR(streamKey, iv, payload)}
	copy(rec.IV[:], iv)

	blob := append(append([]byte{}, rec.IV[:]...), rec.Ciphertext...)

	f, osErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if osErr != nil {
		if os.IsExist(osErr) {
			return ErrFileExists.New(path, nil)
		}
		return ErrFileSave.New(path, er.E(osErr))
	}
	defer f.Close()
	if _, osErr := f.Write(blob); osErr != nil {
		return ErrFileSave.New(path, er.E(osErr))
	}
	return nil
}

// LoadKeys decrypts and deserializes the key file at path, verifying that
// the derived public keys match the stored secrets; a mismatch (wrong
// password, or corruption) surfaces as ErrInvalidPassword (spec.md §4.5).
func (k *KeyStore) LoadKeys(path string, password string) (txstore.Account, er.R) {
	data, osErr := os.ReadFile(path)
	if osErr != nil {
		if os.IsNotExist(osErr) {
			return txstore.Account{}, ErrFileNotFound.New(path, nil)
		}
		return txstore.Account{}, ErrFileRead.New(path, er.E(osErr))
	}
	if len(data) < ivSize {
		return txstore.Account{}, ErrInvalidPassword.New("truncated key file", nil)
	}
	iv := data[:ivSize]
	ciphertext := data[ivSize:]

	streamKey := deriveStreamKey(password)
	plainBytes := k.Crypto.StreamXOR(streamKey, iv, ciphertext)

	plain, err := k.Codec.DecodeAccount(plainBytes)
	if err != nil {
		return txstore.Account{}, ErrInvalidPassword.New("failed to decode key file", err)
	}

	if plain.Keys.HasSpendSecret {
		if k.Crypto.SecretToPublic(plain.Keys.SpendSecretKey) != plain.Keys.SpendPublicKey {
			return txstore.Account{}, ErrInvalidPassword.Default()
		}
	}
	if k.Crypto.SecretToPublic(plain.Keys.ViewSecretKey) != plain.Keys.ViewPublicKey {
		return txstore.Account{}, ErrInvalidPassword.Default()
	}

	return txstore.Account{Keys: plain.Keys, CreatedAt: plain.CreatedAt}, nil
}

// Generate creates a fresh account, refusing if keyFilePath already exists,
// stores it, and (best-effort, non-fatal) writes an address-text sidecar
// (spec.md §4.5, §6).
func (k *KeyStore) Generate(keyFilePath, addressFilePath, password string, createdAt int64, address string) (txstore.Account, er.R) {
	if _, err := os.Stat(keyFilePath); err == nil {
		return txstore.Account{}, ErrFileExists.New(keyFilePath, nil)
	}

	spendSecret := cryptoapi.SecretKey{}
	copy(spendSecret[:], k.Crypto.RandomBytes(32))
	viewSecret := cryptoapi.SecretKey{}
	copy(viewSecret[:], k.Crypto.RandomBytes(32))

	account := txstore.Account{
		Keys: cryptoapi.AccountKeys{
			SpendSecretKey: spendSecret,
			SpendPublicKey: k.Crypto.SecretToPublic(spendSecret),
			ViewSecretKey:  viewSecret,
			ViewPublicKey:  k.Crypto.SecretToPublic(viewSecret),
			HasSpendSecret: true,
		},
		CreatedAt: createdAt,
	}

	if err := k.StoreKeys(keyFilePath, password, account, false); err != nil {
		return txstore.Account{}, err
	}

	if addressFilePath != "" {
		// Non-fatal per spec.md §6: a failure to write the convenience
		// sidecar does not fail Generate.
		_ = os.WriteFile(addressFilePath, []byte(address), 0644)
	}

	return account, nil
}

// Restore is like Generate but from externally-supplied secrets (e.g.
// derived from a recovery seed by the caller).
func (k *KeyStore) Restore(keyFilePath, addressFilePath, password string, keys cryptoapi.AccountKeys, createdAt int64, address string) (txstore.Account, er.R) {
	if _, err := os.Stat(keyFilePath); err == nil {
		return txstore.Account{}, ErrFileExists.New(keyFilePath, nil)
	}
	account := txstore.Account{Keys: keys, CreatedAt: createdAt}
	if err := k.StoreKeys(keyFilePath, password, account, false); err != nil {
		return txstore.Account{}, err
	}
	if addressFilePath != "" {
		_ = os.WriteFile(addressFilePath, []byte(address), 0644)
	}
	return account, nil
}
