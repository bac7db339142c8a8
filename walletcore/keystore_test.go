// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmel/boolberry/cryptoapi/testcrypto"
)

// TestStoreLoadKeysRoundTrip is spec.md §8's R1: store_keys -> load_keys
// restores an account equal to the original.
func TestStoreLoadKeysRoundTrip(t *testing.T) {
	ks := &KeyStore{Crypto: testcrypto.Capability{}, Codec: GobCodec{}}
	account := testAccount(t, testcrypto.Capability{})
	account.CreatedAt = 123456

	path := filepath.Join(t.TempDir(), "key.dat")
	require.Nil(t, ks.StoreKeys(path, "correct horse", account, false))

	got, err := ks.LoadKeys(path, "correct horse")
	require.Nil(t, err)
	assert.Equal(t, account.Keys, got.Keys)
	assert.Equal(t, account.CreatedAt, got.CreatedAt)
}

// TestLoadKeysWrongPasswordFails covers the other half of R1: a wrong
// password must surface ErrInvalidPassword without mutating anything on
// disk (LoadKeys never writes).
func TestLoadKeysWrongPasswordFails(t *testing.T) {
	ks := &KeyStore{Crypto: testcrypto.Capability{}, Codec: GobCodec{}}
	account := testAccount(t, testcrypto.Capability{})

	path := filepath.Join(t.TempDir(), "key.dat")
	require.Nil(t, ks.StoreKeys(path, "right password", account, false))

	before, osErr := os.ReadFile(path)
	require.Nil(t, osErr)

	_, err := ks.LoadKeys(path, "wrong password")
	require.NotNil(t, err)
	assert.True(t, ErrInvalidPassword.Is(err))

	after, osErr := os.ReadFile(path)
	require.Nil(t, osErr)
	assert.Equal(t, before, after, "a failed load must not mutate the key file")
}

// TestStoreKeysRefusesExistingFile covers the append-never guarantee.
func TestStoreKeysRefusesExistingFile(t *testing.T) {
	ks := &KeyStore{Crypto: testcrypto.Capability{}, Codec: GobCodec{}}
	account := testAccount(t, testcrypto.Capability{})

	path := filepath.Join(t.TempDir(), "key.dat")
	require.Nil(t, ks.StoreKeys(path, "pw", account, false))

	err := ks.StoreKeys(path, "pw", account, false)
	require.NotNil(t, err)
	assert.True(t, ErrFileExists.Is(err))
}

// TestStoreKeysViewOnlyDropsSpendSecret covers spec.md §3's view-only
// account projection.
func TestStoreKeysViewOnlyDropsSpendSecret(t *testing.T) {
	ks := &KeyStore{Crypto: testcrypto.Capability{}, Codec: GobCodec{}}
	account := testAccount(t, testcrypto.Capability{})

	path := filepath.Join(t.TempDir(), "key.dat")
	require.Nil(t, ks.StoreKeys(path, "pw", account, true))

	got, err := ks.LoadKeys(path, "pw")
	require.Nil(t, err)
	assert.False(t, got.Keys.HasSpendSecret)
	assert.Equal(t, account.Keys.ViewSecretKey, got.Keys.ViewSecretKey)
}
