// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/cryptoapi"
	"github.com/hmel/boolberry/cryptoapi/testcrypto"
	"github.com/hmel/boolberry/txstore"
)

// TestPersistenceStoreRestoreRoundTrip covers spec.md §4.5/§6's whole-state
// dump/restore: every transfer, payment, history entry and the tx key of a
// recorded transaction must come back unchanged.
func TestPersistenceStoreRestoreRoundTrip(t *testing.T) {
	crypto := testcrypto.Capability{}
	account := testAccount(t, crypto)
	store := txstore.New(account)
	store.AppendBlock(codec.Hash{0xFF})
	store.AppendBlock(codec.Hash{1})
	store.AppendBlock(codec.Hash{2})

	var ki cryptoapi.KeyImage
	ki[0] = 7
	txHash := codec.Hash{9}
	require.Nil(t, store.AddTransfer(txstore.TransferRecord{
		BlockHeight: 1, InternalOutputIndex: 0, TxHash: txHash, KeyImage: ki, Amount: 42,
	}))

	var pid codec.PaymentID
	pid[0] = 0xAA
	require.Nil(t, store.AddPaymentRecord(pid, txstore.PaymentRecord{TxHash: txHash, Amount: 42, BlockHeight: 1}))

	store.AppendHistory(txstore.WalletTransferInfo{TxHash: txHash, BlockHeight: 1, Amount: 42, PaymentID: pid, HasPaymentID: true})
	store.StashTxKey(txHash, cryptoapi.SecretKey{0x11})

	path := filepath.Join(t.TempDir(), "state.dat")
	var p Persistence
	require.Nil(t, p.Store(path, store))

	restored := txstore.New(account)
	ok, err := p.Restore(path, restored)
	require.Nil(t, err)
	require.True(t, ok)

	assert.Equal(t, store.LocalHeight(), restored.LocalHeight())
	assert.Equal(t, store.Transfers(), restored.Transfers())
	assert.Equal(t, store.Payments(pid), restored.Payments(pid))
	assert.Equal(t, store.History(), restored.History())

	key, ok := restored.TxKey(txHash)
	require.True(t, ok)
	assert.Equal(t, cryptoapi.SecretKey{0x11}, key)
}

// TestPersistenceRestoreMissingFileResyncs covers the "resync from genesis"
// fallback for a never-written state file.
func TestPersistenceRestoreMissingFileResyncs(t *testing.T) {
	account := testAccount(t, testcrypto.Capability{})
	store := txstore.New(account)

	var p Persistence
	ok, err := p.Restore(filepath.Join(t.TempDir(), "missing.dat"), store)
	require.Nil(t, err)
	assert.False(t, ok)
}

// TestPersistenceRestoreChecksumMismatchResyncs covers corruption detection.
func TestPersistenceRestoreChecksumMismatchResyncs(t *testing.T) {
	crypto := testcrypto.Capability{}
	account := testAccount(t, crypto)
	store := txstore.New(account)
	store.AppendBlock(codec.Hash{0xFF})

	path := filepath.Join(t.TempDir(), "state.dat")
	var p Persistence
	require.Nil(t, p.Store(path, store))

	data, osErr := os.ReadFile(path)
	require.Nil(t, osErr)
	data[len(data)-1] ^= 0xFF
	require.Nil(t, os.WriteFile(path, data, 0600))

	ok, err := p.Restore(path, txstore.New(account))
	require.Nil(t, err)
	assert.False(t, ok)
}

// TestPersistenceRestoreAddressMismatchResyncs covers loading a state file
// written for a different account onto this one.
func TestPersistenceRestoreAddressMismatchResyncs(t *testing.T) {
	crypto := testcrypto.Capability{}
	account := testAccount(t, crypto)
	store := txstore.New(account)
	store.AppendBlock(codec.Hash{0xFF})

	path := filepath.Join(t.TempDir(), "state.dat")
	var p Persistence
	require.Nil(t, p.Store(path, store))

	var otherView, otherSpend cryptoapi.SecretKey
	otherView[0], otherSpend[0] = 9, 10
	otherAccount := txstore.Account{Keys: cryptoapi.AccountKeys{
		ViewSecretKey: otherView, ViewPublicKey: crypto.SecretToPublic(otherView),
		SpendSecretKey: otherSpend, SpendPublicKey: crypto.SecretToPublic(otherSpend),
		HasSpendSecret: true,
	}}

	ok, err := p.Restore(path, txstore.New(otherAccount))
	require.Nil(t, err)
	assert.False(t, ok)
}
