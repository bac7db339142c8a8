// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/cryptoapi"
)

func hashN(b byte) codec.Hash {
	var h codec.Hash
	h[0] = b
	return h
}

func keyImageN(b byte) cryptoapi.KeyImage {
	var k cryptoapi.KeyImage
	k[0] = b
	return k
}

func newTestStore() *Store {
	return New(Account{})
}

func TestAppendBlockAdvancesLocalHeight(t *testing.T) {
	s := newTestStore()
	require.Equal(t, uint64(0), s.LocalHeight())
	s.AppendBlock(hashN(1))
	s.AppendBlock(hashN(2))
	assert.Equal(t, uint64(2), s.LocalHeight())
	assert.Equal(t, hashN(1), s.BlockHash(0))
	assert.Equal(t, hashN(2), s.BlockHash(1))
}

func TestAddTransferMaintainsKeyImageBijection(t *testing.T) {
	s := newTestStore()
	s.AppendBlock(hashN(1))

	t1 := TransferRecord{BlockHeight: 0, InternalOutputIndex: 0, TxHash: hashN(10), KeyImage: keyImageN(1), Amount: 100}
	require.Nil(t, s.AddTransfer(t1))

	got, ok := s.TransferByKeyImage(keyImageN(1))
	require.True(t, ok)
	assert.Equal(t, uint64(100), got.Amount)

	// P1: key_images is bijective with transfers.
	for i, tr := range s.Transfers() {
		idx, ok := s.keyImages[tr.KeyImage]
		require.True(t, ok)
		assert.Equal(t, i, idx)
	}
}

func TestAddTransferRejectsDuplicateOutput(t *testing.T) {
	s := newTestStore()
	s.AppendBlock(hashN(1))
	t1 := TransferRecord{BlockHeight: 0, InternalOutputIndex: 0, TxHash: hashN(10), KeyImage: keyImageN(1), Amount: 100}
	require.Nil(t, s.AddTransfer(t1))

	dup := TransferRecord{BlockHeight: 0, InternalOutputIndex: 0, TxHash: hashN(10), KeyImage: keyImageN(2), Amount: 50}
	err := s.AddTransfer(dup)
	require.NotNil(t, err)
	assert.True(t, ErrDuplicateOutput.Is(err))
}

func TestAddTransferRejectsDuplicateKeyImage(t *testing.T) {
	s := newTestStore()
	s.AppendBlock(hashN(1))
	t1 := TransferRecord{BlockHeight: 0, InternalOutputIndex: 0, TxHash: hashN(10), KeyImage: keyImageN(1), Amount: 100}
	require.Nil(t, s.AddTransfer(t1))

	t2 := TransferRecord{BlockHeight: 0, InternalOutputIndex: 1, TxHash: hashN(10), KeyImage: keyImageN(1), Amount: 50}
	err := s.AddTransfer(t2)
	require.NotNil(t, err)
	assert.True(t, ErrDuplicateKeyImage.Is(err))
}

func TestMarkSpentByKeyImage(t *testing.T) {
	s := newTestStore()
	s.AppendBlock(hashN(1))
	t1 := TransferRecord{BlockHeight: 0, InternalOutputIndex: 0, TxHash: hashN(10), KeyImage: keyImageN(1), Amount: 100}
	require.Nil(t, s.AddTransfer(t1))

	assert.True(t, s.MarkSpent(keyImageN(1), true))
	got, _ := s.TransferByKeyImage(keyImageN(1))
	assert.True(t, got.Spent)

	assert.False(t, s.MarkSpent(keyImageN(99), true))
}

// TestDetachBlockchainReconciliation covers spec §8 scenario 2 (reorg):
// transfers and payments at or above the fork height are discarded, the
// block chain is truncated, and key_images loses its orphaned entries —
// but transfer_history is untouched (the §9 open question).
func TestDetachBlockchainReconciliation(t *testing.T) {
	s := newTestStore()
	for i := byte(0); i < 6; i++ {
		s.AppendBlock(hashN(i + 1)) // heights 0..5
	}

	early := TransferRecord{BlockHeight: 2, InternalOutputIndex: 0, TxHash: hashN(20), KeyImage: keyImageN(1), Amount: 10}
	late := TransferRecord{BlockHeight: 3, InternalOutputIndex: 0, TxHash: hashN(30), KeyImage: keyImageN(2), Amount: 20}
	require.Nil(t, s.AddTransfer(early))
	require.Nil(t, s.AddTransfer(late))

	pid := codec.PaymentID{1}
	require.Nil(t, s.AddPaymentRecord(pid, PaymentRecord{TxHash: hashN(30), BlockHeight: 3}))
	require.Nil(t, s.AddPaymentRecord(pid, PaymentRecord{TxHash: hashN(20), BlockHeight: 2}))

	s.AppendHistory(WalletTransferInfo{TxHash: hashN(30), BlockHeight: 3, Amount: 20})

	require.Nil(t, s.DetachBlockchain(3))

	assert.Equal(t, uint64(3), s.LocalHeight())
	assert.Len(t, s.Transfers(), 1)
	_, ok := s.TransferByKeyImage(keyImageN(2))
	assert.False(t, ok)
	_, ok = s.TransferByKeyImage(keyImageN(1))
	assert.True(t, ok)

	assert.Len(t, s.Payments(pid), 1)

	// History only grows; the detached entry is still visible there.
	assert.Len(t, s.History(), 1)
}

func TestDetachBlockchainThenReapplyIsIdempotent(t *testing.T) {
	// P4: detach then reapply the same blocks restores equivalent state
	// (modulo transfer_history, which only grows).
	s := newTestStore()
	s.AppendBlock(hashN(1))
	s.AppendBlock(hashN(2))
	t1 := TransferRecord{BlockHeight: 1, InternalOutputIndex: 0, TxHash: hashN(10), KeyImage: keyImageN(1), Amount: 100}
	require.Nil(t, s.AddTransfer(t1))

	require.Nil(t, s.DetachBlockchain(1))
	assert.Equal(t, uint64(1), s.LocalHeight())
	assert.Len(t, s.Transfers(), 0)

	s.AppendBlock(hashN(2))
	require.Nil(t, s.AddTransfer(t1))

	assert.Equal(t, uint64(2), s.LocalHeight())
	got, ok := s.TransferByKeyImage(keyImageN(1))
	require.True(t, ok)
	assert.Equal(t, t1.Amount, got.Amount)
}

func TestBalanceCountsUnspentTransfersAndUnconfirmedChange(t *testing.T) {
	s := newTestStore()
	s.AppendBlock(hashN(1))
	require.Nil(t, s.AddTransfer(TransferRecord{BlockHeight: 0, TxHash: hashN(10), KeyImage: keyImageN(1), Amount: 100}))
	require.Nil(t, s.AddTransfer(TransferRecord{BlockHeight: 0, InternalOutputIndex: 1, TxHash: hashN(11), KeyImage: keyImageN(2), Amount: 50, Spent: true}))

	s.InsertUnconfirmedOutbound(hashN(99), UnconfirmedOutbound{ChangeAmount: 7})

	assert.Equal(t, uint64(107), s.Balance())
}

func TestUnconfirmedOutboundLifecycle(t *testing.T) {
	s := newTestStore()
	s.InsertUnconfirmedOutbound(hashN(5), UnconfirmedOutbound{ChangeAmount: 3, Recipient: "addr"})
	_, ok := s.UnconfirmedOutbounds()[hashN(5)]
	require.True(t, ok)

	rec, ok := s.RemoveUnconfirmedOutbound(hashN(5))
	require.True(t, ok)
	assert.Equal(t, "addr", rec.Recipient)

	_, ok = s.RemoveUnconfirmedOutbound(hashN(5))
	assert.False(t, ok)
}

// TestSetUnconfirmedInboundsReplacesWholesale exercises the PoolScanner
// snapshot-swap contract (spec §4.3 step 2): anything not carried forward
// in the new map is implicitly dropped.
func TestSetUnconfirmedInboundsReplacesWholesale(t *testing.T) {
	s := newTestStore()
	s.SetUnconfirmedInbounds(map[codec.Hash]UnconfirmedInbound{
		hashN(1): {Info: WalletTransferInfo{TxHash: hashN(1), Amount: 10}},
	})
	assert.Len(t, s.UnconfirmedInbounds(), 1)

	s.SetUnconfirmedInbounds(map[codec.Hash]UnconfirmedInbound{})
	assert.Len(t, s.UnconfirmedInbounds(), 0)
}

func TestClearPreservesHistoryAndTxKeys(t *testing.T) {
	s := newTestStore()
	s.AppendBlock(hashN(1))
	require.Nil(t, s.AddTransfer(TransferRecord{BlockHeight: 0, TxHash: hashN(10), KeyImage: keyImageN(1), Amount: 5}))
	s.AppendHistory(WalletTransferInfo{TxHash: hashN(10), Amount: 5})
	s.StashTxKey(hashN(10), cryptoapi.SecretKey{9})

	s.Clear()

	assert.Equal(t, uint64(0), s.LocalHeight())
	assert.Len(t, s.Transfers(), 0)
	assert.Len(t, s.History(), 1)
	_, ok := s.TxKey(hashN(10))
	assert.True(t, ok)
}
