// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/codec/testcodec"
	"github.com/hmel/boolberry/cryptoapi"
	"github.com/hmel/boolberry/cryptoapi/testcrypto"
	"github.com/hmel/boolberry/er"
	"github.com/hmel/boolberry/nodeproxy"
	"github.com/hmel/boolberry/nodeproxy/memnode"
	"github.com/hmel/boolberry/txstore"
)

func testAccount(t *testing.T, crypto testcrypto.Capability) txstore.Account {
	var viewSecret, spendSecret cryptoapi.SecretKey
	viewSecret[0] = 1
	spendSecret[0] = 2
	keys := cryptoapi.AccountKeys{
		ViewSecretKey:  viewSecret,
		ViewPublicKey:  crypto.SecretToPublic(viewSecret),
		SpendSecretKey: spendSecret,
		SpendPublicKey: crypto.SecretToPublic(spendSecret),
		HasSpendSecret: true,
	}
	return txstore.Account{Keys: keys}
}

// buildOwnedBlock constructs a block whose miner transaction pays amount to
// the account at output index 0, using the reference crypto/codec pair so
// the wallet engine under test can actually discover it. The paying tx is
// the miner tx so that a BlockEntry carrying only the block delivers it.
func buildOwnedBlock(t *testing.T, crypto testcrypto.Capability, account txstore.Account, prevID codec.Hash, amount uint64, unlockTime uint64) codec.Block {
	var txPubKey cryptoapi.PublicKey
	txPubKey[0] = 0xAB

	ephemeral, _, err := crypto.DeriveKeyImage(account.Keys, txPubKey, 0)
	require.Nil(t, err)

	miner := codec.Transaction{
		Version:    1,
		UnlockTime: unlockTime,
		Vin:        []codec.TxIn{{Kind: codec.TxInGenKind}},
		Vout: []codec.TxOut{
			{Amount: amount, Target: codec.TxOutTarget{Key: [32]byte(ephemeral)}},
		},
		Extra: testcodec.EncodeTxExtra([32]byte(txPubKey), nil),
	}

	return codec.Block{PrevID: prevID, MinerTx: miner}
}

func newTestWallet(t *testing.T) (*Wallet, *memnode.Node, txstore.Account, testcrypto.Capability) {
	crypto := testcrypto.Capability{}
	account := testAccount(t, crypto)
	store := txstore.New(account)
	genesis := codec.Hash{0xFF}
	store.AppendBlock(genesis)

	node := &memnode.Node{Codec: testcodec.Codec{}}
	cfg := Config{Crypto: crypto, Codec: testcodec.Codec{}, Node: node}
	w := New(cfg, store)
	return w, node, account, crypto
}

// TestFreshWalletOneInbound is spec.md §8 scenario 1.
func TestFreshWalletOneInbound(t *testing.T) {
	w, node, account, crypto := newTestWallet(t)

	genesis := w.Store().BlockHash(0)
	block := buildOwnedBlock(t, crypto, account, genesis, 1000000, 0)
	node.AppendBlock(nodeproxy.BlockEntry{Block: block})

	require.Nil(t, w.Refresh(context.Background()))

	assert.Len(t, w.Store().Transfers(), 1)
	assert.Equal(t, uint64(1000000), w.Balances().Balance())
	assert.Equal(t, uint64(0), w.Balances().UnlockedBalance())

	for i := 0; i < defaultTxSpendableAge; i++ {
		next := buildOwnedBlockEmpty(t, w.Store().BlockHash(w.Store().LocalHeight()-1))
		node.AppendBlock(nodeproxy.BlockEntry{Block: next})
	}
	require.Nil(t, w.Refresh(context.Background()))
	assert.Equal(t, uint64(1000000), w.Balances().UnlockedBalance())
}

// buildOwnedBlockEmpty constructs a block paying nothing to the account. Its
// miner tx carries prevID as tx_pub_key, which discovery requires, and which
// gives blocks with different parents different hashes (testcodec hashes a
// block by its miner tx alone).
func buildOwnedBlockEmpty(t *testing.T, prevID codec.Hash) codec.Block {
	miner := codec.Transaction{Version: 1, Vin: []codec.TxIn{{Kind: codec.TxInGenKind}}, Extra: testcodec.EncodeTxExtra([32]byte(prevID), nil)}
	return codec.Block{PrevID: prevID, MinerTx: miner}
}

// TestReorgDetachesAndReapplies is spec.md §8 scenario 2.
func TestReorgDetachesAndReapplies(t *testing.T) {
	w, node, account, crypto := newTestWallet(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b := buildOwnedBlockEmpty(t, w.Store().BlockHash(w.Store().LocalHeight()-1))
		node.AppendBlock(nodeproxy.BlockEntry{Block: b})
	}
	require.Nil(t, w.Refresh(ctx))
	require.Equal(t, uint64(4), w.Store().LocalHeight()) // genesis + 3

	b3 := buildOwnedBlock(t, crypto, account, w.Store().BlockHash(3), 555, 0)
	node.AppendBlock(nodeproxy.BlockEntry{Block: b3})
	require.Nil(t, w.Refresh(ctx))
	require.Equal(t, uint64(5), w.Store().LocalHeight())
	require.Len(t, w.Store().Transfers(), 1)

	// Fork away from height 4 (the block with the transfer) onward.
	node.Reorg(4)
	altB4 := buildOwnedBlockEmpty(t, w.Store().BlockHash(3))
	altB5 := buildOwnedBlockEmpty(t, testcodec.Codec{}.BlockHash(altB4))
	node.AppendBlock(nodeproxy.BlockEntry{Block: altB4})
	node.AppendBlock(nodeproxy.BlockEntry{Block: altB5})

	require.Nil(t, w.Refresh(ctx))
	assert.Equal(t, uint64(6), w.Store().LocalHeight()) // genesis + 3 + altB4 + altB5
	assert.Len(t, w.Store().Transfers(), 0)
}

// TestDoubleKeyImagePoisonDiscardsWholeTx is spec.md §8 scenario 3.
func TestDoubleKeyImagePoisonDiscardsWholeTx(t *testing.T) {
	w, node, account, crypto := newTestWallet(t)
	ctx := context.Background()

	b1 := buildOwnedBlock(t, crypto, account, w.Store().BlockHash(0), 100, 0)
	node.AppendBlock(nodeproxy.BlockEntry{Block: b1})
	require.Nil(t, w.Refresh(ctx))
	require.Len(t, w.Store().Transfers(), 1)

	// Same (txPubKey=0xAB, outputIndex=0) derivation collides deterministically
	// in testcrypto, so a second tx reusing it poisons itself.
	b2 := buildOwnedBlock(t, crypto, account, w.Store().BlockHash(w.Store().LocalHeight()-1), 999, 0)
	node.AppendBlock(nodeproxy.BlockEntry{Block: b2})
	require.Nil(t, w.Refresh(ctx))

	assert.Len(t, w.Store().Transfers(), 1, "the colliding tx must be wholly discarded")
	assert.Equal(t, uint64(100), w.Balances().Balance())
}

// TestSubmitRejectionLeavesTransfersUnspent is spec.md §8 scenario 4.
func TestSubmitRejectionLeavesTransfersUnspent(t *testing.T) {
	w, node, account, crypto := newTestWallet(t)
	ctx := context.Background()

	for i := 0; i < defaultTxSpendableAge+1; i++ {
		var b codec.Block
		if i == 0 {
			b = buildOwnedBlock(t, crypto, account, w.Store().BlockHash(0), 5000, 0)
		} else {
			b = buildOwnedBlockEmpty(t, w.Store().BlockHash(w.Store().LocalHeight()-1))
		}
		node.AppendBlock(nodeproxy.BlockEntry{Block: b})
	}
	require.Nil(t, w.Refresh(ctx))
	require.Equal(t, uint64(5000), w.Balances().UnlockedBalance())

	w.builder.Constructor = stubConstructor{}
	node.RejectNextTx()

	_, err := w.Transfer(ctx, []Destination{{Address: "addr", Amount: 1000}}, 0, 0, 10, nil, false)
	require.NotNil(t, err)
	assert.True(t, ErrTxRejected.Is(err))

	for _, tr := range w.Store().Transfers() {
		assert.False(t, tr.Spent)
	}
	assert.Len(t, w.Store().UnconfirmedOutbounds(), 0)
}

type stubConstructor struct{}

func (stubConstructor) ConstructTx(account cryptoapi.AccountKeys, sources []txstore.TransferRecord, destinations []Destination, mixCount int, unlockTime uint64, extra []byte) (codec.Transaction, cryptoapi.SecretKey, er.R) {
	tx := codec.Transaction{Version: 1, Blob: []byte("fake-signed-tx")}
	return tx, cryptoapi.SecretKey{7}, nil
}

// TestPoolCarryForward is spec.md §8 scenario 5.
func TestPoolCarryForward(t *testing.T) {
	w, node, account, crypto := newTestWallet(t)
	ctx := context.Background()

	var txPubKeyT cryptoapi.PublicKey
	txPubKeyT[0] = 0xCD
	ephT, _, err := crypto.DeriveKeyImage(account.Keys, txPubKeyT, 0)
	require.Nil(t, err)
	txT := codec.Transaction{Vout: []codec.TxOut{{Amount: 10, Target: codec.TxOutTarget{Key: [32]byte(ephT)}}}, Extra: testcodec.EncodeTxExtra([32]byte(txPubKeyT), nil)}

	node.SetPool([]codec.Transaction{txT})
	require.Nil(t, w.ScanTxPool(ctx))
	assert.Len(t, w.Store().UnconfirmedInbounds(), 1)

	var txPubKeyU cryptoapi.PublicKey
	txPubKeyU[0] = 0xEF
	ephU, _, err := crypto.DeriveKeyImage(account.Keys, txPubKeyU, 0)
	require.Nil(t, err)
	txU := codec.Transaction{Vout: []codec.TxOut{{Amount: 20, Target: codec.TxOutTarget{Key: [32]byte(ephU)}}}, Extra: testcodec.EncodeTxExtra([32]byte(txPubKeyU), nil)}

	node.SetPool([]codec.Transaction{txT, txU})
	require.Nil(t, w.ScanTxPool(ctx))
	assert.Len(t, w.Store().UnconfirmedInbounds(), 2)

	node.SetPool(nil)
	require.Nil(t, w.ScanTxPool(ctx))
	assert.Len(t, w.Store().UnconfirmedInbounds(), 0)
}

// TestUnlockSemantics is spec.md §8 scenario 6.
func TestUnlockSemantics(t *testing.T) {
	height := uint64(50)
	assert.False(t, isTxSpendtimeUnlocked(100, height, 0))
	assert.True(t, isTxSpendtimeUnlocked(100, 100+1-lockedTxAllowedDeltaBlocks, 0))

	now := int64(1_700_000_000 - lockedTxAllowedDeltaSeconds - 1)
	assert.False(t, isTxSpendtimeUnlocked(1_700_000_000, 0, now))
	assert.True(t, isTxSpendtimeUnlocked(1_700_000_000, 0, now+1))
}
