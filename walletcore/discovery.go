// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"context"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/cryptoapi"
	"github.com/hmel/boolberry/er"
	"github.com/hmel/boolberry/nodeproxy"
	"github.com/hmel/boolberry/txstore"
	"github.com/hmel/boolberry/walletlog"
)

// OutputDiscovery implements spec.md §4.1: per transaction, it derives
// which outputs belong to the account, detects spends of previously-owned
// outputs, and classifies the transaction as inbound/outbound/mixed/no-op.
type OutputDiscovery struct {
	Crypto    cryptoapi.Capability
	Codec     codec.Codec
	Node      nodeproxy.NodeProxy
	Store     *txstore.Store
	Callbacks Callbacks
	Log       walletlog.Logger
}

func (d *OutputDiscovery) log() walletlog.Logger {
	if d.Log == nil {
		return walletlog.Disabled
	}
	return d.Log
}

// ProcessTransaction is process_transaction (spec.md §4.1). height is the
// confirming block's height. Pool transactions do not come through here;
// PoolScanner runs its own lightweight discovery (spec.md §4.3 step 3).
func (d *OutputDiscovery) ProcessTransaction(ctx context.Context, tx codec.Transaction, height uint64) er.R {
	txHash := d.Codec.TxHash(tx)

	// Step 1: if this tx_hash is a pending outbound, evict it. Its recipient
	// and alias are not carried into the history entries written below.
	if _, ok := d.Store.RemoveUnconfirmedOutbound(txHash); ok {
		d.log().Debugf("tx %s moved from unconfirmed to confirmed at height %d", txHash, height)
	}

	// Step 2: parse tx_pub_key.
	txPubKeyBytes, ok := d.Codec.ParseTxExtra(tx.Extra)
	if !ok {
		return codec.ErrTxExtraParse.New("no tx_pub_key in extra", nil)
	}
	txPubKey := cryptoapi.PublicKey(txPubKeyBytes)

	// Step 3: lookup_acc_outs.
	outputs := make([]cryptoapi.OutputTarget, len(tx.Vout))
	for i, o := range tx.Vout {
		outputs[i] = cryptoapi.OutputTarget{Key: cryptoapi.PublicKey(o.Target.Key)}
	}
	account := d.Store.Account().Keys
	ownedIndices, totalIn, err := d.Crypto.LookupAccountOutputs(account, txPubKey, outputs)
	if err != nil {
		return ErrAccOutsLookup.New("", err)
	}
	// The reference Capability doesn't sum amounts itself (testcrypto docs);
	// compute totalIn from the owned outputs regardless of what it returned.
	if len(ownedIndices) > 0 {
		totalIn = 0
		for _, idx := range ownedIndices {
			totalIn += tx.Vout[idx].Amount
		}
	}

	// Step 4.
	if len(ownedIndices) > 0 && totalIn > 0 {
		resp, err := d.Node.GetTxGlobalOutputsIndexes(ctx, nodeproxy.TxGlobalOutputsIndexesRequest{TxHash: txHash})
		if err != nil {
			return ErrGetOutIndices.New("", err)
		}
		if len(resp.Indexes) != len(tx.Vout) {
			return ErrInternal.New("global output index count mismatch", nil)
		}

		poisoned := false
		type pending struct {
			rec txstore.TransferRecord
		}
		var toInsert []pending
		for _, o := range ownedIndices {
			ephemeral, image, err := d.Crypto.DeriveKeyImage(account, txPubKey, uint64(o))
			if err != nil {
				return ErrInternal.New("key image derivation failed", err)
			}
			if ephemeral != cryptoapi.PublicKey(tx.Vout[o].Target.Key) {
				return ErrInternal.New("derived ephemeral key does not match output target", nil)
			}
			if d.Store.HasKeyImage(image) {
				// Key-image duplicate rule (spec.md §4.1 step 4): abort the
				// whole transaction, no partial application.
				d.log().Warnf("duplicate key image %s in tx %s, discarding entire transaction", image, txHash)
				poisoned = true
				break
			}
			toInsert = append(toInsert, pending{rec: txstore.TransferRecord{
				BlockHeight:         height,
				GlobalOutputIndex:   resp.Indexes[o],
				InternalOutputIndex: o,
				Tx:                  tx,
				TxHash:              txHash,
				KeyImage:            image,
				Amount:              tx.Vout[o].Amount,
			}})
		}
		if poisoned {
			// Abort the entire transaction: no owned outputs are credited
			// and no input of this tx is allowed to flip a Spent flag
			// either (spec.md §4.1 step 4).
			return nil
		}
		for _, p := range toInsert {
			if err := d.Store.AddTransfer(p.rec); err != nil {
				return err
			}
			d.Callbacks.moneyReceived(height, tx, p.rec.InternalOutputIndex)
		}
	}

	// Step 5: walk vin, mark spends of outputs we own.
	var totalOut uint64
	for _, in := range tx.Vin {
		switch in.Kind {
		case codec.TxInToKeyKind:
			ki := cryptoapi.KeyImage(in.KeyImage)
			spent, ok := d.Store.TransferByKeyImage(ki)
			if ok && d.Store.MarkSpent(ki, true) {
				totalOut += in.Amount
				d.Callbacks.moneySpent(height, tx, spent.InternalOutputIndex, txHash)
			}
		case codec.TxInGenKind, codec.TxInOtherKind:
			// Coinbase and unrecognized input variants never reference a
			// key image this wallet could own; explicit no-op branch per
			// spec.md §9 ("ignore non-txin_to_key is explicit, not a
			// cast-or-skip").
		}
	}

	// Step 6: payment id bookkeeping.
	if totalIn > 0 {
		if pid, ok := d.Codec.GetPaymentIDFromExtra(tx.Extra); ok {
			var received uint64
			if totalIn > totalOut {
				received = totalIn - totalOut
			}
			if received > 0 {
				if err := d.Store.AddPaymentRecord(pid, txstore.PaymentRecord{
					TxHash:      txHash,
					Amount:      received,
					BlockHeight: height,
					UnlockTime:  tx.UnlockTime,
				}); err != nil {
					return err
				}
			}
		}
	}

	// Step 7: classify and record history.
	switch {
	case totalOut > totalIn:
		d.Store.AppendHistory(txstore.WalletTransferInfo{TxHash: txHash, BlockHeight: height, Amount: totalOut - totalIn, Outbound: true})
		d.Callbacks.transfer2(txstore.WalletTransferInfo{TxHash: txHash, BlockHeight: height, Amount: totalOut - totalIn, Outbound: true})
	case totalOut > 0 && totalOut <= totalIn:
		// Mixed case: both an outbound and an inbound entry (spec.md §4.1
		// step 7, §9 open question — preserved even though it can visually
		// double-count amounts).
		d.Store.AppendHistory(txstore.WalletTransferInfo{TxHash: txHash, BlockHeight: height, Amount: totalOut, Outbound: true})
		d.Store.AppendHistory(txstore.WalletTransferInfo{TxHash: txHash, BlockHeight: height, Amount: totalIn, Outbound: false})
		d.Callbacks.transfer2(txstore.WalletTransferInfo{TxHash: txHash, BlockHeight: height, Amount: totalIn, Outbound: false})
	case totalOut == 0 && totalIn > 0:
		d.Store.AppendHistory(txstore.WalletTransferInfo{TxHash: txHash, BlockHeight: height, Amount: totalIn, Outbound: false})
		d.Callbacks.transfer2(txstore.WalletTransferInfo{TxHash: txHash, BlockHeight: height, Amount: totalIn, Outbound: false})
	default:
		// No-op: nothing in or out of this account.
	}

	return nil
}
