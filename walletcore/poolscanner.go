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

// PoolScanner implements spec.md §4.3: it snapshots the node's mempool on
// every tick and rebuilds unconfirmed_in_transfers from scratch, carrying
// forward entries that are still present.
type PoolScanner struct {
	Node      nodeproxy.NodeProxy
	Codec     codec.Codec
	Crypto    cryptoapi.Capability
	Store     *txstore.Store
	Callbacks Callbacks
	Log       walletlog.Logger
}

func (p *PoolScanner) log() walletlog.Logger {
	if p.Log == nil {
		return walletlog.Disabled
	}
	return p.Log
}

// ScanTxPool is scan_tx_pool (spec.md §4.3). On a node error it returns
// early, leaving unconfirmed_in_transfers exactly as it was before the call
// (spec.md §7: "errors don't invalidate confirmed state... implementations
// should snapshot-then-swap" — the swap here only happens after the node
// call succeeds).
func (p *PoolScanner) ScanTxPool(ctx context.Context) er.R {
	resp, err := p.Node.GetTxPool(ctx)
	if err != nil {
		return nodeproxy.ErrNoConnection.New("", err)
	}
	if resp.Status != nodeproxy.StatusOK {
		return nodeproxy.ErrGetBlocksFailed.New("get_tx_pool", nil)
	}

	previous := p.Store.UnconfirmedInbounds()
	next := make(map[codec.Hash]txstore.UnconfirmedInbound, len(resp.Txs))

	for _, tx := range resp.Txs {
		txHash := p.Codec.TxHash(tx)

		if carried, ok := previous[txHash]; ok {
			next[txHash] = carried
			continue
		}

		entry, owned, err := p.discover(tx, txHash)
		if err != nil {
			p.log().Debugf("pool tx %s: %s", txHash, err.Message())
			continue
		}
		if owned {
			next[txHash] = entry
			p.Callbacks.transfer2(entry.Info)
		}
	}

	p.Store.SetUnconfirmedInbounds(next)
	return nil
}

// discover is the "lightweight discovery" of spec.md §4.3 step 3: parse
// extra, lookup_acc_outs, and a quick spend-presence check -- a tx that
// spends any of our own outputs is excluded (it is an outbound, tracked
// separately via UnconfirmedOutbound).
func (p *PoolScanner) discover(tx codec.Transaction, txHash codec.Hash) (txstore.UnconfirmedInbound, bool, er.R) {
	txPubKeyBytes, ok := p.Codec.ParseTxExtra(tx.Extra)
	if !ok {
		return txstore.UnconfirmedInbound{}, false, codec.ErrTxExtraParse.Default()
	}
	txPubKey := cryptoapi.PublicKey(txPubKeyBytes)

	outputs := make([]cryptoapi.OutputTarget, len(tx.Vout))
	for i, o := range tx.Vout {
		outputs[i] = cryptoapi.OutputTarget{Key: cryptoapi.PublicKey(o.Target.Key)}
	}
	account := p.Store.Account().Keys
	ownedIndices, _, err := p.Crypto.LookupAccountOutputs(account, txPubKey, outputs)
	if err != nil {
		return txstore.UnconfirmedInbound{}, false, ErrAccOutsLookup.New("", err)
	}
	if len(ownedIndices) == 0 {
		return txstore.UnconfirmedInbound{}, false, nil
	}

	for _, in := range tx.Vin {
		if in.Kind == codec.TxInToKeyKind && p.Store.HasKeyImage(cryptoapi.KeyImage(in.KeyImage)) {
			// This tx spends one of our own confirmed outputs: it is an
			// outbound, not a candidate UnconfirmedInbound.
			return txstore.UnconfirmedInbound{}, false, nil
		}
	}

	var amount uint64
	for _, idx := range ownedIndices {
		amount += tx.Vout[idx].Amount
	}
	pid, hasPid := p.Codec.GetPaymentIDFromExtra(tx.Extra)

	return txstore.UnconfirmedInbound{Info: txstore.WalletTransferInfo{
		TxHash:       txHash,
		Amount:       amount,
		Outbound:     false,
		PaymentID:    pid,
		HasPaymentID: hasPid,
	}}, true, nil
}
