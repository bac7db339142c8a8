// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txstore

import (
	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/cryptoapi"
	"github.com/hmel/boolberry/er"
)

// AppendBlock records a new block hash at the current tip (spec §4.2 step
// 4's "append block.hash; increment local_height"). It never runs
// OutputDiscovery itself — walletcore.ChainScanner does that and calls
// AddTransfer/MarkSpent before calling AppendBlock for the same
// height, so that a half-applied block can never be observed between the
// two.
func (s *Store) AppendBlock(hash codec.Hash) {
	s.blockHashes = append(s.blockHashes, hash)
}

// AddTransfer inserts a newly discovered TransferRecord, maintaining the
// (tx_hash, internal_output_index) and key_image indexes. It is the only
// way new entries enter transfers/key_images, so the bijection invariant
// (P1) only needs to be established here and in DetachBlockchain.
func (s *Store) AddTransfer(t TransferRecord) er.R {
	if t.BlockHeight > s.LocalHeight() {
		return ErrBadHeight.New("transfer height exceeds local_height", nil)
	}
	tk := transferKey{txHash: t.TxHash, index: t.InternalOutputIndex}
	if _, exists := s.transferIdx[tk]; exists {
		return ErrDuplicateOutput.Default()
	}
	if _, exists := s.keyImages[t.KeyImage]; exists {
		// OutputDiscovery is responsible for checking HasKeyImage and
		// aborting the whole transaction before calling AddTransfer; this
		// is a defensive backstop, not the primary enforcement point.
		return ErrDuplicateKeyImage.Default()
	}
	idx := len(s.transfers)
	s.transfers = append(s.transfers, t)
	s.transferIdx[tk] = idx
	s.keyImages[t.KeyImage] = idx
	return nil
}

// MarkSpent flips a TransferRecord's Spent flag by key image (spec §4.1
// step 5). ok is false if ki is not indexed.
func (s *Store) MarkSpent(ki cryptoapi.KeyImage, spent bool) bool {
	idx, ok := s.keyImages[ki]
	if !ok {
		return false
	}
	s.transfers[idx].Spent = spent
	return true
}

// AddPaymentRecord files a PaymentRecord under id (spec §3 PaymentRecord,
// multi-map by payment_id).
func (s *Store) AddPaymentRecord(id codec.PaymentID, rec PaymentRecord) er.R {
	if rec.BlockHeight > s.LocalHeight() {
		return ErrBadHeight.New("payment height exceeds local_height", nil)
	}
	s.payments[id] = append(s.payments[id], rec)
	return nil
}

// AppendHistory appends one entry to the append-only confirmed-transfer
// log. Never called by DetachBlockchain — history only grows (spec §4.2,
// §9 open question).
func (s *Store) AppendHistory(wti WalletTransferInfo) {
	s.history = append(s.history, wti)
}

// StashTxKey records the secret tx key used to construct a tx this wallet
// sent, for later authorship proofs (spec §9 TxKeys, "never pruned").
func (s *Store) StashTxKey(txHash codec.Hash, key cryptoapi.SecretKey) {
	s.txKeys[txHash] = key
}

// InsertUnconfirmedOutbound records a just-submitted (or do-not-relay)
// spend (spec §3 UnconfirmedOutbound lifecycle). It is an error to insert
// one whose hash is already present among confirmed transfers' tx hashes in
// a well-formed caller, but txstore does not itself scan for that — the
// disjointness invariant (P3) is maintained by walletcore's
// OutputDiscovery.ProcessTransaction removing the unconfirmed entry the
// moment the same hash is seen on-chain.
func (s *Store) InsertUnconfirmedOutbound(txHash codec.Hash, rec UnconfirmedOutbound) {
	s.unconfirmedOut[txHash] = rec
}

// RemoveUnconfirmedOutbound evicts an unconfirmed outbound entry, called
// when the same tx_hash is seen in a confirmed block (spec §3).
func (s *Store) RemoveUnconfirmedOutbound(txHash codec.Hash) (UnconfirmedOutbound, bool) {
	rec, ok := s.unconfirmedOut[txHash]
	if ok {
		delete(s.unconfirmedOut, txHash)
	}
	return rec, ok
}

// SetUnconfirmedInbounds wholly replaces unconfirmed_in_transfers, the
// snapshot-then-swap PoolScanner performs on every tick (spec §4.3 step 2,
// §7 "scan_tx_pool errors ... leave unconfirmed_in_transfers as pre-call").
func (s *Store) SetUnconfirmedInbounds(entries map[codec.Hash]UnconfirmedInbound) {
	s.unconfirmedIn = entries
}

// DetachBlockchain truncates local history back to fromHeight (exclusive),
// the reorg-reconciliation primitive of spec §4.2. It removes every
// TransferRecord and PaymentRecord at height >= fromHeight, their key_image
// index entries, and the block_hashes/local_height suffix. transfer_history
// and tx_keys are untouched, per spec §4.2 and the §9 open question.
func (s *Store) DetachBlockchain(fromHeight uint64) er.R {
	if fromHeight > s.LocalHeight() {
		return ErrBadHeight.New("detach height exceeds local_height", nil)
	}

	keep := 0
	for keep < len(s.transfers) && s.transfers[keep].BlockHeight < fromHeight {
		keep++
	}
	for i := keep; i < len(s.transfers); i++ {
		t := s.transfers[i]
		if idx, ok := s.keyImages[t.KeyImage]; !ok || idx != i {
			// Inconsistent index: log-and-proceed per spec §4.2 ("log if
			// inconsistent but proceed"); walletcore's logger records this,
			// txstore itself has no logger dependency so it just continues.
			_ = idx
		}
		delete(s.keyImages, t.KeyImage)
		delete(s.transferIdx, transferKey{txHash: t.TxHash, index: t.InternalOutputIndex})
	}
	s.transfers = s.transfers[:keep]

	for id, recs := range s.payments {
		kept := recs[:0:0]
		for _, r := range recs {
			if r.BlockHeight < fromHeight {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.payments, id)
		} else {
			s.payments[id] = kept
		}
	}

	if fromHeight > uint64(len(s.blockHashes)) {
		return ErrDiscontinuousChain.Default()
	}
	s.blockHashes = s.blockHashes[:fromHeight]
	return nil
}

// Clear resets the store to its empty, pre-genesis state, keeping the
// account secrets, for the resync-from-genesis fallback of spec §4.5
// ("load" mismatch handling) and the explicit Clear/Rescan operation
// supplementing it (SPEC_FULL §3).
func (s *Store) Clear() {
	s.blockHashes = nil
	s.transfers = nil
	s.transferIdx = make(map[transferKey]int)
	s.keyImages = make(map[cryptoapi.KeyImage]int)
	s.payments = make(map[codec.PaymentID][]PaymentRecord)
	s.unconfirmedOut = make(map[codec.Hash]UnconfirmedOutbound)
	s.unconfirmedIn = make(map[codec.Hash]UnconfirmedInbound)
	// history and txKeys are deliberately preserved: history is a
	// human-facing append-only log (spec §9) and tx_keys is never pruned.
}

// Balance is Σ unspent transfer amounts + Σ change of unconfirmed outbound
// txs (spec §4.6, §3 invariant 6).
func (s *Store) Balance() uint64 {
	var total uint64
	for _, t := range s.transfers {
		if !t.Spent {
			total += t.Amount
		}
	}
	for _, u := range s.unconfirmedOut {
		total += u.ChangeAmount
	}
	return total
}
