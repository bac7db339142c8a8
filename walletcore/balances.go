// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"time"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/txstore"
)

// These mirror the original network's cryptonote_config.h constants
// (unavailable in this module's retrieval set; values chosen to match the
// relationships spec.md §8 scenario 6 exercises).
const (
	// defaultTxSpendableAge is the minimum depth of a transfer, regardless
	// of unlock_time: it becomes spendable once local_height reaches
	// block_height + defaultTxSpendableAge (spec.md §4.6).
	defaultTxSpendableAge = 10

	// maxBlockNumber is the threshold separating a block-height
	// interpretation of unlock_time from a Unix-time interpretation.
	maxBlockNumber = 500000000

	// lockedTxAllowedDeltaBlocks/Seconds give is_tx_spendtime_unlocked a
	// small grace window, matching the original's "allowed delta" fields.
	lockedTxAllowedDeltaBlocks  = 1
	lockedTxAllowedDeltaSeconds = 7200
)

// isTxSpendtimeUnlocked is is_tx_spendtime_unlocked (spec.md §4.6).
func isTxSpendtimeUnlocked(unlockTime uint64, localHeight uint64, now int64) bool {
	if unlockTime < maxBlockNumber {
		if localHeight == 0 {
			return false
		}
		return localHeight-1+lockedTxAllowedDeltaBlocks >= unlockTime
	}
	return uint64(now)+lockedTxAllowedDeltaSeconds >= unlockTime
}

// isTransferUnlocked is is_transfer_unlocked (spec.md §4.6): both the
// tx-level unlock_time and the minimum-age confirmation depth must be
// satisfied.
func isTransferUnlocked(t txstore.TransferRecord, localHeight uint64) bool {
	if !isTxSpendtimeUnlocked(t.Tx.UnlockTime, localHeight, time.Now().Unix()) {
		return false
	}
	return t.BlockHeight+defaultTxSpendableAge <= localHeight
}

// Balances exposes the read-only balance/history/payment queries of
// spec.md §4.6 over a Store.
type Balances struct {
	Store *txstore.Store
}

// Balance is balance() (spec.md §4.6, §3 invariant 6): unspent transfers
// plus unsettled change.
func (b *Balances) Balance() uint64 {
	return b.Store.Balance()
}

// UnlockedBalance is unlocked_balance(): the subset of Balance() whose
// transfers pass IsTransferUnlocked. Unconfirmed change is never counted as
// unlocked, matching the source's treatment of speculative change.
func (b *Balances) UnlockedBalance() uint64 {
	var total uint64
	height := b.Store.LocalHeight()
	for _, t := range b.Store.Transfers() {
		if !t.Spent && isTransferUnlocked(t, height) {
			total += t.Amount
		}
	}
	return total
}

// IsTransferUnlocked exposes is_transfer_unlocked for external callers
// (e.g. TransferBuilder already uses the unexported form internally).
func (b *Balances) IsTransferUnlocked(t txstore.TransferRecord) bool {
	return isTransferUnlocked(t, b.Store.LocalHeight())
}

// IsTxSpendtimeUnlocked exposes is_tx_spendtime_unlocked.
func (b *Balances) IsTxSpendtimeUnlocked(unlockTime uint64) bool {
	return isTxSpendtimeUnlocked(unlockTime, b.Store.LocalHeight(), time.Now().Unix())
}

// TransfersRequest parameterizes GetTransfers (spec.md §4.6 get_transfers).
type TransfersRequest struct {
	MinHeight     uint64
	IncludePool   bool
}

// GetTransfers is get_transfers: walks history newest-first, terminating
// early once height drops below MinHeight, optionally appending pool
// entries.
func (b *Balances) GetTransfers(req TransfersRequest) []txstore.WalletTransferInfo {
	history := b.Store.History()
	var out []txstore.WalletTransferInfo
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].BlockHeight < req.MinHeight {
			break
		}
		out = append(out, history[i])
	}
	if req.IncludePool {
		for _, u := range b.Store.UnconfirmedInbounds() {
			out = append(out, u.Info)
		}
	}
	return out
}

// GetPayments is get_payments(pid, min_h): a multimap range lookup filtered
// to BlockHeight > minHeight.
func (b *Balances) GetPayments(id codec.PaymentID, minHeight uint64) []txstore.PaymentRecord {
	var out []txstore.PaymentRecord
	for _, r := range b.Store.Payments(id) {
		if r.BlockHeight > minHeight {
			out = append(out, r)
		}
	}
	return out
}
