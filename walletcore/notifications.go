// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/txstore"
)

// Callbacks is the notification sink a Wallet invokes synchronously from
// inside whichever mutating operation triggered the event (spec.md §5,
// §6). Every field is nullable; a zero Callbacks does nothing. Callbacks
// must not call back into the Wallet they were invoked from (spec.md §5:
// "callbacks must not re-enter the engine").
type Callbacks struct {
	OnMoneyReceived func(height uint64, tx codec.Transaction, outIndex int)
	OnMoneySpent    func(height uint64, tx codec.Transaction, outIndex int, spendingTx codec.Hash)
	OnNewBlock      func(height uint64, block codec.Block)
	OnTransfer2     func(wti txstore.WalletTransferInfo)
}

func (c Callbacks) moneyReceived(height uint64, tx codec.Transaction, outIndex int) {
	if c.OnMoneyReceived != nil {
		c.OnMoneyReceived(height, tx, outIndex)
	}
}

func (c Callbacks) moneySpent(height uint64, tx codec.Transaction, outIndex int, spendingTx codec.Hash) {
	if c.OnMoneySpent != nil {
		c.OnMoneySpent(height, tx, outIndex, spendingTx)
	}
}

func (c Callbacks) newBlock(height uint64, block codec.Block) {
	if c.OnNewBlock != nil {
		c.OnNewBlock(height, block)
	}
}

func (c Callbacks) transfer2(wti txstore.WalletTransferInfo) {
	if c.OnTransfer2 != nil {
		c.OnTransfer2(wti)
	}
}
