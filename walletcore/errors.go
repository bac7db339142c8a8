// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletcore is the wallet engine itself: it wires cryptoapi,
// codec, nodeproxy and txstore together into OutputDiscovery, ChainScanner,
// PoolScanner, TransferBuilder, KeyStore/Persistence and the
// balances/queries surface spec.md §4 describes, under the single-threaded
// cooperative concurrency model of spec.md §5.
package walletcore

import "github.com/hmel/boolberry/er"

// Err collects the wallet-engine-level error kinds spec.md §7 enumerates
// that are not already owned by codec/nodeproxy/txstore.
var Err = er.NewErrorType("walletcore.Err")

var (
	ErrAccOutsLookup     = Err.CodeWithDetail("ErrAccOutsLookup", "account output lookup failed")
	ErrUnexpectedTxInType = Err.CodeWithDetail("ErrUnexpectedTxInType", "unexpected transaction input variant")
	ErrTxTooBig          = Err.CodeWithDetail("ErrTxTooBig", "transaction exceeds maximum blob size")
	ErrTxRejected        = Err.CodeWithDetail("ErrTxRejected", "transaction rejected by daemon")
	ErrNotEnoughMoney    = Err.CodeWithDetail("ErrNotEnoughMoney", "not enough unlocked funds to cover the requested amount")
	ErrInvalidPassword   = Err.CodeWithDetail("ErrInvalidPassword", "invalid password")
	ErrFileExists        = Err.CodeWithDetail("ErrFileExists", "file already exists")
	ErrFileNotFound      = Err.CodeWithDetail("ErrFileNotFound", "file not found")
	ErrFileRead          = Err.CodeWithDetail("ErrFileRead", "failed to read file")
	ErrFileSave          = Err.CodeWithDetail("ErrFileSave", "failed to save file")
	ErrInternal          = Err.CodeWithDetail("ErrInternal", "internal wallet error")
	ErrGetOutIndices     = Err.CodeWithDetail("ErrGetOutIndices", "failed to fetch global output indexes")
)
