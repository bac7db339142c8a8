// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txstore owns the wallet engine's mutable ledger: discovered
// transfers, the key-image index that backs them, the local block-hash
// chain, payment records, and unconfirmed (pool) activity. Every mutation
// that crosses a public method here preserves the global invariants of
// spec §3: block_hashes stays contiguous, transfers stay height-ordered and
// below local_height, key_images stays the exact inverse index of
// transfers, and confirmed/unconfirmed tx-hash sets stay disjoint.
//
// txstore is pure bookkeeping: it has no opinion on crypto, wire formats or
// network I/O. Those live in cryptoapi, codec and nodeproxy; walletcore
// wires them together and drives txstore's mutation methods.
package txstore

import (
	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/cryptoapi"
)

// Account is the secret bundle a wallet engine is instantiated with.
// SpendSecretKey is the zero value in view-only mode.
type Account struct {
	Keys       cryptoapi.AccountKeys
	CreatedAt  int64 // Unix seconds; blocks older than CreatedAt-86400 are skipped.
}

// TransferRecord is one discovered incoming output (spec §3).
type TransferRecord struct {
	BlockHeight         uint64
	GlobalOutputIndex   uint64
	InternalOutputIndex int
	Tx                  codec.Transaction
	TxHash              codec.Hash
	KeyImage            cryptoapi.KeyImage
	Spent               bool
	Amount              uint64

	// MixAttr records the ring-size compatibility attribute the original
	// output was created with, consulted by select_transfers to exclude
	// transfers whose mix_attr is incompatible with the requested mix
	// count of a new spend (spec §4.4 step 1).
	MixAttr uint32
}

// transferKey identifies a TransferRecord by its (tx_hash,
// internal_output_index) pair, the identity spec §3 requires to be unique.
type transferKey struct {
	txHash codec.Hash
	index  int
}

// PaymentRecord is one payment-id-tagged receipt (spec §3).
type PaymentRecord struct {
	TxHash      codec.Hash
	Amount      uint64
	BlockHeight uint64
	UnlockTime  uint64
}

// UnconfirmedOutbound is a submitted-but-not-yet-confirmed spend (spec §3).
type UnconfirmedOutbound struct {
	Tx             codec.Transaction
	ChangeAmount   uint64
	SentTime       int64
	Recipient      string
	RecipientAlias string
}

// WalletTransferInfo describes one transfer for history/pool display,
// shared shape for both confirmed (TransferHistory) and unconfirmed
// (UnconfirmedInbound) entries.
type WalletTransferInfo struct {
	TxHash      codec.Hash
	BlockHeight uint64 // 0 for pool-only entries
	Amount      uint64
	Outbound    bool
	PaymentID   codec.PaymentID
	HasPaymentID bool
}

// UnconfirmedInbound is an inbound transfer seen only in the mempool
// (spec §3's unconfirmed_in_transfers).
type UnconfirmedInbound struct {
	Info WalletTransferInfo
}

// Store holds the entire mutable ledger of a single account. All of its
// methods expect to be called under external serialization (spec §5): the
// store itself performs no locking.
type Store struct {
	account Account

	// blockHashes is the local chain, index i is height i, genesis at 0.
	blockHashes []codec.Hash

	transfers   []TransferRecord
	transferIdx map[transferKey]int     // (txHash, internalIndex) -> index into transfers
	keyImages   map[cryptoapi.KeyImage]int // keyImage -> index into transfers

	// payments is the multimap keyed by payment id.
	payments map[codec.PaymentID][]PaymentRecord

	unconfirmedOut map[codec.Hash]UnconfirmedOutbound
	unconfirmedIn  map[codec.Hash]UnconfirmedInbound

	history []WalletTransferInfo

	txKeys map[codec.Hash]cryptoapi.SecretKey
}

// New creates an empty store for account, with local_height == 0 (no
// genesis hash recorded yet — callers normally call AppendBlock with the
// genesis block immediately, or Generate/Restore does this for them).
func New(account Account) *Store {
	return &Store{
		account:        account,
		transferIdx:    make(map[transferKey]int),
		keyImages:      make(map[cryptoapi.KeyImage]int),
		payments:       make(map[codec.PaymentID][]PaymentRecord),
		unconfirmedOut: make(map[codec.Hash]UnconfirmedOutbound),
		unconfirmedIn:  make(map[codec.Hash]UnconfirmedInbound),
		txKeys:         make(map[codec.Hash]cryptoapi.SecretKey),
	}
}

// Account returns the account this store was built for.
func (s *Store) Account() Account { return s.account }

// LocalHeight is len(block_hashes) (spec §3 invariant 1).
func (s *Store) LocalHeight() uint64 { return uint64(len(s.blockHashes)) }

// BlockHash returns the hash recorded at height, or the zero hash if out of
// range.
func (s *Store) BlockHash(height uint64) codec.Hash {
	if height >= uint64(len(s.blockHashes)) {
		return codec.Hash{}
	}
	return s.blockHashes[height]
}

// Transfers returns every TransferRecord, in discovery order. The returned
// slice is a copy; callers must not rely on its identity surviving a
// detach.
func (s *Store) Transfers() []TransferRecord {
	out := make([]TransferRecord, len(s.transfers))
	copy(out, s.transfers)
	return out
}

// TransferByKeyImage looks up a transfer by its key image.
func (s *Store) TransferByKeyImage(ki cryptoapi.KeyImage) (TransferRecord, bool) {
	i, ok := s.keyImages[ki]
	if !ok {
		return TransferRecord{}, false
	}
	return s.transfers[i], true
}

// HasKeyImage reports whether ki is already indexed — the check
// OutputDiscovery's duplicate-key-image rule (spec §4.1 step 4) is built on.
func (s *Store) HasKeyImage(ki cryptoapi.KeyImage) bool {
	_, ok := s.keyImages[ki]
	return ok
}

// TxKey returns the stashed transaction secret key for a tx this wallet
// constructed, if any (spec §9 TxKeys, "never pruned").
func (s *Store) TxKey(txHash codec.Hash) (cryptoapi.SecretKey, bool) {
	k, ok := s.txKeys[txHash]
	return k, ok
}

// UnconfirmedOutbounds returns a copy of the pending-outbound map.
func (s *Store) UnconfirmedOutbounds() map[codec.Hash]UnconfirmedOutbound {
	out := make(map[codec.Hash]UnconfirmedOutbound, len(s.unconfirmedOut))
	for k, v := range s.unconfirmedOut {
		out[k] = v
	}
	return out
}

// UnconfirmedInbounds returns a copy of the pool-discovered inbound map.
func (s *Store) UnconfirmedInbounds() map[codec.Hash]UnconfirmedInbound {
	out := make(map[codec.Hash]UnconfirmedInbound, len(s.unconfirmedIn))
	for k, v := range s.unconfirmedIn {
		out[k] = v
	}
	return out
}

// History returns the append-only confirmed-transfer log (spec §3
// TransferHistory), oldest first.
func (s *Store) History() []WalletTransferInfo {
	out := make([]WalletTransferInfo, len(s.history))
	copy(out, s.history)
	return out
}

// Payments returns a copy of the records filed under id.
func (s *Store) Payments(id codec.PaymentID) []PaymentRecord {
	recs := s.payments[id]
	out := make([]PaymentRecord, len(recs))
	copy(out, recs)
	return out
}

// AllPayments returns a copy of the entire payment-id multimap, used by
// Persistence to dump and restore the whole wallet state.
func (s *Store) AllPayments() map[codec.PaymentID][]PaymentRecord {
	out := make(map[codec.PaymentID][]PaymentRecord, len(s.payments))
	for id, recs := range s.payments {
		cp := make([]PaymentRecord, len(recs))
		copy(cp, recs)
		out[id] = cp
	}
	return out
}
