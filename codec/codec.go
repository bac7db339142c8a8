// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package codec declares the Codec façade spec.md §1/§6 carves out of the
// wallet engine: wire (de)serialization of blocks and transactions. The
// engine consumes parsed Block/Transaction values and a handful of derived
// facts (hash, fee, payment id, tx_pub_key) through this interface; it
// never touches raw wire bytes itself.
package codec

import "github.com/hmel/boolberry/er"

// Hash is a 32-byte block or transaction id.
type Hash [32]byte

func (h Hash) String() string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, c := range h {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}

// PaymentID is the opaque correlation id carried in a tx's extra field.
type PaymentID [32]byte

// TxOutTarget is a transaction output's one-time destination key.
type TxOutTarget struct {
	Key [32]byte
}

// TxOut is one output of a transaction.
type TxOut struct {
	Amount uint64
	Target TxOutTarget
}

// TxInKind tags the variant of a transaction input (design note, spec.md
// §9: "Variant inputs become a tagged sum with exhaustive matching").
type TxInKind int

const (
	// TxInGenKind is a coinbase (miner tx) input.
	TxInGenKind TxInKind = iota
	// TxInToKeyKind spends a previously-created output by key image.
	TxInToKeyKind
	// TxInOtherKind is any input variant this module does not interpret
	// (e.g. a multisig input); it is carried opaquely and never matched
	// against key_images.
	TxInOtherKind
)

// TxIn is one input of a transaction. Only ToKey inputs are interpreted by
// OutputDiscovery (spec.md §4.1 step 5); the rest are skipped via an
// explicit branch, not a silent cast-or-ignore.
type TxIn struct {
	Kind TxInKind

	// Height is set when Kind == TxInGenKind.
	Height uint64

	// Amount, KeyOffsets, KeyImage are set when Kind == TxInToKeyKind.
	Amount     uint64
	KeyOffsets []uint64
	KeyImage   [32]byte
}

// Transaction is a parsed CryptoNote transaction.
type Transaction struct {
	Version    uint64
	UnlockTime uint64
	Vin        []TxIn
	Vout       []TxOut
	Extra      []byte

	// Blob is the original wire bytes, retained verbatim because
	// TransferRecord.Tx (spec.md §3) stores the full transaction and a
	// resubmission (resend_unconfirmed) must relay the exact bytes that
	// were originally broadcast.
	Blob []byte
}

// Block is a parsed block: a miner (coinbase) transaction plus the hashes
// of the regular transactions it references.
type Block struct {
	Timestamp  int64
	PrevID     Hash
	MinerTx    Transaction
	TxHashes   []Hash
	Blob       []byte
}

// Codec is the thin façade over the node's wire format.
type Codec interface {
	// ParseBlock deserializes a block_blob returned by get_blocks_fast.
	ParseBlock(blob []byte) (Block, er.R)

	// ParseTx deserializes one tx_blob.
	ParseTx(blob []byte) (Transaction, er.R)

	// TxHash computes a transaction's id.
	TxHash(tx Transaction) Hash

	// BlockHash computes a block's id.
	BlockHash(b Block) Hash

	// GetTxFee returns a transaction's network fee (sum(vin) - sum(vout),
	// computed by the node-side codec because the input amounts a ring
	// signature references are not reconstructable from the blob alone).
	GetTxFee(tx Transaction) uint64

	// GetPaymentIDFromExtra extracts a payment id from a transaction's
	// extra field, if one is present.
	GetPaymentIDFromExtra(extra []byte) (id PaymentID, ok bool)

	// ParseTxExtra extracts the one-time transaction public key
	// (tx_pub_key) from a transaction's extra field.
	ParseTxExtra(extra []byte) (txPubKey [32]byte, ok bool)
}

// ErrType is the error family for malformed wire data (spec.md §7:
// TxParseError, BlockParseError, TxExtraParseError).
var ErrType = er.NewErrorType("codec.Err")

var (
	ErrTxParse      = ErrType.CodeWithDetail("ErrTxParse", "failed to parse transaction blob")
	ErrBlockParse   = ErrType.CodeWithDetail("ErrBlockParse", "failed to parse block blob")
	ErrTxExtraParse = ErrType.CodeWithDetail("ErrTxExtraParse", "failed to parse transaction extra field")
)
