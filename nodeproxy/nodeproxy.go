// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package nodeproxy declares the `node` capability spec.md §1/§6 carves out
// of the wallet engine: everything the engine needs from a remote daemon.
// The engine calls through NodeProxy only; memnode ships an in-memory
// reference implementation for this module's own tests.
package nodeproxy

import (
	"context"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/er"
)

// Status is the daemon-reported result code carried on most responses
// (spec.md §6: "status: OK | BUSY | ...").
type Status string

const (
	StatusOK    Status = "OK"
	StatusBusy  Status = "BUSY"
	StatusError Status = "ERROR"
)

// BlocksFastRequest is get_blocks_fast's request: a short chain history
// locator (spec.md §4.2 ShortChainHistory) plus a start height hint.
type BlocksFastRequest struct {
	BlockIDs     []codec.Hash
	StartHeight  uint64
	NoMinerTx    bool
}

// BlockEntry pairs a block with the tx blobs it references, in TxHashes
// order, the way get_blocks_fast returns them.
type BlockEntry struct {
	Block       codec.Block
	Txs         []codec.Transaction
}

// BlocksFastResponse is get_blocks_fast's response.
type BlocksFastResponse struct {
	Status      Status
	StartHeight uint64
	CurrentHeight uint64
	Blocks      []BlockEntry
}

// TxGlobalOutputsIndexesRequest is get_tx_global_outputs_indexes's request.
type TxGlobalOutputsIndexesRequest struct {
	TxHash codec.Hash
}

// TxGlobalOutputsIndexesResponse returns the global output index assigned
// to each output of the requested transaction, needed to build key offsets
// for a spend (spec.md §4.4).
type TxGlobalOutputsIndexesResponse struct {
	Status  Status
	Indexes []uint64
}

// InfoResponse is get_info's response: the chain's current tip height
// (not read by the wallet engine itself) and CurrentBlocksMedian, which
// feeds update_current_tx_limit's
// upper_transaction_size_limit computation (TransferBuilder.UpdateTxSizeLimit).
type InfoResponse struct {
	Status              Status
	Height              uint64
	TargetHeight        uint64
	CurrentBlocksMedian uint64
}

// TxPoolResponse is get_transaction_pool's response: the set of
// transactions currently sitting unconfirmed in the daemon's mempool
// (spec.md §4.3).
type TxPoolResponse struct {
	Status Status
	Txs    []codec.Transaction
}

// SendRawTxResponse is send_raw_tx's / relay's response.
type SendRawTxResponse struct {
	Status      Status
	Reason      string
	NotRelayed  bool
}

// RelayTxsRequest is relay_txs's request: the raw blobs of every pending
// unconfirmed outbound, batched into one call the way resend_unconfirmed
// does it rather than one send_raw_tx per tx.
type RelayTxsRequest struct {
	RawTxs [][]byte
}

// RelayTxsResponse is relay_txs's response.
type RelayTxsResponse struct {
	Status Status
}

// GetAliasesByAddressResponse is get_aliases_by_address's response: the
// human-readable alias (if any) registered for an address, attached to an
// UnconfirmedOutbound purely for display (spec.md §6, wallet2's
// get_alias_for_address).
type GetAliasesByAddressResponse struct {
	Status Status
	Alias  string
}

// ValidateSignedTextRequest is validate_signed_text's request: an address,
// the signed text, and the signature to check against it.
type ValidateSignedTextRequest struct {
	Address   string
	Text      string
	Signature string
}

// ValidateSignedTextResponse is validate_signed_text's response; Status
// carries the daemon's validation verdict directly, as wallet2 treats it
// (it returns res.status unmodified, not a separate bool).
type ValidateSignedTextResponse struct {
	Status string
}

// NodeProxy is every RPC the wallet engine issues against a remote daemon.
// Every method takes a context so a blocked call can be cancelled by a
// caller-owned deadline, per the teacher's convention for network calls.
type NodeProxy interface {
	// GetBlocksFast is the chain-scan primitive (spec.md §4.2): given a
	// locator, returns blocks (with their transactions) from the first
	// common ancestor forward.
	GetBlocksFast(ctx context.Context, req BlocksFastRequest) (BlocksFastResponse, er.R)

	// GetTxGlobalOutputsIndexes resolves global output indexes for a
	// confirmed transaction, used when building a spend's key offsets.
	GetTxGlobalOutputsIndexes(ctx context.Context, req TxGlobalOutputsIndexesRequest) (TxGlobalOutputsIndexesResponse, er.R)

	// GetInfo reports the daemon's current chain height.
	GetInfo(ctx context.Context) (InfoResponse, er.R)

	// GetTxPool returns the daemon's current mempool contents.
	GetTxPool(ctx context.Context) (TxPoolResponse, er.R)

	// SendRawTx broadcasts a signed transaction blob.
	SendRawTx(ctx context.Context, txBlob []byte) (SendRawTxResponse, er.R)

	// RelayTxs resubmits a batch of already-constructed transaction blobs,
	// the primitive resend_unconfirmed uses to rebroadcast every pending
	// outbound in one round trip instead of one send_raw_tx per tx.
	RelayTxs(ctx context.Context, req RelayTxsRequest) (RelayTxsResponse, er.R)

	// GetAliasesByAddress resolves the human-readable alias registered for
	// an address, if any (wallet2's get_alias_for_address).
	GetAliasesByAddress(ctx context.Context, address string) (GetAliasesByAddressResponse, er.R)

	// ValidateSignedText asks the daemon to verify a signature produced by
	// sign_text against the given address and text.
	ValidateSignedText(ctx context.Context, req ValidateSignedTextRequest) (ValidateSignedTextResponse, er.R)
}

// ErrType collects the node-proxy failure modes spec.md §7 names.
var ErrType = er.NewErrorType("nodeproxy.Err")

var (
	// ErrNoConnection is returned when the daemon cannot be reached at all.
	ErrNoConnection = ErrType.CodeWithDetail("ErrNoConnection", "no connection to daemon")
	// ErrDaemonBusy mirrors a BUSY status: the caller should back off and retry.
	ErrDaemonBusy = ErrType.CodeWithDetail("ErrDaemonBusy", "daemon is busy")
	// ErrGetBlocksFailed wraps any non-OK get_blocks_fast response.
	ErrGetBlocksFailed = ErrType.CodeWithDetail("ErrGetBlocksFailed", "get_blocks_fast failed")
	// ErrTxRejected wraps a send_raw_tx response the daemon refused to relay.
	ErrTxRejected = ErrType.CodeWithDetail("ErrTxRejected", "transaction rejected by daemon")
)
