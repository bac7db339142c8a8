// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package memnode is an in-memory nodeproxy.NodeProxy used by this module's
// own tests to simulate a daemon: a growable chain of blocks, a mutable
// mempool, and knobs to inject BUSY/error responses and reorgs without a
// real network.
package memnode

import (
	"context"
	"sync"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/er"
	"github.com/hmel/boolberry/nodeproxy"
)

// Node is a fake daemon. Zero value is an empty chain at height 0.
type Node struct {
	// Codec computes block identity for locator matching. Tests must set
	// this to the same Codec the wallet engine under test uses, so the
	// fake node and the engine agree on what a block hash is.
	Codec codec.Codec

	mu sync.Mutex

	blocks  []nodeproxy.BlockEntry // index i is height i
	pool    []codec.Transaction
	aliases map[string]string

	// busyCount, when > 0, makes the next busyCount calls to GetBlocksFast
	// report StatusBusy instead of serving the request (spec.md §4.2's
	// bounded-retry scenario).
	busyCount int

	// failNext, when true, makes the next SendRawTx or RelayTxs call reject
	// its submission.
	failNext bool
}

var _ nodeproxy.NodeProxy = (*Node)(nil)

// AppendBlock adds a block at the current tip height.
func (n *Node) AppendBlock(entry nodeproxy.BlockEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocks = append(n.blocks, entry)
}

// Reorg truncates the chain so the first divergent block is at wallet
// height walletHeight, simulating a daemon that forked away from
// previously-announced blocks (spec.md §4.2 "Reorg detection"). walletHeight
// is in the same 1-based-after-genesis numbering GetBlocksFast reports
// (array index i == wallet height i+1).
func (n *Node) Reorg(walletHeight uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	keep := int(walletHeight) - 1
	if keep < 0 {
		keep = 0
	}
	if keep < len(n.blocks) {
		n.blocks = n.blocks[:keep]
	}
}

// SetPool replaces the simulated mempool contents wholesale.
func (n *Node) SetPool(txs []codec.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pool = txs
}

// InjectBusy makes the next `count` GetBlocksFast calls report BUSY.
func (n *Node) InjectBusy(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.busyCount = count
}

// RejectNextTx makes the next SendRawTx or RelayTxs call fail.
func (n *Node) RejectNextTx() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failNext = true
}

// SetAlias registers an alias for address, served back by
// GetAliasesByAddress.
func (n *Node) SetAlias(address, alias string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.aliases == nil {
		n.aliases = make(map[string]string)
	}
	n.aliases[address] = alias
}

// GetBlocksFast finds the first locator entry present in the simulated
// chain and returns every block from there forward, mirroring the real
// daemon's short_chain_history handling (spec.md §4.2).
//
// n.blocks is indexed by node-local array position; since callers always
// start their local chain with a genesis entry this fake daemon never
// tracks (height 0 is synthetic, per Store.New/Generate), array index i
// always corresponds to wallet height i+1.
func (n *Node) GetBlocksFast(ctx context.Context, req nodeproxy.BlocksFastRequest) (nodeproxy.BlocksFastResponse, er.R) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.busyCount > 0 {
		n.busyCount--
		return nodeproxy.BlocksFastResponse{Status: nodeproxy.StatusBusy}, nil
	}

	start := 0
	for _, id := range req.BlockIDs {
		if idx := n.blockHeightByID(id); idx >= 0 {
			start = idx + 1
			break
		}
	}

	if start > len(n.blocks) {
		start = len(n.blocks)
	}
	out := make([]nodeproxy.BlockEntry, len(n.blocks)-start)
	copy(out, n.blocks[start:])

	return nodeproxy.BlocksFastResponse{
		Status:        nodeproxy.StatusOK,
		StartHeight:   uint64(start + 1),
		CurrentHeight: uint64(len(n.blocks) + 1),
		Blocks:        out,
	}, nil
}

func (n *Node) blockHeightByID(id codec.Hash) int {
	if n.Codec == nil {
		return -1
	}
	for i, e := range n.blocks {
		if n.Codec.BlockHash(e.Block) == id {
			return i
		}
	}
	return -1
}

// GetTxGlobalOutputsIndexes returns sequential placeholder indexes; this
// fake daemon has no global output table, so it just hands back 0..N-1 for
// a tx with N outputs, which is sufficient for tests that only check that
// indexes are threaded through unchanged.
func (n *Node) GetTxGlobalOutputsIndexes(ctx context.Context, req nodeproxy.TxGlobalOutputsIndexesRequest) (nodeproxy.TxGlobalOutputsIndexesResponse, er.R) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Codec == nil {
		return nodeproxy.TxGlobalOutputsIndexesResponse{Status: nodeproxy.StatusError}, nodeproxy.ErrGetBlocksFailed.New("no codec configured", nil)
	}
	for _, e := range n.blocks {
		all := append([]codec.Transaction{e.Block.MinerTx}, e.Txs...)
		for _, tx := range all {
			if n.Codec.TxHash(tx) == req.TxHash {
				idx := make([]uint64, len(tx.Vout))
				for i := range idx {
					idx[i] = uint64(i)
				}
				return nodeproxy.TxGlobalOutputsIndexesResponse{Status: nodeproxy.StatusOK, Indexes: idx}, nil
			}
		}
	}
	return nodeproxy.TxGlobalOutputsIndexesResponse{Status: nodeproxy.StatusError}, nodeproxy.ErrGetBlocksFailed.New("unknown tx", nil)
}

// GetInfo reports the simulated chain's height. CurrentBlocksMedian is a
// fixed stand-in value, large enough that UpdateTxSizeLimit callers get a
// sane (non-error) limit back.
func (n *Node) GetInfo(ctx context.Context) (nodeproxy.InfoResponse, er.R) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h := uint64(len(n.blocks))
	return nodeproxy.InfoResponse{Status: nodeproxy.StatusOK, Height: h, TargetHeight: h, CurrentBlocksMedian: 100000}, nil
}

// GetTxPool returns the simulated mempool.
func (n *Node) GetTxPool(ctx context.Context) (nodeproxy.TxPoolResponse, er.R) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]codec.Transaction, len(n.pool))
	copy(out, n.pool)
	return nodeproxy.TxPoolResponse{Status: nodeproxy.StatusOK, Txs: out}, nil
}

// SendRawTx appends a Transaction carrying only txBlob (not parsed) to the
// pool, unless RejectNextTx armed a rejection.
func (n *Node) SendRawTx(ctx context.Context, txBlob []byte) (nodeproxy.SendRawTxResponse, er.R) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNext {
		n.failNext = false
		return nodeproxy.SendRawTxResponse{Status: nodeproxy.StatusError, NotRelayed: true, Reason: "rejected by test"}, nil
	}
	n.pool = append(n.pool, codec.Transaction{Blob: txBlob})
	return nodeproxy.SendRawTxResponse{Status: nodeproxy.StatusOK}, nil
}

// RelayTxs appends every blob to the pool in one call, the fake-daemon
// equivalent of resend_unconfirmed's batched resubmission.
func (n *Node) RelayTxs(ctx context.Context, req nodeproxy.RelayTxsRequest) (nodeproxy.RelayTxsResponse, er.R) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNext {
		n.failNext = false
		return nodeproxy.RelayTxsResponse{Status: nodeproxy.StatusError}, nil
	}
	for _, blob := range req.RawTxs {
		n.pool = append(n.pool, codec.Transaction{Blob: blob})
	}
	return nodeproxy.RelayTxsResponse{Status: nodeproxy.StatusOK}, nil
}

// GetAliasesByAddress serves back whatever SetAlias registered, or an empty
// alias for an unknown address (mirroring the real daemon's behavior of
// returning successfully with a blank alias rather than an error).
func (n *Node) GetAliasesByAddress(ctx context.Context, address string) (nodeproxy.GetAliasesByAddressResponse, er.R) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return nodeproxy.GetAliasesByAddressResponse{Status: nodeproxy.StatusOK, Alias: n.aliases[address]}, nil
}

// ValidateSignedText always reports OK; this fake daemon has no signature
// verification of its own to perform.
func (n *Node) ValidateSignedText(ctx context.Context, req nodeproxy.ValidateSignedTextRequest) (nodeproxy.ValidateSignedTextResponse, er.R) {
	return nodeproxy.ValidateSignedTextResponse{Status: "OK"}, nil
}
