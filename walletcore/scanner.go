// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/er"
	"github.com/hmel/boolberry/nodeproxy"
	"github.com/hmel/boolberry/txstore"
	"github.com/hmel/boolberry/walletlog"
)

const (
	// oldBlockSkewSeconds is subtracted from Account.CreatedAt to decide
	// which blocks are worth running discovery on (spec.md §3, §4.2 step
	// 4's "optimistic skip filter").
	oldBlockSkewSeconds = 86400

	// maxRefreshRetries bounds refresh()'s per-call retry loop (spec.md
	// §4.2, §7: "retried up to 3 times by the refresh loop").
	maxRefreshRetries = 3
)

// ChainScanner implements spec.md §4.2: it builds a short chain history
// locator, pulls blocks from the node, detects and reconciles reorgs, and
// applies new blocks through OutputDiscovery.
type ChainScanner struct {
	Node      nodeproxy.NodeProxy
	Codec     codec.Codec
	Store     *txstore.Store
	Discovery *OutputDiscovery
	Callbacks Callbacks
	Log       walletlog.Logger

	// Limiter paces successive pull_blocks calls inside Refresh's loop so a
	// long catch-up scan does not hammer the node once it starts returning
	// empty batches.
	Limiter *rate.Limiter
}

func (c *ChainScanner) log() walletlog.Logger {
	if c.Log == nil {
		return walletlog.Disabled
	}
	return c.Log
}

// ShortChainHistory is short_chain_history (spec.md §4.2): it returns a
// descending locator from the current tip toward genesis, dense for the
// last 10 heights then geometrically doubling the stride, always including
// genesis.
func (c *ChainScanner) ShortChainHistory() []codec.Hash {
	height := c.Store.LocalHeight()
	if height == 0 {
		return nil
	}

	var locator []codec.Hash
	h := height - 1
	locator = append(locator, c.Store.BlockHash(h))

	decrement := uint64(1)
	steps := 1
	for h > 0 {
		if steps > 10 {
			decrement *= 2
		}
		if decrement > h {
			h = 0
		} else {
			h -= decrement
		}
		locator = append(locator, c.Store.BlockHash(h))
		steps++
	}

	if locator[len(locator)-1] != c.Store.BlockHash(0) {
		locator = append(locator, c.Store.BlockHash(0))
	}
	return locator
}

// PullBlocks is pull_blocks (spec.md §4.2 steps 1-4). It returns the number
// of blocks newly applied (0 means no progress, the signal Refresh's loop
// watches for).
func (c *ChainScanner) PullBlocks(ctx context.Context) (int, er.R) {
	resp, err := c.Node.GetBlocksFast(ctx, nodeproxy.BlocksFastRequest{BlockIDs: c.ShortChainHistory()})
	if err != nil {
		return 0, nodeproxy.ErrNoConnection.New("", err)
	}
	switch resp.Status {
	case nodeproxy.StatusOK:
	case nodeproxy.StatusBusy:
		return 0, nodeproxy.ErrDaemonBusy.Default()
	default:
		return 0, nodeproxy.ErrGetBlocksFailed.Default()
	}

	if resp.StartHeight >= c.Store.LocalHeight() && len(resp.Blocks) == 0 {
		return 0, nil
	}
	if resp.StartHeight > c.Store.LocalHeight() {
		return 0, ErrInternal.New("node returned start_height past local_height", nil)
	}

	applied := 0
	for i, entry := range resp.Blocks {
		currentIndex := resp.StartHeight + uint64(i)
		blockHash := c.Codec.BlockHash(entry.Block)

		switch {
		case currentIndex >= c.Store.LocalHeight():
			if err := c.apply(ctx, entry, currentIndex); err != nil {
				return applied, err
			}
			applied++
		case blockHash != c.Store.BlockHash(currentIndex):
			if currentIndex == resp.StartHeight {
				return applied, ErrInternal.New("first returned block does not match locator", nil)
			}
			c.log().Warnf("reorg detected at height %d", currentIndex)
			if err := c.Store.DetachBlockchain(currentIndex); err != nil {
				return applied, err
			}
			if err := c.apply(ctx, entry, currentIndex); err != nil {
				return applied, err
			}
			applied++
		default:
			// Already seen, no-op.
		}
	}
	return applied, nil
}

// apply is the inner loop of spec.md §4.2 step 4: run discovery on the
// miner tx then every regular tx (in node-supplied order), append the block
// hash, and bump local_height — all-or-nothing per spec.md §5 ("no partial
// block application").
func (c *ChainScanner) apply(ctx context.Context, entry nodeproxy.BlockEntry, height uint64) er.R {
	account := c.Store.Account()
	if entry.Block.Timestamp+oldBlockSkewSeconds >= account.CreatedAt {
		if err := c.Discovery.ProcessTransaction(ctx, entry.Block.MinerTx, height); err != nil {
			return err
		}
		for _, tx := range entry.Txs {
			if err := c.Discovery.ProcessTransaction(ctx, tx, height); err != nil {
				return err
			}
		}
	}
	c.Store.AppendBlock(c.Codec.BlockHash(entry.Block))
	c.Callbacks.newBlock(height, entry.Block)
	return nil
}

// Refresh is refresh (spec.md §4.2): pull_blocks repeatedly until no
// progress is made, retrying a failed pull_blocks call (any error, not only
// BUSY or transport failures) up to maxRefreshRetries times before
// surfacing the error.
func (c *ChainScanner) Refresh(ctx context.Context) er.R {
	totalApplied := 0
	for {
		var applied int
		var err er.R
		for attempt := 0; attempt <= maxRefreshRetries; attempt++ {
			if c.Limiter != nil {
				if werr := c.Limiter.Wait(ctx); werr != nil {
					return er.E(werr)
				}
			}
			applied, err = c.PullBlocks(ctx)
			if err == nil {
				break
			}
			c.log().Warnf("pull_blocks attempt %d failed: %s", attempt+1, err.Message())
		}
		if err != nil {
			return err
		}
		totalApplied += applied
		if applied == 0 {
			break
		}
	}
	return nil
}
