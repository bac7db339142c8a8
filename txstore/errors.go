// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txstore

import "github.com/hmel/boolberry/er"

// Err collects the invariant/data failures txstore itself can raise. Node,
// crypto and codec failures are surfaced through their own packages; txstore
// only owns the bookkeeping state and its internal consistency.
var Err = er.NewErrorType("txstore.Err")

var (
	// ErrDuplicateOutput is raised if a caller tries to insert a
	// TransferRecord whose (tx_hash, internal_output_index) already exists.
	ErrDuplicateOutput = Err.CodeWithDetail("ErrDuplicateOutput", "transfer already recorded for this output")

	// ErrDuplicateKeyImage is raised if a caller tries to insert a
	// TransferRecord whose key_image is already indexed — callers (i.e.
	// OutputDiscovery) must detect this themselves and abort the whole
	// transaction per the duplicate-key-image rule; this code exists so the
	// store itself never silently corrupts its index if that contract is
	// violated.
	ErrDuplicateKeyImage = Err.CodeWithDetail("ErrDuplicateKeyImage", "key image already indexed")

	// ErrOrphanKeyImage reports a key_images entry with no matching transfer,
	// a violation of the bijection invariant (P1).
	ErrOrphanKeyImage = Err.CodeWithDetail("ErrOrphanKeyImage", "key image indexes no transfer")

	// ErrBadHeight is raised by any attempt to record state above
	// local_height (the height of the block being applied, equal to
	// local_height until AppendBlock, is accepted), or to detach at a height
	// beyond local_height.
	ErrBadHeight = Err.CodeWithDetail("ErrBadHeight", "height out of range")

	// ErrDiscontinuousChain is raised if block_hashes would become
	// non-contiguous from genesis.
	ErrDiscontinuousChain = Err.CodeWithDetail("ErrDiscontinuousChain", "block chain is not contiguous")

	// ErrUnknownTransfer is raised when a caller references a transfer index
	// or key image this store does not hold.
	ErrUnknownTransfer = Err.CodeWithDetail("ErrUnknownTransfer", "no such transfer")

	// ErrInternal marks a defensive invariant check that should be
	// unreachable in correct code (spec.md §7's WalletInternalError).
	ErrInternal = Err.CodeWithDetail("ErrInternal", "internal invariant violation")
)
