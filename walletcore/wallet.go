// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/cryptoapi"
	"github.com/hmel/boolberry/er"
	"github.com/hmel/boolberry/nodeproxy"
	"github.com/hmel/boolberry/txstore"
	"github.com/hmel/boolberry/walletlog"
)

// Config bundles the external capabilities a Wallet is built with. CLI
// flag parsing and file-path resolution are the owning application's job
// (spec.md §1: "CLI ... out of scope entirely"); Config just carries the
// already-resolved collaborators.
type Config struct {
	Crypto      cryptoapi.Capability
	Codec       codec.Codec
	Node        nodeproxy.NodeProxy
	Constructor TxConstructor
	Callbacks   Callbacks
	Log         walletlog.Logger

	// ScanRateLimit caps how many pull_blocks round trips Refresh may make
	// per second during a long catch-up; zero disables pacing.
	ScanRateLimit rate.Limit
}

// Wallet is the top-level client-side wallet engine of spec.md §2: it owns
// one account's Store and orchestrates OutputDiscovery, ChainScanner,
// PoolScanner, TransferBuilder, KeyStore/Persistence and Balances over it.
// Every mutating method must be serialized by the caller (spec.md §5); a
// Wallet performs no internal locking.
type Wallet struct {
	cfg   Config
	store *txstore.Store

	discovery *OutputDiscovery
	scanner   *ChainScanner
	pool      *PoolScanner
	builder   *TransferBuilder
	balances  *Balances
	keys      *KeyStore
	persist   Persistence
}

// New wires a Wallet around an already-populated Store (e.g. one produced
// by Generate/Restore/Load).
func New(cfg Config, store *txstore.Store) *Wallet {
	discovery := &OutputDiscovery{
		Crypto: cfg.Crypto, Codec: cfg.Codec, Node: cfg.Node,
		Store: store, Callbacks: cfg.Callbacks, Log: cfg.Log,
	}
	var limiter *rate.Limiter
	if cfg.ScanRateLimit > 0 {
		limiter = rate.NewLimiter(cfg.ScanRateLimit, 1)
	}
	return &Wallet{
		cfg:   cfg,
		store: store,
		discovery: discovery,
		scanner: &ChainScanner{
			Node: cfg.Node, Codec: cfg.Codec, Store: store,
			Discovery: discovery, Callbacks: cfg.Callbacks, Log: cfg.Log,
			Limiter: limiter,
		},
		pool: &PoolScanner{
			Node: cfg.Node, Codec: cfg.Codec, Crypto: cfg.Crypto,
			Store: store, Callbacks: cfg.Callbacks, Log: cfg.Log,
		},
		builder: &TransferBuilder{
			Node: cfg.Node, Constructor: cfg.Constructor, Codec: cfg.Codec,
			Store: store, Callbacks: cfg.Callbacks, Log: cfg.Log,
		},
		balances: &Balances{Store: store},
		keys:     &KeyStore{Crypto: cfg.Crypto, Codec: GobCodec{}},
	}
}

func (w *Wallet) log() walletlog.Logger {
	if w.cfg.Log == nil {
		return walletlog.Disabled
	}
	return w.cfg.Log
}

// Store exposes the underlying ledger for callers that need direct
// read-only access (e.g. a CLI or RPC layer built on top of this engine).
func (w *Wallet) Store() *txstore.Store { return w.store }

// Balances exposes the balance/history/payment query surface.
func (w *Wallet) Balances() *Balances { return w.balances }

// Refresh drives the chain scan to the node's current tip, then resends any
// still-pending outbound transactions if new transfers were discovered
// (spec.md §4.2 "refresh()").
func (w *Wallet) Refresh(ctx context.Context) er.R {
	before := len(w.store.Transfers())
	if err := w.scanner.Refresh(ctx); err != nil {
		return err
	}
	if len(w.store.Transfers()) != before {
		w.ResendUnconfirmed(ctx)
	}
	return nil
}

// ResendUnconfirmed rebroadcasts every pending outbound transaction in one
// relay_txs round trip (wallet2's resend_unconfirmed). Failure is logged and
// otherwise ignored: resend is opportunistic best-effort, not a
// guaranteed-delivery mechanism.
func (w *Wallet) ResendUnconfirmed(ctx context.Context) {
	outbound := w.store.UnconfirmedOutbounds()
	if len(outbound) == 0 {
		return
	}
	blobs := make([][]byte, 0, len(outbound))
	for _, u := range outbound {
		blobs = append(blobs, u.Tx.Blob)
	}
	resp, err := w.cfg.Node.RelayTxs(ctx, nodeproxy.RelayTxsRequest{RawTxs: blobs})
	if err != nil {
		w.log().Warnf("resend: %s", err.Message())
		return
	}
	if resp.Status != nodeproxy.StatusOK {
		w.log().Warnf("resend rejected: status=%s", resp.Status)
	}
}

// ValidateSignedText asks the daemon to verify a signature against address
// and text (wallet2's validate_signed_text). This engine has no capability
// primitive to produce such a signature itself (cryptoapi.Capability has no
// sign_text equivalent); it only exposes the verification round trip for a
// caller that already holds one.
func (w *Wallet) ValidateSignedText(ctx context.Context, address, text, signature string) (string, er.R) {
	resp, err := w.cfg.Node.ValidateSignedText(ctx, nodeproxy.ValidateSignedTextRequest{
		Address: address, Text: text, Signature: signature,
	})
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

// ScanTxPool ticks the pool scanner once.
func (w *Wallet) ScanTxPool(ctx context.Context) er.R {
	return w.pool.ScanTxPool(ctx)
}

// Transfer builds, signs, submits and records a new spend.
func (w *Wallet) Transfer(ctx context.Context, destinations []Destination, mixCount int, unlockTime uint64, fee uint64, extra []byte, doNotRelay bool) (codec.Hash, er.R) {
	return w.builder.Transfer(ctx, destinations, mixCount, unlockTime, fee, extra, doNotRelay)
}

// UpdateTxSizeLimit refreshes the transaction blob size cap from the
// daemon's current block median (wallet2's update_current_tx_limit). A
// caller typically does this once per refresh cycle, before Transfer.
func (w *Wallet) UpdateTxSizeLimit(ctx context.Context) er.R {
	return w.builder.UpdateTxSizeLimit(ctx)
}

// CreateUnsignedTransfer is the view-only half of offline co-signing: it
// selects sources and writes an encrypted UnsignedTxSet for a spend-key
// host to sign (spec.md §4.4).
func (w *Wallet) CreateUnsignedTransfer(unsignedPath string, destinations []Destination, mixCount int, unlockTime uint64, fee uint64, extra []byte) er.R {
	return w.builder.CreateUnsignedTransfer(w.cfg.Crypto, unsignedPath, destinations, mixCount, unlockTime, fee, extra)
}

// SignTransfer is the spend-key-holding half of offline co-signing.
func (w *Wallet) SignTransfer(unsignedPath, signedPath string) er.R {
	return w.builder.SignTransfer(w.cfg.Crypto, unsignedPath, signedPath)
}

// SubmitTransfer completes offline co-signing: submit and record the signed
// transaction, identically to an online Transfer call.
func (w *Wallet) SubmitTransfer(ctx context.Context, unsignedPath, signedPath string, doNotRelay bool) (codec.Hash, er.R) {
	return w.builder.SubmitTransfer(ctx, w.cfg.Crypto, unsignedPath, signedPath, doNotRelay)
}

// Clear resets the ledger to its pre-genesis state while keeping account
// secrets, the explicit Clear/Rescan operation supplementing spec.md §4.5's
// load-time resync fallback.
func (w *Wallet) Clear() { w.store.Clear() }

// StoreState persists the wallet state to path (see Persistence.Store).
func (w *Wallet) StoreState(path string) er.R { return w.persist.Store(path, w.store) }

// Generate creates a brand-new account-backed wallet: fresh keys written to
// keyFilePath (refusing if it exists), an address-text sidecar, and a
// freshly-constructed Store anchored at genesis.
func Generate(cfg Config, keyFilePath, addressFilePath, password string, createdAt int64, address string, genesisHash codec.Hash) (*Wallet, er.R) {
	ks := &KeyStore{Crypto: cfg.Crypto, Codec: GobCodec{}}
	account, err := ks.Generate(keyFilePath, addressFilePath, password, createdAt, address)
	if err != nil {
		return nil, err
	}
	store := txstore.New(account)
	store.AppendBlock(genesisHash)
	return New(cfg, store), nil
}

// Load is spec.md §4.5's load(path, password): load keys, then try to
// restore the whole-state file; on any mismatch (missing file, checksum
// failure, public-address disagreement, or an empty chain) it resyncs from
// genesis instead of failing.
func Load(cfg Config, keyFilePath, statePath, password string, genesisHash codec.Hash) (*Wallet, er.R) {
	ks := &KeyStore{Crypto: cfg.Crypto, Codec: GobCodec{}}
	account, err := ks.LoadKeys(keyFilePath, password)
	if err != nil {
		return nil, err
	}

	store := txstore.New(account)
	var persist Persistence
	ok, _ := persist.Restore(statePath, store)
	if !ok {
		store.Clear()
		store.AppendBlock(genesisHash)
	}
	return New(cfg, store), nil
}
