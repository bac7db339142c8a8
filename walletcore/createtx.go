// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"bytes"
	"context"
	"encoding/gob"
	"os"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/cryptoapi"
	"github.com/hmel/boolberry/er"
	"github.com/hmel/boolberry/nodeproxy"
	"github.com/hmel/boolberry/txstore"
	"github.com/hmel/boolberry/walletlog"
)

// Destination is one payment target of a transfer.
type Destination struct {
	Address string
	Amount  uint64
}

// TxConstructor is the crypto-capability's `construct_tx`: given selected
// sources and requested destinations, it assembles a signed transaction
// (ring signatures included). It is a separate, narrower interface from
// cryptoapi.Capability because construction needs the whole selected
// TransferRecord (for mix/ring data), not just the account secrets.
type TxConstructor interface {
	ConstructTx(account cryptoapi.AccountKeys, sources []txstore.TransferRecord, destinations []Destination, mixCount int, unlockTime uint64, extra []byte) (tx codec.Transaction, txSecretKey cryptoapi.SecretKey, err er.R)
}

// maxTransactionBlobSize bounds constructed transactions (spec.md §4.4 step
// 2, CURRENCY_MAX_TRANSACTION_BLOB_SIZE in the original source) until
// UpdateTxSizeLimit has fetched a live value from the daemon.
const maxTransactionBlobSize = 1 << 20

// coinbaseBlobReservedSize stands in for CURRENCY_COINBASE_BLOB_RESERVED_SIZE
// (not present in this module's retrieved original_source set).
const coinbaseBlobReservedSize = 600

// TransferBuilder implements spec.md §4.4: coin selection, transaction
// construction, submission, and the compensating rollback of selected
// transfers' Spent flags on rejection.
type TransferBuilder struct {
	Node        nodeproxy.NodeProxy
	Constructor TxConstructor
	Codec       codec.Codec
	Store       *txstore.Store
	Callbacks   Callbacks
	Log         walletlog.Logger

	// maxTxBlobSize is the live upper_transaction_size_limit, refreshed by
	// UpdateTxSizeLimit; zero means "not yet fetched", falling back to
	// maxTransactionBlobSize.
	maxTxBlobSize uint64
}

func (b *TransferBuilder) log() walletlog.Logger {
	if b.Log == nil {
		return walletlog.Disabled
	}
	return b.Log
}

func (b *TransferBuilder) txSizeLimit() uint64 {
	if b.maxTxBlobSize > 0 {
		return b.maxTxBlobSize
	}
	return maxTransactionBlobSize
}

// UpdateTxSizeLimit is update_current_tx_limit: refreshes the transaction
// blob size cap from the daemon's current block median, the way wallet2
// recomputes m_upper_transaction_size_limit before building a spend.
func (b *TransferBuilder) UpdateTxSizeLimit(ctx context.Context) er.R {
	resp, err := b.Node.GetInfo(ctx)
	if err != nil {
		return nodeproxy.ErrNoConnection.New("", err)
	}
	if resp.Status != nodeproxy.StatusOK {
		return nodeproxy.ErrGetBlocksFailed.New("get_info", nil)
	}
	if resp.CurrentBlocksMedian <= coinbaseBlobReservedSize {
		return ErrInternal.New("bad median size", nil)
	}
	b.maxTxBlobSize = resp.CurrentBlocksMedian - coinbaseBlobReservedSize
	return nil
}

// SelectTransfers is select_transfers (spec.md §4.4 step 1): a
// denomination-bucketed greedy selection. allowedIndices, if non-empty,
// restricts the candidate pool to those transfer indices.
//
// Buckets are kept in a treemap ordered by amount, so "smallest bucket that
// covers the remainder" is an O(log n) Ceiling lookup; "largest bucket" is
// read as the last entry of the map's sorted Keys().
func (b *TransferBuilder) SelectTransfers(needed uint64, mixCount int, dustThreshold uint64, allowedIndices []int) (found uint64, selected []txstore.TransferRecord, dustSkipped int, err er.R) {
	transfers := b.Store.Transfers()

	candidates := allowedIndices
	if len(candidates) == 0 {
		candidates = make([]int, len(transfers))
		for i := range transfers {
			candidates[i] = i
		}
	}

	buckets := treemap.NewWith(utils.UInt64Comparator)
	localHeight := b.Store.LocalHeight()

	for _, idx := range candidates {
		t := transfers[idx]
		if t.Spent {
			continue
		}
		if !isTransferUnlocked(t, localHeight) {
			continue
		}
		if t.Amount < dustThreshold {
			dustSkipped++
			continue
		}
		if mixCount > 0 && t.MixAttr != 0 && uint32(mixCount) > t.MixAttr {
			continue
		}
		v, ok := buckets.Get(t.Amount)
		var bucket []int
		if ok {
			bucket = v.([]int)
		}
		bucket = append(bucket, idx)
		buckets.Put(t.Amount, bucket)
	}

	for found < needed {
		remainder := needed - found
		// Smallest bucket whose amount covers the remainder.
		if k, v := buckets.Ceiling(remainder); k != nil {
			bucket := v.([]int)
			idx := bucket[len(bucket)-1] // last-in-first-out within a bucket
			bucket = bucket[:len(bucket)-1]
			if len(bucket) == 0 {
				buckets.Remove(k)
			} else {
				buckets.Put(k, bucket)
			}
			t := transfers[idx]
			found += t.Amount
			selected = append(selected, t)
			break
		}
		// No single bucket covers the remainder: take from the largest.
		keys := buckets.Keys()
		if len(keys) == 0 {
			return found, selected, dustSkipped, ErrNotEnoughMoney.Default()
		}
		largest := keys[len(keys)-1]
		v, _ := buckets.Get(largest)
		bucket := v.([]int)
		idx := bucket[len(bucket)-1]
		bucket = bucket[:len(bucket)-1]
		if len(bucket) == 0 {
			buckets.Remove(largest)
		} else {
			buckets.Put(largest, bucket)
		}
		t := transfers[idx]
		found += t.Amount
		selected = append(selected, t)
	}

	if found < needed {
		return found, selected, dustSkipped, ErrNotEnoughMoney.Default()
	}
	return found, selected, dustSkipped, nil
}

// Transfer is transfer (spec.md §4.4 steps 1-4): select, construct, submit,
// and record. It uses the store's account keys; the spend secret is
// required, so a view-only account cannot call Transfer.
func (b *TransferBuilder) Transfer(ctx context.Context, destinations []Destination, mixCount int, unlockTime uint64, fee uint64, extra []byte, doNotRelay bool) (codec.Hash, er.R) {
	account := b.Store.Account()
	if !account.Keys.HasSpendSecret {
		return codec.Hash{}, ErrInternal.New("cannot transfer from a view-only account", nil)
	}

	var needed uint64
	for _, d := range destinations {
		needed += d.Amount
	}
	needed += fee

	_, sources, _, err := b.SelectTransfers(needed, mixCount, 0, nil)
	if err != nil {
		return codec.Hash{}, err
	}

	tx, txSecretKey, err := b.Constructor.ConstructTx(account.Keys, sources, destinations, mixCount, unlockTime, extra)
	if err != nil {
		return codec.Hash{}, err
	}

	return b.finalizeTransaction(ctx, sources, destinations, tx, txSecretKey, needed, fee, doNotRelay)
}

// finalizeTransaction is finalize_transaction (spec.md §4.4 steps 2-4): the
// submit/bookkeeping tail shared by the online transfer() path and
// SubmitTransfer's offline co-signing path, so both produce identical
// spent-flag and unconfirmed-outbound side effects for the same inputs.
func (b *TransferBuilder) finalizeTransaction(ctx context.Context, sources []txstore.TransferRecord, destinations []Destination, tx codec.Transaction, txSecretKey cryptoapi.SecretKey, needed uint64, fee uint64, doNotRelay bool) (codec.Hash, er.R) {
	if uint64(len(tx.Blob)) >= b.txSizeLimit() {
		return codec.Hash{}, ErrTxTooBig.New("", nil)
	}

	txHash := b.Codec.TxHash(tx)

	submitted := doNotRelay
	if !doNotRelay {
		resp, err := b.Node.SendRawTx(ctx, tx.Blob)
		if err != nil {
			// Transport error: propagate without changing spent flags
			// (spec.md §4.4 step 3).
			return codec.Hash{}, nodeproxy.ErrNoConnection.New("", err)
		}
		if resp.Status != nodeproxy.StatusOK {
			b.log().Warnf("tx %s rejected by daemon: %s", txHash, resp.Reason)
			return codec.Hash{}, ErrTxRejected.New(resp.Reason, nil)
		}
		submitted = true
	}

	for _, s := range sources {
		if submitted {
			b.Store.MarkSpent(s.KeyImage, true)
		}
	}

	var change uint64
	for _, s := range sources {
		change += s.Amount
	}
	if change > needed {
		change -= needed
	} else {
		change = 0
	}

	recipient := ""
	if len(destinations) > 0 {
		recipient = destinations[0].Address
	}
	// Best-effort, non-fatal per wallet2's get_alias_for_address: a failed
	// or empty lookup just means the outbound entry shows no alias.
	recipientAlias := ""
	if recipient != "" {
		if resp, aliasErr := b.Node.GetAliasesByAddress(ctx, recipient); aliasErr == nil && resp.Status == nodeproxy.StatusOK {
			recipientAlias = resp.Alias
		}
	}
	b.Store.InsertUnconfirmedOutbound(txHash, txstore.UnconfirmedOutbound{
		Tx:             tx,
		ChangeAmount:   change,
		SentTime:       time.Now().Unix(),
		Recipient:      recipient,
		RecipientAlias: recipientAlias,
	})
	b.Store.StashTxKey(txHash, txSecretKey)
	b.Callbacks.transfer2(txstore.WalletTransferInfo{TxHash: txHash, Amount: needed - fee, Outbound: true})

	return txHash, nil
}

// UnsignedTxSet is the blob a view-only (watch-only) wallet produces by
// selecting sources and describing the intended spend, for a separate
// spend-key-holding host to sign (spec.md §4.4 "sign_transfer").
type UnsignedTxSet struct {
	SpendPublicKey cryptoapi.PublicKey
	Sources        []txstore.TransferRecord
	Destinations   []Destination
	MixCount       int
	UnlockTime     uint64
	Fee            uint64
	Extra          []byte
}

// SignedTxSet is the blob the spend-key-holding host produces in response,
// for the original (possibly view-only) host to submit.
type SignedTxSet struct {
	Sources      []txstore.TransferRecord
	Destinations []Destination
	Fee          uint64
	Tx           codec.Transaction
	TxSecretKey  cryptoapi.SecretKey
}

// coldFileIVSize matches the key file's IV size; both use the same
// StreamXOR capability.
const coldFileIVSize = ivSize

// writeColdFile gob-encodes v, encrypts it with crypto.StreamXOR under
// streamKey and a fresh random IV, and writes {iv, ciphertext} to path.
func writeColdFile(crypto cryptoapi.Capability, path string, streamKey []byte, v interface{}) er.R {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return ErrFileSave.New("encode", er.E(err))
	}
	iv := crypto.RandomBytes(coldFileIVSize)
	ciphertext := crypto.StreamXOR(streamKey, iv, buf.Bytes())

	blob := append(append([]byte{}, iv...), ciphertext...)
	if err := os.WriteFile(path, blob, 0600); err != nil {
		return ErrFileSave.New(path, er.E(err))
	}
	return nil
}

// readColdFile is the inverse of writeColdFile.
func readColdFile(crypto cryptoapi.Capability, path string, streamKey []byte, v interface{}) er.R {
	data, osErr := os.ReadFile(path)
	if osErr != nil {
		if os.IsNotExist(osErr) {
			return ErrFileNotFound.New(path, nil)
		}
		return ErrFileRead.New(path, er.E(osErr))
	}
	if len(data) < coldFileIVSize {
		return ErrFileRead.New(path, nil)
	}
	iv := data[:coldFileIVSize]
	plain := crypto.StreamXOR(streamKey, iv, data[coldFileIVSize:])
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(v); err != nil {
		return ErrFileRead.New(path, er.E(err))
	}
	return nil
}

// CreateUnsignedTransfer runs select_transfers against account, then writes
// the resulting UnsignedTxSet encrypted under chacha(view_sk) to
// unsignedPath, for SignTransfer to pick up on a spend-key-holding host
// (spec.md §4.4). It does not require the spend secret, so a view-only
// wallet can call it.
func (b *TransferBuilder) CreateUnsignedTransfer(crypto cryptoapi.Capability, unsignedPath string, destinations []Destination, mixCount int, unlockTime uint64, fee uint64, extra []byte) er.R {
	account := b.Store.Account()

	var needed uint64
	for _, d := range destinations {
		needed += d.Amount
	}
	needed += fee

	_, sources, _, err := b.SelectTransfers(needed, mixCount, 0, nil)
	if err != nil {
		return err
	}

	set := UnsignedTxSet{
		SpendPublicKey: account.Keys.SpendPublicKey,
		Sources:        sources,
		Destinations:   destinations,
		MixCount:       mixCount,
		UnlockTime:     unlockTime,
		Fee:            fee,
		Extra:          extra,
	}
	return writeColdFile(crypto, unsignedPath, account.Keys.ViewSecretKey[:], set)
}

// SignTransfer is spec.md §4.4's sign_transfer: load the UnsignedTxSet
// produced by CreateUnsignedTransfer, assert it describes this account
// (spend_pub_key must match), run construct_tx, and write the signed result.
// Requires the spend secret.
func (b *TransferBuilder) SignTransfer(crypto cryptoapi.Capability, unsignedPath, signedPath string) er.R {
	account := b.Store.Account()
	if !account.Keys.HasSpendSecret {
		return ErrInternal.New("cannot sign_transfer from a view-only account", nil)
	}

	var set UnsignedTxSet
	if err := readColdFile(crypto, unsignedPath, account.Keys.ViewSecretKey[:], &set); err != nil {
		return err
	}
	if set.SpendPublicKey != account.Keys.SpendPublicKey {
		return ErrInternal.New("unsigned transfer set belongs to a different account", nil)
	}

	tx, txSecretKey, err := b.Constructor.ConstructTx(account.Keys, set.Sources, set.Destinations, set.MixCount, set.UnlockTime, set.Extra)
	if err != nil {
		return err
	}

	signed := SignedTxSet{
		Sources:      set.Sources,
		Destinations: set.Destinations,
		Fee:          set.Fee,
		Tx:           tx,
		TxSecretKey:  txSecretKey,
	}
	return writeColdFile(crypto, signedPath, account.Keys.ViewSecretKey[:], signed)
}

// SubmitTransfer is spec.md §4.4's submit_transfer: load the unsigned and
// signed blobs, decrypt, and feed the result through the same
// finalizeTransaction path transfer() uses, so spent-flag and unconfirmed
// bookkeeping are identical to the online case.
func (b *TransferBuilder) SubmitTransfer(ctx context.Context, crypto cryptoapi.Capability, unsignedPath, signedPath string, doNotRelay bool) (codec.Hash, er.R) {
	account := b.Store.Account()

	var unsigned UnsignedTxSet
	if err := readColdFile(crypto, unsignedPath, account.Keys.ViewSecretKey[:], &unsigned); err != nil {
		return codec.Hash{}, err
	}
	var signed SignedTxSet
	if err := readColdFile(crypto, signedPath, account.Keys.ViewSecretKey[:], &signed); err != nil {
		return codec.Hash{}, err
	}
	if unsigned.SpendPublicKey != account.Keys.SpendPublicKey {
		return codec.Hash{}, ErrInternal.New("unsigned transfer set belongs to a different account", nil)
	}
	if len(unsigned.Sources) != len(signed.Sources) {
		return codec.Hash{}, ErrInternal.New("signed transfer set does not match the unsigned sources it was built from", nil)
	}

	var needed uint64
	for _, d := range signed.Destinations {
		needed += d.Amount
	}
	needed += signed.Fee

	return b.finalizeTransaction(ctx, signed.Sources, signed.Destinations, signed.Tx, signed.TxSecretKey, needed, signed.Fee, doNotRelay)
}
