// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletcore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"os"

	"github.com/aead/siphash"
	"github.com/golang/snappy"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/cryptoapi"
	"github.com/hmel/boolberry/er"
	"github.com/hmel/boolberry/txstore"
)

// GobCodec implements codecEncoder (the key file's plaintext shape) with
// encoding/gob, the format-versioning delegate spec.md §6 calls for
// ("format versioning is delegated to the serialization framework").
type GobCodec struct{}

func (GobCodec) EncodeAccount(a accountPlaintext) ([]byte, er.R) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, er.E(err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) DecodeAccount(b []byte) (accountPlaintext, er.R) {
	var a accountPlaintext
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&a); err != nil {
		return accountPlaintext{}, er.E(err)
	}
	return a, nil
}

// walletStateSnapshot is the whole-struct dump of spec.md §6's "wallet
// state file": enough of the Store's contents to resume a session without
// rescanning the chain.
type walletStateSnapshot struct {
	AccountPublicAddress cryptoapi.PublicKey // spend_public_key, used for the mismatch check on Load
	BlockHashes          []codec.Hash
	Transfers            []txstore.TransferRecord
	Payments             map[codec.PaymentID][]txstore.PaymentRecord
	History              []txstore.WalletTransferInfo
	TxKeys               map[codec.Hash]cryptoapi.SecretKey
}

// siphashKey is a fixed, non-secret key: the checksum only needs to catch
// accidental corruption/truncation, not resist a malicious file, since the
// file is already authenticated by filesystem ownership and the encrypted
// key file guards the secrets.
var siphashKey = []byte("boolberry-state\x00")

// Persistence implements spec.md §4.5/§6: whole-state binary dump/restore
// compressed with snappy and checksummed with siphash, with a
// resync-from-genesis fallback on any mismatch.
type Persistence struct{}

func snapshotFromStore(s *txstore.Store) walletStateSnapshot {
	height := s.LocalHeight()
	hashes := make([]codec.Hash, height)
	for i := uint64(0); i < height; i++ {
		hashes[i] = s.BlockHash(i)
	}
	return walletStateSnapshot{
		AccountPublicAddress: s.Account().Keys.SpendPublicKey,
		BlockHashes:          hashes,
		Transfers:            s.Transfers(),
		Payments:             s.AllPayments(),
		History:              s.History(),
		TxKeys:               copyTxKeys(s),
	}
}

// copyTxKeys collects the stashed tx key of every transaction the store
// records: received transfers, history entries and pending outbounds.
func copyTxKeys(s *txstore.Store) map[codec.Hash]cryptoapi.SecretKey {
	out := make(map[codec.Hash]cryptoapi.SecretKey)
	add := func(h codec.Hash) {
		if k, ok := s.TxKey(h); ok {
			out[h] = k
		}
	}
	for _, t := range s.Transfers() {
		add(t.TxHash)
	}
	for _, h := range s.History() {
		add(h.TxHash)
	}
	for h := range s.UnconfirmedOutbounds() {
		add(h)
	}
	return out
}

// Store dumps the wallet state to path: gob-encode, snappy-compress,
// prepend a siphash-2-4 checksum of the compressed payload. The dump holds
// block hashes, transfers, payments, history and tx keys; unconfirmed
// outbound and pool (inbound) entries are not part of it.
func (Persistence) Store(path string, s *txstore.Store) er.R {
	snap := snapshotFromStore(s)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return ErrFileSave.New("encode", er.E(err))
	}
	compressed := snappy.Encode(nil, buf.Bytes())

	sum := siphash.Sum64(compressed, siphashKey)
	out := make([]byte, 8+len(compressed))
	binary.LittleEndian.PutUint64(out, sum)
	copy(out[8:], compressed)

	f, osErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if osErr != nil {
		return ErrFileSave.New(path, er.E(osErr))
	}
	defer f.Close()
	if _, osErr := f.Write(out); osErr != nil {
		return ErrFileSave.New(path, er.E(osErr))
	}
	return nil
}

// Restore reads and validates a state file previously written by Store. It
// returns ok=false (never an error) for any condition spec.md §4.5 treats
// as "resync from genesis": missing file, checksum mismatch, corrupt
// payload, or the stored AccountPublicAddress disagreeing with the account
// this store was built for.
func (Persistence) Restore(path string, s *txstore.Store) (ok bool, err er.R) {
	data, osErr := os.ReadFile(path)
	if osErr != nil {
		return false, nil
	}
	if len(data) < 8 {
		return false, nil
	}
	sum := binary.LittleEndian.Uint64(data[:8])
	compressed := data[8:]
	if siphash.Sum64(compressed, siphashKey) != sum {
		return false, nil
	}

	raw, snappyErr := snappy.Decode(nil, compressed)
	if snappyErr != nil {
		return false, nil
	}

	var snap walletStateSnapshot
	if gobErr := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); gobErr != nil {
		return false, nil
	}

	if snap.AccountPublicAddress != s.Account().Keys.SpendPublicKey {
		return false, nil
	}
	if len(snap.BlockHashes) == 0 {
		return false, nil
	}

	s.Clear()
	for _, h := range snap.BlockHashes {
		s.AppendBlock(h)
	}
	for _, t := range snap.Transfers {
		if addErr := s.AddTransfer(t); addErr != nil {
			return false, nil
		}
	}
	for id, recs := range snap.Payments {
		for _, r := range recs {
			if addErr := s.AddPaymentRecord(id, r); addErr != nil {
				return false, nil
			}
		}
	}
	for _, h := range snap.History {
		s.AppendHistory(h)
	}
	for hash, key := range snap.TxKeys {
		s.StashTxKey(hash, key)
	}

	return true, nil
}
