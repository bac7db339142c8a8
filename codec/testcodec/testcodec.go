// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package testcodec is a reference codec.Codec used by this module's own
// tests. It is NOT the real CryptoNote wire format — a tx hash is blake2b of
// the gob-encoded transaction, and a block hash is the hash of its miner tx
// alone, not the actual binary+Keccak encoding the network uses. Its extra-field layout is a simplified tag scheme of this module's
// own invention. Production callers of this module must supply their own
// Codec bound to the real wire format.
package testcodec

import (
	"bytes"
	"encoding/gob"

	"github.com/dchest/blake2b"

	"github.com/hmel/boolberry/codec"
	"github.com/hmel/boolberry/er"
)

// Extra-field tags for this reference encoding.
const (
	tagTxPubKey  = 0x01
	tagPaymentID = 0x02
)

// Codec is the reference codec.Codec implementation.
type Codec struct{}

var _ codec.Codec = Codec{}

// EncodeTxExtra builds an Extra field carrying a tx_pub_key and, optionally,
// a payment id — the inverse of ParseTxExtra/GetPaymentIDFromExtra, used by
// tests to construct fixtures.
func EncodeTxExtra(txPubKey [32]byte, paymentID *[32]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tagTxPubKey)
	buf.Write(txPubKey[:])
	if paymentID != nil {
		buf.WriteByte(tagPaymentID)
		buf.Write(paymentID[:])
	}
	return buf.Bytes()
}

func (Codec) ParseTxExtra(extra []byte) (txPubKey [32]byte, ok bool) {
	for i := 0; i < len(extra); {
		switch extra[i] {
		case tagTxPubKey:
			if i+33 > len(extra) {
				return txPubKey, false
			}
			copy(txPubKey[:], extra[i+1:i+33])
			ok = true
			i += 33
		case tagPaymentID:
			i += 33
		default:
			return txPubKey, ok
		}
	}
	return txPubKey, ok
}

func (Codec) GetPaymentIDFromExtra(extra []byte) (id codec.PaymentID, ok bool) {
	for i := 0; i < len(extra); {
		switch extra[i] {
		case tagTxPubKey:
			i += 33
		case tagPaymentID:
			if i+33 > len(extra) {
				return id, false
			}
			copy(id[:], extra[i+1:i+33])
			return id, true
		default:
			return id, false
		}
	}
	return id, false
}

func digest(b []byte) codec.Hash {
	h, _ := blake2b.New256(nil)
	h.Write(b)
	var out codec.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ParseTx decodes a gob-encoded Transaction produced by EncodeTx.
func (Codec) ParseTx(blob []byte) (codec.Transaction, er.R) {
	var tx codec.Transaction
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&tx); err != nil {
		return codec.Transaction{}, codec.ErrTxParse.New("", er.E(err))
	}
	tx.Blob = blob
	return tx, nil
}

// EncodeTx is the inverse of ParseTx, used by tests to build tx_blobs.
func EncodeTx(tx codec.Transaction) []byte {
	tx.Blob = nil
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(tx)
	return buf.Bytes()
}

func (Codec) ParseBlock(blob []byte) (codec.Block, er.R) {
	var b codec.Block
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&b); err != nil {
		return codec.Block{}, codec.ErrBlockParse.New("", er.E(err))
	}
	b.Blob = blob
	return b, nil
}

// EncodeBlock is the inverse of ParseBlock.
func EncodeBlock(b codec.Block) []byte {
	b.Blob = nil
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(b)
	return buf.Bytes()
}

func (c Codec) TxHash(tx codec.Transaction) codec.Hash {
	tx.Blob = nil
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(tx)
	return digest(buf.Bytes())
}

func (c Codec) BlockHash(b codec.Block) codec.Hash {
	return c.TxHash(b.MinerTx)
}

// GetTxFee sums each txin_to_key input's recorded Amount and subtracts the
// sum of outputs; real daemons compute this from the ring signature's
// referenced amounts, which this reference codec does not model.
func (Codec) GetTxFee(tx codec.Transaction) uint64 {
	var in, out uint64
	for _, i := range tx.Vin {
		if i.Kind == codec.TxInToKeyKind {
			in += i.Amount
		}
	}
	for _, o := range tx.Vout {
		out += o.Amount
	}
	if in > out {
		return in - out
	}
	return 0
}
