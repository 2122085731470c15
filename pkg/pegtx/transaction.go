// Copyright 2025 Certen Protocol
//
// Transaction envelope and the six tagged transaction kinds the dispatcher
// routes on. Every wire encoding here is canonical: field order is fixed,
// integers are big-endian, and dynamic lists are u32-count-prefixed, so two
// replicas decoding the same bytes always build the same Go value.

package pegtx

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcpeg/validator/pkg/codec"
	"github.com/btcpeg/validator/pkg/spv"
)

// Kind tags which of the six transaction variants a Transaction carries.
type Kind uint8

const (
	KindWorkProof Kind = iota
	KindHeader
	KindDeposit
	KindTransfer
	KindWithdrawal
	KindSignature
)

// ErrUnknownKind is returned when decoding an action whose tag byte does not
// match any known transaction kind.
var ErrUnknownKind = errors.New("pegtx: unknown transaction kind")

// Transaction is the tagged union the dispatcher matches on: exactly one of
// the six pointer fields is non-nil, selected by Kind.
type Transaction struct {
	Kind       Kind
	WorkProof  *WorkProofTransaction
	Header     *HeaderTransaction
	Deposit    *DepositTransaction
	Transfer   *TransferTransaction
	Withdrawal *WithdrawalTransaction
	Signature  *SignatureTransaction
}

// EncodeTo writes the one-byte kind tag followed by that variant's own
// encoding.
func (t *Transaction) EncodeTo(w io.Writer) error {
	if _, err := w.Write([]byte{byte(t.Kind)}); err != nil {
		return err
	}
	switch t.Kind {
	case KindWorkProof:
		return t.WorkProof.EncodeTo(w)
	case KindHeader:
		return t.Header.EncodeTo(w)
	case KindDeposit:
		return t.Deposit.EncodeTo(w)
	case KindTransfer:
		return t.Transfer.EncodeTo(w)
	case KindWithdrawal:
		return t.Withdrawal.EncodeTo(w)
	case KindSignature:
		return t.Signature.EncodeTo(w)
	default:
		return ErrUnknownKind
	}
}

// DecodeFrom reads a transaction written by EncodeTo.
func (t *Transaction) DecodeFrom(r io.Reader) error {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return err
	}
	t.Kind = Kind(tag[0])
	switch t.Kind {
	case KindWorkProof:
		t.WorkProof = &WorkProofTransaction{}
		return t.WorkProof.DecodeFrom(r)
	case KindHeader:
		t.Header = &HeaderTransaction{}
		return t.Header.DecodeFrom(r)
	case KindDeposit:
		t.Deposit = &DepositTransaction{}
		return t.Deposit.DecodeFrom(r)
	case KindTransfer:
		t.Transfer = &TransferTransaction{}
		return t.Transfer.DecodeFrom(r)
	case KindWithdrawal:
		t.Withdrawal = &WithdrawalTransaction{}
		return t.Withdrawal.DecodeFrom(r)
	case KindSignature:
		t.Signature = &SignatureTransaction{}
		return t.Signature.DecodeFrom(r)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, tag[0])
	}
}

// WorkProofTransaction grants voting power for a SHA-256 preimage meeting
// the work threshold.
type WorkProofTransaction struct {
	PublicKey []byte // 33-byte compressed secp256k1 key
	Nonce     uint64
}

func (tx *WorkProofTransaction) EncodeTo(w io.Writer) error {
	if err := codec.WriteBytes(w, tx.PublicKey); err != nil {
		return err
	}
	return codec.WriteUint64(w, tx.Nonce)
}

func (tx *WorkProofTransaction) DecodeFrom(r io.Reader) error {
	pk, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	n, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	tx.PublicKey, tx.Nonce = pk, n
	return nil
}

// WorkHash returns SHA-256(pubkey || nonce_be), the preimage the work
// estimator is evaluated over.
func (tx *WorkProofTransaction) WorkHash() [32]byte {
	h := sha256.New()
	h.Write(tx.PublicKey)
	var nonceBuf [8]byte
	for i := 0; i < 8; i++ {
		nonceBuf[7-i] = byte(tx.Nonce >> (8 * uint(i)))
	}
	h.Write(nonceBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HeaderTransaction carries a batch of Bitcoin block headers to append to
// the header cache.
type HeaderTransaction struct {
	BlockHeaders []*wire.BlockHeader
}

func (tx *HeaderTransaction) EncodeTo(w io.Writer) error {
	if err := codec.WriteUint32(w, uint32(len(tx.BlockHeaders))); err != nil {
		return err
	}
	for i, h := range tx.BlockHeaders {
		var buf bytes.Buffer
		if err := h.Serialize(&buf); err != nil {
			return fmt.Errorf("pegtx: encode header %d: %w", i, err)
		}
		if err := codec.WriteBytes(w, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (tx *HeaderTransaction) DecodeFrom(r io.Reader) error {
	n, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	headers := make([]*wire.BlockHeader, n)
	for i := range headers {
		raw, err := codec.ReadBytes(r)
		if err != nil {
			return err
		}
		h := &wire.BlockHeader{}
		if err := h.Deserialize(bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("pegtx: decode header %d: %w", i, err)
		}
		headers[i] = h
	}
	tx.BlockHeaders = headers
	return nil
}

// DepositTransaction proves a Bitcoin transaction was included in a block
// the header cache already holds, and names the recipient commitments its
// outputs pay.
type DepositTransaction struct {
	Height     uint32
	Proof      *spv.PartialMerkleTree
	Tx         *wire.MsgTx
	BlockIndex uint32
	Recipients [][]byte // each exactly 33 bytes once validated
}

func (tx *DepositTransaction) EncodeTo(w io.Writer) error {
	if err := codec.WriteUint32(w, tx.Height); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, tx.Proof.NumTransactions); err != nil {
		return err
	}
	hashBytes := make([][]byte, len(tx.Proof.Hashes))
	for i := range tx.Proof.Hashes {
		hashBytes[i] = tx.Proof.Hashes[i][:]
	}
	if err := codec.WriteByteList(w, hashBytes); err != nil {
		return err
	}
	if err := codec.WriteBytes(w, tx.Proof.Flags); err != nil {
		return err
	}

	var txBuf bytes.Buffer
	if err := tx.Tx.Serialize(&txBuf); err != nil {
		return fmt.Errorf("pegtx: encode bitcoin tx: %w", err)
	}
	if err := codec.WriteBytes(w, txBuf.Bytes()); err != nil {
		return err
	}

	if err := codec.WriteUint32(w, tx.BlockIndex); err != nil {
		return err
	}
	return codec.WriteByteList(w, tx.Recipients)
}

func (tx *DepositTransaction) DecodeFrom(r io.Reader) error {
	height, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	numTx, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	hashBytes, err := codec.ReadByteList(r)
	if err != nil {
		return err
	}
	hashes := make([]chainhash.Hash, len(hashBytes))
	for i, b := range hashBytes {
		if len(b) != chainhash.HashSize {
			return fmt.Errorf("pegtx: proof hash %d has %d bytes, want %d", i, len(b), chainhash.HashSize)
		}
		copy(hashes[i][:], b)
	}
	flags, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}

	rawTx, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	btx := &wire.MsgTx{}
	if err := btx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return fmt.Errorf("pegtx: decode bitcoin tx: %w", err)
	}

	blockIndex, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	recipients, err := codec.ReadByteList(r)
	if err != nil {
		return err
	}

	tx.Height = height
	tx.Proof = &spv.PartialMerkleTree{NumTransactions: numTx, Hashes: hashes, Flags: flags}
	tx.Tx = btx
	tx.BlockIndex = blockIndex
	tx.Recipients = recipients
	return nil
}

// Txid returns the double-SHA-256 transaction hash, matching Bitcoin's
// consensus definition.
func (tx *DepositTransaction) Txid() chainhash.Hash {
	return tx.Tx.TxHash()
}

// TransferTransaction moves balance between two accounts, signed by the
// sender.
type TransferTransaction struct {
	From      []byte
	To        []byte
	Amount    uint64
	FeeAmount uint64
	Nonce     uint64
	Signature []byte
}

func (tx *TransferTransaction) sighashFields(w io.Writer) error {
	if err := codec.WriteBytes(w, tx.From); err != nil {
		return err
	}
	if err := codec.WriteBytes(w, tx.To); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, tx.Amount); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, tx.FeeAmount); err != nil {
		return err
	}
	return codec.WriteUint64(w, tx.Nonce)
}

// Sighash returns the domain-specific digest the signature commits to:
// SHA-256 over every field except the signature itself.
func (tx *TransferTransaction) Sighash() ([32]byte, error) {
	var buf bytes.Buffer
	if err := tx.sighashFields(&buf); err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(buf.Bytes()), nil
}

// VerifySignature checks tx.Signature against tx.From's public key over the
// transfer's sighash.
func (tx *TransferTransaction) VerifySignature() (bool, error) {
	return verifyDER(tx.From, tx.Signature, tx)
}

func (tx *TransferTransaction) EncodeTo(w io.Writer) error {
	if err := tx.sighashFields(w); err != nil {
		return err
	}
	return codec.WriteBytes(w, tx.Signature)
}

func (tx *TransferTransaction) DecodeFrom(r io.Reader) error {
	from, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	to, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	amount, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	fee, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	nonce, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	sig, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	tx.From, tx.To, tx.Amount, tx.FeeAmount, tx.Nonce, tx.Signature = from, to, amount, fee, nonce, sig
	return nil
}

// WithdrawalTransaction burns balance, producing a pending payout to a
// Bitcoin script.
type WithdrawalTransaction struct {
	From      []byte
	To        []byte // Bitcoin output script
	Amount    uint64
	Nonce     uint64
	Signature []byte
}

func (tx *WithdrawalTransaction) sighashFields(w io.Writer) error {
	if err := codec.WriteBytes(w, tx.From); err != nil {
		return err
	}
	if err := codec.WriteBytes(w, tx.To); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, tx.Amount); err != nil {
		return err
	}
	return codec.WriteUint64(w, tx.Nonce)
}

// Sighash returns the domain-specific digest the signature commits to.
func (tx *WithdrawalTransaction) Sighash() ([32]byte, error) {
	var buf bytes.Buffer
	if err := tx.sighashFields(&buf); err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(buf.Bytes()), nil
}

// VerifySignature checks tx.Signature against tx.From's public key over the
// withdrawal's sighash.
func (tx *WithdrawalTransaction) VerifySignature() (bool, error) {
	return verifyDER(tx.From, tx.Signature, tx)
}

func (tx *WithdrawalTransaction) EncodeTo(w io.Writer) error {
	if err := tx.sighashFields(w); err != nil {
		return err
	}
	return codec.WriteBytes(w, tx.Signature)
}

func (tx *WithdrawalTransaction) DecodeFrom(r io.Reader) error {
	from, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	to, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	amount, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	nonce, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	sig, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	tx.From, tx.To, tx.Amount, tx.Nonce, tx.Signature = from, to, amount, nonce, sig
	return nil
}

// SignatureTransaction is the stubbed checkpoint-signing transaction kind:
// the core does not implement the multisig signing protocol, so this
// variant always fails dispatch.
type SignatureTransaction struct {
	SignatorySetIndex uint16
	Signature         []byte
}

func (tx *SignatureTransaction) EncodeTo(w io.Writer) error {
	if err := codec.WriteUint32(w, uint32(tx.SignatorySetIndex)); err != nil {
		return err
	}
	return codec.WriteBytes(w, tx.Signature)
}

func (tx *SignatureTransaction) DecodeFrom(r io.Reader) error {
	idx, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	sig, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	tx.SignatorySetIndex = uint16(idx)
	tx.Signature = sig
	return nil
}

type sighasher interface {
	Sighash() ([32]byte, error)
}

// verifyDER parses pubKeyBytes as a compressed secp256k1 point and verifies
// a DER-encoded ECDSA signature over tx's sighash.
func verifyDER(pubKeyBytes, sigBytes []byte, tx sighasher) (bool, error) {
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("pegtx: invalid public key: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("pegtx: invalid signature encoding: %w", err)
	}
	digest, err := tx.Sighash()
	if err != nil {
		return false, err
	}
	return sig.Verify(digest[:], pubKey), nil
}
