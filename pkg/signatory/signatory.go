// Copyright 2025 Certen Protocol
//
// Signatory-set derivation from the validator table, and the Bitcoin output
// script a deposit or checkpoint sweep pays into.

package signatory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"

	"github.com/btcpeg/validator/pkg/codec"
)

// ErrBadValidatorKey is returned when a validator's public key bytes do not
// parse as a compressed secp256k1 point.
var ErrBadValidatorKey = errors.New("signatory: invalid validator public key")

// Signatory is one member of a signatory set: a compressed secp256k1 public
// key paired with the voting power backing it.
type Signatory struct {
	PubKey      [33]byte
	VotingPower uint64
}

// EncodeTo writes the signatory in canonical form: the 33-byte key followed
// by an 8-byte big-endian voting power.
func (s *Signatory) EncodeTo(w io.Writer) error {
	if err := codec.WriteFixed(w, s.PubKey[:]); err != nil {
		return err
	}
	return codec.WriteUint64(w, s.VotingPower)
}

// DecodeFrom reads a signatory written by EncodeTo.
func (s *Signatory) DecodeFrom(r io.Reader) error {
	if err := codec.ReadFixed(r, s.PubKey[:]); err != nil {
		return err
	}
	vp, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	s.VotingPower = vp
	return nil
}

// Set is a signatory set at a point in time: every signatory sorted by
// public key, ascending, so that two replicas deriving the same set from
// the same validator table always produce the same byte-identical encoding.
type Set struct {
	Signatories []Signatory
}

// EncodeTo writes the set as a u32 count followed by each signatory in
// order.
func (s *Set) EncodeTo(w io.Writer) error {
	if err := codec.WriteUint32(w, uint32(len(s.Signatories))); err != nil {
		return err
	}
	for i := range s.Signatories {
		if err := s.Signatories[i].EncodeTo(w); err != nil {
			return fmt.Errorf("signatory: encode element %d: %w", i, err)
		}
	}
	return nil
}

// DecodeFrom reads a set written by EncodeTo.
func (s *Set) DecodeFrom(r io.Reader) error {
	n, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	sigs := make([]Signatory, n)
	for i := range sigs {
		if err := sigs[i].DecodeFrom(r); err != nil {
			return fmt.Errorf("signatory: decode element %d: %w", i, err)
		}
	}
	s.Signatories = sigs
	return nil
}

// TotalVotingPower sums the voting power of every member.
func (s *Set) TotalVotingPower() uint64 {
	var total uint64
	for _, sig := range s.Signatories {
		total += sig.VotingPower
	}
	return total
}

// DeriveFromValidators builds a Set from a validator table (public key
// bytes to voting power), sorted by public key so the derivation is
// deterministic across replicas regardless of map iteration order.
func DeriveFromValidators(validators map[[33]byte]uint64) (Set, error) {
	keys := make([][33]byte, 0, len(validators))
	for k := range validators {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})

	set := Set{Signatories: make([]Signatory, 0, len(keys))}
	for _, k := range keys {
		if _, err := btcec.ParsePubKey(k[:]); err != nil {
			return Set{}, fmt.Errorf("%w: %v", ErrBadValidatorKey, err)
		}
		set.Signatories = append(set.Signatories, Signatory{PubKey: k, VotingPower: validators[k]})
	}
	return set, nil
}

// Snapshot pairs a derived signatory set with the block time, in seconds,
// it was derived at -- the deque of these is the signatory-set history the
// deposit handler scans.
type Snapshot struct {
	Time uint64
	Set  Set
}

// EncodeTo writes the snapshot as its time followed by the set.
func (s *Snapshot) EncodeTo(w io.Writer) error {
	if err := codec.WriteUint64(w, s.Time); err != nil {
		return err
	}
	return s.Set.EncodeTo(w)
}

// DecodeFrom reads a snapshot written by EncodeTo.
func (s *Snapshot) DecodeFrom(r io.Reader) error {
	h, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	s.Time = h
	return s.Set.DecodeFrom(r)
}

// OutputScript builds the Bitcoin output script a deposit or checkpoint
// sweep pays the signatory set into, earmarked for recipient. Standard
// OP_CHECKMULTISIG has no notion of weighted signers, so the script instead
// accumulates voting power: the witness supplies one stack slot per
// signatory (either a signature or OP_0), and the script runs a weight
// accumulator that adds a signatory's voting power only if its signature
// checks out, finally requiring the running total to exceed two thirds of
// the set's total voting power (threshold floor(2*total/3) + 1). Members are pushed in the same sorted
// order the set was derived in, so every replica builds the identical
// script. The recipient commitment is pushed last as inert constant data:
// it never affects spendability, only the script's identity, so deposits
// to the same signatory set but different recipients produce distinct
// script_pubkeys the deposit handler can tell apart.
func OutputScript(set Set, recipient [33]byte) ([]byte, error) {
	if len(set.Signatories) == 0 {
		return nil, errors.New("signatory: cannot build output script for empty set")
	}

	threshold := set.TotalVotingPower()*2/3 + 1

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	for _, sig := range set.Signatories {
		builder.AddOp(txscript.OP_SWAP)
		builder.AddData(sig.PubKey[:])
		builder.AddOp(txscript.OP_CHECKSIG)
		builder.AddOp(txscript.OP_IF)
		builder.AddInt64(int64(sig.VotingPower))
		builder.AddOp(txscript.OP_ADD)
		builder.AddOp(txscript.OP_ENDIF)
	}
	builder.AddInt64(int64(threshold))
	builder.AddOp(txscript.OP_GREATERTHANOREQUAL)
	builder.AddOp(txscript.OP_VERIFY)
	builder.AddData(recipient[:])

	return builder.Script()
}
