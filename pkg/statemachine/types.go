// Copyright 2025 Certen Protocol

package statemachine

import (
	"io"

	"github.com/btcpeg/validator/pkg/codec"
	"github.com/btcpeg/validator/pkg/signatory"
)

// Account is the persistent balance/nonce record for one 33-byte address.
// Zero value is the default for an address that has never been credited.
type Account struct {
	Balance uint64
	Nonce   uint64
}

func (a *Account) EncodeTo(w io.Writer) error {
	if err := codec.WriteUint64(w, a.Balance); err != nil {
		return err
	}
	return codec.WriteUint64(w, a.Nonce)
}

func (a *Account) DecodeFrom(r io.Reader) error {
	balance, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	nonce, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	a.Balance, a.Nonce = balance, nonce
	return nil
}

// Outpoint identifies a specific output of a Bitcoin transaction.
type Outpoint struct {
	Txid [32]byte
	Vout uint32
}

func (o *Outpoint) EncodeTo(w io.Writer) error {
	if err := codec.WriteFixed(w, o.Txid[:]); err != nil {
		return err
	}
	return codec.WriteUint32(w, o.Vout)
}

func (o *Outpoint) DecodeFrom(r io.Reader) error {
	if err := codec.ReadFixed(r, o.Txid[:]); err != nil {
		return err
	}
	vout, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	o.Vout = vout
	return nil
}

// Utxo is a Bitcoin output currently held by a signatory set, earmarked for
// the recipient commitment in Data.
type Utxo struct {
	Outpoint          Outpoint
	SignatorySetIndex uint64
	Data              []byte
}

func (u *Utxo) EncodeTo(w io.Writer) error {
	if err := u.Outpoint.EncodeTo(w); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, u.SignatorySetIndex); err != nil {
		return err
	}
	return codec.WriteBytes(w, u.Data)
}

func (u *Utxo) DecodeFrom(r io.Reader) error {
	if err := u.Outpoint.DecodeFrom(r); err != nil {
		return err
	}
	idx, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	data, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	u.SignatorySetIndex, u.Data = idx, data
	return nil
}

// Withdrawal is a pending payout of value satoshis to a Bitcoin output
// script, awaiting inclusion in the next outbound checkpoint.
type Withdrawal struct {
	Value  uint64
	Script []byte
}

func (w *Withdrawal) EncodeTo(ww io.Writer) error {
	if err := codec.WriteUint64(ww, w.Value); err != nil {
		return err
	}
	return codec.WriteBytes(ww, w.Script)
}

func (w *Withdrawal) DecodeFrom(r io.Reader) error {
	value, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	script, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	w.Value, w.Script = value, script
	return nil
}

// Checkpoint is the finalized sweep: every UTXO and pending withdrawal it
// covers, plus the signatory-set snapshot that custodied them. The core
// only defines its encoding; the out-of-scope checkpoint builder owns
// writing it.
type Checkpoint struct {
	Utxos        []Utxo
	Withdrawals  []Withdrawal
	SignatorySet signatory.Snapshot
}

func (c *Checkpoint) EncodeTo(w io.Writer) error {
	if err := codec.WriteUint32(w, uint32(len(c.Utxos))); err != nil {
		return err
	}
	for i := range c.Utxos {
		if err := c.Utxos[i].EncodeTo(w); err != nil {
			return err
		}
	}

	if err := codec.WriteUint32(w, uint32(len(c.Withdrawals))); err != nil {
		return err
	}
	for i := range c.Withdrawals {
		if err := c.Withdrawals[i].EncodeTo(w); err != nil {
			return err
		}
	}

	return c.SignatorySet.EncodeTo(w)
}

func (c *Checkpoint) DecodeFrom(r io.Reader) error {
	utxoCount, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	utxos := make([]Utxo, utxoCount)
	for i := range utxos {
		if err := utxos[i].DecodeFrom(r); err != nil {
			return err
		}
	}

	withdrawalCount, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	withdrawals := make([]Withdrawal, withdrawalCount)
	for i := range withdrawals {
		if err := withdrawals[i].DecodeFrom(r); err != nil {
			return err
		}
	}

	var snapshot signatory.Snapshot
	if err := snapshot.DecodeFrom(r); err != nil {
		return err
	}

	c.Utxos, c.Withdrawals, c.SignatorySet = utxos, withdrawals, snapshot
	return nil
}

// ActiveCheckpoint is in-progress multisig-round state, written only by the
// (currently unimplemented) signature handler. Every other handler must
// leave it untouched.
type ActiveCheckpoint struct {
	IsActive          bool
	SignedVotingPower uint64
	SignatorySet      signatory.Snapshot
	Withdrawals       []Withdrawal
}

func (a *ActiveCheckpoint) EncodeTo(w io.Writer) error {
	isActive := byte(0)
	if a.IsActive {
		isActive = 1
	}
	if _, err := w.Write([]byte{isActive}); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, a.SignedVotingPower); err != nil {
		return err
	}
	if err := a.SignatorySet.EncodeTo(w); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, uint32(len(a.Withdrawals))); err != nil {
		return err
	}
	for i := range a.Withdrawals {
		if err := a.Withdrawals[i].EncodeTo(w); err != nil {
			return err
		}
	}
	return nil
}

func (a *ActiveCheckpoint) DecodeFrom(r io.Reader) error {
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return err
	}
	votingPower, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	var snapshot signatory.Snapshot
	if err := snapshot.DecodeFrom(r); err != nil {
		return err
	}
	n, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	withdrawals := make([]Withdrawal, n)
	for i := range withdrawals {
		if err := withdrawals[i].DecodeFrom(r); err != nil {
			return err
		}
	}

	a.IsActive = flag[0] != 0
	a.SignedVotingPower = votingPower
	a.SignatorySet = snapshot
	a.Withdrawals = withdrawals
	return nil
}
