// Copyright 2025 Certen Protocol

package kvstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Deque is an append-only FIFO over a Store: elements are pushed to the
// back and read by index, in insertion order. Nothing in this repository
// ever pops from the front or reorders entries — the queues the peg
// validator core maintains (signatory-set history, the UTXO queue, pending
// withdrawals) are all append-only by spec.
type Deque[T any, PT Entity[T]] struct {
	store  Store
	prefix []byte
}

// NewDeque returns a Deque whose elements live under prefix in store.
func NewDeque[T any, PT Entity[T]](store Store, prefix []byte) *Deque[T, PT] {
	return &Deque[T, PT]{store: store, prefix: prefix}
}

func (d *Deque[T, PT]) lenKey() []byte {
	return append(append([]byte{}, d.prefix...), "len"...)
}

func (d *Deque[T, PT]) elemKey(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)
	return append(append([]byte{}, d.prefix...), buf...)
}

// Len returns the number of elements pushed so far.
func (d *Deque[T, PT]) Len() (uint64, error) {
	raw, err := d.store.Get(d.lenKey())
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

// PushBack appends v as the new last element.
func (d *Deque[T, PT]) PushBack(v T) error {
	n, err := d.Len()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := PT(&v).EncodeTo(&buf); err != nil {
		return err
	}
	if err := d.store.Set(d.elemKey(n), buf.Bytes()); err != nil {
		return err
	}

	lenBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(lenBuf, n+1)
	return d.store.Set(d.lenKey(), lenBuf)
}

// Get returns the i-th element pushed (0-indexed). It errors if i is out of
// range.
func (d *Deque[T, PT]) Get(i uint64) (v T, err error) {
	n, err := d.Len()
	if err != nil {
		return v, err
	}
	if i >= n {
		return v, fmt.Errorf("kvstore: deque index %d out of range (len %d)", i, n)
	}
	raw, err := d.store.Get(d.elemKey(i))
	if err != nil {
		return v, err
	}
	if raw == nil {
		return v, fmt.Errorf("kvstore: deque index %d missing", i)
	}
	if err := PT(&v).DecodeFrom(bytes.NewReader(raw)); err != nil {
		return v, err
	}
	return v, nil
}

// Back returns the most recently pushed element, if any.
func (d *Deque[T, PT]) Back() (v T, ok bool, err error) {
	n, err := d.Len()
	if err != nil {
		return v, false, err
	}
	if n == 0 {
		return v, false, nil
	}
	v, err = d.Get(n - 1)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// All returns every element, in insertion order. It is intended for the
// small, long-lived collections in this codebase (signatory-set history)
// rather than as a general-purpose iterator.
func (d *Deque[T, PT]) All() ([]T, error) {
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := uint64(0); i < n; i++ {
		v, err := d.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
