// Copyright 2025 Certen Protocol

package kvstore

import "bytes"

// Value is a single-slot entry over a Store: at most one T is live under
// key at any time. Used for the finalized checkpoint and the active
// checkpoint, each stored whole under its own key.
type Value[T any, PT Entity[T]] struct {
	store Store
	key   []byte
}

// NewValue returns a Value stored under key in store.
func NewValue[T any, PT Entity[T]](store Store, key []byte) *Value[T, PT] {
	return &Value[T, PT]{store: store, key: key}
}

// Get returns the current value, or ok=false if it has never been set.
func (v *Value[T, PT]) Get() (val T, ok bool, err error) {
	raw, err := v.store.Get(v.key)
	if err != nil {
		return val, false, err
	}
	if raw == nil {
		return val, false, nil
	}
	if err := PT(&val).DecodeFrom(bytes.NewReader(raw)); err != nil {
		return val, false, err
	}
	return val, true, nil
}

// Set overwrites the current value.
func (v *Value[T, PT]) Set(val T) error {
	var buf bytes.Buffer
	if err := PT(&val).EncodeTo(&buf); err != nil {
		return err
	}
	return v.store.Set(v.key, buf.Bytes())
}
