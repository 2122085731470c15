// Copyright 2025 Certen Protocol

package kvstore

import "bytes"

// Map is a typed key-value mapping over a Store, keyed by raw bytes (this
// repository always keys it by a fixed-width Address) and storing values of
// type T via the codec Entity[T] constraint.
type Map[T any, PT Entity[T]] struct {
	store  Store
	prefix []byte
}

// NewMap returns a Map whose entries live under prefix in store.
func NewMap[T any, PT Entity[T]](store Store, prefix []byte) *Map[T, PT] {
	return &Map[T, PT]{store: store, prefix: prefix}
}

func (m *Map[T, PT]) key(k []byte) []byte {
	buf := make([]byte, 0, len(m.prefix)+len(k))
	buf = append(buf, m.prefix...)
	buf = append(buf, k...)
	return buf
}

// Get returns the value stored at k, or ok=false if absent.
func (m *Map[T, PT]) Get(k []byte) (v T, ok bool, err error) {
	raw, err := m.store.Get(m.key(k))
	if err != nil {
		return v, false, err
	}
	if raw == nil {
		return v, false, nil
	}
	if err := PT(&v).DecodeFrom(bytes.NewReader(raw)); err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Insert stores v at k, overwriting any existing entry.
func (m *Map[T, PT]) Insert(k []byte, v T) error {
	var buf bytes.Buffer
	if err := PT(&v).EncodeTo(&buf); err != nil {
		return err
	}
	return m.store.Set(m.key(k), buf.Bytes())
}
