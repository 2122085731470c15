// Copyright 2025 Certen Protocol
//
// Package codec implements the canonical binary wire format shared by every
// persisted entity and transaction in the peg validator core. Every replica
// must produce byte-identical encodings, so this package never delegates to
// JSON, gob, or reflection-based encoders: every shape is encoded field by
// field, in a fixed order, with fixed-width big-endian integers and
// u32-length-prefixed dynamic data.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder writes a value's canonical encoding to w.
type Encoder interface {
	EncodeTo(w io.Writer) error
}

// Decoder reads a value's canonical encoding from r, replacing its contents.
type Decoder interface {
	DecodeFrom(r io.Reader) error
}

// Codec combines Encoder and Decoder; most entities in this repository
// implement both halves.
type Codec interface {
	Encoder
	Decoder
}

// WriteUint32 writes v as 4 big-endian bytes.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads 4 big-endian bytes into a uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteUint64 writes v as 8 big-endian bytes.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads 8 big-endian bytes into a uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteBytes writes a u32 big-endian length prefix followed by b.
func WriteBytes(w io.Writer, b []byte) error {
	if len(b) > 1<<32-1 {
		return fmt.Errorf("codec: byte slice too long to encode: %d bytes", len(b))
	}
	if err := WriteUint32(w, uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

// ReadBytes reads a u32 length prefix followed by that many bytes.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFixed writes b verbatim with no length prefix, used for fixed-width
// fields (addresses, txids) whose length is part of the type's contract.
func WriteFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// ReadFixed reads exactly len(buf) bytes into buf.
func ReadFixed(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

// WriteList encodes a u32 count followed by each element's own encoding, in
// order. This is the list-of-dynamic-elements convention spec'd for
// transaction wire encodings.
func WriteList[T Encoder](w io.Writer, items []T) error {
	if len(items) > 1<<32-1 {
		return fmt.Errorf("codec: list too long to encode: %d items", len(items))
	}
	if err := WriteUint32(w, uint32(len(items))); err != nil {
		return err
	}
	for i, item := range items {
		if err := item.EncodeTo(w); err != nil {
			return fmt.Errorf("codec: encode element %d: %w", i, err)
		}
	}
	return nil
}

// ReadList decodes a u32 count followed by that many elements, each produced
// by new(). The returned slice has exactly that length.
func ReadList[T Decoder](r io.Reader, new func() T) ([]T, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	items := make([]T, n)
	for i := range items {
		v := new()
		if err := v.DecodeFrom(r); err != nil {
			return nil, fmt.Errorf("codec: decode element %d: %w", i, err)
		}
		items[i] = v
	}
	return items, nil
}

// WriteByteList encodes a u32 count followed by length-prefixed byte slices,
// used for lists of opaque data (e.g. deposit recipients) rather than
// codec-aware entities.
func WriteByteList(w io.Writer, items [][]byte) error {
	if err := WriteUint32(w, uint32(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := WriteBytes(w, item); err != nil {
			return err
		}
	}
	return nil
}

// ReadByteList decodes the inverse of WriteByteList.
func ReadByteList(r io.Reader) ([][]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	items := make([][]byte, n)
	for i := range items {
		b, err := ReadBytes(r)
		if err != nil {
			return nil, err
		}
		items[i] = b
	}
	return items, nil
}

// EncodingLength returns the byte length of v's canonical encoding, by
// encoding it into a discarding byte counter. Entities on a hot path should
// prefer a direct length computation. Nothing in this repository calls it.
func EncodingLength(v Encoder) (int, error) {
	c := &countingWriter{}
	if err := v.EncodeTo(c); err != nil {
		return 0, err
	}
	return c.n, nil
}

type countingWriter struct{ n int }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += len(p)
	return len(p), nil
}
