// Copyright 2025 Certen Protocol

package kvstore

import "io"

// Entity constrains a pointer type PT to *T whose methods provide the
// canonical encoding for T. Map, Deque, and Value are generic over (T, PT)
// so a container can store plain struct values (T) while still dispatching
// to pointer-receiver Encode/Decode methods, the same split orga's
// Encode/Decode traits make in the original implementation.
type Entity[T any] interface {
	*T
	EncodeTo(w io.Writer) error
	DecodeFrom(r io.Reader) error
}
