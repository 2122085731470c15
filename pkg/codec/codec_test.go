// Copyright 2025 Certen Protocol

package codec

import (
	"bytes"
	"testing"
)

func TestUint32RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteUint32(&buf, 0xdeadbeef); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadUint32(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != 0xdeadbeef {
		t.Errorf("got %x, want %x", got, 0xdeadbeef)
	}
}

func TestUint64RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := uint64(1_000_000_000_000)
	if err := WriteUint64(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadUint64(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []byte("hello, peg zone")
	if err := WriteBytes(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadBytes(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBytesRoundTripEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBytes(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadBytes(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestByteListRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := [][]byte{[]byte("a"), {}, []byte("ccc")}
	if err := WriteByteList(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadByteList(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("item %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFixedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []byte{1, 2, 3, 4, 5}
	if err := WriteFixed(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := make([]byte, len(want))
	if err := ReadFixed(&buf, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
