// Copyright 2025 Certen Protocol

package spv

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/btcpeg/validator/pkg/kvstore"
)

func TestCacheAddHeaderRejectsBrokenChain(t *testing.T) {
	c := NewCache()
	genesis := &wire.BlockHeader{}
	if err := c.AddHeader(genesis); err != nil {
		t.Fatalf("add genesis: %v", err)
	}

	var wrongPrev [32]byte
	wrongPrev[0] = 0xFF
	bad := &wire.BlockHeader{PrevBlock: wrongPrev}
	if err := c.AddHeader(bad); err == nil {
		t.Fatal("expected broken-chain rejection")
	}

	good := &wire.BlockHeader{PrevBlock: genesis.BlockHash()}
	if err := c.AddHeader(good); err != nil {
		t.Fatalf("add linked header: %v", err)
	}

	tip, ok := c.Tip()
	if !ok || tip != 1 {
		t.Fatalf("tip = %d, %v, want 1, true", tip, ok)
	}
}

func TestCacheWithStoreSurvivesRestart(t *testing.T) {
	store := kvstore.NewMemStore()

	c1, err := NewCacheWithStore(store)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	genesis := &wire.BlockHeader{}
	if err := c1.AddHeader(genesis); err != nil {
		t.Fatalf("add genesis: %v", err)
	}
	next := &wire.BlockHeader{PrevBlock: genesis.BlockHash()}
	if err := c1.AddHeader(next); err != nil {
		t.Fatalf("add next: %v", err)
	}

	c2, err := NewCacheWithStore(store)
	if err != nil {
		t.Fatalf("restore cache: %v", err)
	}
	tip, ok := c2.Tip()
	if !ok || tip != 1 {
		t.Fatalf("restored tip = %d, %v, want 1, true", tip, ok)
	}

	got, err := c2.GetHeaderForHeight(1)
	if err != nil {
		t.Fatalf("get restored header: %v", err)
	}
	var buf, wantBuf bytes.Buffer
	if err := got.Header.Serialize(&buf); err != nil {
		t.Fatalf("serialize restored: %v", err)
	}
	if err := next.Serialize(&wantBuf); err != nil {
		t.Fatalf("serialize original: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), wantBuf.Bytes()) {
		t.Fatal("restored header does not match the one originally added")
	}
}

func TestCacheAddHeaderRawSeedsArbitraryHeight(t *testing.T) {
	c := NewCache()
	genesis := &wire.BlockHeader{}
	var raw bytes.Buffer
	if err := genesis.Serialize(&raw); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	if err := c.AddHeaderRaw(raw.Bytes(), 700000); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	tip, ok := c.Tip()
	if !ok || tip != 700000 {
		t.Fatalf("tip = %d, %v, want 700000, true", tip, ok)
	}

	if _, err := c.GetHeaderForHeight(0); err == nil {
		t.Fatal("expected no header at height 0")
	}
}
