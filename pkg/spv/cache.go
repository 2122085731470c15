// Copyright 2025 Certen Protocol
//
// Header cache for Bitcoin SPV proof verification.
// Tracks the chain of block headers the state machine has accepted, indexed
// by height, so deposit transactions can be checked against a header the
// chain has already committed to. Backed by a kvstore.Store so
// the accepted chain survives a process restart the same way every other
// piece of consensus state does.

package spv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcpeg/validator/pkg/kvstore"
)

// Common errors returned by Cache.
var (
	ErrHeaderNotFound  = errors.New("spv: header not found")
	ErrDuplicateHeight = errors.New("spv: header already recorded at height")
	ErrBrokenChain     = errors.New("spv: header does not extend the cached tip")
)

var (
	headerPrefix = []byte("spv:h:")
	tipKey       = []byte("spv:tip")
)

// EnrichedHeader pairs a raw Bitcoin block header with the height the chain
// assigned to it. The state machine never trusts height values supplied by
// a transaction; it only trusts heights it assigned itself when the header
// was accepted.
type EnrichedHeader struct {
	Header *wire.BlockHeader
	Height uint32
}

// Hash returns the header's double-SHA256 block hash.
func (e *EnrichedHeader) Hash() chainhash.Hash {
	return e.Header.BlockHash()
}

// Cache is a height-indexed store of accepted Bitcoin headers, persisted
// through a kvstore.Store. It is the concrete default implementation of the
// header-cache contract: callers add headers in height order, and later
// look them up by height when verifying an SPV proof against a transaction.
// An in-process mutex serializes access to the in-memory tip cache; the
// backing store is the source of truth.
type Cache struct {
	mu    sync.RWMutex
	store kvstore.Store

	tip    uint32
	hasTip bool
}

// NewCache returns a header cache backed by a fresh in-memory
// kvstore.MemStore: state written to it does not survive a restart.
// Use NewCacheWithStore to persist accepted headers.
func NewCache() *Cache {
	return &Cache{store: kvstore.NewMemStore()}
}

// NewCacheWithStore returns a header cache backed by store. If store already
// holds a chain tip (e.g. recovered from disk after a restart), the cache
// resumes from it.
func NewCacheWithStore(store kvstore.Store) (*Cache, error) {
	c := &Cache{store: store}
	raw, err := store.Get(tipKey)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		if len(raw) != 4 {
			return nil, fmt.Errorf("spv: corrupt tip record: %d bytes", len(raw))
		}
		c.tip = binary.BigEndian.Uint32(raw)
		c.hasTip = true
	}
	return c, nil
}

func heightKey(height uint32) []byte {
	key := make([]byte, len(headerPrefix)+4)
	n := copy(key, headerPrefix)
	binary.BigEndian.PutUint32(key[n:], height)
	return key
}

func (c *Cache) headerAt(height uint32) (*wire.BlockHeader, bool, error) {
	raw, err := c.store.Get(heightKey(height))
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	header := &wire.BlockHeader{}
	if err := header.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, false, fmt.Errorf("spv: decode stored header at height %d: %w", height, err)
	}
	return header, true, nil
}

// addAt records header at height, provided it extends the current tip (its
// PrevBlock must equal the tip header's hash, unless the cache is empty).
// Returns ErrBrokenChain if it does not, and ErrDuplicateHeight if a header
// already exists at that height.
func (c *Cache) addAt(header *wire.BlockHeader, height uint32) error {
	if _, exists, err := c.headerAt(height); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %d", ErrDuplicateHeight, height)
	}

	if c.hasTip {
		tipHeader, ok, err := c.headerAt(c.tip)
		if err != nil {
			return err
		}
		if !ok || height != c.tip+1 || header.PrevBlock != tipHeader.BlockHash() {
			return ErrBrokenChain
		}
	}

	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		return fmt.Errorf("spv: serialize header: %w", err)
	}
	if err := c.store.Set(heightKey(height), buf.Bytes()); err != nil {
		return err
	}

	if !c.hasTip || height > c.tip {
		tipBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(tipBuf, height)
		if err := c.store.Set(tipKey, tipBuf); err != nil {
			return err
		}
		c.tip = height
		c.hasTip = true
	}
	return nil
}

// AddHeader appends header as the new chain tip, at height tip+1 (or
// height 0 if the cache is empty and has never been seeded with a genesis
// header via AddHeaderRaw).
func (c *Cache) AddHeader(header *wire.BlockHeader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := uint32(0)
	if c.hasTip {
		next = c.tip + 1
	}
	return c.addAt(header, next)
}

// AddHeaderRaw decodes a serialized Bitcoin block header and records it at
// an explicit height. Used once at genesis to seed the SPV trust anchor,
// whose height is not necessarily 0.
func (c *Cache) AddHeaderRaw(raw []byte, height uint32) error {
	header := &wire.BlockHeader{}
	if err := header.Deserialize(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("spv: decode header: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addAt(header, height)
}

// GetHeaderForHeight returns the header previously recorded at height.
func (c *Cache) GetHeaderForHeight(height uint32) (*EnrichedHeader, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	header, ok, err := c.headerAt(height)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: height %d", ErrHeaderNotFound, height)
	}
	return &EnrichedHeader{Header: header, Height: height}, nil
}

// Tip returns the height of the most recently accepted header.
func (c *Cache) Tip() (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip, c.hasTip
}
