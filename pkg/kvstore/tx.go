// Copyright 2025 Certen Protocol

package kvstore

// Tx is a buffered, write-behind view over a backing Store. Every write made
// through a Tx is staged in memory; reads see the overlay on top of the
// backing store, so a handler observes its own uncommitted writes, but
// nothing reaches the backing store until Commit is called. Discard drops
// the overlay, leaving the backing store untouched.
//
// This is what gives a single dispatched action (spec §5) its all-or-nothing
// semantics without requiring the backing key-value store (cometbft-db, in
// this repository) to support transactions natively: pkg/abciapp opens a Tx
// per delivered transaction, passes a State wrapped around it to
// statemachine.Apply, and commits or discards it based on whether Apply
// returned an error.
//
// A Tx is not safe for concurrent use. It is owned by one action's
// processing for its entire lifetime, same as the teacher's LedgerStore is
// documented to assume single-writer, commit-thread-only access.
type Tx struct {
	backing Store
	overlay map[string][]byte
}

// NewTx opens a buffered view over backing.
func NewTx(backing Store) *Tx {
	return &Tx{backing: backing, overlay: make(map[string][]byte)}
}

// Get implements Store, preferring a staged write over the backing store.
func (t *Tx) Get(key []byte) ([]byte, error) {
	if v, ok := t.overlay[string(key)]; ok {
		return v, nil
	}
	return t.backing.Get(key)
}

// Set implements Store by staging the write in the overlay.
func (t *Tx) Set(key, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	t.overlay[string(key)] = buf
	return nil
}

// Commit flushes every staged write to the backing store, in the order it
// was written is not preserved (map iteration), which is fine: nothing in
// this repository's handlers depends on write-order across distinct keys
// within one action, only on the reads-its-own-writes property Get provides.
func (t *Tx) Commit() error {
	for k, v := range t.overlay {
		if err := t.backing.Set([]byte(k), v); err != nil {
			return err
		}
	}
	t.overlay = make(map[string][]byte)
	return nil
}

// Discard drops every staged write. The backing store is left exactly as it
// was before the Tx was opened.
func (t *Tx) Discard() {
	t.overlay = make(map[string][]byte)
}
