// Copyright 2025 Certen Protocol
//
// cometStore adapts CometBFT's on-disk dbm.DB into the kvstore.Store
// contract the state machine's typed containers are built on. It lives here
// rather than as its own package because nothing outside main wiring ever
// constructs one.

package main

import (
	dbm "github.com/cometbft/cometbft-db"
)

// cometStore wraps a CometBFT dbm.DB and exposes the kvstore.Store interface,
// so the state machine's typed containers can sit directly on top of
// CometBFT's persistent storage.
type cometStore struct {
	db dbm.DB
}

// newCometStore creates a cometStore over the given underlying DB.
func newCometStore(db dbm.DB) *cometStore {
	return &cometStore{db: db}
}

// Get implements kvstore.Store.
func (s *cometStore) Get(key []byte) ([]byte, error) {
	if s.db == nil {
		return nil, nil
	}

	v, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	// v may be nil if key not found -- kvstore treats nil as "not present".
	return v, nil
}

// Set implements kvstore.Store.
func (s *cometStore) Set(key, value []byte) error {
	if s.db == nil {
		return nil
	}

	// Use SetSync for durable writes at commit time.
	return s.db.SetSync(key, value)
}

// Close releases the underlying database.
func (s *cometStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
