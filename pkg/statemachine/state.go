// Copyright 2025 Certen Protocol

package statemachine

import (
	"github.com/btcpeg/validator/pkg/kvstore"
	"github.com/btcpeg/validator/pkg/signatory"
)

// Key prefixes for the top-level containers. Each container owns its own
// namespace so a single backing Store can hold every entity without
// collisions.
var (
	prefixAccounts              = []byte("a:")
	prefixRedeemedWorkHashes    = []byte("w:")
	prefixSignatorySets         = []byte("s:")
	prefixProcessedDepositTxids = []byte("d:")
	prefixPendingWithdrawals    = []byte("p:")
	prefixUtxos                 = []byte("u:")
	keyFinalizedCheckpoint      = []byte("checkpoint")
	keyActiveCheckpoint         = []byte("active-checkpoint")
)

// State is the typed view over a backing Store that every handler operates
// through. It owns no buffering itself -- the caller is expected to pass a
// *kvstore.Tx when per-action atomicity is required, committing only after
// the handler returns without error.
type State struct {
	AccountsByAddress   *kvstore.Map[Account, *Account]
	RedeemedWorkHashes  *kvstore.Set[[32]byte]
	SignatorySets       *kvstore.Deque[signatory.Snapshot, *signatory.Snapshot]
	ProcessedDeposits   *kvstore.Set[[32]byte]
	PendingWithdrawals  *kvstore.Deque[Withdrawal, *Withdrawal]
	Utxos               *kvstore.Deque[Utxo, *Utxo]
	FinalizedCheckpoint *kvstore.Value[Checkpoint, *Checkpoint]
	ActiveCheckpoint    *kvstore.Value[ActiveCheckpoint, *ActiveCheckpoint]
}

// WrapStore builds the typed State view over store. Every call builds
// fresh container handles bound to the same prefixes, so two States wrapping
// the same store observe the same data.
func WrapStore(store kvstore.Store) *State {
	toBytes32 := func(k [32]byte) []byte { return k[:] }
	return &State{
		AccountsByAddress:   kvstore.NewMap[Account, *Account](store, prefixAccounts),
		RedeemedWorkHashes:  kvstore.NewSet[[32]byte](store, prefixRedeemedWorkHashes, toBytes32),
		SignatorySets:       kvstore.NewDeque[signatory.Snapshot, *signatory.Snapshot](store, prefixSignatorySets),
		ProcessedDeposits:   kvstore.NewSet[[32]byte](store, prefixProcessedDepositTxids, toBytes32),
		PendingWithdrawals:  kvstore.NewDeque[Withdrawal, *Withdrawal](store, prefixPendingWithdrawals),
		Utxos:               kvstore.NewDeque[Utxo, *Utxo](store, prefixUtxos),
		FinalizedCheckpoint: kvstore.NewValue[Checkpoint, *Checkpoint](store, keyFinalizedCheckpoint),
		ActiveCheckpoint:    kvstore.NewValue[ActiveCheckpoint, *ActiveCheckpoint](store, keyActiveCheckpoint),
	}
}

// CurrentSignatorySet returns the most recently appended snapshot, or
// ok=false if BeginBlock has not yet pushed one.
func (s *State) CurrentSignatorySet() (signatory.Snapshot, bool, error) {
	return s.SignatorySets.Back()
}
