// Copyright 2025 Certen Protocol

package statemachine

import "github.com/btcpeg/validator/pkg/pegtx"

// ActionKind tags whether an Action is the per-block BeginBlock call or a
// submitted transaction.
type ActionKind uint8

const (
	ActionBeginBlock ActionKind = iota
	ActionTransaction
)

// Action is the single unit of input Apply consumes: either a BeginBlock
// carrying only the block's time, or one transaction.
type Action struct {
	Kind                  ActionKind
	BeginBlockTimeSeconds uint64
	Transaction           *pegtx.Transaction
}

// BeginBlock constructs a BeginBlock action for the given block time.
func BeginBlock(timeSeconds uint64) Action {
	return Action{Kind: ActionBeginBlock, BeginBlockTimeSeconds: timeSeconds}
}

// TransactionAction constructs a Transaction action wrapping tx.
func TransactionAction(tx *pegtx.Transaction) Action {
	return Action{Kind: ActionTransaction, Transaction: tx}
}

// ValidatorTable is the externally owned mapping from compressed public key
// to voting power that Apply both reads and mutates. The consensus-engine
// shim owns it for the duration of one action and observes any mutation on
// return.
type ValidatorTable map[[33]byte]uint64
