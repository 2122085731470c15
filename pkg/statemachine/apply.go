// Copyright 2025 Certen Protocol
//
// The dispatcher and its six transaction handlers: the centerpiece of the
// peg validator core. Every handler must reproduce its acceptance and
// rejection behavior bit-for-bit across replicas, including the ordering
// quirks called out inline.

package statemachine

import (
	"github.com/btcpeg/validator/pkg/config"
	"github.com/btcpeg/validator/pkg/pegtx"
	"github.com/btcpeg/validator/pkg/signatory"
	"github.com/btcpeg/validator/pkg/spv"
)

// Apply routes action to its matching handler against state, using
// headerCache for SPV lookups and validators as the externally owned
// voting-power map. A non-nil error means the action is rejected; callers
// using a buffered kvstore.Tx must discard its writes on error and commit
// only on success.
func Apply(state *State, headerCache *spv.Cache, validators ValidatorTable, action Action) error {
	switch action.Kind {
	case ActionBeginBlock:
		return handleBeginBlock(state, validators, action.BeginBlockTimeSeconds)
	case ActionTransaction:
		return applyTransaction(state, headerCache, validators, action.Transaction)
	default:
		return ErrUnimplemented
	}
}

func applyTransaction(state *State, headerCache *spv.Cache, validators ValidatorTable, tx *pegtx.Transaction) error {
	switch tx.Kind {
	case pegtx.KindWorkProof:
		return handleWorkProof(state, validators, tx.WorkProof)
	case pegtx.KindHeader:
		return handleHeader(headerCache, tx.Header)
	case pegtx.KindDeposit:
		return handleDeposit(state, headerCache, tx.Deposit)
	case pegtx.KindTransfer:
		return handleTransfer(state, tx.Transfer)
	case pegtx.KindWithdrawal:
		return handleWithdrawal(state, tx.Withdrawal)
	case pegtx.KindSignature:
		return handleSignature(tx.Signature)
	default:
		return ErrUnimplemented
	}
}

// handleBeginBlock initializes the signatory-set history on the first
// block, or rotates it once SignatoryChangeInterval seconds have elapsed
// since the last snapshot.
func handleBeginBlock(state *State, validators ValidatorTable, timeSeconds uint64) error {
	last, ok, err := state.SignatorySets.Back()
	if err != nil {
		return err
	}

	if !ok {
		set, err := deriveSignatories(validators)
		if err != nil {
			return err
		}
		return state.SignatorySets.PushBack(signatory.Snapshot{Time: timeSeconds, Set: set})
	}

	if timeSeconds-last.Time >= config.SignatoryChangeInterval {
		set, err := deriveSignatories(validators)
		if err != nil {
			return err
		}
		return state.SignatorySets.PushBack(signatory.Snapshot{Time: timeSeconds, Set: set})
	}

	return nil
}

func deriveSignatories(validators ValidatorTable) (signatory.Set, error) {
	set, err := signatory.DeriveFromValidators(validators)
	if err != nil {
		return signatory.Set{}, ErrBadValidatorKey
	}
	return set, nil
}

// handleHeader forwards every header in order to the header cache. No
// state mutation occurs outside the cache.
func handleHeader(headerCache *spv.Cache, tx *pegtx.HeaderTransaction) error {
	for _, header := range tx.BlockHeaders {
		if err := headerCache.AddHeader(header); err != nil {
			return err
		}
	}
	return nil
}

// handleDeposit is the centerpiece: it SPV-verifies a Bitcoin transaction,
// matches its outputs against every known signatory set's output script,
// mints balances, records UTXOs, and prevents replay by txid.
func handleDeposit(state *State, headerCache *spv.Cache, tx *pegtx.DepositTransaction) error {
	txid := tx.Txid()
	var txidKey [32]byte
	copy(txidKey[:], txid[:])

	alreadyProcessed, err := state.ProcessedDeposits.Contains(txidKey)
	if err != nil {
		return err
	}
	if alreadyProcessed {
		return ErrAlreadyProcessed
	}

	header, err := headerCache.GetHeaderForHeight(tx.Height)
	if err != nil {
		return ErrHeaderMissing
	}

	if err := spv.VerifyAgainstHeader(header, tx.Proof, txid, tx.BlockIndex); err != nil {
		return ErrMerkleMismatch
	}

	snapshots, err := state.SignatorySets.All()
	if err != nil {
		return err
	}

	containsDepositOutputs := false

	for i, output := range tx.Tx.TxOut {
		// Design note: the recipient list is only ever peeked, never
		// advanced, here. A single recipient therefore matches every
		// deposit output in this transaction. This reproduces the
		// authoritative behavior byte-for-byte; see DESIGN.md's Open
		// Question resolutions for why this is preserved rather than fixed.
		if len(tx.Recipients) == 0 {
			return ErrRecipientsExhausted
		}
		recipient := tx.Recipients[0]

		if len(recipient) != 33 {
			return ErrBadRecipient
		}

		var recipientKey [33]byte
		copy(recipientKey[:], recipient)

		for setIndex, snapshot := range snapshots {
			expectedScript, err := signatory.OutputScript(snapshot.Set, recipientKey)
			if err != nil {
				continue
			}
			if !bytesEqual(output.PkScript, expectedScript) {
				continue
			}

			var addr [33]byte
			copy(addr[:], recipient)

			account, _, err := state.AccountsByAddress.Get(addr[:])
			if err != nil {
				return err
			}
			account.Balance += uint64(output.Value)
			if err := state.AccountsByAddress.Insert(addr[:], account); err != nil {
				return err
			}

			var dataCopy [33]byte
			copy(dataCopy[:], recipient)
			utxo := Utxo{
				Outpoint:          Outpoint{Txid: [32]byte(txid), Vout: uint32(i)},
				SignatorySetIndex: uint64(setIndex),
				Data:              dataCopy[:],
			}
			if err := state.Utxos.PushBack(utxo); err != nil {
				return err
			}

			containsDepositOutputs = true
			break
		}
	}

	if !containsDepositOutputs {
		return ErrNoDepositOutputs
	}

	return state.ProcessedDeposits.Insert(txidKey)
}

// handleTransfer moves balance between two accounts, burning the fee.
func handleTransfer(state *State, tx *pegtx.TransferTransaction) error {
	if bytesEqual(tx.From, tx.To) {
		return ErrSelfTransfer
	}
	if tx.FeeAmount < 1000 {
		return ErrFeeTooSmall
	}
	if len(tx.From) != 33 {
		return ErrBadSenderAddress
	}
	if len(tx.To) != 33 {
		return ErrBadRecipientAddress
	}

	var from, to [33]byte
	copy(from[:], tx.From)
	copy(to[:], tx.To)

	sender, ok, err := state.AccountsByAddress.Get(from[:])
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoAccount
	}

	total, overflow := addUint64(tx.Amount, tx.FeeAmount)
	if overflow || sender.Balance < total {
		return ErrInsufficientBalance
	}
	if tx.Nonce != sender.Nonce {
		return ErrBadNonce
	}

	valid, err := tx.VerifySignature()
	if err != nil || !valid {
		return ErrBadSignature
	}

	sender.Nonce++
	sender.Balance -= total

	recipient, _, err := state.AccountsByAddress.Get(to[:])
	if err != nil {
		return err
	}
	recipient.Balance += tx.Amount

	if err := state.AccountsByAddress.Insert(from[:], sender); err != nil {
		return err
	}
	return state.AccountsByAddress.Insert(to[:], recipient)
}

// handleWithdrawal burns balance and queues a pending payout.
func handleWithdrawal(state *State, tx *pegtx.WithdrawalTransaction) error {
	if len(tx.From) != 33 {
		return ErrBadSenderAddress
	}

	var from [33]byte
	copy(from[:], tx.From)

	sender, ok, err := state.AccountsByAddress.Get(from[:])
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoAccount
	}
	if sender.Balance < tx.Amount {
		return ErrInsufficientBalance
	}
	if tx.Nonce != sender.Nonce {
		return ErrBadWithdrawalNonce
	}

	valid, err := tx.VerifySignature()
	if err != nil || !valid {
		return ErrBadSignature
	}

	sender.Nonce++
	sender.Balance -= tx.Amount

	if err := state.AccountsByAddress.Insert(from[:], sender); err != nil {
		return err
	}

	return state.PendingWithdrawals.PushBack(Withdrawal{Value: tx.Amount, Script: tx.To})
}

// handleWorkProof verifies a SHA-256 preimage meets the work threshold,
// grants voting power, and prevents replay by hash.
func handleWorkProof(state *State, validators ValidatorTable, tx *pegtx.WorkProofTransaction) error {
	if len(tx.PublicKey) != 33 {
		return ErrBadValidatorKey
	}

	hash := tx.WorkHash()
	w := work(hash)
	if w < config.MinWork {
		return ErrInsufficientWork
	}

	redeemed, err := state.RedeemedWorkHashes.Contains(hash)
	if err != nil {
		return err
	}
	if redeemed {
		return ErrWorkReplay
	}

	var key [33]byte
	copy(key[:], tx.PublicKey)
	validators[key] = saturatingAdd(validators[key], w)

	return state.RedeemedWorkHashes.Insert(hash)
}

// handleSignature is the stubbed checkpoint-signing transaction kind: the
// core does not implement the multisig protocol, so dispatch always fails
// here, leaving state untouched.
func handleSignature(tx *pegtx.SignatureTransaction) error {
	return ErrUnimplemented
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func addUint64(a, b uint64) (sum uint64, overflow bool) {
	sum = a + b
	return sum, sum < a
}

func saturatingAdd(a, b uint64) uint64 {
	sum, overflow := addUint64(a, b)
	if overflow {
		return ^uint64(0)
	}
	return sum
}
