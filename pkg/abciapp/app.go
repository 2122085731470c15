// Copyright 2025 Certen Protocol
//
// Package abciapp wires the peg validator's deterministic state machine
// (pkg/statemachine) into a CometBFT ABCI application. It owns exactly the
// pieces spec.md leaves external to the core: the consensus engine's
// per-action dispatch loop and the validator power-table round-trip.
package abciapp

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/btcpeg/validator/pkg/config"
	"github.com/btcpeg/validator/pkg/kvstore"
	"github.com/btcpeg/validator/pkg/pegtx"
	"github.com/btcpeg/validator/pkg/spv"
	"github.com/btcpeg/validator/pkg/statemachine"
)

var (
	keyABCIState  = []byte("abci:state")
	keyValidators = []byte("abci:validators")
)

// abciState is the recovery record persisted on every Commit, the Go
// analogue of the teacher's ledger.ABCIState, so a restarted node reports
// the correct height and app hash to CometBFT instead of replaying from
// genesis.
type abciState struct {
	LastBlockHeight  int64  `json:"last_block_height"`
	LastBlockAppHash []byte `json:"last_block_app_hash"`
}

// App implements abcitypes.Application over a single instance of the peg
// validator's state machine. It is the only piece of this repository that
// is allowed to call statemachine.Apply; everything upstream of it
// (CheckTx, FinalizeBlock, Commit) exists to give that call an ordered
// stream of actions and a place to persist the result.
type App struct {
	mu sync.Mutex

	store       kvstore.Store
	state       *statemachine.State
	headerCache *spv.Cache
	validators  statemachine.ValidatorTable

	latestHeight int64
	lastAppHash  []byte

	metrics *metrics
}

// NewApp builds an App over store, restoring any previously persisted ABCI
// recovery state and validator table. headerCache is the SPV header cache
// the deposit and header handlers consult; callers are expected to have
// already run InitChain (or restored a prior instance) before serving
// traffic.
func NewApp(store kvstore.Store, headerCache *spv.Cache, reg prometheus.Registerer) *App {
	app := &App{
		store:       store,
		state:       statemachine.WrapStore(store),
		headerCache: headerCache,
		validators:  statemachine.ValidatorTable{},
		metrics:     newMetrics(reg),
	}

	if raw, err := store.Get(keyABCIState); err == nil && raw != nil {
		var s abciState
		if err := json.Unmarshal(raw, &s); err == nil {
			app.latestHeight = s.LastBlockHeight
			app.lastAppHash = s.LastBlockAppHash
		}
	}
	if raw, err := store.Get(keyValidators); err == nil && raw != nil {
		if vt, err := decodeValidatorTable(raw); err == nil {
			app.validators = vt
		}
	}

	return app
}

// InitChain loads the embedded SPV trust anchor into the header cache, the
// genesis routine spec.md §4 describes as "Initial state".
func (a *App) InitChain(ctx context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	genesis, err := config.LoadGenesisHeader()
	if err != nil {
		return nil, fmt.Errorf("abciapp: load genesis header: %w", err)
	}
	if err := a.headerCache.AddHeaderRaw(genesis.Header, genesis.Height); err != nil {
		return nil, fmt.Errorf("abciapp: seed genesis header: %w", err)
	}

	for _, v := range req.Validators {
		var key [33]byte
		if len(v.PubKey.GetSecp256K1()) == 33 {
			copy(key[:], v.PubKey.GetSecp256K1())
			a.validators[key] = uint64(v.Power)
		}
	}

	return &abcitypes.ResponseInitChain{}, nil
}

// Info reports the height and app hash this instance last committed, so
// CometBFT can detect and recover from a crash mid-block.
func (a *App) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abcitypes.ResponseInfo{
		Data:             "pegvalidator",
		Version:          "0.1.0",
		AppVersion:       1,
		LastBlockHeight:  a.latestHeight,
		LastBlockAppHash: a.lastAppHash,
	}, nil
}

// CheckTx decodes the candidate transaction and rejects it early if it does
// not even parse; the actual accept/reject decision for a well-formed
// transaction is made again, authoritatively, in FinalizeBlock.
func (a *App) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	var tx pegtx.Transaction
	if err := tx.DecodeFrom(bytes.NewReader(req.Tx)); err != nil {
		return &abcitypes.ResponseCheckTx{Code: 1, Log: "invalid transaction encoding: " + err.Error()}, nil
	}
	return &abcitypes.ResponseCheckTx{Code: 0}, nil
}

// FinalizeBlock applies every delivered transaction through exactly one
// buffered kvstore.Tx each, following spec.md §5's one-action-at-a-time,
// all-or-nothing contract. BeginBlock (spec.md §4.2) runs first, ahead of
// any transaction, using the block's header time.
func (a *App) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	preCount, _ := a.state.SignatorySets.Len()
	beginAction := statemachine.BeginBlock(uint64(req.Time.Unix()))
	if err := statemachine.Apply(a.state, a.headerCache, a.validators, beginAction); err != nil {
		a.metrics.observe("begin_block", false)
	} else {
		a.metrics.observe("begin_block", true)
		if postCount, _ := a.state.SignatorySets.Len(); postCount > preCount {
			a.metrics.rotations.Inc()
		}
	}

	results := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, raw := range req.Txs {
		results[i] = a.applyOne(raw)
	}

	return &abcitypes.ResponseFinalizeBlock{TxResults: results}, nil
}

func (a *App) applyOne(raw []byte) *abcitypes.ExecTxResult {
	var tx pegtx.Transaction
	if err := tx.DecodeFrom(bytes.NewReader(raw)); err != nil {
		return &abcitypes.ExecTxResult{Code: 1, Log: "decode: " + err.Error()}
	}

	txview := kvstore.NewTx(a.store)
	state := statemachine.WrapStore(txview)

	err := statemachine.Apply(state, a.headerCache, a.validators, statemachine.TransactionAction(&tx))
	kind := txKindLabel(tx.Kind)
	if err != nil {
		txview.Discard()
		a.metrics.observe(kind, false)
		return &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}
	}

	if err := txview.Commit(); err != nil {
		a.metrics.observe(kind, false)
		return &abcitypes.ExecTxResult{Code: 1, Log: "commit: " + err.Error()}
	}

	a.metrics.observe(kind, true)
	if tx.Kind == pegtx.KindDeposit && tx.Deposit != nil {
		var total int64
		for _, out := range tx.Deposit.Tx.TxOut {
			total += out.Value
		}
		a.metrics.observeDepositValue(total)
	}
	return &abcitypes.ExecTxResult{Code: 0}
}

// Commit persists the validator table and a recovery checkpoint, and
// returns the application hash CometBFT will gossip as this block's
// consensus-relevant state digest.
func (a *App) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.latestHeight++

	if err := a.store.Set(keyValidators, encodeValidatorTable(a.validators)); err != nil {
		return nil, fmt.Errorf("abciapp: persist validators: %w", err)
	}

	a.lastAppHash = a.computeAppHash()

	raw, err := json.Marshal(abciState{LastBlockHeight: a.latestHeight, LastBlockAppHash: a.lastAppHash})
	if err != nil {
		return nil, fmt.Errorf("abciapp: marshal abci state: %w", err)
	}
	if err := a.store.Set(keyABCIState, raw); err != nil {
		return nil, fmt.Errorf("abciapp: persist abci state: %w", err)
	}

	return &abcitypes.ResponseCommit{}, nil
}

// computeAppHash derives a digest over the current signatory-set history
// height and the validator table, deterministically and cheaply. It is not
// a full state Merkle commitment -- light-client state proofs are out of
// this repository's scope (spec.md §1) -- but it changes whenever the
// signatory set or validator power table changes, which is enough for
// CometBFT's crash-recovery height check.
func (a *App) computeAppHash() []byte {
	n, _ := a.state.SignatorySets.Len()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return append(buf, encodeValidatorTable(a.validators)...)
}

// Query is a minimal read-only surface: callers can ask for an account
// balance/nonce by address, or the current signatory set.
func (a *App) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch req.Path {
	case "/account":
		account, ok, err := a.state.AccountsByAddress.Get(req.Data)
		if err != nil {
			return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
		}
		if !ok {
			return &abcitypes.ResponseQuery{Code: 1, Log: "account not found"}, nil
		}
		value, _ := json.Marshal(account)
		return &abcitypes.ResponseQuery{Code: 0, Value: value}, nil
	case "/signatory_set":
		snap, ok, err := a.state.CurrentSignatorySet()
		if err != nil {
			return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
		}
		if !ok {
			return &abcitypes.ResponseQuery{Code: 1, Log: "no signatory set yet"}, nil
		}
		value, _ := json.Marshal(snap)
		return &abcitypes.ResponseQuery{Code: 0, Value: value}, nil
	default:
		return &abcitypes.ResponseQuery{Code: 1, Log: "unknown query path: " + req.Path}, nil
	}
}

// The remaining Application methods are required by the interface but carry
// no domain logic: this repository does not use vote extensions or state
// sync snapshots (spec.md Non-goals).

func (a *App) PrepareProposal(ctx context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	return &abcitypes.ResponsePrepareProposal{Txs: req.Txs}, nil
}

func (a *App) ProcessProposal(ctx context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

func (a *App) ExtendVote(ctx context.Context, req *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (a *App) VerifyVoteExtension(ctx context.Context, req *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

func (a *App) ListSnapshots(ctx context.Context, req *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (a *App) OfferSnapshot(ctx context.Context, req *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_ABORT}, nil
}

func (a *App) LoadSnapshotChunk(ctx context.Context, req *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (a *App) ApplySnapshotChunk(ctx context.Context, req *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_ABORT}, nil
}

func txKindLabel(k pegtx.Kind) string {
	switch k {
	case pegtx.KindWorkProof:
		return "work_proof"
	case pegtx.KindHeader:
		return "header"
	case pegtx.KindDeposit:
		return "deposit"
	case pegtx.KindTransfer:
		return "transfer"
	case pegtx.KindWithdrawal:
		return "withdrawal"
	case pegtx.KindSignature:
		return "signature"
	default:
		return "unknown"
	}
}

func encodeValidatorTable(vt statemachine.ValidatorTable) []byte {
	keys := make([][33]byte, 0, len(vt))
	for k := range vt {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i][:]) < string(keys[j][:]) })

	buf := make([]byte, 0, 4+len(keys)*41)
	n := make([]byte, 4)
	binary.BigEndian.PutUint32(n, uint32(len(keys)))
	buf = append(buf, n...)
	for _, k := range keys {
		buf = append(buf, k[:]...)
		power := make([]byte, 8)
		binary.BigEndian.PutUint64(power, vt[k])
		buf = append(buf, power...)
	}
	return buf
}

func decodeValidatorTable(raw []byte) (statemachine.ValidatorTable, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("abciapp: validator table too short")
	}
	n := binary.BigEndian.Uint32(raw[:4])
	raw = raw[4:]
	vt := make(statemachine.ValidatorTable, n)
	for i := uint32(0); i < n; i++ {
		if len(raw) < 41 {
			return nil, fmt.Errorf("abciapp: validator table truncated")
		}
		var key [33]byte
		copy(key[:], raw[:33])
		power := binary.BigEndian.Uint64(raw[33:41])
		vt[key] = power
		raw = raw[41:]
	}
	return vt, nil
}
