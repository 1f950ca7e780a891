// Package abci bridges the ledger, accounts, kvstore, and migrations
// modules to a standard BFT consensus engine's socket application
// protocol, per spec §4.8. FinalizeBlock combines what the protocol
// describes as begin-block/deliver-tx/end-block into the single call the
// ABCI 2.0 wire format now uses, matching the CometBFT version this
// module targets.
package abci

import (
	"context"
	"sync"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokenledger/chain/pkg/accounts"
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codeerr"
	"github.com/tokenledger/chain/pkg/dispatch"
	"github.com/tokenledger/chain/pkg/envelope"
	"github.com/tokenledger/chain/pkg/kvstore"
	"github.com/tokenledger/chain/pkg/ledger"
	"github.com/tokenledger/chain/pkg/merkle"
	"github.com/tokenledger/chain/pkg/migrations"
)

var (
	blocksFinalized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenledger_blocks_finalized_total",
		Help: "Number of blocks processed by FinalizeBlock.",
	})
	txsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenledger_txs_delivered_total",
		Help: "Number of transactions delivered, partitioned by result code.",
	}, []string{"code"})
	mempoolRejects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenledger_checktx_rejects_total",
		Help: "Number of CheckTx calls that rejected their transaction.",
	})
)

func init() {
	prometheus.MustRegister(blocksFinalized, txsDelivered, mempoolRejects)
}

// App implements abcitypes.Application over the Merkle store and the
// closed endpoint dispatcher. A single App instance is shared by the
// consensus engine's socket server across the life of the process.
type App struct {
	logger cmtlog.Logger
	mu     sync.RWMutex

	store      *merkle.Store
	migrations *migrations.Registry

	// tokenAuthority is resolved from genesis at InitChain; until then it
	// is the zero address and tokens.create can never succeed.
	tokenAuthority address.Address

	mempoolGuard   *envelope.ReplayGuard
	committedGuard *envelope.ReplayGuard

	latestHeight   int64
	lastCommitHash []byte

	currentHeight  uint64
	currentTime    time.Time
	currentCounter uint64
}

var _ abcitypes.Application = (*App)(nil)

// NewApp wraps store behind the ABCI interface, restoring the last
// committed root so Info() reports correctly across a process restart.
func NewApp(store *merkle.Store, reg *migrations.Registry, logger cmtlog.Logger) *App {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	return &App{
		logger:         logger.With("module", "abci"),
		store:          store,
		migrations:     reg,
		mempoolGuard:   envelope.NewReplayGuard(envelope.DefaultTimeout),
		committedGuard: envelope.NewReplayGuard(envelope.DefaultTimeout),
		lastCommitHash: store.RootHash(),
	}
}

func (a *App) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return &abcitypes.ResponseInfo{
		Data:             "tokenledger",
		Version:          req.Version,
		AppVersion:       1,
		LastBlockHeight:  a.latestHeight,
		LastBlockAppHash: a.lastCommitHash,
	}, nil
}

// InitChain seeds the Merkle store from the declarative genesis carried in
// req.AppStateBytes, per spec §4.8's init-chain.
func (a *App) InitChain(ctx context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tokenAuthority, err := applyGenesis(a.store, req.AppStateBytes)
	if err != nil {
		return nil, err
	}
	a.tokenAuthority = tokenAuthority

	root, err := a.store.Commit()
	if err != nil {
		return nil, err
	}
	a.lastCommitHash = root
	a.logger.Info("init-chain", "chain", req.ChainId, "token-authority", tokenAuthority.String(), "app-hash", root)
	return &abcitypes.ResponseInitChain{AppHash: root}, nil
}

// authenticate decodes and verifies raw, returning the effective sender
// (the anonymous address for an unsigned envelope) and rejecting any
// envelope whose `from` field does not match one of its valid signatures.
func authenticate(raw []byte) (envelope.Envelope, address.Address, error) {
	env, err := envelope.Decode(raw)
	if err != nil {
		return envelope.Envelope{}, address.Address{}, err
	}
	signers, err := envelope.Verify(env)
	if err != nil {
		return envelope.Envelope{}, address.Address{}, err
	}
	if env.IsAnonymous() {
		return env, address.Anonymous, nil
	}
	if _, ok := signers[env.Request.From.String()]; !ok {
		return envelope.Envelope{}, address.Address{}, codeerr.PublicKeyMismatch()
	}
	return env, env.Request.From, nil
}

// precheck applies the protocol-level gates every pipeline (mempool and
// committed) must enforce before handing a request to the dispatcher:
// anonymous senders are forbidden on mutating endpoints, WebAuthn-only
// endpoints require a WebAuthn signature, and the request must pass its
// replay guard.
func precheck(env envelope.Envelope, guard *envelope.ReplayGuard, now time.Time) error {
	endpoint := env.Request.Endpoint
	if dispatch.Mutating(endpoint) && env.IsAnonymous() {
		return codeerr.InvalidIdentityCannotBeAnonymous()
	}
	if dispatch.WebAuthnOnly(endpoint) {
		hasWebAuthn := false
		for _, sig := range env.Signatures {
			if sig.WebAuthn != nil {
				hasWebAuthn = true
				break
			}
		}
		if !hasWebAuthn {
			return codeerr.WebauthnRequired()
		}
	}
	return guard.Check(env.Request, now)
}

// CheckTx performs the mempool-path validation of spec §4.8: decode,
// verify, replay-check against the mempool seen-set (never the committed
// one). It never mutates committed state. CheckTx does not know the final
// block height a transaction will land in, so it replay-checks against
// wall-clock time rather than a block time it cannot yet know.
func (a *App) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	env, _, err := authenticate(req.Tx)
	if err != nil {
		mempoolRejects.Inc()
		return &abcitypes.ResponseCheckTx{Code: 1, Log: err.Error()}, nil
	}
	if err := precheck(env, a.mempoolGuard, time.Now()); err != nil {
		mempoolRejects.Inc()
		return &abcitypes.ResponseCheckTx{Code: 1, Log: err.Error()}, nil
	}
	return &abcitypes.ResponseCheckTx{Code: 0, GasWanted: 1, GasUsed: 1}, nil
}

// FinalizeBlock processes an entire block: it captures the block header's
// height and time once (every subsequent determinism-sensitive read uses
// these, never the wall clock), sweeps expired multisig transactions and
// runs any migration activating exactly at this height, then delivers
// each transaction in order.
func (a *App) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.currentHeight = uint64(req.Height)
	a.currentTime = req.Time
	a.currentCounter = 0

	a.runBeginBlock()

	blocksFinalized.Inc()
	txResults := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, raw := range req.Txs {
		txResults[i] = a.deliverTx(raw)
		if txResults[i].Code == 0 {
			txsDelivered.WithLabelValues("ok").Inc()
		} else {
			txsDelivered.WithLabelValues("rejected").Inc()
		}
	}
	return &abcitypes.ResponseFinalizeBlock{TxResults: txResults}, nil
}

// multisigHistoryRetention bounds how many terminal multisig records each
// account keeps (see accounts.Module.PruneTerminalHistory).
const multisigHistoryRetention = 200

// runBeginBlock sweeps expired multisig transactions, prunes old terminal
// multisig history, and initializes any migration whose activation height
// is exactly the current one. Must be called with a.mu held.
func (a *App) runBeginBlock() {
	tx := a.store.Begin()
	accountsModule := accounts.NewModule(tx)
	if _, err := accountsModule.SweepExpired(a.currentTime); err != nil {
		a.logger.Error("sweep expired multisig transactions", "err", err)
		tx.Rollback()
	} else if _, err := accountsModule.PruneTerminalHistory(multisigHistoryRetention); err != nil {
		a.logger.Error("prune multisig history", "err", err)
		tx.Rollback()
	} else {
		tx.Commit()
	}

	for _, m := range a.migrations.ActivatingAt(a.currentHeight) {
		if err := m.Initialize(); err != nil {
			a.logger.Error("migration initialize", "migration", m.Name, "err", err)
		}
	}
}

// deliverTx runs the committed-path pipeline of spec §4.8 over one
// envelope: decode, verify, replay-check against the committed seen-set,
// check the migration endpoint gate, dispatch, and commit or roll back
// the pending-transaction buffer as one unit so a failed deliver can
// never leave partial state. Must be called with a.mu held.
func (a *App) deliverTx(raw []byte) *abcitypes.ExecTxResult {
	env, sender, err := authenticate(raw)
	if err != nil {
		return &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}
	}
	if err := precheck(env, a.committedGuard, a.currentTime); err != nil {
		return &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}
	}
	if !a.migrations.EndpointEnabled(a.currentHeight, env.Request.Endpoint) {
		return &abcitypes.ExecTxResult{Code: 1, Log: "endpoint disabled by active migration"}
	}

	tx := a.store.Begin()
	d := &dispatch.Dispatcher{
		Ledger:     ledger.NewModule(tx, a.tokenAuthority),
		Accounts:   accounts.NewModule(tx),
		KV:         kvstore.NewModule(tx),
		Migrations: a.migrations,
	}
	bc := dispatch.BlockContext{Height: a.currentHeight, Time: a.currentTime, Counter: a.currentCounter}
	a.currentCounter++

	if _, err := d.Dispatch(env.Request, sender, bc); err != nil {
		tx.Rollback()
		return &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}
	}
	tx.Commit()
	return &abcitypes.ExecTxResult{
		Code: 0,
		Events: []abcitypes.Event{{
			Type: "dispatch",
			Attributes: []abcitypes.EventAttribute{
				{Key: "endpoint", Value: env.Request.Endpoint},
				{Key: "sender", Value: sender.String()},
			},
		}},
	}
}

// Commit flushes the pending buffer to the Merkle store and returns the
// new root as the block's app-hash, per spec §4.8.
func (a *App) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	root, err := a.store.Commit()
	if err != nil {
		return nil, err
	}
	a.lastCommitHash = root
	a.latestHeight++

	retainHeight := a.latestHeight - 100
	if retainHeight < 0 {
		retainHeight = 0
	}
	return &abcitypes.ResponseCommit{RetainHeight: retainHeight}, nil
}

// PrepareProposal accepts the mempool's transactions as-is; nothing in
// this state machine needs to reorder or drop them at proposal time.
func (a *App) PrepareProposal(ctx context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	return &abcitypes.ResponsePrepareProposal{Txs: req.Txs}, nil
}

// ProcessProposal accepts any proposal whose transactions at least decode
// as envelopes; full validation happens at deliver-tx, which is free to
// reject an individual transaction without rejecting the whole block.
func (a *App) ProcessProposal(ctx context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	for _, raw := range req.Txs {
		if _, err := envelope.Decode(raw); err != nil {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
	}
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

func (a *App) ExtendVote(ctx context.Context, req *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (a *App) VerifyVoteExtension(ctx context.Context, req *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

// State-sync snapshots are out of scope for this bridge; every hook is a
// no-op/ABORT stub so a peer that advertises snapshot support never hands
// a client one it cannot actually serve.
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
