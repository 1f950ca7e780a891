package dispatch

import (
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/tokenledger/chain/pkg/accounts"
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codec"
	"github.com/tokenledger/chain/pkg/envelope"
	"github.com/tokenledger/chain/pkg/kvstore"
	"github.com/tokenledger/chain/pkg/ledger"
	"github.com/tokenledger/chain/pkg/merkle"
)

func newDispatcher(t *testing.T, tx *merkle.Tx, tokenAuthority address.Address) *Dispatcher {
	t.Helper()
	return &Dispatcher{
		Ledger:   ledger.NewModule(tx, tokenAuthority),
		Accounts: accounts.NewModule(tx),
		KV:       kvstore.NewModule(tx),
	}
}

func payloadOf(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := codec.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

// TestScenario_BalanceAndSend exercises spec §8's concrete scenario 1:
// genesis balance, a send, and the resulting balances on both sides. It
// also covers scenario 4, tokens.create rejected without an explicit
// canTokensCreate grant on the token authority.
func TestScenario_BalanceAndSend(t *testing.T) {
	db := dbm.NewMemDB()
	store, err := merkle.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tokenAuthority := address.FromPublicKey([]byte("token-authority-pubkey-canonical"))
	holderA := address.FromPublicKey([]byte("holder-a-pubkey-canonical-bytes"))
	holderB := address.FromPublicKey([]byte("holder-b-pubkey-canonical-bytes"))
	bc := BlockContext{Height: 1, Time: time.Unix(1700000000, 0)}

	tx := store.Begin()
	d := newDispatcher(t, tx, tokenAuthority)

	createArgs := tokensCreateArgs{
		Ticker: "MFX", Name: "Mainflux", Decimals: 0,
		Distribution: []ledger.Distribution{{To: holderA, Amount: ledger.BigIntFromUint64(100000000000)}},
	}
	_, err = d.Dispatch(envelope.Request{Endpoint: "tokens.create", Payload: payloadOf(t, createArgs)}, tokenAuthority, bc)
	if err == nil {
		t.Fatalf("expected tokens.create to fail without an explicit canTokensCreate grant")
	}
	tx.Rollback()

	// Bootstrap the token authority's own canTokensCreate grant directly
	// (a real node does this from the declarative genesis state, spec §4.8).
	tx = store.Begin()
	accountStore := accounts.NewStore(tx)
	if err := accountStore.PutAccount(accounts.Account{
		Address: tokenAuthority,
		Roles:   []accounts.RoleEntry{{Holder: tokenAuthority, Roles: []accounts.Role{accounts.RoleCanTokensCreate}}},
	}); err != nil {
		t.Fatalf("bootstrap account: %v", err)
	}
	tx.Commit()
	if _, err := store.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx = store.Begin()
	d = newDispatcher(t, tx, tokenAuthority)
	created, err := d.Dispatch(envelope.Request{Endpoint: "tokens.create", Payload: payloadOf(t, createArgs)}, tokenAuthority, bc)
	if err != nil {
		t.Fatalf("tokens.create: %v", err)
	}
	symbol := created.(address.Address)

	sendArgs := ledgerSendArgs{From: holderA, To: holderB, Symbol: symbol, Amount: ledger.BigIntFromUint64(1000)}
	if _, err := d.Dispatch(envelope.Request{Endpoint: "ledger.send", Payload: payloadOf(t, sendArgs)}, holderA, bc); err != nil {
		t.Fatalf("ledger.send: %v", err)
	}
	tx.Commit()
	if _, err := store.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snap := store.Snapshot()
	ledgerRO := ledger.NewModule(snap, tokenAuthority)
	balA, err := ledgerRO.Balance(holderA, []address.Address{symbol})
	if err != nil {
		t.Fatalf("Balance(A): %v", err)
	}
	balB, err := ledgerRO.Balance(holderB, []address.Address{symbol})
	if err != nil {
		t.Fatalf("Balance(B): %v", err)
	}
	if got := balA[symbol.String()].String(); got != "99999999000" {
		t.Fatalf("balance(A) = %s, want 99999999000", got)
	}
	if got := balB[symbol.String()].String(); got != "1000" {
		t.Fatalf("balance(B) = %s, want 1000", got)
	}
}

// TestDispatch_UnknownEndpoint exercises the closed-registry rejection path.
func TestDispatch_UnknownEndpoint(t *testing.T) {
	db := dbm.NewMemDB()
	store, err := merkle.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tokenAuthority := address.FromPublicKey([]byte("token-authority-pubkey-canonical"))
	tx := store.Begin()
	d := newDispatcher(t, tx, tokenAuthority)
	_, err = d.Dispatch(envelope.Request{Endpoint: "not.a.real.endpoint"}, tokenAuthority, BlockContext{Time: time.Unix(0, 0)})
	if err == nil {
		t.Fatalf("expected unknown-endpoint error")
	}
}

// TestMutatingAndWebAuthnOnly exercises the registry metadata helpers the
// consensus bridge consults before calling Dispatch.
func TestMutatingAndWebAuthnOnly(t *testing.T) {
	if !Mutating("ledger.send") {
		t.Fatalf("ledger.send must be a mutating endpoint")
	}
	if Mutating("ledger.info") {
		t.Fatalf("ledger.info must not be a mutating endpoint")
	}
	if Mutating("not.a.real.endpoint") {
		t.Fatalf("an unknown endpoint must not be reported as mutating")
	}
}
