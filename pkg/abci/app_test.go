package abci

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/cometbft/cometbft/crypto/ed25519"

	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codec"
	"github.com/tokenledger/chain/pkg/envelope"
	"github.com/tokenledger/chain/pkg/ledger"
	"github.com/tokenledger/chain/pkg/merkle"
	"github.com/tokenledger/chain/pkg/migrations"
)

func emptyMigrations(t *testing.T) *migrations.Registry {
	t.Helper()
	cfg := migrations.FileConfig{Migrations: []migrations.Config{
		{Name: migrations.AccountCountDataAttribute, Disabled: true},
		{Name: migrations.Block9400, Disabled: true},
		{Name: migrations.MemoMigration, Disabled: true},
		{Name: migrations.DummyHotfix, Disabled: true},
		{Name: migrations.TokenMigration, Disabled: true},
	}}
	reg, err := migrations.Load(cfg)
	if err != nil {
		t.Fatalf("migrations.Load: %v", err)
	}
	return reg
}

// sendArgs mirrors dispatch's private ledgerSendArgs tag layout so the
// test can build a payload without reaching into that package.
type sendArgs struct {
	From   address.Address `cbor:"1,keyasint"`
	To     address.Address `cbor:"2,keyasint"`
	Symbol address.Address `cbor:"3,keyasint"`
	Amount ledger.BigInt    `cbor:"4,keyasint"`
}

func TestGenesisThenSendAndQuery(t *testing.T) {
	db := dbm.NewMemDB()
	store, err := merkle.NewStore(db)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	app := NewApp(store, emptyMigrations(t), nil)
	ctx := context.Background()

	signer := envelope.Signer{Algorithm: envelope.AlgEd25519, Ed25519Key: ed25519.GenPrivKey()}
	pko, err := signer.PublicKeyObject()
	if err != nil {
		t.Fatalf("PublicKeyObject: %v", err)
	}
	tokenAuthority := pko.Address()
	holderB := address.FromPublicKey([]byte("holder-b-pubkey-canonical-bytes"))

	genesis, err := json.Marshal(GenesisState{
		TokenAuthority: tokenAuthority.String(),
		Tokens: []genesisToken{{
			Ticker: "MFX", Name: "Mainflux", Decimals: 0,
			Distribution: []genesisDistribution{{To: tokenAuthority.String(), Amount: "1000000"}},
		}},
	})
	if err != nil {
		t.Fatalf("marshal genesis: %v", err)
	}
	if _, err := app.InitChain(ctx, &abcitypes.RequestInitChain{ChainId: "test", AppStateBytes: genesis}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}

	info, err := app.Info(ctx, &abcitypes.RequestInfo{})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.LastBlockHeight != 0 || len(info.LastBlockAppHash) == 0 {
		t.Fatalf("unexpected Info response: %+v", info)
	}

	infoResp, err := app.Query(ctx, &abcitypes.RequestQuery{Path: "ledger.info"})
	if err != nil || infoResp.Code != 0 {
		t.Fatalf("ledger.info query: err=%v resp=%+v", err, infoResp)
	}
	var tokens []ledger.Token
	if err := codec.UnmarshalLenient(infoResp.Value, &tokens); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("expected exactly one minted token, got %d", len(tokens))
	}
	symbol := tokens[0].Symbol

	blockTime := time.Unix(1700000000, 0)
	payload, err := codec.Marshal(sendArgs{From: tokenAuthority, To: holderB, Symbol: symbol, Amount: ledger.BigIntFromUint64(500)})
	if err != nil {
		t.Fatalf("marshal send payload: %v", err)
	}
	env := envelope.Envelope{Request: envelope.Request{
		Version: 1, From: tokenAuthority, To: address.Anonymous,
		Endpoint: "ledger.send", Payload: payload, Timestamp: blockTime, Nonce: []byte("n1"),
	}}
	if err := envelope.Sign(&env, signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw, err := envelope.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	finalizeResp, err := app.FinalizeBlock(ctx, &abcitypes.RequestFinalizeBlock{Height: 1, Time: blockTime, Txs: [][]byte{raw}})
	if err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
	if len(finalizeResp.TxResults) != 1 || finalizeResp.TxResults[0].Code != 0 {
		t.Fatalf("unexpected tx result: %+v", finalizeResp.TxResults)
	}
	if _, err := app.Commit(ctx, &abcitypes.RequestCommit{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	balArgs, err := codec.Marshal(struct {
		Holder address.Address `cbor:"0,keyasint"`
	}{Holder: holderB})
	if err != nil {
		t.Fatalf("marshal balance args: %v", err)
	}
	balResp, err := app.Query(ctx, &abcitypes.RequestQuery{Path: "ledger.balance", Data: balArgs})
	if err != nil || balResp.Code != 0 {
		t.Fatalf("ledger.balance query: err=%v resp=%+v", err, balResp)
	}
	var balances map[string]ledger.BigInt
	if err := codec.UnmarshalLenient(balResp.Value, &balances); err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	if got := balances[symbol.String()].String(); got != "500" {
		t.Fatalf("holderB balance = %s, want 500", got)
	}
}

// TestCheckTx_RejectsAnonymousMutating exercises the anonymous-on-mutating
// gate that both CheckTx and FinalizeBlock must enforce identically.
func TestCheckTx_RejectsAnonymousMutating(t *testing.T) {
	db := dbm.NewMemDB()
	store, err := merkle.NewStore(db)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	app := NewApp(store, emptyMigrations(t), nil)
	ctx := context.Background()

	holderA := address.FromPublicKey([]byte("holder-a-pubkey-canonical-bytes"))
	holderB := address.FromPublicKey([]byte("holder-b-pubkey-canonical-bytes"))
	payload, err := codec.Marshal(sendArgs{From: holderA, To: holderB, Amount: ledger.BigIntFromUint64(1)})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := envelope.Envelope{Request: envelope.Request{
		Version: 1, Endpoint: "ledger.send", Payload: payload, Timestamp: time.Unix(0, 0),
	}}
	raw, err := envelope.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	resp, err := app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: raw})
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if resp.Code == 0 {
		t.Fatalf("expected CheckTx to reject an anonymous mutating request")
	}
}
