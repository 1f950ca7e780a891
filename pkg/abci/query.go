package abci

import (
	"context"

	abcitypes "github.com/cometbft/cometbft/abci/types"

	"github.com/tokenledger/chain/pkg/accounts"
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codec"
	"github.com/tokenledger/chain/pkg/codeerr"
	"github.com/tokenledger/chain/pkg/dispatch"
	"github.com/tokenledger/chain/pkg/envelope"
	"github.com/tokenledger/chain/pkg/kvstore"
	"github.com/tokenledger/chain/pkg/ledger"
)

// Query answers a read against the last committed state, per spec §4.8:
// req.Path names one of the closed registry's non-mutating endpoints and
// req.Data carries its CBOR-encoded argument struct. Queries are always
// built over a Snapshot, never the live pending buffer, so they can never
// observe an in-flight, not-yet-committed block (spec §4.8's separation
// of the query path from the deliver pipeline).
func (a *App) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	a.mu.RLock()
	height := a.latestHeight
	tokenAuthority := a.tokenAuthority
	snap := a.store.Snapshot()
	a.mu.RUnlock()

	if req.Path == "" {
		return &abcitypes.ResponseQuery{Code: 1, Log: codeerr.UnknownEndpoint(req.Path).Error()}, nil
	}
	if dispatch.Mutating(req.Path) {
		return &abcitypes.ResponseQuery{Code: 1, Log: "endpoint is not a query endpoint: " + req.Path}, nil
	}

	d := &dispatch.Dispatcher{
		Ledger:     ledger.NewModule(snap, tokenAuthority),
		Accounts:   accounts.NewModule(snap),
		KV:         kvstore.NewModule(snap),
		Migrations: a.migrations,
	}

	result, err := d.Dispatch(envelope.Request{Endpoint: req.Path, Payload: req.Data}, address.Anonymous, dispatch.BlockContext{Height: uint64(height)})
	if err != nil {
		return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
	}
	value, err := codec.Marshal(result)
	if err != nil {
		return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
	}
	return &abcitypes.ResponseQuery{Code: 0, Height: height, Value: value}, nil
}
