// Package query adapts pkg/abci.App.Query to an HTTP surface, in the
// shape of the teacher's pkg/server ledger handlers: a NewXxxHandlers
// constructor wrapping the underlying store, plus one http.HandlerFunc
// method per endpoint family. It exists for human/browser access and a
// Prometheus scrape target; the canonical read path remains the ABCI
// Query() call the consensus engine itself uses.
package query

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokenledger/chain/pkg/abci"
	"github.com/tokenledger/chain/pkg/codec"
)

// Handlers serves read-only ledger/account/kv-store queries over HTTP by
// delegating to the same App.Query path the consensus engine's RPC uses.
type Handlers struct {
	app *abci.App
}

func NewHandlers(app *abci.App) *Handlers {
	return &Handlers{app: app}
}

// Mux builds an *http.ServeMux wired with every query route plus /metrics.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/query/", h.HandleQuery)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// HandleQuery serves GET /query/{endpoint}: the request body, if any, is
// the CBOR-encoded argument struct for that endpoint, as on the ABCI
// query path; the CBOR result is decoded and written back as JSON.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Path[len("/query/"):]
	if endpoint == "" {
		http.Error(w, `{"error":"missing query endpoint"}`, http.StatusBadRequest)
		return
	}

	var data []byte
	if r.Body != nil {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, `{"error":"failed to read request body"}`, http.StatusBadRequest)
			return
		}
	}

	resp, err := h.app.Query(context.Background(), &abcitypes.RequestQuery{Path: endpoint, Data: data})
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	if resp.Code != 0 {
		http.Error(w, `{"error":"`+resp.Log+`"}`, http.StatusBadRequest)
		return
	}

	var result interface{}
	if err := codec.UnmarshalLenient(resp.Value, &result); err != nil {
		http.Error(w, `{"error":"failed to decode result"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}
