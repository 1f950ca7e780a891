package abci

import (
	"encoding/json"
	"math/big"

	"github.com/tokenledger/chain/pkg/accounts"
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codeerr"
	"github.com/tokenledger/chain/pkg/ledger"
	"github.com/tokenledger/chain/pkg/merkle"
)

// genesisDistribution is one initial-balance entry of a genesis token.
type genesisDistribution struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type genesisToken struct {
	Ticker       string                `json:"ticker"`
	Name         string                `json:"name"`
	Decimals     uint32                `json:"decimals"`
	HasMax       bool                  `json:"has_max"`
	Max          string                `json:"max,omitempty"`
	Distribution []genesisDistribution `json:"distribution,omitempty"`
}

// GenesisState is the declarative app_state spec §4.8's init-chain seeds
// the Merkle store from: the token authority's identity, the initial
// token set and distributions, and an optional expected root hash.
// ExpectedAppHash is parsed but never compared with the root InitChain
// computes.
type GenesisState struct {
	TokenAuthority  string         `json:"token_authority"`
	Tokens          []genesisToken `json:"tokens,omitempty"`
	ExpectedAppHash string         `json:"expected_app_hash,omitempty"`
}

func parseGenesisAmount(s string) (ledger.BigInt, error) {
	if s == "" {
		return ledger.BigInt{}, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return ledger.BigInt{}, codeerr.DecodeError("invalid integer " + s)
	}
	return ledger.NewBigInt(v), nil
}

// applyGenesis seeds store directly, bypassing Begin/Commit: genesis has
// no enclosing envelope to roll back, which is exactly the escape hatch
// merkle.Store.Put's doc comment describes for this case. It grants the
// token authority its own canTokensCreate role (spec §9's open question:
// the genesis file is what makes that grant explicit) and mints every
// listed token with its initial distribution.
func applyGenesis(store *merkle.Store, raw []byte) (address.Address, error) {
	if len(raw) == 0 {
		return address.Address{}, nil
	}
	var gs GenesisState
	if err := json.Unmarshal(raw, &gs); err != nil {
		return address.Address{}, codeerr.DecodeError(err.Error())
	}
	if gs.TokenAuthority == "" {
		return address.Address{}, nil
	}
	tokenAuthority, err := address.Parse(gs.TokenAuthority)
	if err != nil {
		return address.Address{}, err
	}

	accountStore := accounts.NewStore(store)
	if err := accountStore.PutAccount(accounts.Account{
		Address: tokenAuthority,
		Roles: []accounts.RoleEntry{{
			Holder: tokenAuthority,
			Roles:  []accounts.Role{accounts.RoleCanTokensCreate},
		}},
	}); err != nil {
		return address.Address{}, err
	}

	authorizer := accounts.NewModule(store)
	ledgerModule := ledger.NewModule(store, tokenAuthority)
	for _, t := range gs.Tokens {
		max, err := parseGenesisAmount(t.Max)
		if err != nil {
			return address.Address{}, err
		}
		dist := make([]ledger.Distribution, 0, len(t.Distribution))
		for _, d := range t.Distribution {
			to, err := address.Parse(d.To)
			if err != nil {
				return address.Address{}, err
			}
			amount, err := parseGenesisAmount(d.Amount)
			if err != nil {
				return address.Address{}, err
			}
			dist = append(dist, ledger.Distribution{To: to, Amount: amount})
		}
		if _, err := ledgerModule.CreateToken(authorizer, tokenAuthority, nil, ledger.CreateTokenArgs{
			Ticker: t.Ticker, Name: t.Name, Decimals: t.Decimals,
			HasMax: t.HasMax, Max: max, Distribution: dist,
		}); err != nil {
			return address.Address{}, err
		}
	}

	return tokenAuthority, nil
}
