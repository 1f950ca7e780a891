package ledger

import (
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codec"
	"github.com/tokenledger/chain/pkg/merkle"
	"github.com/tokenledger/chain/pkg/subresource"
)

// KV is the subset of the Merkle store the ledger module needs to read and
// write. Both *merkle.Tx (per-envelope writes) and *merkle.Store (genesis
// loading) satisfy it, so module code never has to know which one it holds.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte)
	PrefixIterator(prefix []byte) ([]merkle.KV, error)
}

// Store is a thin, typed wrapper over KV for the ledger's own key layout.
type Store struct {
	kv KV
}

func NewStore(kv KV) *Store { return &Store{kv: kv} }

// Balance returns the balance of (holder, symbol), defaulting to zero.
func (s *Store) Balance(holder, symbol address.Address) (BigInt, error) {
	raw, err := s.kv.Get(BalanceKey(holder, symbol))
	if err != nil {
		return BigInt{}, err
	}
	if raw == nil {
		return BigInt{}, nil
	}
	var b BigInt
	if err := codec.UnmarshalLenient(raw, &b); err != nil {
		return BigInt{}, err
	}
	return b, nil
}

// SetBalance overwrites the stored balance of (holder, symbol).
func (s *Store) SetBalance(holder, symbol address.Address, amount BigInt) error {
	raw, err := codec.Marshal(amount)
	if err != nil {
		return err
	}
	s.kv.Put(BalanceKey(holder, symbol), raw)
	return nil
}

// AllBalances returns every (symbol, amount) pair held by holder.
func (s *Store) AllBalances(holder address.Address) (map[string]BigInt, error) {
	pairs, err := s.kv.PrefixIterator(balancePrefix(holder))
	if err != nil {
		return nil, err
	}
	out := make(map[string]BigInt, len(pairs))
	prefixLen := len(balancePrefix(holder))
	for _, kv := range pairs {
		rest := kv.Key[prefixLen:]
		if len(rest) == 0 {
			continue
		}
		symLen := int(rest[0])
		if len(rest) < 1+symLen {
			continue
		}
		symAddr, err := address.FromRaw(rest[1 : 1+symLen])
		if err != nil {
			continue
		}
		var amt BigInt
		if err := codec.UnmarshalLenient(kv.Value, &amt); err != nil {
			return nil, err
		}
		out[symAddr.String()] = amt
	}
	return out, nil
}

// Token returns the token metadata for symbol, or (Token{}, false) if the
// symbol has never been minted.
func (s *Store) Token(symbol address.Address) (Token, bool, error) {
	raw, err := s.kv.Get(TokenKey(symbol))
	if err != nil {
		return Token{}, false, err
	}
	if raw == nil {
		return Token{}, false, nil
	}
	var t Token
	if err := codec.UnmarshalLenient(raw, &t); err != nil {
		return Token{}, false, err
	}
	return t, true, nil
}

// PutToken stores token's metadata.
func (s *Store) PutToken(t Token) error {
	raw, err := codec.Marshal(t)
	if err != nil {
		return err
	}
	s.kv.Put(TokenKey(t.Symbol), raw)
	return nil
}

// AllTokens returns every minted token, in key order (symbol address
// byte order) so ledger.info responses are deterministic.
func (s *Store) AllTokens() ([]Token, error) {
	pairs, err := s.kv.PrefixIterator(nsToken)
	if err != nil {
		return nil, err
	}
	out := make([]Token, 0, len(pairs))
	for _, kv := range pairs {
		var t Token
		if err := codec.UnmarshalLenient(kv.Value, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// MintSymbol mints the next token address under the token authority.
func (s *Store) MintSymbol(tokenAuthority address.Address) (address.Address, error) {
	return subresource.Next(s.kv, tokenAuthority)
}
