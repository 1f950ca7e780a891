package ledger

import (
	"github.com/tokenledger/chain/pkg/accounts"
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codeerr"
)

const (
	RoleCanLedgerTransact           = string(accounts.RoleCanLedgerTransact)
	RoleCanTokensCreate             = string(accounts.RoleCanTokensCreate)
	RoleCanTokensUpdate             = string(accounts.RoleCanTokensUpdate)
	RoleCanTokensAddExtendedInfo    = string(accounts.RoleCanTokensAddExtendedInfo)
	RoleCanTokensRemoveExtendedInfo = string(accounts.RoleCanTokensRemoveExtendedInfo)
	RoleCanTokensMint               = string(accounts.RoleCanTokensMint)
	RoleCanTokensBurn               = string(accounts.RoleCanTokensBurn)
)

// Module implements the ledger.* and tokens.* endpoints of spec §4.5 over a
// single pending transaction. A Module is constructed fresh per envelope
// dispatch (it is a thin, stateless wrapper around the Store and the
// caller-supplied authorization check).
type Module struct {
	store *Store
	// TokenAuthority is the identity that tokens.create mints symbols under
	// and whose canTokensCreate role gates creation, per spec §9's open
	// question: explicit grant is required even for this identity; the
	// genesis file's token_authority entry is what makes that grant
	// (applyGenesis writes it).
	TokenAuthority address.Address
}

func NewModule(kv KV, tokenAuthority address.Address) *Module {
	return &Module{store: NewStore(kv), TokenAuthority: tokenAuthority}
}

// Authorizer reports whether holder has role on account; a missing role
// is (false, nil), which requireRole turns into a structured error. The
// account module supplies the concrete
// implementation; ledger only depends on this narrow interface so the two
// packages don't form an import cycle.
type Authorizer interface {
	HasRole(account, holder address.Address, role string) (bool, error)
}

// requireRole resolves the effective principal for a write: either the
// envelope's own sender (acting on their own balance, never role-gated)
// or, when onBehalf is non-nil, the named account provided sender holds
// role on it.
func requireRole(az Authorizer, sender address.Address, onBehalf *address.Address, role string) (address.Address, error) {
	if onBehalf == nil {
		return sender, nil
	}
	ok, err := az.HasRole(*onBehalf, sender, role)
	if err != nil {
		return address.Address{}, err
	}
	if !ok {
		return address.Address{}, codeerr.MissingPermission(role)
	}
	return *onBehalf, nil
}

// Info returns every minted token's metadata.
func (m *Module) Info() ([]Token, error) {
	return m.store.AllTokens()
}

// Balance returns holder's balance for each requested symbol, or every
// symbol holder has a stored balance entry for if symbols is empty
// (entries that have dropped to zero are included).
func (m *Module) Balance(holder address.Address, symbols []address.Address) (map[string]BigInt, error) {
	if len(symbols) == 0 {
		return m.store.AllBalances(holder)
	}
	out := make(map[string]BigInt, len(symbols))
	for _, sym := range symbols {
		if _, ok, err := m.store.Token(sym); err != nil {
			return nil, err
		} else if !ok {
			return nil, codeerr.UnknownSymbol(sym.String())
		}
		bal, err := m.store.Balance(holder, sym)
		if err != nil {
			return nil, err
		}
		out[sym.String()] = bal
	}
	return out, nil
}

// Send transfers amount of symbol from `from` to `to`, debiting before
// crediting within the same pending transaction so both halves commit or
// neither does (spec §4.5).
func (m *Module) Send(az Authorizer, sender address.Address, onBehalf *address.Address, from, to, symbol address.Address, amount BigInt) error {
	effective, err := requireRole(az, sender, onBehalf, RoleCanLedgerTransact)
	if err != nil {
		return err
	}
	if !effective.Equal(from) {
		return codeerr.Unauthorized()
	}
	if amount.IsZero() {
		return codeerr.AmountIsZero()
	}
	if _, ok, err := m.store.Token(symbol); err != nil {
		return err
	} else if !ok {
		return codeerr.UnknownSymbol(symbol.String())
	}

	fromBal, err := m.store.Balance(from, symbol)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return codeerr.InsufficientFunds()
	}
	toBal, err := m.store.Balance(to, symbol)
	if err != nil {
		return err
	}

	if err := m.store.SetBalance(from, symbol, fromBal.Sub(amount)); err != nil {
		return err
	}
	return m.store.SetBalance(to, symbol, toBal.Add(amount))
}

// CreateTokenArgs is the payload of tokens.create.
type CreateTokenArgs struct {
	Ticker       string
	Name         string
	Decimals     uint32
	Owner        *address.Address // nil means the token authority keeps ownership
	HasMax       bool
	Max          BigInt
	ExtInfo      ExtInfo
	Distribution []Distribution
}

// CreateToken mints a new symbol as the next subresource of the token
// authority and applies the initial distribution.
func (m *Module) CreateToken(az Authorizer, sender address.Address, onBehalf *address.Address, args CreateTokenArgs) (address.Address, error) {
	// Unlike requireRole's other callers, tokens.create demands an explicit
	// canTokensCreate grant even when acting as oneself (spec §8 scenario 4,
	// §9's open question on the token authority): there is no implicit
	// grant from merely being the designated authority.
	effective := sender
	if onBehalf != nil {
		effective = *onBehalf
	}
	ok, err := az.HasRole(effective, sender, RoleCanTokensCreate)
	if err != nil {
		return address.Address{}, err
	}
	if !ok {
		return address.Address{}, codeerr.MissingPermission(RoleCanTokensCreate)
	}
	if !effective.Equal(m.TokenAuthority) {
		return address.Address{}, codeerr.Unauthorized()
	}

	symbol, err := m.store.MintSymbol(m.TokenAuthority)
	if err != nil {
		return address.Address{}, err
	}

	var circulating BigInt
	for _, d := range args.Distribution {
		circulating = circulating.Add(d.Amount)
	}
	if args.HasMax && circulating.Cmp(args.Max) > 0 {
		return address.Address{}, codeerr.MaxSupplyExceeded(symbol.String())
	}

	owner := m.TokenAuthority
	if args.Owner != nil {
		owner = *args.Owner
	}
	tok := Token{
		Symbol: symbol, Ticker: args.Ticker, Name: args.Name, Decimals: args.Decimals,
		Owner: owner, Total: circulating, Circulating: circulating,
		HasMax: args.HasMax, Max: args.Max, ExtInfo: args.ExtInfo,
	}
	if err := m.store.PutToken(tok); err != nil {
		return address.Address{}, err
	}

	for _, d := range args.Distribution {
		bal, err := m.store.Balance(d.To, symbol)
		if err != nil {
			return address.Address{}, err
		}
		if err := m.store.SetBalance(d.To, symbol, bal.Add(d.Amount)); err != nil {
			return address.Address{}, err
		}
	}
	return symbol, nil
}

// requireOwned loads symbol and checks that effective holds the
// authorizing role on it and the token is not immutable.
func (m *Module) requireOwned(az Authorizer, sender address.Address, onBehalf *address.Address, role string, symbol address.Address) (Token, error) {
	effective, err := requireRole(az, sender, onBehalf, role)
	if err != nil {
		return Token{}, err
	}
	tok, ok, err := m.store.Token(symbol)
	if err != nil {
		return Token{}, err
	}
	if !ok {
		return Token{}, codeerr.UnknownSymbol(symbol.String())
	}
	if tok.Immutable() {
		return Token{}, codeerr.ImmutableToken(symbol.String())
	}
	if !effective.Equal(tok.Owner) {
		return Token{}, codeerr.Unauthorized()
	}
	return tok, nil
}

// UpdateTokenArgs carries the optional mutable fields of tokens.update.
type UpdateTokenArgs struct {
	Name       *string
	Owner      *address.Address // a nil pointer leaves owner unchanged
	RemoveOwner bool             // true makes the token permanently immutable
}

func (m *Module) UpdateToken(az Authorizer, sender address.Address, onBehalf *address.Address, symbol address.Address, args UpdateTokenArgs) error {
	tok, err := m.requireOwned(az, sender, onBehalf, RoleCanTokensUpdate, symbol)
	if err != nil {
		return err
	}
	if args.Name != nil {
		tok.Name = *args.Name
	}
	if args.RemoveOwner {
		tok.OwnerUnset = true
	} else if args.Owner != nil {
		tok.Owner = *args.Owner
	}
	return m.store.PutToken(tok)
}

func (m *Module) AddExtInfoMemo(az Authorizer, sender address.Address, onBehalf *address.Address, symbol address.Address, memo string) error {
	tok, err := m.requireOwned(az, sender, onBehalf, RoleCanTokensAddExtendedInfo, symbol)
	if err != nil {
		return err
	}
	tok.ExtInfo.Memos = append(tok.ExtInfo.Memos, memo)
	return m.store.PutToken(tok)
}

func (m *Module) RemoveExtInfoMemo(az Authorizer, sender address.Address, onBehalf *address.Address, symbol address.Address, index int) error {
	tok, err := m.requireOwned(az, sender, onBehalf, RoleCanTokensRemoveExtendedInfo, symbol)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(tok.ExtInfo.Memos) {
		return codeerr.ExtInfoNotFound()
	}
	tok.ExtInfo.Memos = append(tok.ExtInfo.Memos[:index], tok.ExtInfo.Memos[index+1:]...)
	return m.store.PutToken(tok)
}

// Mint increases circulating supply by crediting each distribution entry.
func (m *Module) Mint(az Authorizer, sender address.Address, onBehalf *address.Address, symbol address.Address, dist []Distribution) error {
	tok, err := m.requireOwned(az, sender, onBehalf, RoleCanTokensMint, symbol)
	if err != nil {
		return err
	}
	var total BigInt
	for _, d := range dist {
		total = total.Add(d.Amount)
	}
	newCirc := tok.Circulating.Add(total)
	if tok.HasMax && newCirc.Cmp(tok.Max) > 0 {
		return codeerr.MaxSupplyExceeded(symbol.String())
	}
	for _, d := range dist {
		bal, err := m.store.Balance(d.To, symbol)
		if err != nil {
			return err
		}
		if err := m.store.SetBalance(d.To, symbol, bal.Add(d.Amount)); err != nil {
			return err
		}
	}
	tok.Circulating = newCirc
	tok.Total = tok.Total.Add(total)
	return m.store.PutToken(tok)
}

// Burn decreases circulating supply by debiting each distribution entry.
func (m *Module) Burn(az Authorizer, sender address.Address, onBehalf *address.Address, symbol address.Address, dist []Distribution) error {
	tok, err := m.requireOwned(az, sender, onBehalf, RoleCanTokensBurn, symbol)
	if err != nil {
		return err
	}
	var total BigInt
	for _, d := range dist {
		bal, err := m.store.Balance(d.To, symbol)
		if err != nil {
			return err
		}
		if bal.Cmp(d.Amount) < 0 {
			return codeerr.InsufficientFunds()
		}
		total = total.Add(d.Amount)
	}
	for _, d := range dist {
		bal, err := m.store.Balance(d.To, symbol)
		if err != nil {
			return err
		}
		if err := m.store.SetBalance(d.To, symbol, bal.Sub(d.Amount)); err != nil {
			return err
		}
	}
	tok.Circulating = tok.Circulating.Sub(total)
	tok.Total = tok.Total.Sub(total)
	return m.store.PutToken(tok)
}
