// Package ledger implements the token ledger state machine described by
// spec §4.5: balances, token metadata, and the send/create/update/mint/burn
// endpoints, all held as CBOR-encoded values in the Merkle-authenticated
// key-value store.
package ledger

import "github.com/tokenledger/chain/pkg/address"

// LogoKind discriminates the two extended-info logo representations.
type LogoKind byte

const (
	LogoNone       LogoKind = 0
	LogoCodepoint  LogoKind = 1 // a single unicode code point, e.g. an emoji ticker glyph
	LogoBinaryImg  LogoKind = 2 // a typed binary image (content-type + bytes)
)

// Logo is a token's optional pictorial representation.
type Logo struct {
	Kind        LogoKind `cbor:"0,keyasint"`
	Codepoint   int32    `cbor:"1,keyasint,omitempty"`
	ContentType string   `cbor:"2,keyasint,omitempty"`
	Data        []byte   `cbor:"3,keyasint,omitempty"`
}

// ExtInfo is a token's extended-info map, keyed by an application-defined
// tag (e.g. "memo", "logo").
type ExtInfo struct {
	Memos []string `cbor:"0,keyasint,omitempty"`
	Logo  *Logo    `cbor:"1,keyasint,omitempty"`
}

// Token is a symbol's full metadata record, stored at TokenKey(symbol).
type Token struct {
	Symbol      address.Address `cbor:"0,keyasint"`
	Ticker      string          `cbor:"1,keyasint"`
	Name        string          `cbor:"2,keyasint"`
	Decimals    uint32          `cbor:"3,keyasint"`
	Owner       address.Address `cbor:"4,keyasint"`
	OwnerUnset  bool            `cbor:"5,keyasint"` // true once owner has been removed, making the token immutable
	Total       BigInt          `cbor:"6,keyasint"`
	Circulating BigInt          `cbor:"7,keyasint"`
	HasMax      bool            `cbor:"8,keyasint"`
	Max         BigInt          `cbor:"9,keyasint,omitempty"`
	ExtInfo     ExtInfo         `cbor:"10,keyasint"`
}

// Immutable reports whether the token's owner has been permanently removed.
func (t Token) Immutable() bool { return t.OwnerUnset }

// Distribution is one (recipient, amount) pair used by tokens.create and
// the mint/burn endpoints' distribution argument.
type Distribution struct {
	To     address.Address `cbor:"0,keyasint"`
	Amount BigInt           `cbor:"1,keyasint"`
}
