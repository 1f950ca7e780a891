package dispatch

import (
	"github.com/tokenledger/chain/pkg/accounts"
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/ledger"
)

// Every endpoint's payload decodes into one of these argument structs via
// the canonical codec; field numbering mirrors the request map's own
// `{0,1,2,...}` convention from spec §6 so the whole wire format reads the
// same way end to end.

type ledgerBalanceArgs struct {
	Holder  address.Address   `cbor:"0,keyasint"`
	Symbols []address.Address `cbor:"1,keyasint,omitempty"`
}

type ledgerSendArgs struct {
	OnBehalf *address.Address `cbor:"0,keyasint,omitempty"`
	From     address.Address  `cbor:"1,keyasint"`
	To       address.Address  `cbor:"2,keyasint"`
	Symbol   address.Address  `cbor:"3,keyasint"`
	Amount   ledger.BigInt    `cbor:"4,keyasint"`
}

type tokensCreateArgs struct {
	OnBehalf     *address.Address    `cbor:"0,keyasint,omitempty"`
	Ticker       string              `cbor:"1,keyasint"`
	Name         string              `cbor:"2,keyasint"`
	Decimals     uint32              `cbor:"3,keyasint"`
	Owner        *address.Address    `cbor:"4,keyasint,omitempty"`
	HasMax       bool                `cbor:"5,keyasint"`
	Max          ledger.BigInt       `cbor:"6,keyasint,omitempty"`
	ExtInfo      ledger.ExtInfo      `cbor:"7,keyasint,omitempty"`
	Distribution []ledger.Distribution `cbor:"8,keyasint,omitempty"`
}

type tokensUpdateArgs struct {
	OnBehalf    *address.Address `cbor:"0,keyasint,omitempty"`
	Symbol      address.Address  `cbor:"1,keyasint"`
	Name        *string          `cbor:"2,keyasint,omitempty"`
	Owner       *address.Address `cbor:"3,keyasint,omitempty"`
	RemoveOwner bool             `cbor:"4,keyasint,omitempty"`
}

type tokensExtInfoMemoArgs struct {
	OnBehalf *address.Address `cbor:"0,keyasint,omitempty"`
	Symbol   address.Address  `cbor:"1,keyasint"`
	Memo     string           `cbor:"2,keyasint,omitempty"`
	Index    int              `cbor:"3,keyasint,omitempty"`
}

type tokensDistributionArgs struct {
	OnBehalf     *address.Address      `cbor:"0,keyasint,omitempty"`
	Symbol       address.Address       `cbor:"1,keyasint"`
	Distribution []ledger.Distribution `cbor:"2,keyasint"`
}

type accountCreateArgs struct {
	Description string                   `cbor:"0,keyasint,omitempty"`
	Roles       []accounts.RoleEntry     `cbor:"1,keyasint,omitempty"`
	Features    []accounts.Feature       `cbor:"2,keyasint,omitempty"`
	Multisig    accounts.MultisigDefaults `cbor:"3,keyasint,omitempty"`
}

type accountSetDescriptionArgs struct {
	Account     address.Address `cbor:"0,keyasint"`
	Description string          `cbor:"1,keyasint"`
}

type accountRolesArgs struct {
	Account address.Address   `cbor:"0,keyasint"`
	Holder  address.Address   `cbor:"1,keyasint"`
	Roles   []accounts.Role   `cbor:"2,keyasint"`
}

type accountAddFeaturesArgs struct {
	Account  address.Address           `cbor:"0,keyasint"`
	Features []accounts.Feature        `cbor:"1,keyasint"`
	Multisig accounts.MultisigDefaults `cbor:"2,keyasint,omitempty"`
}

type accountDisableArgs struct {
	Account address.Address `cbor:"0,keyasint"`
}

type multisigSubmitArgs struct {
	Account             address.Address  `cbor:"0,keyasint"`
	InnerEnvelope       []byte           `cbor:"1,keyasint"`
	Memo                string           `cbor:"2,keyasint,omitempty"`
	DataHash            []byte           `cbor:"3,keyasint,omitempty"`
	ThresholdOverride   *uint32          `cbor:"4,keyasint,omitempty"`
	ExpireInOverride    *uint64          `cbor:"5,keyasint,omitempty"`
	ExecuteAutoOverride *bool            `cbor:"6,keyasint,omitempty"`
}

type multisigTokenArgs struct {
	Token []byte `cbor:"0,keyasint"`
}

type multisigSetDefaultsArgs struct {
	Account     address.Address `cbor:"0,keyasint"`
	Threshold   *uint32         `cbor:"1,keyasint,omitempty"`
	ExpireIn    *uint64         `cbor:"2,keyasint,omitempty"`
	ExecuteAuto *bool           `cbor:"3,keyasint,omitempty"`
}

type kvPutArgs struct {
	Key      []byte           `cbor:"0,keyasint"`
	Value    []byte           `cbor:"1,keyasint"`
	AltOwner *address.Address `cbor:"2,keyasint,omitempty"`
}

type kvKeyArgs struct {
	Key []byte `cbor:"0,keyasint"`
}

type kvDisableArgs struct {
	Key      []byte           `cbor:"0,keyasint"`
	Reason   string           `cbor:"1,keyasint,omitempty"`
	AltOwner *address.Address `cbor:"2,keyasint,omitempty"`
}
