// Package dispatch implements the closed endpoint registry spec §9's design
// notes call for: a tagged sum of endpoint kinds, each with a typed payload
// codec and an authorization predicate, gated by the active migration set.
// It is the single place that wires the ledger, accounts, and kvstore
// modules together, so none of those packages needs to import the others'
// endpoint surface directly.
package dispatch

import (
	"time"

	"github.com/tokenledger/chain/pkg/accounts"
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codec"
	"github.com/tokenledger/chain/pkg/codeerr"
	"github.com/tokenledger/chain/pkg/envelope"
	"github.com/tokenledger/chain/pkg/kvstore"
	"github.com/tokenledger/chain/pkg/ledger"
	"github.com/tokenledger/chain/pkg/migrations"
)

// Dispatcher wires the three state-machine modules and the migration
// registry together behind the closed endpoint registry.
type Dispatcher struct {
	Ledger     *ledger.Module
	Accounts   *accounts.Module
	KV         *kvstore.Module
	Migrations *migrations.Registry
}

// BlockContext carries the deterministic inputs a dispatch needs beyond the
// request itself: the block height and time the consensus bridge recorded
// at begin-block, never read from the wall clock directly (spec §4.8).
type BlockContext struct {
	Height  uint64
	Time    time.Time
	Counter uint64 // per-block deliver index, used to mint multisig tokens
}

// endpoint describes one entry of the closed registry: whether it mutates
// state (and therefore forbids an anonymous sender) and whether it demands
// WebAuthn signing.
type endpoint struct {
	mutating     bool
	webAuthnOnly bool
	handler      func(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error)
}

var registry map[string]endpoint

func init() {
	registry = map[string]endpoint{
		"ledger.info":    {mutating: false, handler: handleLedgerInfo},
		"ledger.balance": {mutating: false, handler: handleLedgerBalance},
		"ledger.send":    {mutating: true, handler: handleLedgerSend},

		"tokens.create":        {mutating: true, handler: handleTokensCreate},
		"tokens.update":        {mutating: true, handler: handleTokensUpdate},
		"tokens.addExtInfo":    {mutating: true, handler: handleTokensAddExtInfo},
		"tokens.removeExtInfo": {mutating: true, handler: handleTokensRemoveExtInfo},
		"tokens.mint":          {mutating: true, handler: handleTokensMint},
		"tokens.burn":          {mutating: true, handler: handleTokensBurn},

		"account.create":         {mutating: true, handler: handleAccountCreate},
		"account.setDescription": {mutating: true, handler: handleAccountSetDescription},
		"account.addRoles":       {mutating: true, handler: handleAccountAddRoles},
		"account.removeRoles":    {mutating: true, handler: handleAccountRemoveRoles},
		"account.addFeatures":    {mutating: true, handler: handleAccountAddFeatures},
		"account.disable":        {mutating: true, handler: handleAccountDisable},

		"account.multisigSubmitTransaction": {mutating: true, handler: handleMultisigSubmit},
		"account.multisigApprove":           {mutating: true, handler: handleMultisigApprove},
		"account.multisigRevoke":            {mutating: true, handler: handleMultisigRevoke},
		"account.multisigExecute":           {mutating: true, handler: handleMultisigExecute},
		"account.multisigWithdraw":          {mutating: true, handler: handleMultisigWithdraw},
		"account.multisigSetDefaults":       {mutating: true, handler: handleMultisigSetDefaults},

		"kvstore.put":     {mutating: true, handler: handleKVPut},
		"kvstore.get":     {mutating: false, handler: handleKVGet},
		"kvstore.query":   {mutating: false, handler: handleKVQuery},
		"kvstore.disable": {mutating: true, handler: handleKVDisable},
	}
}

// Mutating reports whether name is a write endpoint, i.e. one that forbids
// an anonymous sender per spec §4.2.
func Mutating(name string) bool {
	ep, ok := registry[name]
	return ok && ep.mutating
}

// WebAuthnOnly reports whether name demands WebAuthn signing.
func WebAuthnOnly(name string) bool {
	ep, ok := registry[name]
	return ok && ep.webAuthnOnly
}

// Dispatch routes req to its endpoint handler. sender is the effective
// verified caller (req.From for a signed envelope, the anonymous address
// for an unsigned one); callers must already have rejected an anonymous
// sender on a mutating endpoint and checked the WebAuthn requirement and
// the migration endpoint gate before calling Dispatch.
func (d *Dispatcher) Dispatch(req envelope.Request, sender address.Address, bc BlockContext) (interface{}, error) {
	ep, ok := registry[req.Endpoint]
	if !ok {
		return nil, codeerr.UnknownEndpoint(req.Endpoint)
	}
	return ep.handler(d, sender, bc, req.Payload)
}

func decode(payload []byte, v interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := codec.UnmarshalLenient(payload, v); err != nil {
		return codeerr.DecodeError(err.Error())
	}
	return nil
}

// execFn builds the accounts.ExecuteFn that a multisig execute runs against:
// it re-enters Dispatch as if account itself had sent the decoded inner
// envelope, breaking what would otherwise be an accounts->dispatch->accounts
// import cycle (accounts only knows the ExecuteFn shape, not this package).
func (d *Dispatcher) execFn(bc BlockContext) accounts.ExecuteFn {
	return func(account address.Address, innerEnvelope []byte) error {
		env, err := envelope.Decode(innerEnvelope)
		if err != nil {
			return err
		}
		_, err = d.Dispatch(env.Request, account, bc)
		return err
	}
}

func handleLedgerInfo(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	return d.Ledger.Info()
}

func handleLedgerBalance(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args ledgerBalanceArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	return d.Ledger.Balance(args.Holder, args.Symbols)
}

func handleLedgerSend(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args ledgerSendArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Ledger.Send(d.Accounts, sender, args.OnBehalf, args.From, args.To, args.Symbol, args.Amount)
	return nil, err
}

func handleTokensCreate(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args tokensCreateArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	return d.Ledger.CreateToken(d.Accounts, sender, args.OnBehalf, ledger.CreateTokenArgs{
		Ticker: args.Ticker, Name: args.Name, Decimals: args.Decimals, Owner: args.Owner,
		HasMax: args.HasMax, Max: args.Max, ExtInfo: args.ExtInfo, Distribution: args.Distribution,
	})
}

func handleTokensUpdate(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args tokensUpdateArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Ledger.UpdateToken(d.Accounts, sender, args.OnBehalf, args.Symbol, ledger.UpdateTokenArgs{
		Name: args.Name, Owner: args.Owner, RemoveOwner: args.RemoveOwner,
	})
	return nil, err
}

func handleTokensAddExtInfo(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args tokensExtInfoMemoArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Ledger.AddExtInfoMemo(d.Accounts, sender, args.OnBehalf, args.Symbol, args.Memo)
	return nil, err
}

func handleTokensRemoveExtInfo(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args tokensExtInfoMemoArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Ledger.RemoveExtInfoMemo(d.Accounts, sender, args.OnBehalf, args.Symbol, args.Index)
	return nil, err
}

func handleTokensMint(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args tokensDistributionArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Ledger.Mint(d.Accounts, sender, args.OnBehalf, args.Symbol, args.Distribution)
	return nil, err
}

func handleTokensBurn(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args tokensDistributionArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Ledger.Burn(d.Accounts, sender, args.OnBehalf, args.Symbol, args.Distribution)
	return nil, err
}

func handleAccountCreate(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args accountCreateArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	return d.Accounts.Create(sender, accounts.CreateArgs{
		Description: args.Description, Roles: args.Roles, Features: args.Features, Multisig: args.Multisig,
	})
}

func handleAccountSetDescription(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args accountSetDescriptionArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.SetDescription(sender, args.Account, args.Description)
	return nil, err
}

func handleAccountAddRoles(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args accountRolesArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.AddRoles(sender, args.Account, args.Holder, args.Roles)
	return nil, err
}

func handleAccountRemoveRoles(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args accountRolesArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.RemoveRoles(sender, args.Account, args.Holder, args.Roles)
	return nil, err
}

func handleAccountAddFeatures(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args accountAddFeaturesArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.AddFeatures(sender, args.Account, args.Features, args.Multisig)
	return nil, err
}

func handleAccountDisable(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args accountDisableArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.Disable(sender, args.Account)
	return nil, err
}

func handleMultisigSubmit(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args multisigSubmitArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	return d.Accounts.SubmitTransaction(sender, accounts.SubmitArgs{
		Account: args.Account, InnerEnvelope: args.InnerEnvelope, Memo: args.Memo, DataHash: args.DataHash,
		ThresholdOverride: args.ThresholdOverride, ExpireInOverride: args.ExpireInOverride,
		ExecuteAutoOverride: args.ExecuteAutoOverride,
	}, bc.Time, bc.Counter, d.execFn(bc))
}

func handleMultisigApprove(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args multisigTokenArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.Approve(sender, args.Token, d.execFn(bc))
	return nil, err
}

func handleMultisigRevoke(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args multisigTokenArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.Revoke(sender, args.Token)
	return nil, err
}

func handleMultisigExecute(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args multisigTokenArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.Execute(args.Token, d.execFn(bc))
	return nil, err
}

func handleMultisigWithdraw(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args multisigTokenArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.Withdraw(sender, args.Token)
	return nil, err
}

func handleMultisigSetDefaults(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args multisigSetDefaultsArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.Accounts.SetDefaults(sender, args.Account, args.Threshold, args.ExpireIn, args.ExecuteAuto)
	return nil, err
}

func handleKVPut(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args kvPutArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.KV.Put(d.Accounts, sender, args.Key, args.Value, args.AltOwner)
	return nil, err
}

func handleKVGet(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args kvKeyArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	return d.KV.Get(args.Key)
}

func handleKVQuery(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args kvKeyArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	return d.KV.Query(args.Key)
}

func handleKVDisable(d *Dispatcher, sender address.Address, bc BlockContext, payload []byte) (interface{}, error) {
	var args kvDisableArgs
	if err := decode(payload, &args); err != nil {
		return nil, err
	}
	err := d.KV.Disable(d.Accounts, sender, args.Key, args.Reason, args.AltOwner)
	return nil, err
}
