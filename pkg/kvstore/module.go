// Package kvstore implements the put/get/query/disable key-value module
// described by spec §4.7: arbitrary byte-string keys with per-key
// ownership, layered over the same Merkle-authenticated store the ledger
// and account modules use.
package kvstore

import (
	"github.com/tokenledger/chain/pkg/accounts"
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codec"
	"github.com/tokenledger/chain/pkg/codeerr"
)

const (
	RoleCanKvStorePut     = string(accounts.RoleCanKvStorePut)
	RoleCanKvStoreDisable = string(accounts.RoleCanKvStoreDisable)
)

// KV is the subset of the Merkle store this module needs.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte)
}

// Authorizer checks whether holder has role on account.
type Authorizer interface {
	HasRole(account, holder address.Address, role string) (bool, error)
}

// Entry is the stored record at a kv key, per spec §3.
type Entry struct {
	Value    []byte          `cbor:"0,keyasint"`
	Owner    address.Address `cbor:"1,keyasint"`
	Disabled bool            `cbor:"2,keyasint"`
	Reason   string          `cbor:"3,keyasint,omitempty"`
}

// Module implements the kvstore.* endpoints.
type Module struct {
	kv KV
}

func NewModule(kv KV) *Module { return &Module{kv: kv} }

func (m *Module) load(key []byte) (Entry, bool, error) {
	raw, err := m.kv.Get(entryKey(key))
	if err != nil {
		return Entry{}, false, err
	}
	if raw == nil {
		return Entry{}, false, nil
	}
	var e Entry
	if err := codec.UnmarshalLenient(raw, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (m *Module) save(key []byte, e Entry) error {
	raw, err := codec.Marshal(e)
	if err != nil {
		return err
	}
	m.kv.Put(entryKey(key), raw)
	return nil
}

// Put requires sender to be the key's current owner, or — when altOwner is
// supplied — to hold canKvStorePut on that account, in which case the
// stored owner becomes the account (spec §4.7).
func (m *Module) Put(az Authorizer, sender address.Address, key, value []byte, altOwner *address.Address) error {
	if len(key) == 0 {
		return codeerr.EmptyKey()
	}
	owner := sender
	if altOwner != nil {
		ok, err := az.HasRole(*altOwner, sender, RoleCanKvStorePut)
		if err != nil {
			return err
		}
		if !ok {
			return codeerr.MissingPermission(RoleCanKvStorePut)
		}
		owner = *altOwner
	}

	existing, found, err := m.load(key)
	if err != nil {
		return err
	}
	if found && !existing.Owner.Equal(sender) && !existing.Owner.Equal(owner) {
		return codeerr.Unauthorized()
	}
	return m.save(key, Entry{Value: value, Owner: owner})
}

// Get returns the value at key, failing if the entry is disabled.
func (m *Module) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, codeerr.EmptyKey()
	}
	e, found, err := m.load(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, codeerr.EmptyKey()
	}
	if e.Disabled {
		return nil, codeerr.DisabledKeyError(e.Reason)
	}
	return e.Value, nil
}

// QueryResult is the response of kvstore.query, which remains available
// for disabled keys (spec testable property 6).
type QueryResult struct {
	Owner    address.Address
	Disabled bool
	Reason   string
}

func (m *Module) Query(key []byte) (QueryResult, error) {
	e, found, err := m.load(key)
	if err != nil {
		return QueryResult{}, err
	}
	if !found {
		return QueryResult{}, codeerr.EmptyKey()
	}
	return QueryResult{Owner: e.Owner, Disabled: e.Disabled, Reason: e.Reason}, nil
}

// Disable is symmetric with Put: sender must own the key directly, or
// hold canKvStoreDisable on the supplied account.
func (m *Module) Disable(az Authorizer, sender address.Address, key []byte, reason string, altOwner *address.Address) error {
	if len(key) == 0 {
		return codeerr.EmptyKey()
	}
	e, found, err := m.load(key)
	if err != nil {
		return err
	}
	if !found {
		return codeerr.EmptyKey()
	}
	authorized := e.Owner.Equal(sender)
	if !authorized && altOwner != nil {
		ok, err := az.HasRole(*altOwner, sender, RoleCanKvStoreDisable)
		if err != nil {
			return err
		}
		authorized = ok && e.Owner.Equal(*altOwner)
	}
	if !authorized {
		return codeerr.MissingPermission(RoleCanKvStoreDisable)
	}
	e.Disabled = true
	e.Reason = reason
	return m.save(key, e)
}
