package accounts

import (
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codeerr"
	"github.com/tokenledger/chain/pkg/subresource"
)

// Module implements the account.* endpoints of spec §4.6.
type Module struct {
	store *Store
}

func NewModule(kv KV) *Module { return &Module{store: NewStore(kv)} }

// HasRole implements ledger.Authorizer and the equivalent kv-module
// dependency: both modules only need to ask "does holder have role on
// account", never the account's full shape.
func (m *Module) HasRole(account, holder address.Address, role string) (bool, error) {
	acc, ok, err := m.store.Account(account)
	if err != nil {
		return false, err
	}
	if !ok || acc.Disabled {
		return false, nil
	}
	return acc.HasRole(holder, Role(role)), nil
}

func filterValidRoles(in []Role) ([]Role, error) {
	out := make([]Role, 0, len(in))
	for _, r := range in {
		if !validRoles[r] {
			return nil, codeerr.DecodeError("unrecognized role " + string(r))
		}
		out = append(out, r)
	}
	return out, nil
}

func filterValidFeatures(in []Feature) ([]Feature, error) {
	out := make([]Feature, 0, len(in))
	for _, f := range in {
		if !validFeatures[f] {
			return nil, codeerr.DecodeError("unrecognized feature " + string(f))
		}
		out = append(out, f)
	}
	return out, nil
}

// CreateArgs is the payload of account.create.
type CreateArgs struct {
	Description string
	Roles       []RoleEntry
	Features    []Feature
	Multisig    MultisigDefaults
}

// Create mints a new account as the next subresource of the creator
// (the envelope's sender) and stores its initial role map and features.
func (m *Module) Create(creator address.Address, args CreateArgs) (address.Address, error) {
	features, err := filterValidFeatures(args.Features)
	if err != nil {
		return address.Address{}, err
	}
	for _, re := range args.Roles {
		if _, err := filterValidRoles(re.Roles); err != nil {
			return address.Address{}, err
		}
	}

	addr, err := subresource.Next(m.store.kv, creator)
	if err != nil {
		return address.Address{}, err
	}
	acc := Account{
		Address: addr, Description: args.Description,
		Roles: args.Roles, Features: features, Multisig: args.Multisig,
	}
	if err := m.store.PutAccount(acc); err != nil {
		return address.Address{}, err
	}
	return addr, nil
}

// requireOwner loads account and checks sender holds the owner role.
func (m *Module) requireOwner(sender, account address.Address) (Account, error) {
	acc, ok, err := m.store.Account(account)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, codeerr.UnknownAccount(account.String())
	}
	if !acc.HasRole(sender, RoleOwner) {
		return Account{}, codeerr.MissingPermission(string(RoleOwner))
	}
	return acc, nil
}

func (m *Module) SetDescription(sender, account address.Address, description string) error {
	acc, err := m.requireOwner(sender, account)
	if err != nil {
		return err
	}
	acc.Description = description
	return m.store.PutAccount(acc)
}

func (m *Module) addRoleEntry(acc *Account, holder address.Address, roles []Role) {
	for i := range acc.Roles {
		if acc.Roles[i].Holder.Equal(holder) {
			have := map[Role]bool{}
			for _, r := range acc.Roles[i].Roles {
				have[r] = true
			}
			for _, r := range roles {
				if !have[r] {
					acc.Roles[i].Roles = append(acc.Roles[i].Roles, r)
				}
			}
			return
		}
	}
	acc.Roles = append(acc.Roles, RoleEntry{Holder: holder, Roles: roles})
}

func (m *Module) AddRoles(sender, account, holder address.Address, roles []Role) error {
	roles, err := filterValidRoles(roles)
	if err != nil {
		return err
	}
	acc, err := m.requireOwner(sender, account)
	if err != nil {
		return err
	}
	m.addRoleEntry(&acc, holder, roles)
	return m.store.PutAccount(acc)
}

func (m *Module) RemoveRoles(sender, account, holder address.Address, roles []Role) error {
	acc, err := m.requireOwner(sender, account)
	if err != nil {
		return err
	}
	remove := map[Role]bool{}
	for _, r := range roles {
		remove[r] = true
	}
	for i := range acc.Roles {
		if !acc.Roles[i].Holder.Equal(holder) {
			continue
		}
		kept := acc.Roles[i].Roles[:0]
		for _, r := range acc.Roles[i].Roles {
			if !remove[r] {
				kept = append(kept, r)
			}
		}
		acc.Roles[i].Roles = kept
	}
	return m.store.PutAccount(acc)
}

func (m *Module) AddFeatures(sender, account address.Address, features []Feature, ms MultisigDefaults) error {
	features, err := filterValidFeatures(features)
	if err != nil {
		return err
	}
	acc, err := m.requireOwner(sender, account)
	if err != nil {
		return err
	}
	have := map[Feature]bool{}
	for _, f := range acc.Features {
		have[f] = true
	}
	for _, f := range features {
		if !have[f] {
			acc.Features = append(acc.Features, f)
		}
		if f == FeatureMultisig {
			acc.Multisig = ms
		}
	}
	return m.store.PutAccount(acc)
}

func (m *Module) Disable(sender, account address.Address) error {
	acc, err := m.requireOwner(sender, account)
	if err != nil {
		return err
	}
	acc.Disabled = true
	return m.store.PutAccount(acc)
}
