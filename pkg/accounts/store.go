package accounts

import (
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codec"
	"github.com/tokenledger/chain/pkg/merkle"
)

// KV is the subset of the Merkle store this module needs; satisfied by
// both *merkle.Tx and *merkle.Store.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte)
	Delete(key []byte)
	PrefixIterator(prefix []byte) ([]merkle.KV, error)
}

// Store is a thin, typed wrapper over KV for the account module's key
// layout.
type Store struct {
	kv KV
}

func NewStore(kv KV) *Store { return &Store{kv: kv} }

func (s *Store) Account(addr address.Address) (Account, bool, error) {
	raw, err := s.kv.Get(accountKey(addr))
	if err != nil {
		return Account{}, false, err
	}
	if raw == nil {
		return Account{}, false, nil
	}
	var a Account
	if err := codec.UnmarshalLenient(raw, &a); err != nil {
		return Account{}, false, err
	}
	return a, true, nil
}

func (s *Store) PutAccount(a Account) error {
	raw, err := codec.Marshal(a)
	if err != nil {
		return err
	}
	s.kv.Put(accountKey(a.Address), raw)
	return nil
}

func (s *Store) MultisigTx(token []byte) (MultisigTx, bool, error) {
	raw, err := s.kv.Get(multisigKey(token))
	if err != nil {
		return MultisigTx{}, false, err
	}
	if raw == nil {
		return MultisigTx{}, false, nil
	}
	var t MultisigTx
	if err := codec.UnmarshalLenient(raw, &t); err != nil {
		return MultisigTx{}, false, err
	}
	return t, true, nil
}

func (s *Store) PutMultisigTx(t MultisigTx) error {
	raw, err := codec.Marshal(t)
	if err != nil {
		return err
	}
	s.kv.Put(multisigKey(t.Token), raw)
	return nil
}

// DeleteMultisigTx removes a terminal transaction's record, used by the
// history-retention prune (spec §4.6 supplement).
func (s *Store) DeleteMultisigTx(token []byte) {
	s.kv.Delete(multisigKey(token))
}

// AllMultisigTxs returns every stored multisig transaction, used by the
// block-boundary expiry sweep (spec §4.6).
func (s *Store) AllMultisigTxs() ([]MultisigTx, error) {
	pairs, err := s.kv.PrefixIterator(nsMultisig)
	if err != nil {
		return nil, err
	}
	out := make([]MultisigTx, 0, len(pairs))
	for _, kv := range pairs {
		var t MultisigTx
		if err := codec.UnmarshalLenient(kv.Value, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
