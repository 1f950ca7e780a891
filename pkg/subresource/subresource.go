// Package subresource mints deterministic child addresses and owns the
// single monotonic counter each parent address keeps in the Merkle store,
// per spec §3 ("the ledger records next-subresource monotonically per
// parent"). Both the ledger module (minting token addresses) and the
// account module (minting account addresses) mint through this one
// counter per parent, so two different subresource kinds created by the
// same creator never collide on the same index.
package subresource

import (
	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codec"
)

var nsCounter = []byte("/meta/next-subresource/")

// KV is the minimal read/write surface this package needs.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte)
}

func counterKey(parent address.Address) []byte {
	return append(append([]byte{}, nsCounter...), parent.Raw()...)
}

// Next reads and increments parent's subresource counter, returning the
// index to mint at, then returns the newly minted address.
func Next(kv KV, parent address.Address) (address.Address, error) {
	key := counterKey(parent)
	raw, err := kv.Get(key)
	if err != nil {
		return address.Address{}, err
	}
	var idx uint32
	if raw != nil {
		if err := codec.UnmarshalLenient(raw, &idx); err != nil {
			return address.Address{}, err
		}
	}
	next, err := codec.Marshal(idx + 1)
	if err != nil {
		return address.Address{}, err
	}
	kv.Put(key, next)
	return address.Subresource(parent, idx), nil
}
