package ledger

import "github.com/tokenledger/chain/pkg/address"

// Key namespaces, one short ASCII prefix per module, per spec §6.
var (
	nsBalance = []byte("/balances/")
	nsToken   = []byte("/tokens/")
)

// appendAddr writes addr's raw bytes behind an explicit one-byte length, so
// concatenated addresses inside one key never need a reserved separator
// byte that might also occur inside an address's own encoding.
func appendAddr(buf []byte, a address.Address) []byte {
	raw := a.Raw()
	buf = append(buf, byte(len(raw)))
	buf = append(buf, raw...)
	return buf
}

// BalanceKey returns the Merkle-store key for (holder, symbol).
func BalanceKey(holder, symbol address.Address) []byte {
	k := append([]byte{}, nsBalance...)
	k = appendAddr(k, holder)
	k = appendAddr(k, symbol)
	return k
}

// balancePrefix returns the prefix under which every symbol balance of
// holder lives, for "all balances of an address" queries.
func balancePrefix(holder address.Address) []byte {
	k := append([]byte{}, nsBalance...)
	return appendAddr(k, holder)
}

// TokenKey returns the Merkle-store key for a token's metadata.
func TokenKey(symbol address.Address) []byte {
	k := append([]byte{}, nsToken...)
	return appendAddr(k, symbol)
}
