package accounts

import "github.com/tokenledger/chain/pkg/address"

var (
	nsAccount  = []byte("/accounts/")
	nsMultisig = []byte("/multisig/")
)

func accountKey(addr address.Address) []byte {
	return append(append([]byte{}, nsAccount...), addr.Raw()...)
}

func multisigKey(token []byte) []byte {
	return append(append([]byte{}, nsMultisig...), token...)
}
