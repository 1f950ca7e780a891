package ledger

import (
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is an arbitrary-precision unsigned integer with a fixed, canonical
// CBOR encoding: the big-endian minimal-length byte string of its value,
// empty for zero. Spec §9 requires one deterministic encode/compare/
// arithmetic library so independently-computed balances hash identically
// across platforms; wrapping math/big.Int with an explicit byte-string
// encoding (rather than relying on a library's bignum tag convention)
// keeps that guarantee entirely in this package's control.
type BigInt struct {
	v big.Int
}

// NewBigInt wraps an existing *big.Int. The value is copied.
func NewBigInt(v *big.Int) BigInt {
	var b BigInt
	if v != nil {
		b.v.Set(v)
	}
	return b
}

// BigIntFromUint64 constructs a BigInt from a uint64.
func BigIntFromUint64(v uint64) BigInt {
	var b BigInt
	b.v.SetUint64(v)
	return b
}

// Int returns a copy of the value as a *big.Int; mutating it does not
// change b.
func (b BigInt) Int() *big.Int { return new(big.Int).Set(&b.v) }

func (b BigInt) Sign() int { return b.v.Sign() }

func (b BigInt) IsZero() bool { return b.v.Sign() == 0 }

func (b BigInt) Cmp(o BigInt) int { return b.v.Cmp(&o.v) }

func (b BigInt) Add(o BigInt) BigInt {
	var r BigInt
	r.v.Add(&b.v, &o.v)
	return r
}

func (b BigInt) Sub(o BigInt) BigInt {
	var r BigInt
	r.v.Sub(&b.v, &o.v)
	return r
}

func (b BigInt) String() string { return b.v.String() }

// MarshalCBOR encodes b as a byte string: the big-endian two's-complement
// is not used (values are always non-negative), just the minimal unsigned
// big-endian form, so the empty byte string is the canonical zero.
func (b BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(b.v.Bytes())
}

// UnmarshalCBOR decodes b from its byte-string form.
func (b *BigInt) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.v.SetBytes(raw)
	return nil
}
