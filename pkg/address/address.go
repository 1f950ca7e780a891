// Package address implements the tagged, content-addressed principal
// identifiers used throughout the envelope, ledger, and account modules.
//
// An address is a small tagged byte string, never a pointer into any
// in-memory graph: accounts and tokens reference addresses by value, and
// the Merkle store is keyed by their raw bytes, so two peers that compute
// the same address bytes agree on identity without comparing object graphs.
package address

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	b32 "github.com/multiformats/go-base32"
)

// cborTagAddress mirrors codec.TagAddress (10000); duplicated here rather
// than imported so this leaf package has no dependency on pkg/codec.
const cborTagAddress = 10000

// Kind discriminates the four address variants the protocol recognizes.
type Kind byte

const (
	KindAnonymous   Kind = 0x00
	KindPublicKey   Kind = 0x01
	KindSubresource Kind = 0x02
	KindIllegal     Kind = 0xff
)

// textPrefix is the fixed human-readable prefix of the base32 text form.
const textPrefix = "tlx"

// subresourceMask keeps subresource indices to 31 bits per the data model.
const subresourceMask = 0x7fffffff

var (
	ErrInvalidLength   = errors.New("address: invalid raw length")
	ErrInvalidChecksum = errors.New("address: checksum mismatch")
	ErrInvalidPrefix   = errors.New("address: invalid text prefix")
	ErrNotSubresource  = errors.New("address: not a subresource address")
)

// Anonymous is the single zero-value anonymous address.
var Anonymous = Address{kind: KindAnonymous}

// Address is an immutable, comparable (via Equal/Raw) tagged principal id.
type Address struct {
	kind   Kind
	hash   [28]byte // identity hash for public-key and subresource-parent addresses
	sub    uint32   // 31-bit subresource index, only meaningful when kind == KindSubresource
	illegl []byte   // raw payload for illegal addresses, kept for round-tripping
}

// Kind reports the address variant.
func (a Address) Kind() Kind { return a.kind }

// IsAnonymous reports whether a is the zero/anonymous address.
func (a Address) IsAnonymous() bool { return a.kind == KindAnonymous }

// FromPublicKey derives a public-key address from the canonical encoding of
// a public key object (the caller supplies the already-canonical bytes, so
// the same key always yields the same address regardless of algorithm).
func FromPublicKey(pubKeyCanonical []byte) Address {
	sum := sha256.Sum256(pubKeyCanonical)
	var h [28]byte
	copy(h[:], sum[:28])
	return Address{kind: KindPublicKey, hash: h}
}

// Subresource deterministically mints the child address at index idx of
// parent. The mapping is pure: the same (parent, idx) always yields the
// same address, which is what lets peers agree on minted account/token
// addresses without exchanging anything but the index.
func Subresource(parent Address, idx uint32) Address {
	idx &= subresourceMask
	sum := sha256.Sum256(parent.Raw())
	var h [28]byte
	copy(h[:], sum[:28])
	return Address{kind: KindSubresource, hash: h, sub: idx}
}

// SubresourceIndex returns the 31-bit index of a subresource address.
func (a Address) SubresourceIndex() (uint32, error) {
	if a.kind != KindSubresource {
		return 0, ErrNotSubresource
	}
	return a.sub, nil
}

// Illegal wraps an arbitrary byte string as an illegal address, used when
// decoding envelopes whose `from`/`to` field does not parse as one of the
// well-formed kinds but must still round-trip for hashing/logging.
func Illegal(raw []byte) Address {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Address{kind: KindIllegal, illegl: cp}
}

// Raw returns the canonical tagged byte-string form of the address, used
// as the Merkle-store key suffix and as the pre-image for Subresource.
func (a Address) Raw() []byte {
	switch a.kind {
	case KindAnonymous:
		return []byte{byte(KindAnonymous)}
	case KindPublicKey:
		out := make([]byte, 0, 29)
		out = append(out, byte(KindPublicKey))
		out = append(out, a.hash[:]...)
		return out
	case KindSubresource:
		out := make([]byte, 0, 33)
		out = append(out, byte(KindSubresource))
		out = append(out, a.hash[:]...)
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], a.sub&subresourceMask)
		out = append(out, idx[:]...)
		return out
	default: // KindIllegal
		out := make([]byte, 0, 1+len(a.illegl))
		out = append(out, byte(KindIllegal))
		out = append(out, a.illegl...)
		return out
	}
}

// Equal compares two addresses by their raw encoding.
func (a Address) Equal(b Address) bool {
	ra, rb := a.Raw(), b.Raw()
	if len(ra) != len(rb) {
		return false
	}
	for i := range ra {
		if ra[i] != rb[i] {
			return false
		}
	}
	return true
}

// FromRaw reconstructs an Address from its raw tagged byte-string form,
// the inverse of Raw. Used when decoding addresses embedded in envelopes.
func FromRaw(raw []byte) (Address, error) {
	if len(raw) == 0 {
		return Address{}, ErrInvalidLength
	}
	switch Kind(raw[0]) {
	case KindAnonymous:
		if len(raw) != 1 {
			return Address{}, ErrInvalidLength
		}
		return Anonymous, nil
	case KindPublicKey:
		if len(raw) != 29 {
			return Address{}, ErrInvalidLength
		}
		var h [28]byte
		copy(h[:], raw[1:])
		return Address{kind: KindPublicKey, hash: h}, nil
	case KindSubresource:
		if len(raw) != 33 {
			return Address{}, ErrInvalidLength
		}
		var h [28]byte
		copy(h[:], raw[1:29])
		idx := binary.BigEndian.Uint32(raw[29:33]) & subresourceMask
		return Address{kind: KindSubresource, hash: h, sub: idx}, nil
	default:
		return Illegal(raw[1:]), nil
	}
}

// checksum derives the 4-byte self-check suffix of the text form.
func checksum(raw []byte) []byte {
	sum := sha256.Sum256(raw)
	return sum[:4]
}

// String renders the self-checking base32 text form: a fixed prefix
// followed by unpadded base32 of (raw || checksum(raw)).
func (a Address) String() string {
	raw := a.Raw()
	payload := append(append([]byte{}, raw...), checksum(raw)...)
	enc := b32.StdEncoding.WithPadding(b32.NoPadding).EncodeToString(payload)
	return textPrefix + strings.ToLower(enc)
}

// Parse parses the text form produced by String, verifying the checksum.
func Parse(text string) (Address, error) {
	if !strings.HasPrefix(text, textPrefix) {
		return Address{}, ErrInvalidPrefix
	}
	body := strings.ToUpper(strings.TrimPrefix(text, textPrefix))
	payload, err := b32.StdEncoding.WithPadding(b32.NoPadding).DecodeString(body)
	if err != nil {
		return Address{}, fmt.Errorf("address: base32 decode: %w", err)
	}
	if len(payload) < 5 {
		return Address{}, ErrInvalidLength
	}
	raw, sum := payload[:len(payload)-4], payload[len(payload)-4:]
	want := checksum(raw)
	for i := range want {
		if want[i] != sum[i] {
			return Address{}, ErrInvalidChecksum
		}
	}
	return FromRaw(raw)
}

// MarshalCBOR encodes the address as tag 10000 around its raw byte string,
// per spec §6 ("Addresses use tag 10000 around a byte string").
func (a Address) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{Number: cborTagAddress, Content: a.Raw()})
}

// UnmarshalCBOR decodes a tag-10000-wrapped byte string into the address.
func (a *Address) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("address: decode tag: %w", err)
	}
	if tag.Number != cborTagAddress {
		return fmt.Errorf("address: unexpected tag %d", tag.Number)
	}
	raw, ok := tag.Content.([]byte)
	if !ok {
		return errors.New("address: tag content is not a byte string")
	}
	parsed, err := FromRaw(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
