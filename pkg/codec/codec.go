// Package codec implements the self-describing, deterministic binary
// encoding used for every wire value and, critically, for every value that
// is hashed or signed. The encoder used for those pre-images is canonical:
// shortest-form integers, byte-lexicographically sorted map keys, definite
// lengths, and no duplicate keys. The strict decoder used on signed
// pre-images rejects duplicate map keys and indefinite-length items; it
// does not check that integers are in shortest form or that map keys are
// sorted.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// Tag numbers used by the wire format, see spec §6.
const (
	TagAddress       = 10000
	TagTimestamp     = 1
	TagSignedMessage = 18
)

var (
	canonicalEncMode cbor.EncMode
	strictDecMode    cbor.DecMode
)

func init() {
	encOpts := cbor.CanonicalEncOptions()
	// CanonicalEncOptions already enforces shortest-form integers, sorted
	// map keys (bytewise lexicographic) and definite lengths; we only need
	// to make sure indefinite-length items never round-trip as "canonical".
	// Timestamps always carry tag 1 over an integer seconds count, per
	// spec §6; EncTagRequired is what makes CanonicalEncOptions actually
	// emit that tag instead of a bare untagged integer.
	encOpts.Time = cbor.TimeUnix
	encOpts.TimeTag = cbor.EncTagRequired
	mode, err := encOpts.EncMode()
	if err != nil {
		panic("codec: bad canonical encoder options: " + err.Error())
	}
	canonicalEncMode = mode

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF, // reject duplicate map keys
		IndefLength: cbor.IndefLengthForbidden,  // reject indefinite-length forms
		TimeTag:     cbor.DecTagRequired,
	}
	dmode, err := decOpts.DecMode()
	if err != nil {
		panic("codec: bad strict decoder options: " + err.Error())
	}
	strictDecMode = dmode
}

// Marshal canonically encodes v. This is the ONLY encoder that may be used
// to build a pre-image that will be hashed or signed.
func Marshal(v interface{}) ([]byte, error) {
	return canonicalEncMode.Marshal(v)
}

// Unmarshal decodes b into v, rejecting non-canonical forms (duplicate map
// keys, indefinite lengths). Use this when decoding a signed pre-image.
func Unmarshal(b []byte, v interface{}) error {
	return strictDecMode.Unmarshal(b, v)
}

// UnmarshalLenient decodes b into v using the default, non-strict decoder.
// Used for values that are not part of a signed pre-image (e.g. values
// already extracted from inside a verified envelope payload) where
// canonicality was already checked by the outer decode.
func UnmarshalLenient(b []byte, v interface{}) error {
	return cbor.Unmarshal(b, v)
}

// RawMessage is an already-encoded canonical CBOR value, used for opaque
// endpoint payloads that a module decodes only after dispatch.
type RawMessage = cbor.RawMessage
