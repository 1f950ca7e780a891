package address

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestFromPublicKey_Deterministic(t *testing.T) {
	a := FromPublicKey([]byte("key-bytes"))
	b := FromPublicKey([]byte("key-bytes"))
	require.True(t, a.Equal(b))
	require.Equal(t, KindPublicKey, a.Kind())

	c := FromPublicKey([]byte("different-key"))
	require.False(t, a.Equal(c))
}

func TestSubresource_DeterministicPerParentAndIndex(t *testing.T) {
	parent := FromPublicKey([]byte("parent"))
	child1 := Subresource(parent, 0)
	child1Again := Subresource(parent, 0)
	child2 := Subresource(parent, 1)

	require.True(t, child1.Equal(child1Again))
	require.False(t, child1.Equal(child2))

	idx, err := child2.SubresourceIndex()
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx)
}

func TestSubresourceIndex_RejectsNonSubresource(t *testing.T) {
	a := FromPublicKey([]byte("key"))
	_, err := a.SubresourceIndex()
	require.ErrorIs(t, err, ErrNotSubresource)
}

func TestStringParseRoundTrip(t *testing.T) {
	for _, a := range []Address{
		Anonymous,
		FromPublicKey([]byte("round-trip-key")),
		Subresource(FromPublicKey([]byte("parent")), 42),
	} {
		text := a.String()
		parsed, err := Parse(text)
		require.NoError(t, err)
		require.True(t, a.Equal(parsed))
	}
}

func TestParse_RejectsBadChecksum(t *testing.T) {
	a := FromPublicKey([]byte("key"))
	text := a.String()
	tampered := text[:len(text)-1] + flipLastChar(text[len(text)-1:])

	_, err := Parse(tampered)
	require.Error(t, err)
}

func flipLastChar(s string) string {
	if s == "a" {
		return "b"
	}
	return "a"
}

func TestParse_RejectsWrongPrefix(t *testing.T) {
	_, err := Parse("nope12345")
	require.ErrorIs(t, err, ErrInvalidPrefix)
}

func TestRawFromRawRoundTrip(t *testing.T) {
	a := Subresource(FromPublicKey([]byte("parent")), 7)
	raw := a.Raw()
	decoded, err := FromRaw(raw)
	require.NoError(t, err)
	require.True(t, a.Equal(decoded))
}

func TestCBORMarshalUnmarshalRoundTrip(t *testing.T) {
	a := FromPublicKey([]byte("cbor-key"))
	data, err := cbor.Marshal(a)
	require.NoError(t, err)

	var decoded Address
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	require.True(t, a.Equal(decoded))
}

func TestIllegalAddress_RoundTripsRaw(t *testing.T) {
	a := Illegal([]byte{0x01, 0x02, 0x03})
	raw := a.Raw()
	decoded, err := FromRaw(raw)
	require.NoError(t, err)
	require.True(t, a.Equal(decoded))
}
