package subresource

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/require"

	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/merkle"
)

func TestNext_IncrementsPerParent(t *testing.T) {
	store, err := merkle.NewStore(dbm.NewMemDB())
	require.NoError(t, err)
	parent := address.FromPublicKey([]byte("parent"))

	first, err := Next(store, parent)
	require.NoError(t, err)
	second, err := Next(store, parent)
	require.NoError(t, err)
	require.False(t, first.Equal(second))

	idx, err := first.SubresourceIndex()
	require.NoError(t, err)
	require.Equal(t, uint32(0), idx)

	idx, err = second.SubresourceIndex()
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx)
}

func TestNext_IndependentAcrossParents(t *testing.T) {
	store, err := merkle.NewStore(dbm.NewMemDB())
	require.NoError(t, err)
	parentA := address.FromPublicKey([]byte("parent-a"))
	parentB := address.FromPublicKey([]byte("parent-b"))

	a, err := Next(store, parentA)
	require.NoError(t, err)
	b, err := Next(store, parentB)
	require.NoError(t, err)

	idxA, err := a.SubresourceIndex()
	require.NoError(t, err)
	idxB, err := b.SubresourceIndex()
	require.NoError(t, err)
	require.Equal(t, uint32(0), idxA)
	require.Equal(t, uint32(0), idxB)
	require.False(t, a.Equal(b))
}
