package kvstore

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/require"

	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codeerr"
	"github.com/tokenledger/chain/pkg/merkle"
)

type fakeAuthorizer struct {
	granted map[[3]string]bool
}

func newFakeAuthorizer() *fakeAuthorizer { return &fakeAuthorizer{granted: map[[3]string]bool{}} }

func (f *fakeAuthorizer) grant(account, holder address.Address, role string) {
	f.granted[[3]string{account.String(), holder.String(), role}] = true
}

func (f *fakeAuthorizer) HasRole(account, holder address.Address, role string) (bool, error) {
	return f.granted[[3]string{account.String(), holder.String(), role}], nil
}

func newTestModule(t *testing.T) *Module {
	t.Helper()
	store, err := merkle.NewStore(dbm.NewMemDB())
	require.NoError(t, err)
	return NewModule(store)
}

func TestPutGet_OwnerRoundTrip(t *testing.T) {
	m := newTestModule(t)
	az := newFakeAuthorizer()
	sender := address.FromPublicKey([]byte("sender"))

	require.NoError(t, m.Put(az, sender, []byte("key1"), []byte("value1"), nil))

	val, err := m.Get([]byte("key1"))
	require.NoError(t, err)
	require.Equal(t, []byte("value1"), val)
}

func TestPut_EmptyKeyRejected(t *testing.T) {
	m := newTestModule(t)
	az := newFakeAuthorizer()
	sender := address.FromPublicKey([]byte("sender"))

	err := m.Put(az, sender, nil, []byte("value1"), nil)
	require.Error(t, err)
	ce, ok := err.(*codeerr.Error)
	require.True(t, ok)
	require.Equal(t, codeerr.CodeEmptyKey, ce.Code)
}

func TestPut_OverwriteByNonOwnerRejected(t *testing.T) {
	m := newTestModule(t)
	az := newFakeAuthorizer()
	sender := address.FromPublicKey([]byte("sender"))
	other := address.FromPublicKey([]byte("other"))

	require.NoError(t, m.Put(az, sender, []byte("key1"), []byte("value1"), nil))

	err := m.Put(az, other, []byte("key1"), []byte("value2"), nil)
	require.Error(t, err)
	ce, ok := err.(*codeerr.Error)
	require.True(t, ok)
	require.Equal(t, codeerr.CodeUnauthorized, ce.Code)
}

func TestPut_OnBehalfOfAccountRequiresRole(t *testing.T) {
	m := newTestModule(t)
	az := newFakeAuthorizer()
	sender := address.FromPublicKey([]byte("sender"))
	account := address.FromPublicKey([]byte("account"))

	err := m.Put(az, sender, []byte("key1"), []byte("value1"), &account)
	require.Error(t, err)
	ce, ok := err.(*codeerr.Error)
	require.True(t, ok)
	require.Equal(t, codeerr.CodeMissingPermission, ce.Code)

	az.grant(account, sender, RoleCanKvStorePut)
	require.NoError(t, m.Put(az, sender, []byte("key1"), []byte("value1"), &account))

	val, err := m.Get([]byte("key1"))
	require.NoError(t, err)
	require.Equal(t, []byte("value1"), val)
}

func TestDisable_HidesValueButQueryStillWorks(t *testing.T) {
	m := newTestModule(t)
	az := newFakeAuthorizer()
	sender := address.FromPublicKey([]byte("sender"))

	require.NoError(t, m.Put(az, sender, []byte("key1"), []byte("value1"), nil))
	require.NoError(t, m.Disable(az, sender, []byte("key1"), "retired", nil))

	_, err := m.Get([]byte("key1"))
	require.Error(t, err)
	ce, ok := err.(*codeerr.Error)
	require.True(t, ok)
	require.Equal(t, codeerr.CodeDisabledKey, ce.Code)

	res, err := m.Query([]byte("key1"))
	require.NoError(t, err)
	require.True(t, res.Disabled)
	require.Equal(t, "retired", res.Reason)
	require.True(t, res.Owner.Equal(sender))
}

func TestGet_UnknownKeyRejected(t *testing.T) {
	m := newTestModule(t)
	_, err := m.Get([]byte("nope"))
	require.Error(t, err)
	ce, ok := err.(*codeerr.Error)
	require.True(t, ok)
	require.Equal(t, codeerr.CodeEmptyKey, ce.Code)
}
