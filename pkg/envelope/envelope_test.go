package envelope

import (
	"testing"
	"time"

	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/stretchr/testify/require"

	"github.com/tokenledger/chain/pkg/address"
)

func ed25519Signer(t *testing.T) Signer {
	t.Helper()
	return Signer{Algorithm: AlgEd25519, Ed25519Key: ed25519.GenPrivKey()}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := ed25519Signer(t)
	pko, err := signer.PublicKeyObject()
	require.NoError(t, err)

	env := Envelope{Request: Request{
		Version: 1, From: pko.Address(), Endpoint: "ledger.send",
		Payload: []byte("hello"), Timestamp: time.Now(), Nonce: []byte("n1"),
	}}
	require.NoError(t, Sign(&env, signer))
	require.False(t, env.IsAnonymous())

	signers, err := Verify(env)
	require.NoError(t, err)
	require.Contains(t, signers, pko.Address().String())
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	signer := ed25519Signer(t)
	env := Envelope{Request: Request{
		Version: 1, Endpoint: "ledger.send", Payload: []byte("hello"), Timestamp: time.Now(),
	}}
	require.NoError(t, Sign(&env, signer))

	env.Request.Payload = []byte("tampered")
	_, err := Verify(env)
	require.Error(t, err)
}

func TestAnonymousEnvelope_NoSignatures(t *testing.T) {
	env := Envelope{Request: Request{Version: 1, Endpoint: "ledger.info", Timestamp: time.Now()}}
	require.True(t, env.IsAnonymous())
	signers, err := Verify(env)
	require.NoError(t, err)
	require.Empty(t, signers)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	signer := ed25519Signer(t)
	pko, err := signer.PublicKeyObject()
	require.NoError(t, err)

	env := Envelope{Request: Request{
		Version: 1, From: pko.Address(), To: address.Anonymous,
		Endpoint: "ledger.send", Payload: []byte{1, 2, 3},
		Timestamp: time.Unix(1700000000, 0), Nonce: []byte("abc"),
		Attrs: map[string][]byte{"k": []byte("v")},
	}}
	require.NoError(t, Sign(&env, signer))

	raw, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, env.Request.Endpoint, decoded.Request.Endpoint)
	require.Equal(t, env.Request.Payload, decoded.Request.Payload)
	require.Equal(t, env.Request.Nonce, decoded.Request.Nonce)
	require.True(t, env.Request.From.Equal(decoded.Request.From))
	require.Equal(t, env.Request.Timestamp.Unix(), decoded.Request.Timestamp.Unix())

	signers, err := Verify(decoded)
	require.NoError(t, err)
	require.Contains(t, signers, pko.Address().String())
}

func TestReplayGuard_RejectsDuplicateNonce(t *testing.T) {
	g := NewReplayGuard(DefaultTimeout)
	now := time.Now()
	req := Request{From: address.FromPublicKey([]byte("a")), Nonce: []byte("n1"), Timestamp: now}

	require.NoError(t, g.Check(req, now))
	err := g.Check(req, now)
	require.Error(t, err)
}

func TestReplayGuard_NoNonceNeverRecorded(t *testing.T) {
	g := NewReplayGuard(DefaultTimeout)
	now := time.Now()
	req := Request{From: address.FromPublicKey([]byte("a")), Timestamp: now}

	require.NoError(t, g.Check(req, now))
	require.NoError(t, g.Check(req, now))
	require.Equal(t, 0, g.Size())
}

func TestReplayGuard_TimestampOutOfRange(t *testing.T) {
	g := NewReplayGuard(300 * time.Second)
	now := time.Now()

	ok := Request{Timestamp: now.Add(-300 * time.Second), Nonce: []byte("x")}
	require.NoError(t, g.Check(ok, now))

	tooOld := Request{Timestamp: now.Add(-301 * time.Second), Nonce: []byte("y")}
	require.Error(t, g.Check(tooOld, now))
}
