// Package envelope implements the signed request/response message format:
// cryptographic addressing, multi-signature composition over a canonical
// pre-image, and the replay-protection window described by spec §4.2.
package envelope

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"time"

	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/fxamacker/cbor/v2"

	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codec"
	"github.com/tokenledger/chain/pkg/codeerr"
)

// Algorithm names a supported signature algorithm.
type Algorithm string

const (
	AlgEd25519   Algorithm = "EdDSA"
	AlgECDSAP256 Algorithm = "ES256"
)

// DefaultTimeout is the default replay window, per spec §4.2.
const DefaultTimeout = 300 * time.Second

// PublicKeyObject is the embedded signer public key, canonically encoded
// as part of every signature's protected header so a verifier never needs
// an out-of-band key lookup to derive the signer's address.
type PublicKeyObject struct {
	Algorithm Algorithm `cbor:"alg"`
	Key       []byte    `cbor:"key"`
}

// CanonicalBytes returns the deterministic pre-image used to derive the
// signer's address from this public key.
func (p PublicKeyObject) CanonicalBytes() []byte {
	b, err := codec.Marshal(p)
	if err != nil {
		// Marshal of a plain struct of primitives cannot fail.
		panic("envelope: marshal public key: " + err.Error())
	}
	return b
}

// Address derives the public-key-derived address for this key.
func (p PublicKeyObject) Address() address.Address {
	return address.FromPublicKey(p.CanonicalBytes())
}

// protectedHeader is the per-signature protected header: the algorithm and
// embedded public key, bound into the signed pre-image so neither can be
// substituted after signing.
type protectedHeader struct {
	Algorithm Algorithm       `cbor:"alg"`
	PublicKey PublicKeyObject `cbor:"publicKey"`
}

// webauthnUnprotected carries the WebAuthn authenticator/client data when a
// signature was produced in WebAuthn-compatibility mode (spec §4.2).
type webauthnUnprotected struct {
	AuthenticatorData []byte `cbor:"authData,omitempty"`
	ClientDataJSON    []byte `cbor:"clientData,omitempty"`
}

// signatureEntry is one entry of the envelope's signatures array.
type signatureEntry struct {
	_           struct{}            `cbor:",toarray"`
	Protected   []byte              // canonical CBOR of protectedHeader
	Unprotected webauthnUnprotected // empty unless WebAuthn mode
	Signature   []byte
}

// wireMessage is the tag-18 top-level signed-message array from spec §6.
type wireMessage struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte   // reserved, always empty in this implementation
	Unprotected map[string][]byte
	Payload     []byte
	Signatures  []signatureEntry
}

const tagSignedMessage = 18

// requestWire is the canonical {0..8} request map from spec §6.
type requestWire struct {
	Version   uint64            `cbor:"0,keyasint"`
	From      address.Address   `cbor:"1,keyasint"`
	To        address.Address   `cbor:"2,keyasint"`
	Endpoint  string            `cbor:"3,keyasint"`
	Payload   []byte            `cbor:"4,keyasint"`
	Timestamp time.Time         `cbor:"5,keyasint"`
	ID        []byte            `cbor:"6,keyasint,omitempty"`
	Nonce     []byte            `cbor:"7,keyasint,omitempty"`
	Attrs     map[string][]byte `cbor:"8,keyasint,omitempty"`
}

// Request is the decoded, not-yet-verified content of an envelope.
type Request struct {
	Version   uint64
	From      address.Address
	To        address.Address
	Endpoint  string
	Payload   []byte
	Timestamp time.Time
	ID        []byte
	Nonce     []byte
	Attrs     map[string][]byte
}

func (r Request) toWire() requestWire {
	return requestWire{
		Version: r.Version, From: r.From, To: r.To, Endpoint: r.Endpoint,
		Payload: r.Payload, Timestamp: r.Timestamp, ID: r.ID, Nonce: r.Nonce, Attrs: r.Attrs,
	}
}

func (w requestWire) fromWire() Request {
	return Request{
		Version: w.Version, From: w.From, To: w.To, Endpoint: w.Endpoint,
		Payload: w.Payload, Timestamp: w.Timestamp, ID: w.ID, Nonce: w.Nonce, Attrs: w.Attrs,
	}
}

// Signer holds a private key capable of producing one signature entry.
type Signer struct {
	Algorithm  Algorithm
	Ed25519Key ed25519.PrivKey
	ECDSAKey   *ecdsa.PrivateKey
}

// PublicKeyObject returns the canonical public key object for this signer.
func (s Signer) PublicKeyObject() (PublicKeyObject, error) {
	switch s.Algorithm {
	case AlgEd25519:
		return PublicKeyObject{Algorithm: AlgEd25519, Key: s.Ed25519Key.PubKey().Bytes()}, nil
	case AlgECDSAP256:
		pub := s.ECDSAKey.PublicKey
		return PublicKeyObject{Algorithm: AlgECDSAP256, Key: elliptic.MarshalCompressed(pub.Curve, pub.X, pub.Y)}, nil
	default:
		return PublicKeyObject{}, codeerr.UnknownAlgorithm(string(s.Algorithm))
	}
}

// Envelope is a signed request message.
type Envelope struct {
	Request    Request
	Signatures []Signature
}

// Signature is one verified-or-to-be-verified signature over the envelope.
type Signature struct {
	Algorithm Algorithm
	PublicKey PublicKeyObject
	Bytes     []byte
	WebAuthn  *WebAuthnProof
}

// WebAuthnProof carries the WebAuthn authenticator data used in place of
// the plain canonical pre-image, per the WebAuthn compatibility mode.
type WebAuthnProof struct {
	AuthenticatorData []byte
	ClientDataJSON    []byte
}

// preimage builds the signed pre-image for a given protected header and
// payload: sha256(canonical(protectedHeader) || payload).
func preimage(ph protectedHeader, payload []byte) ([]byte, error) {
	phBytes, err := codec.Marshal(ph)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(phBytes)
	h.Write(payload)
	return h.Sum(nil), nil
}

// webauthnPreimage reconstructs the WebAuthn-mode signed pre-image:
// authenticatorData || sha256(clientDataJSON).
func webauthnPreimage(authData, clientData []byte) []byte {
	h := sha256.Sum256(clientData)
	out := make([]byte, 0, len(authData)+32)
	out = append(out, authData...)
	out = append(out, h[:]...)
	return out
}

// Sign appends a new signature produced by signer over env's request.
func Sign(env *Envelope, signer Signer) error {
	payload, err := codec.Marshal(env.Request.toWire())
	if err != nil {
		return codeerr.Wrap(err)
	}
	pko, err := signer.PublicKeyObject()
	if err != nil {
		return err
	}
	ph := protectedHeader{Algorithm: signer.Algorithm, PublicKey: pko}
	pre, err := preimage(ph, payload)
	if err != nil {
		return codeerr.Wrap(err)
	}

	var sigBytes []byte
	switch signer.Algorithm {
	case AlgEd25519:
		sigBytes, err = signer.Ed25519Key.Sign(pre)
		if err != nil {
			return codeerr.Wrap(err)
		}
	case AlgECDSAP256:
		r, s, err := ecdsa.Sign(rand.Reader, signer.ECDSAKey, pre)
		if err != nil {
			return codeerr.Wrap(err)
		}
		sigBytes = append(r.Bytes(), s.Bytes()...)
	default:
		return codeerr.UnknownAlgorithm(string(signer.Algorithm))
	}

	env.Signatures = append(env.Signatures, Signature{
		Algorithm: signer.Algorithm,
		PublicKey: pko,
		Bytes:     sigBytes,
	})
	return nil
}

// SignWebAuthn appends a signature produced over WebAuthn authenticator
// data instead of the plain canonical pre-image.
func SignWebAuthn(env *Envelope, signer Signer, authenticatorData, clientDataJSON []byte) error {
	pre := webauthnPreimage(authenticatorData, clientDataJSON)
	pko, err := signer.PublicKeyObject()
	if err != nil {
		return err
	}
	var sigBytes []byte
	switch signer.Algorithm {
	case AlgEd25519:
		sigBytes, err = signer.Ed25519Key.Sign(pre)
		if err != nil {
			return codeerr.Wrap(err)
		}
	case AlgECDSAP256:
		r, s, err := ecdsa.Sign(rand.Reader, signer.ECDSAKey, pre)
		if err != nil {
			return codeerr.Wrap(err)
		}
		sigBytes = append(r.Bytes(), s.Bytes()...)
	default:
		return codeerr.UnknownAlgorithm(string(signer.Algorithm))
	}
	env.Signatures = append(env.Signatures, Signature{
		Algorithm: signer.Algorithm,
		PublicKey: pko,
		Bytes:     sigBytes,
		WebAuthn:  &WebAuthnProof{AuthenticatorData: authenticatorData, ClientDataJSON: clientDataJSON},
	})
	return nil
}

// IsAnonymous reports whether env carries no signatures at all.
func (e Envelope) IsAnonymous() bool { return len(e.Signatures) == 0 }

// Verify checks every signature on env and returns the set of addresses
// that validly signed it. It does not check that `from` is one of them;
// callers combine Verify with account/multisig authorization rules.
func Verify(env Envelope) (map[string]address.Address, error) {
	if env.IsAnonymous() {
		return map[string]address.Address{}, nil
	}
	payload, err := codec.Marshal(env.Request.toWire())
	if err != nil {
		return nil, codeerr.Wrap(err)
	}

	signers := make(map[string]address.Address, len(env.Signatures))
	for _, sig := range env.Signatures {
		addr := sig.PublicKey.Address()

		var pre []byte
		if sig.WebAuthn != nil {
			pre = webauthnPreimage(sig.WebAuthn.AuthenticatorData, sig.WebAuthn.ClientDataJSON)
		} else {
			ph := protectedHeader{Algorithm: sig.Algorithm, PublicKey: sig.PublicKey}
			pre, err = preimage(ph, payload)
			if err != nil {
				return nil, codeerr.Wrap(err)
			}
		}

		ok, err := verifyOne(sig, pre)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, codeerr.InvalidSignature()
		}
		signers[addr.String()] = addr
	}
	return signers, nil
}

func verifyOne(sig Signature, pre []byte) (bool, error) {
	switch sig.Algorithm {
	case AlgEd25519:
		pub := ed25519.PubKey(sig.PublicKey.Key)
		return pub.VerifySignature(pre, sig.Bytes), nil
	case AlgECDSAP256:
		if len(sig.Bytes)%2 != 0 {
			return false, codeerr.InvalidSignature()
		}
		half := len(sig.Bytes) / 2
		r := new(big.Int).SetBytes(sig.Bytes[:half])
		s := new(big.Int).SetBytes(sig.Bytes[half:])
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), sig.PublicKey.Key)
		if x == nil {
			return false, codeerr.InvalidSignature()
		}
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		return ecdsa.Verify(pub, pre, r, s), nil
	default:
		return false, codeerr.UnknownAlgorithm(string(sig.Algorithm))
	}
}

// Encode serializes env to the tag-18 wire form.
func Encode(env Envelope) ([]byte, error) {
	payload, err := codec.Marshal(env.Request.toWire())
	if err != nil {
		return nil, codeerr.Wrap(err)
	}
	entries := make([]signatureEntry, 0, len(env.Signatures))
	for _, sig := range env.Signatures {
		ph := protectedHeader{Algorithm: sig.Algorithm, PublicKey: sig.PublicKey}
		phBytes, err := codec.Marshal(ph)
		if err != nil {
			return nil, codeerr.Wrap(err)
		}
		var un webauthnUnprotected
		if sig.WebAuthn != nil {
			un = webauthnUnprotected{AuthenticatorData: sig.WebAuthn.AuthenticatorData, ClientDataJSON: sig.WebAuthn.ClientDataJSON}
		}
		entries = append(entries, signatureEntry{Protected: phBytes, Unprotected: un, Signature: sig.Bytes})
	}
	msg := wireMessage{Payload: payload, Signatures: entries}
	body, err := codec.Marshal(msg)
	if err != nil {
		return nil, codeerr.Wrap(err)
	}
	return codec.Marshal(cbor.Tag{Number: tagSignedMessage, Content: cbor.RawMessage(body)})
}

// Decode parses the tag-18 wire form into an Envelope, without verifying
// signatures (call Verify separately).
func Decode(b []byte) (Envelope, error) {
	var tag cbor.RawTag
	if err := codec.Unmarshal(b, &tag); err != nil {
		return Envelope{}, codeerr.DecodeError(err.Error())
	}
	if tag.Number != tagSignedMessage {
		return Envelope{}, codeerr.DecodeError(fmt.Sprintf("unexpected tag %d", tag.Number))
	}
	var msg wireMessage
	if err := codec.Unmarshal(tag.Content, &msg); err != nil {
		return Envelope{}, codeerr.DecodeError(err.Error())
	}
	var req requestWire
	if err := codec.Unmarshal(msg.Payload, &req); err != nil {
		return Envelope{}, codeerr.DecodeError(err.Error())
	}

	sigs := make([]Signature, 0, len(msg.Signatures))
	for _, e := range msg.Signatures {
		var ph protectedHeader
		if err := codec.Unmarshal(e.Protected, &ph); err != nil {
			return Envelope{}, codeerr.DecodeError(err.Error())
		}
		sig := Signature{Algorithm: ph.Algorithm, PublicKey: ph.PublicKey, Bytes: e.Signature}
		if len(e.Unprotected.AuthenticatorData) > 0 {
			sig.WebAuthn = &WebAuthnProof{
				AuthenticatorData: e.Unprotected.AuthenticatorData,
				ClientDataJSON:    e.Unprotected.ClientDataJSON,
			}
		}
		sigs = append(sigs, sig)
	}

	return Envelope{Request: req.fromWire(), Signatures: sigs}, nil
}
