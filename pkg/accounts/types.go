// Package accounts implements the account and multisig module described by
// spec §4.6: multi-principal addresses with a role map and a closed set of
// enabled features, and the multisig transaction lifecycle those features
// expose.
package accounts

import (
	"time"

	"github.com/tokenledger/chain/pkg/address"
)

// Role names the closed set of permissions an account can grant its
// members, per spec §3.
type Role string

const (
	RoleOwner                       Role = "owner"
	RoleCanMultisigSubmit           Role = "canMultisigSubmit"
	RoleCanMultisigApprove          Role = "canMultisigApprove"
	RoleCanLedgerTransact           Role = "canLedgerTransact"
	RoleCanKvStorePut               Role = "canKvStorePut"
	RoleCanKvStoreDisable           Role = "canKvStoreDisable"
	RoleCanTokensCreate             Role = "canTokensCreate"
	RoleCanTokensUpdate             Role = "canTokensUpdate"
	RoleCanTokensAddExtendedInfo    Role = "canTokensAddExtendedInfo"
	RoleCanTokensRemoveExtendedInfo Role = "canTokensRemoveExtendedInfo"
	RoleCanTokensMint               Role = "canTokensMint"
	RoleCanTokensBurn               Role = "canTokensBurn"
)

// validRoles is used to reject addRoles calls naming an unrecognized role,
// keeping the role set genuinely closed rather than just documented.
var validRoles = map[Role]bool{
	RoleOwner: true, RoleCanMultisigSubmit: true, RoleCanMultisigApprove: true,
	RoleCanLedgerTransact: true, RoleCanKvStorePut: true, RoleCanKvStoreDisable: true,
	RoleCanTokensCreate: true, RoleCanTokensUpdate: true, RoleCanTokensAddExtendedInfo: true,
	RoleCanTokensRemoveExtendedInfo: true, RoleCanTokensMint: true, RoleCanTokensBurn: true,
}

// Feature names the closed set of optional sub-modules an account can
// enable, per spec §3.
type Feature string

const (
	FeatureMultisig Feature = "multisig"
	FeatureLedger   Feature = "ledger"
	FeatureKvstore  Feature = "kvstore"
)

var validFeatures = map[Feature]bool{FeatureMultisig: true, FeatureLedger: true, FeatureKvstore: true}

// RoleEntry grants holder the listed roles on an account; stored as a
// slice rather than a map keyed by address so CBOR encoding stays
// deterministic under the canonical codec without relying on map-key
// ordering of a non-primitive key type.
type RoleEntry struct {
	Holder address.Address `cbor:"0,keyasint"`
	Roles  []Role          `cbor:"1,keyasint"`
}

// MultisigDefaults is the account's multisig feature configuration.
type MultisigDefaults struct {
	Threshold            uint32 `cbor:"0,keyasint"`
	ExpireInSeconds       uint64 `cbor:"1,keyasint"`
	ExecuteAutomatically  bool   `cbor:"2,keyasint"`
}

// Account is a multi-principal address with a role map and enabled
// features, per spec §3.
type Account struct {
	Address     address.Address  `cbor:"0,keyasint"`
	Description string           `cbor:"1,keyasint"`
	Roles       []RoleEntry      `cbor:"2,keyasint"`
	Features    []Feature        `cbor:"3,keyasint"`
	Multisig    MultisigDefaults `cbor:"4,keyasint"`
	Disabled    bool             `cbor:"5,keyasint"`
}

// HasFeature reports whether feature is enabled on the account.
func (a Account) HasFeature(f Feature) bool {
	for _, have := range a.Features {
		if have == f {
			return true
		}
	}
	return false
}

// HasRole reports whether holder has role on the account.
func (a Account) HasRole(holder address.Address, role Role) bool {
	for _, re := range a.Roles {
		if re.Holder.Equal(holder) {
			for _, r := range re.Roles {
				if r == role {
					return true
				}
			}
			return false
		}
	}
	return false
}

// TxState is the lifecycle state of a multisig transaction, per spec §3.
type TxState string

const (
	TxPending   TxState = "pending"
	TxExecuted  TxState = "executed"
	TxWithdrawn TxState = "withdrawn"
	TxExpired   TxState = "expired"
)

// ApprovalState is one approver's current stance on a multisig transaction.
type ApprovalState string

const (
	Approved ApprovalState = "approved"
	Revoked  ApprovalState = "revoked"
)

// ApproverEntry records one principal's current approval stance.
type ApproverEntry struct {
	Holder address.Address `cbor:"0,keyasint"`
	State  ApprovalState   `cbor:"1,keyasint"`
}

// MultisigTx is a deferred inner request awaiting threshold approval on an
// account, per spec §3.
type MultisigTx struct {
	Token       []byte          `cbor:"0,keyasint"` // opaque, content-addressed by (account, submitter, submit-time, counter)
	Submitter   address.Address `cbor:"1,keyasint"`
	Account     address.Address `cbor:"2,keyasint"`
	InnerEnvelope []byte        `cbor:"3,keyasint"` // encoded nested envelope payload to execute on approval
	Threshold   uint32          `cbor:"4,keyasint"`
	Approvers   []ApproverEntry `cbor:"5,keyasint"`
	State       TxState         `cbor:"6,keyasint"`
	SubmitTime  time.Time       `cbor:"7,keyasint"`
	ExpireTime  time.Time       `cbor:"8,keyasint"`
	Memo        string          `cbor:"9,keyasint,omitempty"`
	DataHash    []byte          `cbor:"10,keyasint,omitempty"`
	ExecuteAutomatically bool   `cbor:"11,keyasint"`
}

// ApprovalCount returns the number of principals currently in the Approved
// state (a revoke removes the principal from this count entirely, per
// spec §4.6's multisigRevoke semantics).
func (t MultisigTx) ApprovalCount() int {
	n := 0
	for _, a := range t.Approvers {
		if a.State == Approved {
			n++
		}
	}
	return n
}
