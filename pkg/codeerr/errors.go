// Package codeerr implements the structured error model described by the
// protocol: a numeric code, a message template, and a substitution argument
// map, matching the shape the wire response envelope carries back to clients.
package codeerr

import (
	"sort"
	"strings"
)

// Kind groups codes into the families the protocol distinguishes when
// deciding how an error propagates (see propagation policy).
type Kind int

const (
	KindProtocol Kind = iota
	KindAuth
	KindDomain
	KindFatal
)

// Code identifies a specific structured error. Protocol-level codes are
// negative; module codes are positive, matching the wire convention.
type Code int32

const (
	CodeInvalidSignature             Code = -1
	CodeInvalidIdentityAnonymous     Code = -2
	CodeTimestampOutOfRange          Code = -3
	CodeDuplicateMessage             Code = -4
	CodeUnknownEndpoint              Code = -5
	CodeWebauthnRequired             Code = -6
	CodeDecodeError                  Code = -7
	CodeUnknownAlgorithm             Code = -8
	CodePublicKeyMismatch            Code = -9
	CodeUnauthorized                 Code = 1
	CodeMissingPermission            Code = 2
	CodeImmutableToken               Code = 3
	CodeUnknownSymbol                Code = 4
	CodeInsufficientFunds            Code = 5
	CodeAmountIsZero                 Code = 6
	CodeMaxSupplyExceeded            Code = 7
	CodeExtInfoNotFound              Code = 8
	CodeTransactionNotFound          Code = 9
	CodeCannotExecuteYet             Code = 10
	CodeEmptyKey                     Code = 11
	CodeDisabledKey                  Code = 12
	CodeUnknownAccount               Code = 13
	CodeMissingMigration             Code = 14
	CodeUnsupportedMigrationType     Code = 15
)

// Error is the structured error carried by response envelopes.
type Error struct {
	Code     Code
	Kind     Kind
	Template string
	Args     map[string]string
}

func (e *Error) Error() string {
	if len(e.Args) == 0 {
		return e.Template
	}
	keys := make([]string, 0, len(e.Args))
	for k := range e.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msg := e.Template
	for _, k := range keys {
		msg = strings.ReplaceAll(msg, "{"+k+"}", e.Args[k])
	}
	return msg
}

func newErr(code Code, kind Kind, template string, args map[string]string) *Error {
	return &Error{Code: code, Kind: kind, Template: template, Args: args}
}

func InvalidSignature() *Error {
	return newErr(CodeInvalidSignature, KindProtocol, "invalid signature", nil)
}

func UnknownAlgorithm(alg string) *Error {
	return newErr(CodeUnknownAlgorithm, KindProtocol, "unknown signature algorithm {alg}", map[string]string{"alg": alg})
}

func PublicKeyMismatch() *Error {
	return newErr(CodePublicKeyMismatch, KindProtocol, "signer address does not match embedded public key", nil)
}

func InvalidIdentityCannotBeAnonymous() *Error {
	return newErr(CodeInvalidIdentityAnonymous, KindProtocol, "invalid identity: cannot be anonymous", nil)
}

func TimestampOutOfRange() *Error {
	return newErr(CodeTimestampOutOfRange, KindProtocol, "timestamp out of range", nil)
}

func DuplicateMessage() *Error {
	return newErr(CodeDuplicateMessage, KindProtocol, "duplicate message", nil)
}

func UnknownEndpoint(name string) *Error {
	return newErr(CodeUnknownEndpoint, KindProtocol, "unknown endpoint {endpoint}", map[string]string{"endpoint": name})
}

func WebauthnRequired() *Error {
	return newErr(CodeWebauthnRequired, KindProtocol, "endpoint requires webauthn signing", nil)
}

func DecodeError(reason string) *Error {
	return newErr(CodeDecodeError, KindProtocol, "decode error: {reason}", map[string]string{"reason": reason})
}

func Unauthorized() *Error {
	return newErr(CodeUnauthorized, KindAuth, "unauthorized", nil)
}

func MissingPermission(role string) *Error {
	return newErr(CodeMissingPermission, KindAuth, "missing permission {role}", map[string]string{"role": role})
}

func ImmutableToken(symbol string) *Error {
	return newErr(CodeImmutableToken, KindAuth, "token {symbol} is immutable", map[string]string{"symbol": symbol})
}

func UnknownSymbol(symbol string) *Error {
	return newErr(CodeUnknownSymbol, KindDomain, "unknown symbol {symbol}", map[string]string{"symbol": symbol})
}

func InsufficientFunds() *Error {
	return newErr(CodeInsufficientFunds, KindDomain, "insufficient funds", nil)
}

func AmountIsZero() *Error {
	return newErr(CodeAmountIsZero, KindDomain, "amount is zero", nil)
}

func MaxSupplyExceeded(symbol string) *Error {
	return newErr(CodeMaxSupplyExceeded, KindDomain, "max supply exceeded for {symbol}", map[string]string{"symbol": symbol})
}

func ExtInfoNotFound() *Error {
	return newErr(CodeExtInfoNotFound, KindDomain, "extended info entry not found", nil)
}

func TransactionNotFound(token string) *Error {
	return newErr(CodeTransactionNotFound, KindDomain, "multisig transaction {token} not found", map[string]string{"token": token})
}

func CannotExecuteYet() *Error {
	return newErr(CodeCannotExecuteYet, KindDomain, "cannot execute yet: threshold not met", nil)
}

func EmptyKey() *Error {
	return newErr(CodeEmptyKey, KindDomain, "key must not be empty", nil)
}

func DisabledKeyError(reason string) *Error {
	args := map[string]string{}
	if reason != "" {
		args["reason"] = reason
	}
	return newErr(CodeDisabledKey, KindDomain, "key is disabled: {reason}", args)
}

func UnknownAccount(addr string) *Error {
	return newErr(CodeUnknownAccount, KindDomain, "unknown account {address}", map[string]string{"address": addr})
}

func MissingMigration(name string) *Error {
	return newErr(CodeMissingMigration, KindFatal, "migration configuration file is missing migration(s): {name}", map[string]string{"name": name})
}

func UnsupportedMigrationType(name string) *Error {
	return newErr(CodeUnsupportedMigrationType, KindFatal, "unsupported migration type: {name}", map[string]string{"name": name})
}

// Wrap lifts an arbitrary error into an internal, non-structured decode
// error, used at the boundary where CBOR/IO failures are first observed.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok {
		return se
	}
	return DecodeError(err.Error())
}
