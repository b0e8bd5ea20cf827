package oidckit

import (
	"errors"
	"fmt"
)

// Kind classifies verification and discovery failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindIssuerMismatch: the discovery document asserts a different issuer.
	KindIssuerMismatch
	// KindMalformedURL: the issuer or an endpoint is not an absolute URL.
	KindMalformedURL
	// KindTransport: the HTTP call failed or returned a non-2xx status.
	KindTransport
	// KindDecode: a response body is not the expected JSON document.
	KindDecode
	// KindNoRemoteKeys: the issuer publishes no keys.
	KindNoRemoteKeys
	// KindInvalidRemoteKeys: the selected key is not an RSA key.
	KindInvalidRemoteKeys
	// KindInvalidToken: signature or claim validation failed.
	KindInvalidToken
)

func (k Kind) String() string {
	switch k {
	case KindIssuerMismatch:
		return "issuer_mismatch"
	case KindMalformedURL:
		return "malformed_url"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindNoRemoteKeys:
		return "no_remote_keys"
	case KindInvalidRemoteKeys:
		return "invalid_remote_keys"
	case KindInvalidToken:
		return "invalid_token"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by this package.
type Error struct {
	Kind Kind
	// Op is the operation that failed (discover, jwks, verify).
	Op string
	// Field names the discovery field for KindMalformedURL.
	Field string
	// Claim names the failed claim for KindInvalidToken.
	Claim string
	Err   error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrIssuerMismatch    = &Error{Kind: KindIssuerMismatch}
	ErrMalformedURL      = &Error{Kind: KindMalformedURL}
	ErrTransport         = &Error{Kind: KindTransport}
	ErrDecode            = &Error{Kind: KindDecode}
	ErrNoRemoteKeys      = &Error{Kind: KindNoRemoteKeys}
	ErrInvalidRemoteKeys = &Error{Kind: KindInvalidRemoteKeys}
	ErrInvalidToken      = &Error{Kind: KindInvalidToken}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindIssuerMismatch:
		return "oidc: mismatching issuer"
	case KindNoRemoteKeys:
		return "oidc: remote keys missing"
	case KindInvalidRemoteKeys:
		return "oidc: invalid remote keys"
	case KindInvalidToken:
		if e.Claim != "" {
			return fmt.Sprintf("oidc: invalid token: %s", e.Claim)
		}
		return "oidc: invalid token"
	case KindMalformedURL:
		if e.Field != "" {
			return fmt.Sprintf("oidc: malformed url in %s: %v", e.Field, e.Err)
		}
	}
	if e.Err != nil {
		return fmt.Sprintf("oidc: %s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("oidc: %s %s", e.Op, e.Kind)
}

// Unwrap exposes the cause, except for invalid tokens whose cause is only logged.
func (e *Error) Unwrap() error {
	if e.Kind == KindInvalidToken {
		return nil
	}
	return e.Err
}

// Is reports kind equality against another *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether repeating the whole operation may succeed.
func Retryable(err error) bool {
	return KindOf(err) == KindTransport
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func invalidToken(claim string) *Error {
	return &Error{Kind: KindInvalidToken, Op: "verify", Claim: claim}
}
