// ABOUTME: Error taxonomy for decoding, signing, verifying and validating tokens
// ABOUTME: Typed errors match sentinels via errors.Is and never carry key material

package token

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below matches exactly one of these.
var (
	ErrMalformed         = errors.New("malformed token")
	ErrMissingSignature  = errors.New("token has no signature")
	ErrInvalidSignature  = errors.New("invalid token signature")
	ErrAlgorithmMismatch = errors.New("token algorithm mismatch")
	ErrAlreadySigned     = errors.New("token is already signed")
	ErrExpired           = errors.New("token expired")
)

// Segment names one of the three parts of a compact token.
type Segment int

const (
	SegmentNone      Segment = -1
	SegmentHeader    Segment = 0
	SegmentClaims    Segment = 1
	SegmentSignature Segment = 2
)

func (s Segment) String() string {
	switch s {
	case SegmentHeader:
		return "header"
	case SegmentClaims:
		return "claims"
	case SegmentSignature:
		return "signature"
	default:
		return "token"
	}
}

// MalformedTokenError reports input that is not a well-formed compact token.
type MalformedTokenError struct {
	Segment Segment
	Reason  string
	Err     error
}

func (e *MalformedTokenError) Error() string {
	msg := fmt.Sprintf("malformed token: %s segment: %s", e.Segment, e.Reason)
	if e.Segment == SegmentNone {
		msg = "malformed token: " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedTokenError) Is(target error) bool { return target == ErrMalformed }

func (e *MalformedTokenError) Unwrap() error { return e.Err }

func malformed(seg Segment, reason string, err error) error {
	return &MalformedTokenError{Segment: seg, Reason: reason, Err: err}
}

// MissingSignatureError reports an attempt to verify an encoder-built token.
type MissingSignatureError struct{}

func (e *MissingSignatureError) Error() string {
	return "cannot verify a token that was never signed"
}

func (e *MissingSignatureError) Is(target error) bool { return target == ErrMissingSignature }

// InvalidSignatureError reports a signature that does not match the payload.
type InvalidSignatureError struct {
	Algorithm Algorithm
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid %s signature", e.Algorithm)
}

func (e *InvalidSignatureError) Is(target error) bool { return target == ErrInvalidSignature }

// AlgorithmMismatchError reports a token whose header names a different
// algorithm than the signer or verifier handling it.
type AlgorithmMismatchError struct {
	Want Algorithm
	Got  Algorithm
}

func (e *AlgorithmMismatchError) Error() string {
	return fmt.Sprintf("cannot handle a %s token with a %s key", e.Got, e.Want)
}

func (e *AlgorithmMismatchError) Is(target error) bool { return target == ErrAlgorithmMismatch }

// ExpiryReason explains why temporal claims were rejected.
type ExpiryReason int

const (
	ReasonExpired ExpiryReason = iota + 1
	ReasonNotYetValid
	ReasonIssuedInFuture
	ReasonInvalidOrdering
)

func (r ExpiryReason) String() string {
	switch r {
	case ReasonExpired:
		return "expired"
	case ReasonNotYetValid:
		return "not yet valid"
	case ReasonIssuedInFuture:
		return "issued in the future"
	case ReasonInvalidOrdering:
		return "issued after expiration"
	default:
		return "invalid validity window"
	}
}

// TokenExpiredError reports claims whose validity window does not cover now.
type TokenExpiredError struct {
	Reason ExpiryReason
}

func (e *TokenExpiredError) Error() string {
	return "token rejected: " + e.Reason.String()
}

func (e *TokenExpiredError) Is(target error) bool { return target == ErrExpired }

// Kind groups errors by who is at fault.
type Kind int

const (
	// KindUnknown covers errors that did not come from this package.
	KindUnknown Kind = iota
	// KindData is malformed or tampered input.
	KindData
	// KindUsage is a programming error such as verifying an unsigned token.
	KindUsage
	// KindPolicy is a well-formed, authentic token rejected by policy.
	KindPolicy
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindUsage:
		return "usage"
	case KindPolicy:
		return "policy"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Wrapped errors are unwrapped.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrInvalidSignature):
		return KindData
	case errors.Is(err, ErrMissingSignature), errors.Is(err, ErrAlgorithmMismatch), errors.Is(err, ErrAlreadySigned):
		return KindUsage
	case errors.Is(err, ErrExpired):
		return KindPolicy
	default:
		return KindUnknown
	}
}
