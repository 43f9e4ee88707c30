// Package token implements the compact bearer token format used by coven-jwt.
//
// # Wire Format
//
// A compact token is three base64url segments (padding omitted) joined by dots:
//
//	base64url(header) "." base64url(claims) "." base64url(signature)
//
// The header is always serialized as {"typ":"JWT","alg":"HS256"} with the keys
// in that order. Claims carry the registered keys iss, sub, iat, exp and nbf
// (integers are Unix seconds) followed by application-defined keys in sorted
// order.
//
// # Lifecycles
//
// A Token is either encoder-built or decoder-built:
//
//   - New(header, claims) creates an unsigned token for a Signer to sign.
//   - Decode(compact) parses an incoming token and keeps the three encoded
//     segments so a Verifier can recompute the signature over the exact bytes
//     that were received.
//
// Verification must never re-serialize a decoded token. JSON key order is not
// guaranteed to survive a round trip, so the signing input is always
// RawSegments()[0] + "." + RawSegments()[1].
//
// # Algorithms
//
// Algorithm is a closed enumeration of HS256, HS384 and HS512. Each value
// carries its digest size and HMAC construction:
//
//	alg, err := token.ParseAlgorithm("HS384")
//	sig, err := alg.Sum(secret, payload)
//	ok, err := alg.Verify(secret, payload, sig) // constant time
//
// # Errors
//
// Decode and the signing packages return typed errors that match the sentinel
// values with errors.Is:
//
//   - ErrMalformed (*MalformedTokenError): wrong segment count, bad base64, bad JSON
//   - ErrMissingSignature (*MissingSignatureError): verifying an unsigned token
//   - ErrInvalidSignature (*InvalidSignatureError): signature does not match
//   - ErrAlgorithmMismatch (*AlgorithmMismatchError): header names another algorithm
//   - ErrExpired (*TokenExpiredError): temporal claims rejected
//
// KindOf groups them into data, usage and policy failures.
package token
