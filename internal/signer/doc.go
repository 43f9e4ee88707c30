// Package signer signs and verifies compact tokens with a shared HMAC secret.
//
// A Signer turns an encoder-built token into its compact string:
//
//	s, err := signer.NewSigner(token.HS256, secret)
//	compact, err := s.Sign(tok)
//
// A Verifier checks a decoder-built token against the bytes that were
// received, comparing signatures in constant time:
//
//	v, err := signer.NewVerifier(token.HS256, secret)
//	err = v.Verify(decoded)
//
// Both refuse tokens whose header names a different algorithm than the one
// they were built for. Secrets are copied at construction and redacted from
// String and slog output.
package signer
