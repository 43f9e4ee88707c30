// ABOUTME: Token value pairing a header and claims with an optional signature
// ABOUTME: Decoder-built tokens keep their raw segments so verification never re-serializes

package token

import (
	"bytes"
	"errors"
	"slices"
	"strings"
)

// Token is an immutable header and claim set. An encoder-built token (from
// New) has no signature and no raw segments; a decoder-built token (from
// Decode) has both.
type Token struct {
	header    Header
	claims    Claims
	signature []byte
	raw       []string
}

// New returns an unsigned token ready for a signer.
func New(h Header, c Claims) (*Token, error) {
	if h.IsZero() {
		return nil, errors.New("creating token: header was never built")
	}
	return &Token{header: h, claims: c}, nil
}

// Header returns the token header.
func (t *Token) Header() Header { return t.header }

// Claims returns the token claims.
func (t *Token) Claims() Claims { return t.claims }

// Signed reports whether the token came from Decode and carries a signature.
func (t *Token) Signed() bool { return t.raw != nil }

// Signature returns a copy of the decoded signature bytes, or nil for an
// encoder-built token.
func (t *Token) Signature() []byte {
	if t.signature == nil {
		return nil
	}
	return bytes.Clone(t.signature)
}

// RawSegments returns the three encoded segments exactly as received, or nil
// for an encoder-built token.
func (t *Token) RawSegments() []string {
	if t.raw == nil {
		return nil
	}
	return []string{t.raw[0], t.raw[1], t.raw[2]}
}

// SigningInput returns the bytes the signature covers. For a decoded token
// this is the received header and claims segments; otherwise the canonical
// serialization.
func (t *Token) SigningInput() (string, error) {
	if t.raw != nil {
		return t.raw[0] + "." + t.raw[1], nil
	}
	return CanonicalPayload(t.header, t.claims)
}

// Compact returns the original compact string of a decoded token, or "" for an
// encoder-built token.
func (t *Token) Compact() string {
	if t.raw == nil {
		return ""
	}
	return strings.Join(t.raw, ".")
}

// Equal reports structural equality: header, claims, signature bytes and raw
// segments. Two decoded tokens whose segments differ in encoding are not
// equal even when they parse to the same header and claims.
func (t *Token) Equal(o *Token) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.header == o.header &&
		t.claims.Equal(o.claims) &&
		bytes.Equal(t.signature, o.signature) &&
		t.Signed() == o.Signed() &&
		slices.Equal(t.raw, o.raw)
}
