// ABOUTME: Immutable token header holding the type and signing algorithm
// ABOUTME: Built through a validating builder; serialized as {"typ":...,"alg":...}

package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultType is the typ value written into every header built here.
const DefaultType = "JWT"

// Header is the first segment of a token. The zero value is invalid; use
// NewHeader, the HS256/HS384/HS512 shortcuts, or HeaderBuilder.
type Header struct {
	typ string
	alg Algorithm
}

// headerJSON fixes the key order of the serialized header.
type headerJSON struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// NewHeader returns a JWT header for alg.
func NewHeader(alg Algorithm) (Header, error) {
	return NewHeaderBuilder().Algorithm(alg).Build()
}

// HS256Header returns the header {"typ":"JWT","alg":"HS256"}.
func HS256Header() Header { return Header{typ: DefaultType, alg: HS256} }

// HS384Header returns the header {"typ":"JWT","alg":"HS384"}.
func HS384Header() Header { return Header{typ: DefaultType, alg: HS384} }

// HS512Header returns the header {"typ":"JWT","alg":"HS512"}.
func HS512Header() Header { return Header{typ: DefaultType, alg: HS512} }

// Type returns the typ header value.
func (h Header) Type() string { return h.typ }

// Algorithm returns the alg header value.
func (h Header) Algorithm() Algorithm { return h.alg }

// IsZero reports whether h was never built.
func (h Header) IsZero() bool { return h == Header{} }

// MarshalJSON writes the header with typ before alg.
func (h Header) MarshalJSON() ([]byte, error) {
	if h.IsZero() {
		return nil, errors.New("marshaling header: header was never built")
	}
	return marshalCompact(headerJSON{Type: h.typ, Algorithm: h.alg.String()})
}

func parseHeader(data []byte) (Header, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Header{}, err
	}
	if raw == nil {
		return Header{}, errors.New("header is not a JSON object")
	}

	var hj headerJSON
	if v, ok := raw["typ"]; ok {
		if err := json.Unmarshal(v, &hj.Type); err != nil {
			return Header{}, fmt.Errorf("typ: %w", err)
		}
	}
	if v, ok := raw["alg"]; ok {
		if err := json.Unmarshal(v, &hj.Algorithm); err != nil {
			return Header{}, fmt.Errorf("alg: %w", err)
		}
	}

	b := NewHeaderBuilder().Type(hj.Type)
	if strings.TrimSpace(hj.Algorithm) == "" {
		return Header{}, errors.New("alg is required")
	}
	alg, err := ParseAlgorithm(hj.Algorithm)
	if err != nil {
		return Header{}, err
	}
	return b.Algorithm(alg).Build()
}

// HeaderBuilder validates header fields before producing a Header.
type HeaderBuilder struct {
	typ string
	alg Algorithm
}

// NewHeaderBuilder starts a header with typ "JWT" and no algorithm.
func NewHeaderBuilder() *HeaderBuilder {
	return &HeaderBuilder{typ: DefaultType}
}

// Type sets the typ value.
func (b *HeaderBuilder) Type(typ string) *HeaderBuilder {
	b.typ = typ
	return b
}

// Algorithm sets the alg value.
func (b *HeaderBuilder) Algorithm(alg Algorithm) *HeaderBuilder {
	b.alg = alg
	return b
}

// Build returns the header or the first validation failure.
func (b *HeaderBuilder) Build() (Header, error) {
	if strings.TrimSpace(b.typ) == "" {
		return Header{}, errors.New("header typ must not be blank")
	}
	if !b.alg.Valid() {
		return Header{}, fmt.Errorf("header alg: %w: %s", ErrUnsupportedAlgorithm, b.alg)
	}
	return Header{typ: b.typ, alg: b.alg}, nil
}
