// ABOUTME: Compact serialization: base64url segments, canonical payload and Decode
// ABOUTME: Decode validates every segment and reports the first one that fails

package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxTokenLength bounds the compact input accepted by Decode.
const MaxTokenLength = 64 << 10

var segmentEncoding = base64.RawURLEncoding.Strict()

// EncodeSegment returns the unpadded base64url encoding of data.
func EncodeSegment(data []byte) string {
	return segmentEncoding.EncodeToString(data)
}

// DecodeSegment reverses EncodeSegment. Padding and the standard alphabet are
// rejected.
func DecodeSegment(seg string) ([]byte, error) {
	return segmentEncoding.DecodeString(seg)
}

// CanonicalPayload returns b64(json(header)) + "." + b64(json(claims)), the
// input a signer authenticates.
func CanonicalPayload(h Header, c Claims) (string, error) {
	hb, err := h.MarshalJSON()
	if err != nil {
		return "", err
	}
	cb, err := c.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshaling claims: %w", err)
	}
	return EncodeSegment(hb) + "." + EncodeSegment(cb), nil
}

// Decode parses a compact token. It checks structure and JSON only; the
// signature is not verified. Surrounding whitespace is not trimmed.
func Decode(compact string) (*Token, error) {
	if len(compact) > MaxTokenLength {
		return nil, malformed(SegmentNone, fmt.Sprintf("longer than %d bytes", MaxTokenLength), nil)
	}
	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return nil, malformed(SegmentNone, fmt.Sprintf("expected 3 segments, got %d", len(parts)), nil)
	}
	for i, p := range parts {
		if p == "" {
			return nil, malformed(Segment(i), "empty", nil)
		}
	}

	hb, err := DecodeSegment(parts[0])
	if err != nil {
		return nil, malformed(SegmentHeader, "invalid base64url", err)
	}
	h, err := parseHeader(hb)
	if err != nil {
		return nil, malformed(SegmentHeader, "invalid JSON", err)
	}

	cb, err := DecodeSegment(parts[1])
	if err != nil {
		return nil, malformed(SegmentClaims, "invalid base64url", err)
	}
	c, err := parseClaims(cb)
	if err != nil {
		return nil, malformed(SegmentClaims, "invalid JSON", err)
	}

	sig, err := DecodeSegment(parts[2])
	if err != nil {
		return nil, malformed(SegmentSignature, "invalid base64url", err)
	}

	return &Token{header: h, claims: c, signature: sig, raw: parts}, nil
}

// DecodePayload parses a signing input "header.claims", the first two
// segments of a compact token. Nothing is verified.
func DecodePayload(payload string) (Header, Claims, error) {
	if len(payload) > MaxTokenLength {
		return Header{}, Claims{}, malformed(SegmentNone, fmt.Sprintf("longer than %d bytes", MaxTokenLength), nil)
	}
	hs, cs, ok := strings.Cut(payload, ".")
	if !ok || strings.Contains(cs, ".") {
		return Header{}, Claims{}, malformed(SegmentNone, "expected 2 segments", nil)
	}
	if hs == "" {
		return Header{}, Claims{}, malformed(SegmentHeader, "empty", nil)
	}
	if cs == "" {
		return Header{}, Claims{}, malformed(SegmentClaims, "empty", nil)
	}

	hb, err := DecodeSegment(hs)
	if err != nil {
		return Header{}, Claims{}, malformed(SegmentHeader, "invalid base64url", err)
	}
	h, err := parseHeader(hb)
	if err != nil {
		return Header{}, Claims{}, malformed(SegmentHeader, "invalid JSON", err)
	}
	cb, err := DecodeSegment(cs)
	if err != nil {
		return Header{}, Claims{}, malformed(SegmentClaims, "invalid base64url", err)
	}
	c, err := parseClaims(cb)
	if err != nil {
		return Header{}, Claims{}, malformed(SegmentClaims, "invalid JSON", err)
	}
	return h, c, nil
}

// marshalCompact is json.Marshal without HTML escaping.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
