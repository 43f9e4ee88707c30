// ABOUTME: HMAC signer and verifier bound to one algorithm and one shared secret
// ABOUTME: Verification recomputes over the received segments and compares in constant time

package signer

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/coven-jwt/internal/token"
)

// ErrEmptySecret is returned when a signer or verifier is built without key material.
var ErrEmptySecret = errors.New("secret must not be empty")

type key struct {
	alg    token.Algorithm
	secret []byte
}

func newKey(alg token.Algorithm, secret []byte) (key, error) {
	if !alg.Valid() {
		return key{}, fmt.Errorf("%w: %s", token.ErrUnsupportedAlgorithm, alg)
	}
	if len(secret) == 0 {
		return key{}, ErrEmptySecret
	}
	return key{alg: alg, secret: bytes.Clone(secret)}, nil
}

func (k key) checkAlgorithm(tok *token.Token) error {
	if got := tok.Header().Algorithm(); got != k.alg {
		return &token.AlgorithmMismatchError{Want: k.alg, Got: got}
	}
	return nil
}

// Signer produces compact tokens. It is safe for concurrent use.
type Signer struct {
	key key
}

// NewSigner returns a signer for alg. The secret is copied.
func NewSigner(alg token.Algorithm, secret []byte) (*Signer, error) {
	k, err := newKey(alg, secret)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	return &Signer{key: k}, nil
}

// Algorithm returns the algorithm this signer produces.
func (s *Signer) Algorithm() token.Algorithm { return s.key.alg }

// Sign returns payload + "." + b64(HMAC(secret, payload)) for an encoder-built
// token whose header names this signer's algorithm.
func (s *Signer) Sign(tok *token.Token) (string, error) {
	if tok.Signed() {
		return "", token.ErrAlreadySigned
	}
	if err := s.key.checkAlgorithm(tok); err != nil {
		return "", err
	}
	payload, err := token.CanonicalPayload(tok.Header(), tok.Claims())
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	sig, err := s.key.alg.Sum(s.key.secret, payload)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return payload + "." + token.EncodeSegment(sig), nil
}

// SignClaims builds a token with this signer's default header and signs it.
func (s *Signer) SignClaims(c token.Claims) (string, error) {
	h, err := token.NewHeader(s.key.alg)
	if err != nil {
		return "", err
	}
	tok, err := token.New(h, c)
	if err != nil {
		return "", err
	}
	return s.Sign(tok)
}

func (s *Signer) String() string { return fmt.Sprintf("Signer(%s, secret=REDACTED)", s.key.alg) }

// LogValue keeps the secret out of structured logs.
func (s *Signer) LogValue() slog.Value {
	return slog.GroupValue(slog.String("alg", s.key.alg.String()), slog.String("secret", "REDACTED"))
}

// Verifier checks signatures of decoded tokens. It is safe for concurrent use.
type Verifier struct {
	key key
}

// NewVerifier returns a verifier for alg. The secret is copied.
func NewVerifier(alg token.Algorithm, secret []byte) (*Verifier, error) {
	k, err := newKey(alg, secret)
	if err != nil {
		return nil, fmt.Errorf("creating verifier: %w", err)
	}
	return &Verifier{key: k}, nil
}

// Algorithm returns the algorithm this verifier accepts.
func (v *Verifier) Algorithm() token.Algorithm { return v.key.alg }

// Verify checks the signature of a decoder-built token against the exact
// header and claims segments it was decoded from.
func (v *Verifier) Verify(tok *token.Token) error {
	if !tok.Signed() {
		return &token.MissingSignatureError{}
	}
	if err := v.key.checkAlgorithm(tok); err != nil {
		return err
	}
	input, err := tok.SigningInput()
	if err != nil {
		return fmt.Errorf("verifying token: %w", err)
	}
	ok, err := v.key.alg.Verify(v.key.secret, input, tok.Signature())
	if err != nil {
		return fmt.Errorf("verifying token: %w", err)
	}
	if !ok {
		return &token.InvalidSignatureError{Algorithm: v.key.alg}
	}
	return nil
}

// DecodeAndVerify decodes compact and verifies its signature.
func (v *Verifier) DecodeAndVerify(compact string) (*token.Token, error) {
	tok, err := token.Decode(compact)
	if err != nil {
		return nil, err
	}
	if err := v.Verify(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (v *Verifier) String() string { return fmt.Sprintf("Verifier(%s, secret=REDACTED)", v.key.alg) }

// LogValue keeps the secret out of structured logs.
func (v *Verifier) LogValue() slog.Value {
	return slog.GroupValue(slog.String("alg", v.key.alg.String()), slog.String("secret", "REDACTED"))
}
