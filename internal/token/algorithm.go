// ABOUTME: Closed enumeration of the supported HMAC signing algorithms
// ABOUTME: Each algorithm carries its digest size and HMAC construction via golang-jwt

package token

import (
	"crypto"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm identifies one of the supported HMAC signing algorithms.
// The zero value is not a valid algorithm.
type Algorithm uint8

const (
	HS256 Algorithm = iota + 1
	HS384
	HS512
)

// ErrUnsupportedAlgorithm is returned when an algorithm name is not one of
// HS256, HS384 or HS512.
var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

var hmacMethods = map[Algorithm]*jwt.SigningMethodHMAC{
	HS256: jwt.SigningMethodHS256,
	HS384: jwt.SigningMethodHS384,
	HS512: jwt.SigningMethodHS512,
}

// Algorithms returns every supported algorithm, weakest first.
func Algorithms() []Algorithm {
	return []Algorithm{HS256, HS384, HS512}
}

// ParseAlgorithm maps a wire name such as "HS256" to an Algorithm.
// Matching is exact; "hs256" and " HS256" are rejected.
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, alg := range Algorithms() {
		if alg.String() == name {
			return alg, nil
		}
	}
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnsupportedAlgorithm)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
}

// Valid reports whether a is one of the supported algorithms.
func (a Algorithm) Valid() bool {
	_, ok := hmacMethods[a]
	return ok
}

// String returns the wire name of the algorithm.
func (a Algorithm) String() string {
	if m, ok := hmacMethods[a]; ok {
		return m.Alg()
	}
	return fmt.Sprintf("Algorithm(%d)", uint8(a))
}

// Hash returns the digest function backing the HMAC.
func (a Algorithm) Hash() crypto.Hash {
	if m, ok := hmacMethods[a]; ok {
		return m.Hash
	}
	return 0
}

// Size returns the signature length in bytes.
func (a Algorithm) Size() int {
	if !a.Valid() {
		return 0
	}
	return a.Hash().Size()
}

// Sum computes HMAC(key, payload).
func (a Algorithm) Sum(key []byte, payload string) ([]byte, error) {
	m, ok := hmacMethods[a]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, a)
	}
	sig, err := m.Sign(payload, key)
	if err != nil {
		return nil, fmt.Errorf("computing %s: %w", a, err)
	}
	return sig, nil
}

// Verify reports whether sig equals HMAC(key, payload). The comparison runs in
// constant time with respect to the expected signature; a length mismatch
// returns false without error.
func (a Algorithm) Verify(key []byte, payload string, sig []byte) (bool, error) {
	m, ok := hmacMethods[a]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, a)
	}
	err := m.Verify(payload, sig, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return false, nil
	default:
		return false, fmt.Errorf("verifying %s: %w", a, err)
	}
}
