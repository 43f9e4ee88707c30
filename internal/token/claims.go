// ABOUTME: Immutable claim set with typed registered claims and an open extra map
// ABOUTME: Registered and extra keys serialize into one JSON object and split on parse

package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Registered claim names.
const (
	ClaimIssuer     = "iss"
	ClaimSubject    = "sub"
	ClaimIssuedAt   = "iat"
	ClaimExpiration = "exp"
	ClaimNotBefore  = "nbf"
)

var registeredClaims = []string{ClaimIssuer, ClaimSubject, ClaimIssuedAt, ClaimExpiration, ClaimNotBefore}

// IsRegistered reports whether name is one of the typed claims.
func IsRegistered(name string) bool {
	return slices.Contains(registeredClaims, name)
}

// Claims is the second segment of a token. Every registered claim is optional;
// an absent claim is "not asserted", which is different from zero.
// Claims values are immutable and safe to share between goroutines.
type Claims struct {
	issuer     *string
	subject    *string
	issuedAt   *int64
	expiration *int64
	notBefore  *int64
	extra      map[string]any
}

// Issuer returns the iss claim.
func (c Claims) Issuer() (string, bool) { return derefString(c.issuer) }

// Subject returns the sub claim.
func (c Claims) Subject() (string, bool) { return derefString(c.subject) }

// IssuedAt returns the iat claim in Unix seconds.
func (c Claims) IssuedAt() (int64, bool) { return derefInt(c.issuedAt) }

// Expiration returns the exp claim in Unix seconds.
func (c Claims) Expiration() (int64, bool) { return derefInt(c.expiration) }

// NotBefore returns the nbf claim in Unix seconds.
func (c Claims) NotBefore() (int64, bool) { return derefInt(c.notBefore) }

// IssuedAtTime returns the iat claim as a time.
func (c Claims) IssuedAtTime() (time.Time, bool) { return unixTime(c.issuedAt) }

// ExpirationTime returns the exp claim as a time.
func (c Claims) ExpirationTime() (time.Time, bool) { return unixTime(c.expiration) }

// NotBeforeTime returns the nbf claim as a time.
func (c Claims) NotBeforeTime() (time.Time, bool) { return unixTime(c.notBefore) }

// Get returns an application-defined claim. Numbers are json.Number.
func (c Claims) Get(key string) (any, bool) {
	v, ok := c.extra[key]
	return v, ok
}

// GetString returns an application-defined claim if it is a string.
func (c Claims) GetString(key string) (string, bool) {
	v, ok := c.extra[key].(string)
	return v, ok
}

// Keys returns the application-defined claim names in sorted order.
func (c Claims) Keys() []string {
	return slices.Sorted(maps.Keys(c.extra))
}

// Extra returns a copy of the application-defined claims.
func (c Claims) Extra() map[string]any {
	return maps.Clone(c.extra)
}

// IsEmpty reports whether no claim at all is asserted.
func (c Claims) IsEmpty() bool {
	return c.issuer == nil && c.subject == nil && c.issuedAt == nil &&
		c.expiration == nil && c.notBefore == nil && len(c.extra) == 0
}

// Equal reports structural equality.
func (c Claims) Equal(o Claims) bool {
	return ptrEqual(c.issuer, o.issuer) &&
		ptrEqual(c.subject, o.subject) &&
		ptrEqual(c.issuedAt, o.issuedAt) &&
		ptrEqual(c.expiration, o.expiration) &&
		ptrEqual(c.notBefore, o.notBefore) &&
		extraEqual(c.extra, o.extra)
}

// MarshalJSON writes registered claims in the order iss, sub, iat, exp, nbf,
// then application claims sorted by key.
func (c Claims) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		val, err := marshalCompact(v)
		if err != nil {
			return fmt.Errorf("claim %q: %w", key, err)
		}
		k, _ := marshalCompact(key)
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	for _, name := range registeredClaims {
		var v any
		switch name {
		case ClaimIssuer:
			v = ptrValue(c.issuer)
		case ClaimSubject:
			v = ptrValue(c.subject)
		case ClaimIssuedAt:
			v = ptrValue(c.issuedAt)
		case ClaimExpiration:
			v = ptrValue(c.expiration)
		case ClaimNotBefore:
			v = ptrValue(c.notBefore)
		}
		if v == nil {
			continue
		}
		if err := write(name, v); err != nil {
			return nil, err
		}
	}
	for _, key := range c.Keys() {
		if err := write(key, c.extra[key]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func parseClaims(data []byte) (Claims, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Claims{}, err
	}
	if raw == nil {
		return Claims{}, errors.New("claims are not a JSON object")
	}

	var c Claims
	var err error
	for key, value := range raw {
		if isNull(value) && IsRegistered(key) {
			continue
		}
		switch key {
		case ClaimIssuer:
			c.issuer, err = parseStringClaim(key, value)
		case ClaimSubject:
			c.subject, err = parseStringClaim(key, value)
		case ClaimIssuedAt:
			c.issuedAt, err = parseNumericDate(key, value)
		case ClaimExpiration:
			c.expiration, err = parseNumericDate(key, value)
		case ClaimNotBefore:
			c.notBefore, err = parseNumericDate(key, value)
		default:
			var v any
			v, err = decodeValue(value)
			if err == nil {
				if c.extra == nil {
					c.extra = make(map[string]any)
				}
				c.extra[key] = v
			}
		}
		if err != nil {
			return Claims{}, err
		}
	}
	return c, nil
}

func parseStringClaim(key string, value json.RawMessage) (*string, error) {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, fmt.Errorf("%s must be a string", key)
	}
	return &s, nil
}

// parseNumericDate accepts JSON integers, and floats with no fractional part
// such as 1.7e9, which some issuers emit.
func parseNumericDate(key string, value json.RawMessage) (*int64, error) {
	v, err := decodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	n, ok := v.(json.Number)
	if !ok {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	if i, err := n.Int64(); err == nil {
		return &i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%s must be an integer number of seconds", key)
	}
	i := int64(f)
	return &i, nil
}

// ClaimsBuilder validates claims before producing an immutable Claims.
type ClaimsBuilder struct {
	c   Claims
	err error
}

// NewClaims starts an empty claim set.
func NewClaims() *ClaimsBuilder {
	return &ClaimsBuilder{}
}

func (b *ClaimsBuilder) fail(err error) *ClaimsBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Issuer sets iss. Blank values are rejected.
func (b *ClaimsBuilder) Issuer(iss string) *ClaimsBuilder {
	if strings.TrimSpace(iss) == "" {
		return b.fail(errors.New("issuer must not be blank"))
	}
	b.c.issuer = &iss
	return b
}

// Subject sets sub. Blank values are rejected.
func (b *ClaimsBuilder) Subject(sub string) *ClaimsBuilder {
	if strings.TrimSpace(sub) == "" {
		return b.fail(errors.New("subject must not be blank"))
	}
	b.c.subject = &sub
	return b
}

// IssuedAt sets iat, truncated to whole seconds.
func (b *ClaimsBuilder) IssuedAt(t time.Time) *ClaimsBuilder {
	b.c.issuedAt = unixPtr(t)
	return b
}

// Expiration sets exp, truncated to whole seconds.
func (b *ClaimsBuilder) Expiration(t time.Time) *ClaimsBuilder {
	b.c.expiration = unixPtr(t)
	return b
}

// NotBefore sets nbf, truncated to whole seconds.
func (b *ClaimsBuilder) NotBefore(t time.Time) *ClaimsBuilder {
	b.c.notBefore = unixPtr(t)
	return b
}

// Set adds an application-defined claim. The key must not be blank or one of
// the registered names, and the value must not be nil.
func (b *ClaimsBuilder) Set(key string, value any) *ClaimsBuilder {
	switch {
	case strings.TrimSpace(key) == "":
		return b.fail(errors.New("claim name must not be blank"))
	case IsRegistered(key):
		return b.fail(fmt.Errorf("claim %q is registered; use its typed setter", key))
	case value == nil:
		return b.fail(fmt.Errorf("claim %q must not be nil", key))
	}
	if b.c.extra == nil {
		b.c.extra = make(map[string]any)
	}
	b.c.extra[key] = value
	return b
}

// Build returns the claims or the first validation failure. Application
// values are normalized through JSON so that built and decoded claims compare
// equal; values that cannot be serialized are rejected.
func (b *ClaimsBuilder) Build() (Claims, error) {
	if b.err != nil {
		return Claims{}, b.err
	}
	c := b.c
	if len(b.c.extra) > 0 {
		c.extra = make(map[string]any, len(b.c.extra))
		for k, v := range b.c.extra {
			data, err := marshalCompact(v)
			if err != nil {
				return Claims{}, fmt.Errorf("claim %q: %w", k, err)
			}
			norm, err := decodeValue(data)
			if err != nil {
				return Claims{}, fmt.Errorf("claim %q: %w", k, err)
			}
			c.extra[k] = norm
		}
	}
	return c, nil
}

func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(data json.RawMessage) bool {
	return string(bytes.TrimSpace(data)) == "null"
}

func derefString(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}

func derefInt(p *int64) (int64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func unixTime(p *int64) (time.Time, bool) {
	if p == nil {
		return time.Time{}, false
	}
	return time.Unix(*p, 0), true
}

func unixPtr(t time.Time) *int64 {
	s := t.Unix()
	return &s
}

func ptrValue[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func extraEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}
