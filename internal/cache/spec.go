// ABOUTME: Parser for comma-separated cache spec strings such as "maximumSize=500,expireAfterWrite=10m"
// ABOUTME: Produces the Spec shared by the memory and Redis stores

package cache

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unbounded disables the size limit.
const Unbounded = -1

// ErrInvalidSpec is returned for spec strings that cannot be parsed.
var ErrInvalidSpec = errors.New("invalid cache spec")

// Spec bounds a store. A zero ExpireAfterWrite or ExpireAfterAccess disables
// that expiry. MaximumSize of 0 caches nothing; Unbounded means no limit.
type Spec struct {
	MaximumSize       int64
	ExpireAfterWrite  time.Duration
	ExpireAfterAccess time.Duration
	InitialCapacity   int
	// RecordStats is kept so existing spec strings parse and round-trip.
	// It changes nothing: the resolver always records statistics.
	RecordStats bool
}

// DefaultSpec is an unbounded store without expiry.
func DefaultSpec() Spec {
	return Spec{MaximumSize: Unbounded}
}

// Enabled reports whether anything will be stored at all.
func (s Spec) Enabled() bool { return s.MaximumSize != 0 }

// TTL returns the shortest configured expiry, or 0 for none.
func (s Spec) TTL() time.Duration {
	switch {
	case s.ExpireAfterWrite == 0:
		return s.ExpireAfterAccess
	case s.ExpireAfterAccess == 0:
		return s.ExpireAfterWrite
	default:
		return min(s.ExpireAfterWrite, s.ExpireAfterAccess)
	}
}

// String renders s in the syntax ParseSpec accepts.
func (s Spec) String() string {
	var parts []string
	if s.InitialCapacity > 0 {
		parts = append(parts, "initialCapacity="+strconv.Itoa(s.InitialCapacity))
	}
	if s.MaximumSize != Unbounded {
		parts = append(parts, "maximumSize="+strconv.FormatInt(s.MaximumSize, 10))
	}
	if s.ExpireAfterWrite > 0 {
		parts = append(parts, "expireAfterWrite="+s.ExpireAfterWrite.String())
	}
	if s.ExpireAfterAccess > 0 {
		parts = append(parts, "expireAfterAccess="+s.ExpireAfterAccess.String())
	}
	if s.RecordStats {
		parts = append(parts, "recordStats")
	}
	return strings.Join(parts, ",")
}

// ParseSpec parses a spec string. An empty string yields DefaultSpec.
// Each key may appear once.
func ParseSpec(text string) (Spec, error) {
	spec := DefaultSpec()
	seen := make(map[string]bool)

	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if seen[key] {
			return Spec{}, fmt.Errorf("%w: %s was already set", ErrInvalidSpec, key)
		}
		seen[key] = true

		if key == "recordStats" {
			if hasValue {
				return Spec{}, fmt.Errorf("%w: recordStats does not take a value", ErrInvalidSpec)
			}
			spec.RecordStats = true
			continue
		}
		if !hasValue || value == "" {
			return Spec{}, fmt.Errorf("%w: %s requires a value", ErrInvalidSpec, key)
		}

		var err error
		switch key {
		case "maximumSize":
			spec.MaximumSize, err = strconv.ParseInt(value, 10, 64)
			if err == nil && spec.MaximumSize < 0 {
				err = errors.New("must not be negative")
			}
		case "initialCapacity":
			spec.InitialCapacity, err = strconv.Atoi(value)
			if err == nil && spec.InitialCapacity < 0 {
				err = errors.New("must not be negative")
			}
		case "expireAfterWrite":
			spec.ExpireAfterWrite, err = parseSpecDuration(value)
		case "expireAfterAccess":
			spec.ExpireAfterAccess, err = parseSpecDuration(value)
		default:
			return Spec{}, fmt.Errorf("%w: unknown key %q", ErrInvalidSpec, key)
		}
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %s=%s: %v", ErrInvalidSpec, key, value, err)
		}
	}
	return spec, nil
}

func parseSpecDuration(value string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, errors.New("must not be negative")
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}
