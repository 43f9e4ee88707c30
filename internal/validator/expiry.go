// ABOUTME: Expiry validator enforcing iat/exp/nbf against a clock with skew tolerance
// ABOUTME: Rejections are TokenExpiredError values naming the rule that failed

package validator

import (
	"time"

	"github.com/2389/coven-jwt/internal/token"
)

// DefaultClockSkew is the tolerance applied when none is configured.
const DefaultClockSkew = 2 * time.Minute

// ExpiryValidator is immutable and safe for concurrent use.
type ExpiryValidator struct {
	skew time.Duration
	now  func() time.Time
}

// Option configures an ExpiryValidator.
type Option func(*ExpiryValidator)

// WithClockSkew sets the tolerance on both sides of now. Negative values are
// treated as zero.
func WithClockSkew(d time.Duration) Option {
	return func(v *ExpiryValidator) {
		v.skew = max(d, 0)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *ExpiryValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// New returns a validator with a two minute skew reading the system clock.
func New(opts ...Option) *ExpiryValidator {
	v := &ExpiryValidator{skew: DefaultClockSkew, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ClockSkew returns the configured tolerance.
func (v *ExpiryValidator) ClockSkew() time.Duration { return v.skew }

// Validate checks c against the validator's clock.
func (v *ExpiryValidator) Validate(c token.Claims) error {
	return v.ValidateAt(c, v.now())
}

// ValidateAt checks c as of now. Rules are applied in order:
//
//   - iat after exp, when both are asserted
//   - nbf after now+skew
//   - iat after now+skew
//   - exp at or before now-skew
func (v *ExpiryValidator) ValidateAt(c token.Claims, now time.Time) error {
	iat, hasIat := c.IssuedAtTime()
	exp, hasExp := c.ExpirationTime()
	nbf, hasNbf := c.NotBeforeTime()

	earliest := now.Add(-v.skew)
	latest := now.Add(v.skew)

	switch {
	case hasIat && hasExp && iat.After(exp):
		return &token.TokenExpiredError{Reason: token.ReasonInvalidOrdering}
	case hasNbf && nbf.After(latest):
		return &token.TokenExpiredError{Reason: token.ReasonNotYetValid}
	case hasIat && iat.After(latest):
		return &token.TokenExpiredError{Reason: token.ReasonIssuedInFuture}
	case hasExp && !exp.After(earliest):
		return &token.TokenExpiredError{Reason: token.ReasonExpired}
	}
	return nil
}
