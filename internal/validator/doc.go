// Package validator checks the temporal claims of a verified token.
//
// An ExpiryValidator accepts claims whose validity window [iat, exp) overlaps
// the current time widened by a clock skew (two minutes by default). Claims
// that assert none of iat, exp or nbf always pass.
//
//	v := validator.New(validator.WithClockSkew(30 * time.Second))
//	if err := v.Validate(tok.Claims()); err != nil {
//		var te *token.TokenExpiredError
//		errors.As(err, &te) // te.Reason says which rule failed
//	}
package validator
