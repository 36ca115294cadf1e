package credentials

import "errors"

var (
	// ErrMissingKey indicates an HMACConfig without a signing key.
	ErrMissingKey = errors.New("credentials: signing key is required")

	// ErrNoExpiry indicates a token without an exp claim.
	ErrNoExpiry = errors.New("credentials: token has no expiry")

	// ErrTokenMalformed indicates a token that is not a parseable JWT.
	ErrTokenMalformed = errors.New("credentials: token malformed")
)
