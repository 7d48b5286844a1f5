package credential

import "errors"

var (
	ErrMalformed        = errors.New("malformed credential")
	ErrIncomplete       = errors.New("incomplete credential")
	ErrInvalidSignature = errors.New("invalid credential signature")
	ErrExpired          = errors.New("credential expired")
)

// IsCredentialError reports whether err is one of the codec's
// verification failures.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrIncomplete) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpired)
}
