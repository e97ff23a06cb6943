package core

import "math/rand/v2"

// MaxUsernameLength bounds display names, in bytes.
const MaxUsernameLength = 12

const (
	usernamePrefix   = "user"
	usernameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	usernameSuffix   = 4
)

// NewUsername returns "user" followed by four random uppercase alphanumerics.
func NewUsername() string {
	buf := make([]byte, usernameSuffix)
	for i := range buf {
		buf[i] = usernameAlphabet[rand.IntN(len(usernameAlphabet))]
	}
	return usernamePrefix + string(buf)
}

// ValidateUsername reports whether name may be assigned to a session.
func ValidateUsername(name string) error {
	if len(name) > MaxUsernameLength {
		return coreError(ErrCodeInvalidUsername, ErrInvalidUsername,
			"username is %d bytes, limit is %d", len(name), MaxUsernameLength)
	}
	return nil
}
