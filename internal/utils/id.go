package utils

import "github.com/google/uuid"

// NewID returns a random identifier for connections that carry no usable address.
func NewID() string {
	return uuid.NewString()
}
