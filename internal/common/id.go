package common

import (
	"github.com/google/uuid"
)

// NewID generates a unique entity ID (a random UUID)
func NewID() string {
	return uuid.New().String()
}

// NewPrefixedID generates an ID with a type prefix, e.g. "ntf_<uuid>"
func NewPrefixedID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}
