package utils

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// NewID returns a globally unique identifier string.
func NewID() string {
	return uuid.NewString()
}

// NameSuffix returns a random 4-digit number in [1000, 9999] used to
// disambiguate a taken name.
func NameSuffix() int {
	return 1000 + rand.IntN(9000)
}

// SuffixName appends a random 4-digit suffix to the given base name.
func SuffixName(base string) string {
	return fmt.Sprintf("%s%d", base, NameSuffix())
}
