package util

import (
	"crypto/rand"
)

// RandomToken generates a string of length n drawn from the given alphabet.
// The alphabet length must divide 256 evenly to avoid skew; the join code
// alphabet in internal/group satisfies this with 32 symbols.
func RandomToken(n int, alphabet string) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b), nil
}
