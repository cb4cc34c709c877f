package order

import (
	"crypto/rand"
	"crypto/subtle"
)

const (
	pickupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	pickupLength   = 6
)

// newPickupCode draws from 32 symbols; I, O, 0 and 1 are left out.
func newPickupCode() (string, error) {
	b := make([]byte, pickupLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = pickupAlphabet[int(b[i])%len(pickupAlphabet)]
	}
	return string(b), nil
}

func pickupMatches(stored, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
