// Package codes generates marathon join codes: short, confusion-safe,
// alphanumeric strings with an expiry. Grounded on
// original_source/utils/codes.py. §12 supplement: join codes are part
// of the Marathon entity (spec.md §3) but their generation lived in the
// admin/webapp layer in the source; the crawler core owns the type here
// since nothing else in this repo produces one.
package codes

import (
	"crypto/rand"
	"math/big"
	"time"
)

// safeAlphabet excludes visually-confusable characters (I, 1, O, 0),
// same 32-symbol set as the source's SAFE_ALPHABET.
const safeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Generate returns a random length-character code drawn from
// safeAlphabet using a CSPRNG — crypto/rand is the Go equivalent of
// Python's secrets module, not a behavior change.
func Generate(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(safeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = safeAlphabet[n.Int64()]
	}
	return string(out), nil
}

// Expiry returns the UTC instant hours from now at which a code
// generated now should stop being accepted.
func Expiry(hours int) time.Time {
	return time.Now().UTC().Add(time.Duration(hours) * time.Hour)
}
