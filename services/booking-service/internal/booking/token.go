package booking

import (
	"crypto/rand"
	"encoding/base64"
)

const tokenBytes = 32

// NewCancellationToken returns 256 random bits encoded as unpadded base64url.
// It shares no state with appointment ids.
func NewCancellationToken() (string, error) {
	var b [tokenBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
