package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
)

// ComputeHmac256 computes HMAC-SHA256 of message and encodes it as unpadded base64url.
func ComputeHmac256(message, secret string) (string, error) {
	key := []byte(secret)
	h := hmac.New(sha256.New, key)
	_, err := h.Write([]byte(message))
	if err != nil {
		return "", errors.Wrap(err, "hmac.Write")
	}

	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

// Equal compares two encoded MACs in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
