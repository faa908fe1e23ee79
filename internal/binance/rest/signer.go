package rest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer produces the HMAC-SHA256 signature Binance expects over the
// url-encoded request parameters.
type Signer struct {
	secretKey string
}

func NewSigner(secretKey string) *Signer {
	return &Signer{secretKey: secretKey}
}

func (s *Signer) Sign(payload string) string {
	h := hmac.New(sha256.New, []byte(s.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
