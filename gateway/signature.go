package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrInvalidSignature = errors.New("payment signature mismatch")

// Verifier checks the signature a gateway attaches to a successful checkout:
// hex(HMAC-SHA256(secret, gatewayOrderID + "|" + gatewayPaymentID)).
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Configured is false when no secret was provided; nothing can verify then.
func (v *Verifier) Configured() bool {
	return len(v.secret) > 0
}

func (v *Verifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. A malformed hex signature is a mismatch.
func (v *Verifier) Verify(gatewayOrderID, gatewayPaymentID, signature string) error {
	if !v.Configured() {
		return ErrNotConfigured
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
