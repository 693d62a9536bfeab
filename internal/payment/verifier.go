package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

// Verifier checks that a payment confirmation was issued by the gateway.
// The gateway signs "order_ref|payment_ref" with HMAC-SHA256 and hex-encodes
// the digest.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("payment verifier requires a secret")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func (v *Verifier) Sign(orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify returns nil when signature is authentic and ErrSignatureMismatch
// otherwise.
func (v *Verifier) Verify(orderRef, paymentRef, signature string) error {
	if orderRef == "" || paymentRef == "" {
		return fmt.Errorf("gateway order and payment references are required: %w", domain.ErrValidation)
	}

	// Compare the hex text itself so that case variants of the digest are
	// rejected too.
	expected := v.Sign(orderRef, paymentRef)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrSignatureMismatch
	}

	return nil
}
