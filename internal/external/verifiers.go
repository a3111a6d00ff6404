package external

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// Sentinel errors for webhook signature verification. The webhook handler
// maps these to the auth error codes.
var (
	ErrSignatureMissing = errors.New("signature header is missing")
	ErrSignatureInvalid = errors.New("signature does not match payload")
	ErrSignatureStale   = errors.New("signature timestamp outside tolerance")
)

// SignatureVerifier implements WebhookVerifier using stripe-go's webhook
// signature verification: the header carries a unix timestamp and one or
// more hex-encoded HMAC-SHA256 signatures over "<timestamp>.<payload>"
// ("t=1698000000,v1=5257a86..."). Multiple v1 entries allow secret
// rotation; timestamps older than the tolerance are rejected to limit
// replay.
type SignatureVerifier struct {
	Tolerance time.Duration
}

// NewSignatureVerifier creates a verifier with the given timestamp
// tolerance.
func NewSignatureVerifier(tolerance time.Duration) *SignatureVerifier {
	return &SignatureVerifier{Tolerance: tolerance}
}

// Verify checks the signature header against the payload and secret.
// Returns nil when a signature matches and the timestamp is within
// tolerance; otherwise an error wrapping one of the sentinels.
func (v *SignatureVerifier) Verify(payload []byte, sigHeader string, secret string) error {
	err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, secret, v.Tolerance)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, webhook.ErrNotSigned):
		return fmt.Errorf("%w: %v", ErrSignatureMissing, err)
	case errors.Is(err, webhook.ErrTooOld):
		return fmt.Errorf("%w: %v", ErrSignatureStale, err)
	default:
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
}

// Compile-time assertion that SignatureVerifier satisfies WebhookVerifier.
var _ WebhookVerifier = (*SignatureVerifier)(nil)
