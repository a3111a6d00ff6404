package external

import (
	"context"

	"neonnova/internal/types"
)

// Provider webhook event types, mapped to the terminal session status each
// one implies. Unrecognized event types are acknowledged and ignored.
const (
	EventPaymentCompleted = "checkout.session.completed"
	EventPaymentFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired   = "checkout.session.expired"
	EventSessionCanceled  = "checkout.session.canceled"
)

// OutcomeForEvent maps a provider event type to the terminal status it
// resolves the session into. ok is false for event types that carry no
// lifecycle meaning for us.
func OutcomeForEvent(eventType string) (types.SessionStatus, bool) {
	switch eventType {
	case EventPaymentCompleted:
		return types.SessionPaid, true
	case EventPaymentFailed:
		return types.SessionFailed, true
	case EventSessionExpired:
		return types.SessionExpired, true
	case EventSessionCanceled:
		return types.SessionCanceled, true
	default:
		return "", false
	}
}

// HostedSession is the provider's view of a newly created hosted payment
// page: the id webhooks will reference and the URL the buyer is sent to.
type HostedSession struct {
	ID          string
	RedirectURL string
}

// SessionRequest carries everything the provider needs to open a hosted
// payment page for a snapshot of the buyer's cart.
type SessionRequest struct {
	UserID      string
	SnapshotID  string
	AmountTotal int64
	Currency    string
}

// PaymentProvider abstracts the payment provider's session API.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*HostedSession, error)
}

// WebhookVerifier authenticates an inbound webhook payload against its
// signature header. A nil error means the payload is authentic and fresh.
type WebhookVerifier interface {
	Verify(payload []byte, sigHeader string, secret string) error
}
