// Package types defines the domain types shared across the NeonNova
// checkout platform: checkout sessions, cart snapshots, webhook events,
// the application error taxonomy, and context helpers.
package types

import "time"

// SessionStatus is the lifecycle state of a checkout session.
// Pending is the only non-terminal state; a session that has entered a
// terminal state never transitions again.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionPaid     SessionStatus = "paid"
	SessionFailed   SessionStatus = "failed"
	SessionCanceled SessionStatus = "canceled"
	SessionExpired  SessionStatus = "expired"
)

// IsTerminal reports whether the status is a terminal state.
func (s SessionStatus) IsTerminal() bool {
	return s != SessionPending
}

// String returns the status as a plain string (for logging).
func (s SessionStatus) String() string {
	return string(s)
}

// CheckoutSession is the local record of a provider-hosted payment flow.
// SessionID is assigned by the payment provider and is the correlation key
// for webhook events. Rows are never deleted; terminal sessions are
// retained for audit.
type CheckoutSession struct {
	SessionID      string        `json:"session_id"`
	UserID         string        `json:"user_id"`
	CartSnapshotID string        `json:"cart_snapshot_id"`
	AmountTotal    int64         `json:"amount_total"` // minor currency units
	Currency       string        `json:"currency"`
	Status         SessionStatus `json:"status"`
	CheckoutURL    string        `json:"checkout_url,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	CartClearedAt  *time.Time    `json:"cart_cleared_at,omitempty"`
}

// CartLine is a live cart entry enriched with the catalog's current price
// and stock at read time. Prices are integer minor units.
type CartLine struct {
	ProductID int64
	Name      string
	UnitPrice int64
	Quantity  int32
	Stock     int32
}

// SnapshotItem is one line of an immutable cart snapshot. UnitPrice and
// StockAtSnapshot are captured at snapshot time and never change.
type SnapshotItem struct {
	ProductID       int64 `json:"product_id"`
	UnitPrice       int64 `json:"unit_price"`
	Quantity        int32 `json:"quantity"`
	StockAtSnapshot int32 `json:"stock_at_snapshot"`
}

// CartSnapshot is an immutable capture of cart contents and prices taken
// when a checkout session is created. Once referenced by a CheckoutSession
// it is never edited.
type CartSnapshot struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Items      []SnapshotItem `json:"items"`
	Total      int64          `json:"total"`
	Currency   string         `json:"currency"`
	CapturedAt time.Time      `json:"captured_at"`
}

// Address is the shipping address payload accepted by the personal-info
// step. The core only checks shape; persistence is delegated.
type Address struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country"`
}

// PaymentMethod is the opaque payment-method payload forwarded to the
// profile store. Token is a provider-issued reference, never raw card data.
type PaymentMethod struct {
	Type  string `json:"type" validate:"required,oneof=card paypal bank_transfer"`
	Token string `json:"token" validate:"required"`
}

// Order is the finalized order record created after confirmed payment.
// SessionID is unique, which makes order finalization idempotent.
type Order struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Total     int64          `json:"total"`
	Currency  string         `json:"currency"`
	Items     []SnapshotItem `json:"items"`
	CreatedAt time.Time      `json:"created_at"`
}

// SessionSummary is the owner-facing projection of a checkout session
// returned by the session-details endpoint.
type SessionSummary struct {
	SessionID   string        `json:"session_id"`
	Status      SessionStatus `json:"status"`
	AmountTotal int64         `json:"amount_total"`
	Currency    string        `json:"currency"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}
