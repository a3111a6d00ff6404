package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"neonnova/internal/external"
	"neonnova/internal/types"
)

// Outcome reports how a webhook event was handled. Every outcome except a
// returned error is acknowledged to the provider with a 2xx.
type Outcome string

const (
	// OutcomeProcessed: this call won the transition and ran side effects.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate: the event id was already in the dedup ledger.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeSuperseded: the session was already terminal, or a concurrent
	// delivery won the transition. The event id is recorded; no effects.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomeIgnored: the event type carries no lifecycle meaning.
	OutcomeIgnored Outcome = "ignored"
)

// webhookEvent is the provider's event envelope.
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// Coordinator runs post-payment side effects for a session that has just
// transitioned to paid.
type Coordinator interface {
	OnPaid(ctx context.Context, session *types.CheckoutSession) error
}

// Reconciler applies provider webhook events to local checkout sessions
// with exactly-once side effects. Deduplication is two-layered: the
// webhook_events ledger absorbs redelivery of the same event id, and the
// conditional pending-to-terminal update absorbs distinct events racing
// for the same session. Side effects run only on the single call that
// wins the transition.
type Reconciler struct {
	verifier external.WebhookVerifier
	secret   types.SecretString
	sessions SessionStore
	paid     Coordinator
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciler wires the webhook reconciler.
func NewReconciler(
	verifier external.WebhookVerifier,
	secret types.SecretString,
	sessions SessionStore,
	paid Coordinator,
	metrics Metrics,
	logger *slog.Logger,
) *Reconciler {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		verifier: verifier,
		secret:   secret,
		sessions: sessions,
		paid:     paid,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleEvent authenticates and applies one webhook delivery.
//
// Ordering is deliberate: the signature check runs before anything else, a
// failed delivery writes nothing, and the ledger entry is written only
// after the transition has committed. A crash between transition and
// ledger write is safe: the provider redelivers, the CAS finds the session
// terminal, and the redelivery lands in OutcomeSuperseded.
func (r *Reconciler) HandleEvent(ctx context.Context, rawBody []byte, sigHeader string) (Outcome, error) {
	started := r.now()
	outcome, err := r.handle(ctx, rawBody, sigHeader)
	r.metrics.RecordWebhookLatency(ctx, r.now().Sub(started))
	return outcome, err
}

func (r *Reconciler) handle(ctx context.Context, rawBody []byte, sigHeader string) (Outcome, error) {
	if err := r.verifier.Verify(rawBody, sigHeader, r.secret.Unmask()); err != nil {
		r.metrics.RecordWebhook(ctx, "unknown", ResultRejected)
		return "", mapVerifyError(err)
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		r.metrics.RecordWebhook(ctx, "unknown", ResultRejected)
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "malformed webhook payload", err)
	}
	if event.ID == "" || event.Type == "" {
		r.metrics.RecordWebhook(ctx, event.Type, ResultRejected)
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "webhook event id and type are required", nil)
	}

	processed, err := r.sessions.IsEventProcessed(ctx, event.ID)
	if err != nil {
		r.metrics.RecordWebhook(ctx, event.Type, ResultError)
		return "", err
	}
	if processed {
		r.logger.InfoContext(ctx, "duplicate webhook event acknowledged", "event_id", event.ID)
		r.metrics.RecordWebhook(ctx, event.Type, ResultDuplicate)
		return OutcomeDuplicate, nil
	}

	target, relevant := external.OutcomeForEvent(event.Type)
	if !relevant {
		r.logger.InfoContext(ctx, "ignoring webhook event type", "event_id", event.ID, "type", event.Type)
		r.metrics.RecordWebhook(ctx, event.Type, ResultAccepted)
		return OutcomeIgnored, nil
	}

	sessionID := event.Data.Object.ID
	if sessionID == "" {
		r.metrics.RecordWebhook(ctx, event.Type, ResultRejected)
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "webhook event carries no session id", nil)
	}

	session, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		r.metrics.RecordWebhook(ctx, event.Type, ResultRejected)
		return "", err
	}

	if session.Status.IsTerminal() {
		r.recordEvent(ctx, event.ID, sessionID)
		r.logger.InfoContext(ctx, "webhook event for resolved session acknowledged",
			"event_id", event.ID,
			"session_id", sessionID,
			"status", session.Status,
		)
		r.metrics.RecordWebhook(ctx, event.Type, ResultAccepted)
		return OutcomeSuperseded, nil
	}

	won, err := r.sessions.ApplyTransition(ctx, sessionID, target, r.now().UTC())
	if err != nil {
		r.metrics.RecordWebhook(ctx, event.Type, ResultError)
		return "", err
	}
	if !won {
		// A concurrent delivery resolved the session between our read and
		// the update. Its winner owns the side effects.
		r.recordEvent(ctx, event.ID, sessionID)
		r.metrics.RecordWebhook(ctx, event.Type, ResultAccepted)
		return OutcomeSuperseded, nil
	}

	session.Status = target
	if target == types.SessionPaid && r.paid != nil {
		if err := r.paid.OnPaid(ctx, session); err != nil {
			// The transition is committed; the session stays paid and the
			// sweeper finishes any incomplete post-payment work.
			r.logger.WarnContext(ctx, "post-payment work incomplete, sweeper will retry",
				"session_id", sessionID,
				"error", err,
			)
		}
	}

	r.recordEvent(ctx, event.ID, sessionID)
	r.logger.InfoContext(ctx, "webhook event applied",
		"event_id", event.ID,
		"session_id", sessionID,
		"type", event.Type,
		"status", target,
	)
	r.metrics.RecordWebhook(ctx, event.Type, ResultAccepted)
	return OutcomeProcessed, nil
}

// recordEvent writes the dedup ledger entry. Failures are logged, not
// surfaced: the transition CAS already guarantees single execution, and a
// redelivery of this id would resolve as superseded.
func (r *Reconciler) recordEvent(ctx context.Context, eventID, sessionID string) {
	if _, err := r.sessions.MarkEventProcessed(ctx, eventID, sessionID, r.now().UTC()); err != nil {
		r.logger.WarnContext(ctx, "failed to record webhook event in ledger",
			"event_id", eventID,
			"session_id", sessionID,
			"error", err,
		)
	}
}

func mapVerifyError(err error) error {
	switch {
	case errors.Is(err, external.ErrSignatureMissing):
		return types.NewAppError(types.ErrCodeAuthSignatureMissing, "webhook signature header is missing or malformed", err)
	case errors.Is(err, external.ErrSignatureStale):
		return types.NewAppError(types.ErrCodeAuthSignatureStale, "webhook signature timestamp is outside tolerance", err)
	default:
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "webhook signature verification failed", err)
	}
}
