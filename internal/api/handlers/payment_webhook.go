package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"neonnova/internal/checkout"
	"neonnova/internal/core"
	"neonnova/internal/types"
)

// maxWebhookBodySize caps inbound webhook payloads at 64 KB.
const maxWebhookBodySize = 64 * 1024

// signatureHeader carries the provider's payload signature.
const signatureHeader = "Signature"

// EventReconciler is the surface of checkout.Reconciler the webhook
// handler uses.
type EventReconciler interface {
	HandleEvent(ctx context.Context, rawBody []byte, sigHeader string) (checkout.Outcome, error)
}

// PaymentWebhookHandler receives provider webhook deliveries. The endpoint
// is unauthenticated at the transport level; authentication is the payload
// signature, checked by the reconciler before anything else.
type PaymentWebhookHandler struct {
	reconciler EventReconciler
	logger     *slog.Logger
}

// NewPaymentWebhookHandler creates the handler.
func NewPaymentWebhookHandler(reconciler EventReconciler, logger *slog.Logger) *PaymentWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentWebhookHandler{reconciler: reconciler, logger: logger}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *PaymentWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/payment", h.handleEvent)
}

// handleEvent reads the raw body and delegates to the reconciler. Any
// error maps to a non-2xx status, which makes the provider redeliver;
// deduplication on our side keeps redelivery harmless.
func (h *PaymentWebhookHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "failed to read webhook body", err))
		return
	}

	outcome, err := h.reconciler.HandleEvent(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"outcome": string(outcome)}})
}
