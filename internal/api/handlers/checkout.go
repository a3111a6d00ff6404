// Package handlers contains the HTTP handlers for the checkout API and
// the provider webhook endpoint.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"neonnova/internal/core"
	"neonnova/internal/types"
)

// CheckoutService is the surface of checkout.Manager the handlers use.
type CheckoutService interface {
	SavePersonalInfo(ctx context.Context, userID string, addr *types.Address) (string, error)
	SetPaymentMethod(ctx context.Context, userID string, pm *types.PaymentMethod) (string, error)
	CreateSession(ctx context.Context, userID string) (*types.CheckoutSession, error)
	GetSessionDetails(ctx context.Context, userID, sessionID string) (*types.SessionSummary, error)
}

// CheckoutHandler serves the buyer-facing checkout routes.
type CheckoutHandler struct {
	service CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates the handler.
func NewCheckoutHandler(service CheckoutService, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{service: service, logger: logger}
}

// RegisterRoutes mounts the checkout routes under /v1/checkout. All routes
// require a resolved user identity.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Route("/v1/checkout", func(r chi.Router) {
		r.Use(core.Identity)
		r.Post("/personal-info", h.handlePersonalInfo)
		r.Post("/payment-method", h.handlePaymentMethod)
		r.Post("/create-session", h.handleCreateSession)
		r.Get("/session/{sessionID}", h.handleSessionDetails)
	})
}

type personalInfoRequest struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country"`
}

type paymentMethodRequest struct {
	Type  string `json:"type" validate:"required,oneof=card paypal bank_transfer"`
	Token string `json:"token" validate:"required"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

func (h *CheckoutHandler) handlePersonalInfo(w http.ResponseWriter, r *http.Request) {
	userID, _ := types.GetUserID(r.Context())

	var req personalInfoRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := core.ValidateStruct(types.ErrCodeValidationInvalidAddress, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	addr := &types.Address{
		Street:     req.Street,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	}
	addressID, err := h.service.SavePersonalInfo(r.Context(), userID, addr)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"address_id": addressID}})
}

func (h *CheckoutHandler) handlePaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, _ := types.GetUserID(r.Context())

	var req paymentMethodRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := core.ValidateStruct(types.ErrCodeValidationInvalidMethod, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	pm := &types.PaymentMethod{Type: req.Type, Token: req.Token}
	methodID, err := h.service.SetPaymentMethod(r.Context(), userID, pm)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"payment_method_id": methodID}})
}

func (h *CheckoutHandler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := types.GetUserID(r.Context())

	session, err := h.service.CreateSession(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: createSessionResponse{
		SessionID: session.SessionID,
		URL:       session.CheckoutURL,
	}})
}

func (h *CheckoutHandler) handleSessionDetails(w http.ResponseWriter, r *http.Request) {
	userID, _ := types.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	summary, err := h.service.GetSessionDetails(r.Context(), userID, sessionID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}
