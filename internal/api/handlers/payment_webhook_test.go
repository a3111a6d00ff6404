package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neonnova/internal/checkout"
	"neonnova/internal/types"
)

// mockReconciler implements EventReconciler for testing.
type mockReconciler struct {
	outcome checkout.Outcome
	err     error

	gotBody []byte
	gotSig  string
}

func (m *mockReconciler) HandleEvent(ctx context.Context, rawBody []byte, sigHeader string) (checkout.Outcome, error) {
	m.gotBody = rawBody
	m.gotSig = sigHeader
	return m.outcome, m.err
}

func newWebhookRouter(rec *mockReconciler) *chi.Mux {
	r := chi.NewRouter()
	NewPaymentWebhookHandler(rec, nil).RegisterRoutes(r)
	return r
}

func postWebhook(t *testing.T, router http.Handler, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set("Signature", sig)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestPaymentWebhook_Accepted(t *testing.T) {
	rec := &mockReconciler{outcome: checkout.OutcomeProcessed}
	rr := postWebhook(t, newWebhookRouter(rec), []byte(`{"id":"evt_1"}`), "t=1,v1=abc")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []byte(`{"id":"evt_1"}`), rec.gotBody)
	assert.Equal(t, "t=1,v1=abc", rec.gotSig)

	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "processed", resp.Data["outcome"])
}

func TestPaymentWebhook_DuplicateAcknowledged(t *testing.T) {
	rec := &mockReconciler{outcome: checkout.OutcomeDuplicate}
	rr := postWebhook(t, newWebhookRouter(rec), []byte(`{"id":"evt_1"}`), "t=1,v1=abc")

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestPaymentWebhook_SignatureRejected(t *testing.T) {
	rec := &mockReconciler{err: types.NewAppError(types.ErrCodeAuthSignatureInvalid, "bad signature", nil)}
	rr := postWebhook(t, newWebhookRouter(rec), []byte(`{"id":"evt_1"}`), "t=1,v1=bad")

	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "auth_signature_invalid", resp.Error.Code)
}

func TestPaymentWebhook_UnknownSessionRejected(t *testing.T) {
	rec := &mockReconciler{err: types.NewAppError(types.ErrCodeNotFoundSession, "checkout session not found", nil)}
	rr := postWebhook(t, newWebhookRouter(rec), []byte(`{"id":"evt_1"}`), "t=1,v1=abc")

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPaymentWebhook_PersistenceFailureTriggersRetry(t *testing.T) {
	rec := &mockReconciler{err: types.NewAppError(types.ErrCodeInternalDB, "db down", nil)}
	rr := postWebhook(t, newWebhookRouter(rec), []byte(`{"id":"evt_1"}`), "t=1,v1=abc")

	// Non-2xx makes the provider redeliver.
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
