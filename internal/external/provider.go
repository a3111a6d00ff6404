package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"

	"neonnova/internal/types"
)

// providerAPIBase is the default provider API base URL, overridable in
// tests via ProviderClientConfig.BaseURL.
const providerAPIBase = "https://api.stripe.com"

// ProviderClientConfig holds the settings for creating a ProviderClient.
type ProviderClientConfig struct {
	SecretKey  types.SecretString
	BaseURL    string
	SuccessURL string
	CancelURL  string
	Logger     *slog.Logger
}

// ProviderClient implements PaymentProvider by calling the provider's REST
// API through BaseClient, inheriting circuit breaking and retries.
type ProviderClient struct {
	base   *BaseClient
	cfg    ProviderClientConfig
	logger *slog.Logger
}

// NewProviderClient creates a ProviderClient with default resilience
// settings.
func NewProviderClient(httpClient *http.Client, cfg ProviderClientConfig) *ProviderClient {
	return NewProviderClientWithBase(
		NewBaseClient(httpClient, "payment-provider", DefaultRetryPolicy()),
		cfg,
	)
}

// NewProviderClientWithBase creates a ProviderClient over a caller-provided
// BaseClient, for tests that need to control breaker and retry behavior.
func NewProviderClientWithBase(base *BaseClient, cfg ProviderClientConfig) *ProviderClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = providerAPIBase
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ProviderClient{base: base, cfg: cfg, logger: logger}
}

// CreateCheckoutSession opens a hosted payment page for the given cart
// snapshot. The redirect URLs always come from service configuration; the
// req values for user and snapshot ride along as metadata so webhooks can
// be correlated back to the local session.
func (p *ProviderClient) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*HostedSession, error) {
	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("client_reference_id", req.UserID)
	params.Set("success_url", p.cfg.SuccessURL)
	params.Set("cancel_url", p.cfg.CancelURL)
	params.Set("metadata[snapshot_id]", req.SnapshotID)
	params.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountTotal, 10))
	params.Set("line_items[0][price_data][product_data][name]", "Cart total")
	params.Set("line_items[0][quantity]", "1")

	resp, err := p.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, p.wrapTransportError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session providerSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode provider session response", err)
	}

	p.logger.InfoContext(ctx, "provider checkout session created",
		"session_id", session.ID,
		"user_id", req.UserID,
	)

	return &HostedSession{ID: session.ID, RedirectURL: session.URL}, nil
}

func (p *ProviderClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	return p.base.Do(req)
}

// providerErrorResponse is the JSON error body returned by the provider.
type providerErrorResponse struct {
	Error providerErrorBody `json:"error"`
}

type providerErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

func (p *ProviderClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamProvider,
			fmt.Sprintf("%s: provider returned status %d with unreadable body", operation, resp.StatusCode),
			readErr,
		)
	}

	var provErr providerErrorResponse
	if jsonErr := json.Unmarshal(body, &provErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamProvider,
			fmt.Sprintf("%s: provider returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	e := provErr.Error
	if e.Code == "card_declined" || e.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, e.Message),
			nil,
			map[string]any{"decline_code": e.DeclineCode, "provider_code": e.Code},
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: provider rate limit exceeded", operation), nil)
	case resp.StatusCode >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: provider server error: %s", operation, e.Message), nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamProvider,
			fmt.Sprintf("%s: provider error (%d): %s", operation, resp.StatusCode, e.Message), nil)
	}
}

func (p *ProviderClient) wrapTransportError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamProvider,
		fmt.Sprintf("%s: provider request failed", operation), err)
}

// providerSession is the subset of the provider's session object we use.
type providerSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Compile-time assertion that ProviderClient satisfies PaymentProvider.
var _ PaymentProvider = (*ProviderClient)(nil)
